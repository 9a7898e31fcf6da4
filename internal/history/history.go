// Package history keeps the bookkeeping for route tracking sessions: the single
// active route, the finalized history and the per-route sync flags.
//
// All operations are serialized behind one mutex, and every mutation rewrites the
// affected key through the store.Store boundary. The in-memory state is authoritative;
// a failed write is logged, counted and reported as ErrPersist.
package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
	"fieldtrack/internal/store"
)

var (
	ErrRouteActive   = errors.New("a route is already active")
	ErrNoActiveRoute = errors.New("no active route")
	ErrPersist       = errors.New("persist route state")
)

// StartInput describes a new tracking session.
type StartInput struct {
	JobID                   string
	PropertyID              string
	StartLocation           model.Coordinates
	EstimatedDistanceMeters float64
	Metadata                map[string]any
}

type History struct {
	mu      sync.Mutex
	store   store.Store
	history []model.RouteHistoryEntry
	active  *model.RouteHistoryEntry

	maxHistory int
	now        func() time.Time
	logger     *log.Logger
}

type Option func(*History)

// WithMaxHistory keeps at most n finalized entries by pruning the oldest synced ones.
// Unsynced entries are never pruned. n <= 0 disables pruning.
func WithMaxHistory(n int) Option { return func(h *History) { h.maxHistory = n } }

func WithClock(now func() time.Time) Option { return func(h *History) { h.now = now } }

func WithLogger(l *log.Logger) Option { return func(h *History) { h.logger = l } }

// Open rehydrates state from st. A failed read is logged and the store starts empty.
func Open(ctx context.Context, st store.Store, opts ...Option) *History {
	h := &History{store: st, now: time.Now, logger: log.Default()}
	for _, o := range opts {
		o(h)
	}
	hist, err := st.LoadHistory(ctx)
	if err != nil {
		h.logf("load history failed, starting empty: %v", err)
		metrics.StoreErrors.WithLabelValues("load_history").Inc()
		hist = nil
	}
	h.history = make([]model.RouteHistoryEntry, 0, len(hist))
	for _, e := range hist {
		e.TotalDistanceMeters = geo.PathDistance(e.RoutePoints)
		h.history = append(h.history, e)
	}
	active, err := st.LoadActive(ctx)
	if err != nil {
		h.logf("load active route failed, starting without one: %v", err)
		metrics.StoreErrors.WithLabelValues("load_active").Inc()
		active = nil
	}
	if active != nil {
		active.TotalDistanceMeters = geo.PathDistance(active.RoutePoints)
		h.active = active
		h.logf("restored active route %s (job %s, %d points)", active.ID, active.JobID, len(active.RoutePoints))
	}
	return h
}

func (h *History) logf(format string, args ...any) {
	h.logger.Printf("[history] "+format, args...)
}

func newRouteID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("route_%d_%s", t.UnixMilli(), suffix)
}

// StartTracking opens a new active route. If one is already active nothing changes
// and ErrRouteActive is returned.
func (h *History) StartTracking(ctx context.Context, in StartInput) (string, error) {
	if err := geo.ValidateCoordinates(in.StartLocation); err != nil {
		h.logf("start rejected for job %s: %v", in.JobID, err)
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active != nil {
		h.logf("start ignored for job %s: route %s already active", in.JobID, h.active.ID)
		return "", ErrRouteActive
	}
	now := h.now()
	start := in.StartLocation.Clone()
	e := model.RouteHistoryEntry{
		ID:                      newRouteID(now),
		JobID:                   in.JobID,
		PropertyID:              in.PropertyID,
		StartTime:               now,
		StartLocation:           start,
		RoutePoints:             []model.Coordinates{start.Clone()},
		EstimatedDistanceMeters: in.EstimatedDistanceMeters,
		Metadata:                copyMetadata(in.Metadata),
	}
	h.active = &e
	metrics.Routes.WithLabelValues("started").Inc()
	h.logf("started route %s for job %s", e.ID, e.JobID)
	return e.ID, h.saveActive(ctx)
}

// ActiveRoute returns a copy of the in-flight route.
func (h *History) ActiveRoute() (model.RouteHistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return model.RouteHistoryEntry{}, false
	}
	return h.active.Clone(), true
}

// AddBreadcrumb appends point to the active route and recomputes its total distance
// over the whole sequence. It reports false when no route is active.
func (h *History) AddBreadcrumb(ctx context.Context, point model.Coordinates) (bool, error) {
	if err := geo.ValidateCoordinates(point); err != nil {
		h.logf("breadcrumb rejected: %v", err)
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		return false, nil
	}
	h.active.RoutePoints = append(h.active.RoutePoints, point.Clone())
	h.active.TotalDistanceMeters = geo.PathDistance(h.active.RoutePoints)
	return true, h.saveActive(ctx)
}

// EndTracking finalizes the active route and moves it into history. endLocation is
// appended only when it differs from the last recorded point. patch is merged into
// the route metadata.
func (h *History) EndTracking(ctx context.Context, endLocation model.Coordinates, patch map[string]any) (*model.RouteHistoryEntry, error) {
	if err := geo.ValidateCoordinates(endLocation); err != nil {
		h.logf("end rejected: %v", err)
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		h.logf("end ignored: no active route")
		return nil, ErrNoActiveRoute
	}
	e := h.active
	if n := len(e.RoutePoints); n == 0 || !e.RoutePoints[n-1].SamePosition(endLocation) {
		e.RoutePoints = append(e.RoutePoints, endLocation.Clone())
	}
	end := h.now()
	loc := endLocation.Clone()
	e.EndTime = &end
	e.EndLocation = &loc
	if len(patch) > 0 {
		if e.Metadata == nil {
			e.Metadata = map[string]any{}
		}
		for k, v := range patch {
			e.Metadata[k] = v
		}
	}
	e.TotalDistanceMeters = geo.PathDistance(e.RoutePoints)

	h.history = append(h.history, *e)
	h.active = nil
	h.prune()

	metrics.Routes.WithLabelValues("completed").Inc()
	metrics.RouteDistance.Observe(e.TotalDistanceMeters)
	h.logf("completed route %s for job %s: %d points, %s (estimated %s)",
		e.ID, e.JobID, len(e.RoutePoints), geo.FormatDistance(e.TotalDistanceMeters), geo.FormatDistance(e.EstimatedDistanceMeters))

	// History first so a crash between the writes never loses the finalized route.
	err := errors.Join(h.saveHistory(ctx), h.clearActive(ctx))
	out := e.Clone()
	return &out, err
}

// CancelTracking discards the active route without writing it to history.
func (h *History) CancelTracking(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active == nil {
		h.logf("cancel ignored: no active route")
		return false, nil
	}
	h.logf("cancelled route %s for job %s", h.active.ID, h.active.JobID)
	h.active = nil
	metrics.Routes.WithLabelValues("cancelled").Inc()
	return true, h.clearActive(ctx)
}

// prune drops the oldest synced entries beyond maxHistory. Caller holds mu.
func (h *History) prune() {
	if h.maxHistory <= 0 || len(h.history) <= h.maxHistory {
		return
	}
	excess := len(h.history) - h.maxHistory
	kept := h.history[:0]
	for _, e := range h.history {
		if excess > 0 && e.SyncedToServer {
			excess--
			continue
		}
		kept = append(kept, e)
	}
	h.history = kept
}

func (h *History) saveActive(ctx context.Context) error {
	if err := h.store.SaveActive(ctx, *h.active); err != nil {
		return h.persistFailed("save_active", err)
	}
	return nil
}

func (h *History) saveHistory(ctx context.Context) error {
	if err := h.store.SaveHistory(ctx, h.history); err != nil {
		return h.persistFailed("save_history", err)
	}
	return nil
}

func (h *History) clearActive(ctx context.Context) error {
	if err := h.store.ClearActive(ctx); err != nil {
		return h.persistFailed("clear_active", err)
	}
	return nil
}

func (h *History) persistFailed(op string, err error) error {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	h.logf("%s failed, keeping in-memory state: %v", op, err)
	return fmt.Errorf("%w: %w", ErrPersist, err)
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
