// Package tracking records the travelled route of a job session as GPS breadcrumbs.
//
// A Tracker consumes live fixes and decides which of them become breadcrumbs:
// a fix is recorded when it is at least MinDistanceMeters from the last breadcrumb,
// and on every periodic Tick the latest fix is recorded so that the session keeps
// refreshing while the worker is nearly stationary. The route itself lives in a
// history.History; the Tracker only drives it.
package tracking

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/history"
	"fieldtrack/internal/location"
	"fieldtrack/internal/metrics"
	"fieldtrack/internal/model"
)

var ErrNoFix = errors.New("no location fix available")

// Config is the breadcrumb sampling policy.
type Config struct {
	MinDistanceMeters float64       `yaml:"min_distance_meters" validate:"gte=0"`
	Interval          time.Duration `yaml:"interval" validate:"gte=0"`
	// MaxAccuracyMeters drops fixes with a worse reported accuracy. 0 disables the gate.
	MaxAccuracyMeters float64 `yaml:"max_accuracy_meters" validate:"gte=0"`
}

const (
	DefaultMinDistanceMeters = geo.ArrivalThreshold
	DefaultInterval          = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MinDistanceMeters == 0 {
		c.MinDistanceMeters = DefaultMinDistanceMeters
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// StartInput carries the job details; the start location is the latest fix.
type StartInput struct {
	JobID                   string
	PropertyID              string
	EstimatedDistanceMeters float64
	Metadata                map[string]any
}

type Status struct {
	Tracking                bool               `json:"tracking"`
	RouteID                 string             `json:"routeId,omitempty"`
	JobID                   string             `json:"jobId,omitempty"`
	BreadcrumbCount         int                `json:"breadcrumbCount"`
	DistanceMeters          float64            `json:"distanceMeters"`
	EstimatedDistanceMeters float64            `json:"estimatedDistanceMeters"`
	DistanceVarianceMeters  float64            `json:"distanceVarianceMeters"`
	LastFix                 *model.Coordinates `json:"lastFix,omitempty"`
	Bearing                 *float64           `json:"bearing,omitempty"`
}

type Tracker struct {
	mu      sync.Mutex
	history *history.History
	cfg     Config
	logger  *log.Logger

	onStarted     func(model.RouteHistoryEntry)
	onComplete    func(model.RouteHistoryEntry)
	onCancelled   func(routeID, jobID string)
	cancelOnClose bool

	lastFix   *model.Coordinates
	prevFix   *model.Coordinates
	lastCrumb *model.Coordinates
}

type Option func(*Tracker)

func OnRouteStarted(fn func(model.RouteHistoryEntry)) Option {
	return func(t *Tracker) { t.onStarted = fn }
}

// OnRouteComplete receives every finalized route; this is where sync and
// downstream notifications hook in.
func OnRouteComplete(fn func(model.RouteHistoryEntry)) Option {
	return func(t *Tracker) { t.onComplete = fn }
}

func OnRouteCancelled(fn func(routeID, jobID string)) Option {
	return func(t *Tracker) { t.onCancelled = fn }
}

// WithCancelOnClose makes Run discard, instead of finalize, an active session on exit.
func WithCancelOnClose() Option { return func(t *Tracker) { t.cancelOnClose = true } }

func WithLogger(l *log.Logger) Option { return func(t *Tracker) { t.logger = l } }

// New builds a tracker over h. A route already active in h (restored after a
// restart) continues from its last recorded point.
func New(h *history.History, cfg Config, opts ...Option) *Tracker {
	t := &Tracker{history: h, cfg: cfg.withDefaults(), logger: log.Default()}
	for _, o := range opts {
		o(t)
	}
	if a, ok := h.ActiveRoute(); ok && len(a.RoutePoints) > 0 {
		last := a.RoutePoints[len(a.RoutePoints)-1]
		t.lastCrumb = &last
		t.logf("resuming route %s for job %s", a.ID, a.JobID)
	}
	return t
}

func (t *Tracker) logf(format string, args ...any) {
	t.logger.Printf("[tracking] "+format, args...)
}

func (t *Tracker) Config() Config { return t.cfg }

// HandleFix records the latest fix and appends it as a breadcrumb when it is far
// enough from the previous one. Invalid fixes are logged and skipped.
func (t *Tracker) HandleFix(ctx context.Context, fix model.Coordinates) error {
	if err := geo.ValidateCoordinates(fix); err != nil {
		metrics.Fixes.WithLabelValues("tracking", "rejected").Inc()
		t.logf("skipping fix: %v", err)
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := fix.Clone()
	if t.lastFix != nil && !t.lastFix.SamePosition(c) {
		t.prevFix = t.lastFix
	}
	t.lastFix = &c

	if _, ok := t.history.ActiveRoute(); !ok || !t.accurateEnough(c) {
		return nil
	}
	if t.lastCrumb != nil && geo.Distance(*t.lastCrumb, c) < t.cfg.MinDistanceMeters {
		return nil
	}
	return t.record(ctx, c, "distance")
}

// Tick is the periodic check: the latest fix is recorded unless it is exactly the
// last breadcrumb.
func (t *Tracker) Tick(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastFix == nil {
		return nil
	}
	if _, ok := t.history.ActiveRoute(); !ok || !t.accurateEnough(*t.lastFix) {
		return nil
	}
	if t.lastCrumb != nil && t.lastCrumb.SamePosition(*t.lastFix) {
		return nil
	}
	return t.record(ctx, *t.lastFix, "interval")
}

func (t *Tracker) accurateEnough(c model.Coordinates) bool {
	return t.cfg.MaxAccuracyMeters <= 0 || c.Accuracy == nil || *c.Accuracy <= t.cfg.MaxAccuracyMeters
}

// record appends c to the active route. Caller holds mu.
func (t *Tracker) record(ctx context.Context, c model.Coordinates, trigger string) error {
	added, err := t.history.AddBreadcrumb(ctx, c)
	if added {
		crumb := c.Clone()
		t.lastCrumb = &crumb
		metrics.Breadcrumbs.WithLabelValues(trigger).Inc()
	}
	return err
}

// StartTracking opens a session at the latest fix. Without a fix it is a logged
// no-op returning ErrNoFix; with a session already active it returns
// history.ErrRouteActive.
func (t *Tracker) StartTracking(ctx context.Context, in StartInput) (string, error) {
	t.mu.Lock()
	if t.lastFix == nil {
		t.mu.Unlock()
		t.logf("start for job %s ignored: %v", in.JobID, ErrNoFix)
		return "", ErrNoFix
	}
	start := t.lastFix.Clone()
	id, err := t.history.StartTracking(ctx, history.StartInput{
		JobID:                   in.JobID,
		PropertyID:              in.PropertyID,
		StartLocation:           start,
		EstimatedDistanceMeters: in.EstimatedDistanceMeters,
		Metadata:                in.Metadata,
	})
	if id == "" {
		t.mu.Unlock()
		return "", err
	}
	t.lastCrumb = &start
	fn := t.onStarted
	t.mu.Unlock()

	if fn != nil {
		if e, ok := t.history.Get(id); ok {
			fn(e)
		}
	}
	return id, err
}

// StopTracking finalizes the session at the latest fix and hands the entry to
// OnRouteComplete.
func (t *Tracker) StopTracking(ctx context.Context, patch map[string]any) (*model.RouteHistoryEntry, error) {
	t.mu.Lock()
	active, ok := t.history.ActiveRoute()
	if !ok {
		t.mu.Unlock()
		t.logf("stop ignored: %v", history.ErrNoActiveRoute)
		return nil, history.ErrNoActiveRoute
	}
	var end model.Coordinates
	if t.lastFix != nil {
		end = t.lastFix.Clone()
	} else {
		end = active.RoutePoints[len(active.RoutePoints)-1]
	}
	entry, err := t.history.EndTracking(ctx, end, patch)
	if entry == nil {
		t.mu.Unlock()
		return nil, err
	}
	t.lastCrumb = nil
	fn := t.onComplete
	t.mu.Unlock()

	if fn != nil {
		fn(*entry)
	}
	return entry, err
}

// CancelTracking discards the session.
func (t *Tracker) CancelTracking(ctx context.Context) (bool, error) {
	t.mu.Lock()
	active, ok := t.history.ActiveRoute()
	cancelled, err := t.history.CancelTracking(ctx)
	if cancelled {
		t.lastCrumb = nil
	}
	fn := t.onCancelled
	t.mu.Unlock()

	if cancelled && ok && fn != nil {
		fn(active.ID, active.JobID)
	}
	return cancelled, err
}

func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	var s Status
	if a, ok := t.history.ActiveRoute(); ok {
		s.Tracking = true
		s.RouteID = a.ID
		s.JobID = a.JobID
		s.BreadcrumbCount = len(a.RoutePoints)
		s.DistanceMeters = a.TotalDistanceMeters
		s.EstimatedDistanceMeters = a.EstimatedDistanceMeters
		s.DistanceVarianceMeters = a.TotalDistanceMeters - a.EstimatedDistanceMeters
	}
	if t.lastFix != nil {
		fix := t.lastFix.Clone()
		s.LastFix = &fix
		if t.prevFix != nil {
			b := geo.Bearing(*t.prevFix, fix)
			s.Bearing = &b
		}
	}
	return s
}

// Run drives the tracker from sub until ctx ends or the stream closes. On return
// an active session is finalized, or cancelled with WithCancelOnClose, and the
// subscription is released.
func (t *Tracker) Run(ctx context.Context, sub *location.Subscription) {
	defer sub.Unsubscribe()
	defer t.close(context.WithoutCancel(ctx))

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			if u.Err != nil {
				metrics.Fixes.WithLabelValues("tracking", "error").Inc()
				t.logf("location error: %v", u.Err)
				continue
			}
			_ = t.HandleFix(ctx, u.Coords)
		case <-ticker.C:
			_ = t.Tick(ctx)
		}
	}
}

func (t *Tracker) close(ctx context.Context) {
	if _, ok := t.history.ActiveRoute(); !ok {
		return
	}
	if t.cancelOnClose {
		_, _ = t.CancelTracking(ctx)
		return
	}
	if _, err := t.StopTracking(ctx, map[string]any{"closedBy": "shutdown"}); err != nil {
		t.logf("finalize on close: %v", err)
	}
}
