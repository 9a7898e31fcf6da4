package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"fieldtrack/internal/geo"
	"fieldtrack/internal/model"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

// All returns copies of every finalized entry in completion order.
func (h *History) All() []model.RouteHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filter(func(model.RouteHistoryEntry) bool { return true })
}

func (h *History) ByJobID(jobID string) []model.RouteHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filter(func(e model.RouteHistoryEntry) bool { return e.JobID == jobID })
}

func (h *History) ByPropertyID(propertyID string) []model.RouteHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.filter(func(e model.RouteHistoryEntry) bool { return e.PropertyID == propertyID })
}

// Get looks up id in history, then in the active slot.
func (h *History) Get(id string) (model.RouteHistoryEntry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.history {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	if h.active != nil && h.active.ID == id {
		return h.active.Clone(), true
	}
	return model.RouteHistoryEntry{}, false
}

// Unsynced is the sync queue: finalized entries not yet accepted by the server, oldest first.
func (h *History) Unsynced() []model.RouteHistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.filter(func(e model.RouteHistoryEntry) bool { return !e.SyncedToServer })
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// filter copies matching history entries. Caller holds mu.
func (h *History) filter(keep func(model.RouteHistoryEntry) bool) []model.RouteHistoryEntry {
	out := []model.RouteHistoryEntry{}
	for _, e := range h.history {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	return out
}

func (h *History) Stats() model.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats()
}

func (h *History) stats() model.Stats {
	var s model.Stats
	for i := range h.history {
		e := &h.history[i]
		s.TotalRoutes++
		s.TotalDistanceMeters += e.TotalDistanceMeters
		s.TotalEstimatedMeters += e.EstimatedDistanceMeters
		if !e.SyncedToServer {
			s.UnsyncedCount++
		}
		if s.FirstRouteAt == nil || e.StartTime.Before(*s.FirstRouteAt) {
			t := e.StartTime
			s.FirstRouteAt = &t
		}
		if s.LastRouteAt == nil || e.StartTime.After(*s.LastRouteAt) {
			t := e.StartTime
			s.LastRouteAt = &t
		}
	}
	if s.TotalRoutes > 0 {
		s.AverageDistanceMeters = s.TotalDistanceMeters / float64(s.TotalRoutes)
	}
	return s
}

// MarkSynced flags the given entries as accepted by the server and returns how many changed.
func (h *History) MarkSynced(ctx context.Context, ids []string) (int, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for i := range h.history {
		if _, ok := want[h.history[i].ID]; ok && !h.history[i].SyncedToServer {
			h.history[i].SyncedToServer = true
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	h.prune()
	h.logf("marked %d route(s) synced", n)
	return n, h.saveHistory(ctx)
}

// Delete removes a finalized entry.
func (h *History) Delete(ctx context.Context, id string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.history {
		if h.history[i].ID == id {
			h.history = append(h.history[:i], h.history[i+1:]...)
			return true, h.saveHistory(ctx)
		}
	}
	return false, nil
}

// ClearAll drops the history and the active route.
func (h *History) ClearAll(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = []model.RouteHistoryEntry{}
	h.active = nil
	h.logf("cleared all route state")
	return errors.Join(h.saveHistory(ctx), h.clearActive(ctx))
}

// Export snapshots the full state with aggregate statistics.
func (h *History) Export() model.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := model.Snapshot{
		Version:    model.SnapshotVersion,
		ExportedAt: h.now().UTC(),
		History:    h.filter(func(model.RouteHistoryEntry) bool { return true }),
		Stats:      h.stats(),
	}
	if h.active != nil {
		a := h.active.Clone()
		snap.ActiveRoute = &a
	}
	return snap
}

func (h *History) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(h.Export(), "", "  ")
}

// Import replaces the history with the snapshot's entries. Entries are validated and
// their distances recomputed. The snapshot's active route is restored only when no
// route is currently active.
func (h *History) Import(ctx context.Context, snap model.Snapshot) error {
	if snap.Version > model.SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}
	entries := make([]model.RouteHistoryEntry, 0, len(snap.History))
	seen := map[string]struct{}{}
	for i, e := range snap.History {
		if err := validateEntry(e); err != nil {
			return fmt.Errorf("%w: history[%d]: %v", ErrInvalidSnapshot, i, err)
		}
		if e.EndTime == nil {
			return fmt.Errorf("%w: history[%d]: route %s is not finalized", ErrInvalidSnapshot, i, e.ID)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate route id %s", ErrInvalidSnapshot, e.ID)
		}
		seen[e.ID] = struct{}{}
		c := e.Clone()
		c.TotalDistanceMeters = geo.PathDistance(c.RoutePoints)
		entries = append(entries, c)
	}
	var active *model.RouteHistoryEntry
	if snap.ActiveRoute != nil {
		if err := validateEntry(*snap.ActiveRoute); err != nil {
			return fmt.Errorf("%w: activeRoute: %v", ErrInvalidSnapshot, err)
		}
		a := snap.ActiveRoute.Clone()
		a.EndTime, a.EndLocation = nil, nil
		a.TotalDistanceMeters = geo.PathDistance(a.RoutePoints)
		active = &a
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = entries
	h.prune()
	errs := []error{h.saveHistory(ctx)}
	if active != nil {
		if h.active == nil {
			h.active = active
			errs = append(errs, h.saveActive(ctx))
		} else {
			h.logf("import: keeping active route %s, snapshot route %s ignored", h.active.ID, active.ID)
		}
	}
	h.logf("imported %d route(s)", len(entries))
	return errors.Join(errs...)
}

func (h *History) ImportJSON(ctx context.Context, data []byte) error {
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return h.Import(ctx, snap)
}

func validateEntry(e model.RouteHistoryEntry) error {
	if e.ID == "" {
		return errors.New("missing id")
	}
	if len(e.RoutePoints) == 0 {
		return fmt.Errorf("route %s has no points", e.ID)
	}
	for i, p := range e.RoutePoints {
		if err := geo.ValidateCoordinates(p); err != nil {
			return fmt.Errorf("route %s point %d: %w", e.ID, i, err)
		}
	}
	return nil
}
