package tracking

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"testing"
	"time"

	"fieldtrack/internal/history"
	"fieldtrack/internal/location"
	"fieldtrack/internal/model"
	"fieldtrack/internal/store"
)

const metersPerDegree = 6371000.0 * math.Pi / 180

var origin = model.Coordinates{Latitude: 51.5, Longitude: -0.12}

func north(d float64) model.Coordinates {
	return model.Coordinates{Latitude: origin.Latitude + d/metersPerDegree, Longitude: origin.Longitude}
}

func quiet() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

func newHistory(st store.Store) *history.History {
	return history.Open(context.Background(), st, history.WithLogger(quiet()))
}

func newTracker(t *testing.T, cfg Config, opts ...Option) (*Tracker, *history.History) {
	t.Helper()
	h := newHistory(store.New(store.NewMemory()))
	return New(h, cfg, append([]Option{WithLogger(quiet())}, opts...)...), h
}

func startAt(t *testing.T, tr *Tracker, at model.Coordinates) string {
	t.Helper()
	ctx := context.Background()
	if err := tr.HandleFix(ctx, at); err != nil {
		t.Fatalf("HandleFix: %v", err)
	}
	id, err := tr.StartTracking(ctx, StartInput{JobID: "J1", PropertyID: "P1", EstimatedDistanceMeters: 1000})
	if err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	return id
}

func TestDefaults(t *testing.T) {
	tr, _ := newTracker(t, Config{})
	if c := tr.Config(); c.MinDistanceMeters != 50 || c.Interval != 30*time.Second {
		t.Fatalf("defaults %+v", c)
	}
}

func TestStartRequiresFix(t *testing.T) {
	tr, h := newTracker(t, Config{})
	if _, err := tr.StartTracking(context.Background(), StartInput{JobID: "J1"}); !errors.Is(err, ErrNoFix) {
		t.Fatalf("want ErrNoFix, got %v", err)
	}
	if _, ok := h.ActiveRoute(); ok {
		t.Fatalf("route started without a fix")
	}
}

func TestDoubleStart(t *testing.T) {
	tr, h := newTracker(t, Config{})
	id := startAt(t, tr, origin)
	if _, err := tr.StartTracking(context.Background(), StartInput{JobID: "J2"}); !errors.Is(err, history.ErrRouteActive) {
		t.Fatalf("want ErrRouteActive, got %v", err)
	}
	if a, _ := h.ActiveRoute(); a.ID != id {
		t.Fatalf("active route replaced")
	}
}

func TestDistanceSampling(t *testing.T) {
	ctx := context.Background()
	tr, h := newTracker(t, Config{MinDistanceMeters: 50, Interval: time.Hour})
	startAt(t, tr, origin)

	_ = tr.HandleFix(ctx, north(30))
	if a, _ := h.ActiveRoute(); len(a.RoutePoints) != 1 {
		t.Fatalf("fix under threshold recorded")
	}
	_ = tr.HandleFix(ctx, north(60))
	_ = tr.HandleFix(ctx, north(90))
	_ = tr.HandleFix(ctx, north(115))
	a, _ := h.ActiveRoute()
	if len(a.RoutePoints) != 3 {
		t.Fatalf("want 3 points (start, 60 m, 115 m), got %d", len(a.RoutePoints))
	}
	if math.Abs(a.TotalDistanceMeters-115) > 0.5 {
		t.Fatalf("total %f", a.TotalDistanceMeters)
	}
}

func TestTickRecordsLatestFix(t *testing.T) {
	ctx := context.Background()
	tr, h := newTracker(t, Config{MinDistanceMeters: 50, Interval: time.Hour})
	startAt(t, tr, origin)

	if err := tr.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if a, _ := h.ActiveRoute(); len(a.RoutePoints) != 1 {
		t.Fatalf("tick duplicated the start point")
	}
	_ = tr.HandleFix(ctx, north(10))
	_ = tr.Tick(ctx)
	_ = tr.Tick(ctx)
	a, _ := h.ActiveRoute()
	if len(a.RoutePoints) != 2 {
		t.Fatalf("want 2 points after ticks, got %d", len(a.RoutePoints))
	}
}

func TestAccuracyGate(t *testing.T) {
	ctx := context.Background()
	tr, h := newTracker(t, Config{MaxAccuracyMeters: 100, Interval: time.Hour})
	startAt(t, tr, origin)
	poor, good := 250.0, 12.0
	fix := north(200)
	fix.Accuracy = &poor
	_ = tr.HandleFix(ctx, fix)
	_ = tr.Tick(ctx)
	if a, _ := h.ActiveRoute(); len(a.RoutePoints) != 1 {
		t.Fatalf("inaccurate fix recorded")
	}
	fix.Accuracy = &good
	_ = tr.HandleFix(ctx, fix)
	if a, _ := h.ActiveRoute(); len(a.RoutePoints) != 2 {
		t.Fatalf("accurate fix not recorded")
	}
}

func TestInvalidFix(t *testing.T) {
	tr, _ := newTracker(t, Config{})
	if err := tr.HandleFix(context.Background(), model.Coordinates{Latitude: math.Inf(1)}); err == nil {
		t.Fatalf("expected validation error")
	}
	if tr.Status().LastFix != nil {
		t.Fatalf("invalid fix stored")
	}
}

func TestStopTrackingCompletesRoute(t *testing.T) {
	ctx := context.Background()
	var completed []model.RouteHistoryEntry
	tr, h := newTracker(t, Config{Interval: time.Hour}, OnRouteComplete(func(e model.RouteHistoryEntry) {
		completed = append(completed, e)
	}))
	id := startAt(t, tr, origin)
	_ = tr.HandleFix(ctx, north(100))
	_ = tr.HandleFix(ctx, north(200))
	_ = tr.HandleFix(ctx, north(230))

	e, err := tr.StopTracking(ctx, map[string]any{"signedOff": true})
	if err != nil {
		t.Fatalf("StopTracking: %v", err)
	}
	if e.ID != id || len(e.RoutePoints) != 4 || !e.EndLocation.SamePosition(north(230)) {
		t.Fatalf("unexpected entry %+v", e)
	}
	if len(completed) != 1 || completed[0].ID != id {
		t.Fatalf("OnRouteComplete not invoked once: %d", len(completed))
	}
	if _, ok := h.ActiveRoute(); ok {
		t.Fatalf("route still active")
	}
	if _, err := tr.StopTracking(ctx, nil); !errors.Is(err, history.ErrNoActiveRoute) {
		t.Fatalf("second stop: %v", err)
	}
	if len(h.Unsynced()) != 1 {
		t.Fatalf("completed route should be queued for sync")
	}
}

func TestCancelTracking(t *testing.T) {
	var cancelled []string
	tr, h := newTracker(t, Config{}, OnRouteCancelled(func(routeID, jobID string) {
		cancelled = append(cancelled, routeID+"/"+jobID)
	}))
	id := startAt(t, tr, origin)
	ok, err := tr.CancelTracking(context.Background())
	if !ok || err != nil {
		t.Fatalf("CancelTracking: %v, %v", ok, err)
	}
	if len(cancelled) != 1 || cancelled[0] != id+"/J1" {
		t.Fatalf("callback %v", cancelled)
	}
	if len(h.All()) != 0 {
		t.Fatalf("cancelled route written to history")
	}
	if ok, _ := tr.CancelTracking(context.Background()); ok {
		t.Fatalf("cancel without route reported true")
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	var started []model.RouteHistoryEntry
	tr, _ := newTracker(t, Config{Interval: time.Hour}, OnRouteStarted(func(e model.RouteHistoryEntry) {
		started = append(started, e)
	}))
	if s := tr.Status(); s.Tracking || s.LastFix != nil || s.Bearing != nil {
		t.Fatalf("idle status %+v", s)
	}
	id := startAt(t, tr, origin)
	_ = tr.HandleFix(ctx, north(100))
	s := tr.Status()
	if !s.Tracking || s.RouteID != id || s.JobID != "J1" || s.BreadcrumbCount != 2 {
		t.Fatalf("status %+v", s)
	}
	if math.Abs(s.DistanceVarianceMeters-(s.DistanceMeters-1000)) > 1e-9 {
		t.Fatalf("variance %f", s.DistanceVarianceMeters)
	}
	if s.Bearing == nil || math.Abs(*s.Bearing) > 1e-6 {
		t.Fatalf("heading north expected, got %v", s.Bearing)
	}
	if len(started) != 1 || started[0].ID != id {
		t.Fatalf("OnRouteStarted %v", started)
	}
}

func TestResumeRestoredRoute(t *testing.T) {
	ctx := context.Background()
	st := store.New(store.NewMemory())
	first := New(newHistory(st), Config{Interval: time.Hour}, WithLogger(quiet()))
	startAt(t, first, origin)
	_ = first.HandleFix(ctx, north(100))

	// new process over the same store
	h := newHistory(st)
	tr := New(h, Config{Interval: time.Hour}, WithLogger(quiet()))
	_ = tr.HandleFix(ctx, north(120))
	if a, _ := h.ActiveRoute(); len(a.RoutePoints) != 2 {
		t.Fatalf("fix 20 m from the restored last point should not be recorded")
	}
	_ = tr.HandleFix(ctx, north(160))
	if a, _ := h.ActiveRoute(); len(a.RoutePoints) != 3 {
		t.Fatalf("want 3 points, got %d", len(a.RoutePoints))
	}
}

func runTracker(t *testing.T, tr *Tracker) (*location.Feed, context.CancelFunc, chan struct{}) {
	t.Helper()
	feed := location.NewFeed()
	sub, _ := feed.Subscribe(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx, sub)
		close(done)
	}()
	return feed, cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("condition not met")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunFinalizesOnShutdown(t *testing.T) {
	tr, h := newTracker(t, Config{Interval: time.Hour})
	feed, cancel, done := runTracker(t, tr)
	feed.Publish(location.Update{Coords: origin})
	waitFor(t, func() bool { return tr.Status().LastFix != nil })
	if _, err := tr.StartTracking(context.Background(), StartInput{JobID: "J1"}); err != nil {
		t.Fatalf("StartTracking: %v", err)
	}
	feed.Publish(location.Update{Err: &location.Error{Code: location.Timeout}})
	feed.Publish(location.Update{Coords: north(80)})
	waitFor(t, func() bool { return tr.Status().BreadcrumbCount == 2 })

	cancel()
	<-done
	if _, ok := h.ActiveRoute(); ok {
		t.Fatalf("route left active after Run returned")
	}
	all := h.All()
	if len(all) != 1 || all[0].Metadata["closedBy"] != "shutdown" {
		t.Fatalf("route not finalized on shutdown: %+v", all)
	}
	if feed.Subscribers() != 0 {
		t.Fatalf("subscription not released")
	}
}

func TestRunCancelOnClose(t *testing.T) {
	tr, h := newTracker(t, Config{Interval: time.Hour}, WithCancelOnClose())
	feed, cancel, done := runTracker(t, tr)
	feed.Publish(location.Update{Coords: origin})
	waitFor(t, func() bool { return tr.Status().LastFix != nil })
	_, _ = tr.StartTracking(context.Background(), StartInput{JobID: "J1"})
	feed.Close()
	<-done
	cancel()
	if _, ok := h.ActiveRoute(); ok || len(h.All()) != 0 {
		t.Fatalf("route should be discarded when the stream closes")
	}
}

func TestRunTicks(t *testing.T) {
	tr, _ := newTracker(t, Config{Interval: 5 * time.Millisecond, MinDistanceMeters: 1000})
	feed, cancel, done := runTracker(t, tr)
	defer func() {
		cancel()
		<-done
	}()
	feed.Publish(location.Update{Coords: origin})
	waitFor(t, func() bool { return tr.Status().LastFix != nil })
	_, _ = tr.StartTracking(context.Background(), StartInput{JobID: "J1"})
	feed.Publish(location.Update{Coords: north(5)})
	waitFor(t, func() bool { return tr.Status().BreadcrumbCount == 2 })
}
