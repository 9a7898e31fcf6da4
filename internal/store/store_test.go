package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldtrack/internal/model"
)

func sampleEntry(id string, finalized bool) model.RouteHistoryEntry {
	acc := 5.0
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	e := model.RouteHistoryEntry{
		ID:            id,
		JobID:         "J1",
		PropertyID:    "P1",
		StartTime:     start,
		StartLocation: model.Coordinates{Latitude: 51.5, Longitude: -0.12, Accuracy: &acc},
		RoutePoints: []model.Coordinates{
			{Latitude: 51.5, Longitude: -0.12, Accuracy: &acc},
			{Latitude: 51.501, Longitude: -0.12},
		},
		TotalDistanceMeters:     111.2,
		EstimatedDistanceMeters: 400,
		Metadata:                map[string]any{"vehicle": "van-3"},
	}
	if finalized {
		end := start.Add(25 * time.Minute)
		e.EndTime = &end
		e.EndLocation = &model.Coordinates{Latitude: 51.501, Longitude: -0.12}
	}
	return e
}

func backends(t *testing.T) map[string]KV {
	t.Helper()
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	return map[string]KV{"memory": NewMemory(), "file": f}
}

func TestRepositoryEmpty(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := New(kv)
			ctx := context.Background()
			h, err := r.LoadHistory(ctx)
			if err != nil || len(h) != 0 {
				t.Fatalf("want empty history, got %v, %v", h, err)
			}
			a, err := r.LoadActive(ctx)
			if err != nil || a != nil {
				t.Fatalf("want no active route, got %v, %v", a, err)
			}
			if err := r.ClearActive(ctx); err != nil {
				t.Fatalf("clear on empty: %v", err)
			}
		})
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			r := New(kv)
			ctx := context.Background()
			hist := []model.RouteHistoryEntry{sampleEntry("route_1", true), sampleEntry("route_2", true)}
			if err := r.SaveHistory(ctx, hist); err != nil {
				t.Fatalf("SaveHistory: %v", err)
			}
			if err := r.SaveActive(ctx, sampleEntry("route_3", false)); err != nil {
				t.Fatalf("SaveActive: %v", err)
			}

			got, err := r.LoadHistory(ctx)
			if err != nil {
				t.Fatalf("LoadHistory: %v", err)
			}
			if len(got) != 2 || got[1].ID != "route_2" {
				t.Fatalf("unexpected history %+v", got)
			}
			if !got[0].StartTime.Equal(hist[0].StartTime) || got[0].EndTime == nil || !got[0].EndTime.Equal(*hist[0].EndTime) {
				t.Fatalf("times not preserved: %+v", got[0])
			}
			if got[0].RoutePoints[0].Accuracy == nil || *got[0].RoutePoints[0].Accuracy != 5 {
				t.Fatalf("accuracy lost")
			}
			if got[0].Metadata["vehicle"] != "van-3" {
				t.Fatalf("metadata lost: %v", got[0].Metadata)
			}

			active, err := r.LoadActive(ctx)
			if err != nil || active == nil || active.ID != "route_3" || active.EndTime != nil {
				t.Fatalf("unexpected active %+v, %v", active, err)
			}
			if err := r.ClearActive(ctx); err != nil {
				t.Fatalf("ClearActive: %v", err)
			}
			if a, _ := r.LoadActive(ctx); a != nil {
				t.Fatalf("active route still present")
			}
		})
	}
}

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingKV) Put(context.Context, string, []byte) error   { return f.err }
func (f failingKV) Delete(context.Context, string) error        { return f.err }

func TestRepositoryWrapsBackendErrors(t *testing.T) {
	boom := errors.New("disk full")
	r := New(failingKV{err: boom})
	ctx := context.Background()
	if _, err := r.LoadHistory(ctx); !errors.Is(err, boom) {
		t.Fatalf("LoadHistory: want wrapped error, got %v", err)
	}
	if err := r.SaveActive(ctx, sampleEntry("x", false)); !errors.Is(err, boom) {
		t.Fatalf("SaveActive: want wrapped error, got %v", err)
	}
	if err := r.ClearActive(ctx); !errors.Is(err, boom) {
		t.Fatalf("ClearActive: want wrapped error, got %v", err)
	}
}

func TestRepositoryCorruptValue(t *testing.T) {
	m := NewMemory()
	_ = m.Put(context.Background(), KeyHistory, []byte("{not json"))
	if _, err := New(m).LoadHistory(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	_ = m.Put(ctx, "k", buf)
	buf[0] = 'x'
	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("memory aliased caller buffer: %q", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "etcd", ""); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestOpenFile(t *testing.T) {
	r, err := Open(context.Background(), DriverFile, t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
