package store

import (
	"context"
	"errors"
	"fmt"

	"fieldtrack/internal/model"
)

// Store is the persistence boundary used by the route history store.
// It holds two logical keys: the finalized history and at most one active route.
type Store interface {
	LoadHistory(ctx context.Context) ([]model.RouteHistoryEntry, error)
	SaveHistory(ctx context.Context, entries []model.RouteHistoryEntry) error
	// LoadActive returns nil, nil when no route is active.
	LoadActive(ctx context.Context) (*model.RouteHistoryEntry, error)
	SaveActive(ctx context.Context, entry model.RouteHistoryEntry) error
	ClearActive(ctx context.Context) error
}

// KV is a byte-oriented backend. Get returns ErrNotFound for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var ErrNotFound = errors.New("not found")

// Keys of the two persisted values.
const (
	KeyHistory = "fieldtrack:route_history"
	KeyActive  = "fieldtrack:active_route"
)

// Repository adapts a KV backend to Store, encoding timestamps at the boundary.
type Repository struct {
	kv KV
}

// New wraps kv.
func New(kv KV) *Repository { return &Repository{kv: kv} }

// Backend exposes the underlying KV (used for readiness checks).
func (r *Repository) Backend() KV { return r.kv }

func (r *Repository) LoadHistory(ctx context.Context) ([]model.RouteHistoryEntry, error) {
	data, err := r.kv.Get(ctx, KeyHistory)
	if errors.Is(err, ErrNotFound) {
		return []model.RouteHistoryEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	entries, err := DecodeHistory(data)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

func (r *Repository) SaveHistory(ctx context.Context, entries []model.RouteHistoryEntry) error {
	data, err := EncodeHistory(entries)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	if err := r.kv.Put(ctx, KeyHistory, data); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

func (r *Repository) LoadActive(ctx context.Context) (*model.RouteHistoryEntry, error) {
	data, err := r.kv.Get(ctx, KeyActive)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load active route: %w", err)
	}
	e, err := DecodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("load active route: %w", err)
	}
	return &e, nil
}

func (r *Repository) SaveActive(ctx context.Context, entry model.RouteHistoryEntry) error {
	data, err := EncodeEntry(entry)
	if err != nil {
		return fmt.Errorf("save active route: %w", err)
	}
	if err := r.kv.Put(ctx, KeyActive, data); err != nil {
		return fmt.Errorf("save active route: %w", err)
	}
	return nil
}

func (r *Repository) ClearActive(ctx context.Context) error {
	if err := r.kv.Delete(ctx, KeyActive); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("clear active route: %w", err)
	}
	return nil
}

// Ping checks backend connectivity when the backend supports it.
func (r *Repository) Ping(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := r.kv.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases backend resources when the backend holds any.
func (r *Repository) Close() error {
	if c, ok := r.kv.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
