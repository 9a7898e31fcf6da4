package store

import (
	"context"
	"fmt"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Open builds the repository for driver. target is a directory for "file",
// a DSN for "postgres" and a redis:// URL for "redis"; it is ignored for "memory".
func Open(ctx context.Context, driver, target string) (*Repository, error) {
	switch driver {
	case "", DriverMemory:
		return New(NewMemory()), nil
	case DriverFile:
		f, err := NewFile(target)
		if err != nil {
			return nil, err
		}
		return New(f), nil
	case DriverPostgres:
		p, err := NewPostgres(target)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return New(p), nil
	case DriverRedis:
		r, err := NewRedis(target, "")
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		return New(r), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
