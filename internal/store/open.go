package store

import (
	"context"
	"fmt"
)

// Store is a job store that also records usage.
type Store interface {
	JobStore
	UsageStore
	Close() error
}

// Open returns the backend named by backend: "memory" or "postgres".
func Open(ctx context.Context, backend, dsn string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryJobStore(), nil
	case "postgres", "":
		return NewPostgresJobStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported job store backend: %s", backend)
	}
}
