package cache

import (
	"context"
	"time"
)

// Store is the shared-state cache used for cross-replica suppression
// bookkeeping and notification dedup. The engine works entirely in memory;
// the store is optional and a noop implementation is the default.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// SetNX sets the key only if it does not exist and reports whether it was
	// set. Used to dedup notification sends across replicas.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// New returns a Valkey-backed store when an address is configured, otherwise
// the in-memory noop store.
func New(addr string, db int, password string, defaultTTL time.Duration) (Store, error) {
	if addr == "" {
		return NewNoop(defaultTTL), nil
	}
	return NewValkeySingle(addr, db, password, defaultTTL)
}
