package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// noopStore is an in-process Store used when no Valkey node is configured.
// Entries expire lazily on read.
type noopStore struct {
	mu      sync.Mutex
	entries map[string]noopEntry
	ttl     time.Duration
}

type noopEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewNoop(defaultTTL time.Duration) Store {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &noopStore{
		entries: make(map[string]noopEntry),
		ttl:     defaultTTL,
	}
}

func (n *noopStore) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(n.entries, key)
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return e.data, nil
}

func (n *noopStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value, key)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = n.ttl
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[key] = noopEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (n *noopStore) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.entries, key)
	return nil
}

// SetNX holds the lock across the existence check and the write so exactly
// one of any number of concurrent claims wins.
func (n *noopStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := encode(value, key)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = n.ttl
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[key]
	if ok && time.Now().Before(e.expiresAt) {
		return false, nil
	}
	n.entries[key] = noopEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return true, nil
}
