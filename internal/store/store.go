// Package store persists the user's excluded-host list.
//
// The list lives under a single fixed key. The settings editor writes it,
// the removal engine reads it once per page load. The two never talk to each
// other directly.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// KeyExcludedHosts is the key holding the excluded-host pattern list.
const KeyExcludedHosts = "adrExcludedHosts"

// Store is a key-value store whose values are ordered string lists.
type Store interface {
	// Get returns the list stored under key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (values []string, ok bool, err error)

	// Set replaces the list stored under key.
	Set(ctx context.Context, key string, values []string) error
}

// ReadExcludedHosts reads the exclusion list for the engine.
// Any failure yields an empty list so that protection keeps running:
// an unreadable store never disables the engine.
func ReadExcludedHosts(ctx context.Context, s Store) []string {
	if s == nil {
		return nil
	}

	values, ok, err := s.Get(ctx, KeyExcludedHosts)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read excluded hosts, treating list as empty")
		return nil
	}
	if !ok {
		return nil
	}
	return values
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]string, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return slices.Clone(v), ok, nil
}

// Set implements Store.
func (m *MemoryStore) Set(ctx context.Context, key string, values []string) error {
	if key == "" {
		return ErrStoreKeyInvalid
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = slices.Clone(values)
	return nil
}
