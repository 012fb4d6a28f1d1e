// Package memory provides an in-memory implementation of the storage.Store
// interface. It is suitable for tests, development, and ephemeral sessions
// where persistence across restarts is not wanted.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oauthlab/playground/instrumentation"
	"github.com/oauthlab/playground/storage"
)

// Store is an in-memory key-value store guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte

	instrumentation *instrumentation.Instrumentation
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// SetInstrumentation attaches OpenTelemetry instrumentation. Call before the
// store is shared across goroutines.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

// Get retrieves the value for a key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	s.mu.RLock()
	value, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		storage.ObserveOperation(ctx, s.instrumentation, "memory", "get", start, storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	storage.ObserveOperation(ctx, s.instrumentation, "memory", "get", start, nil)
	return out, nil
}

// Set stores a value under a key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.data[key] = stored
	s.mu.Unlock()

	storage.ObserveOperation(ctx, s.instrumentation, "memory", "set", start, nil)
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	storage.ObserveOperation(ctx, s.instrumentation, "memory", "delete", start, nil)
	return nil
}

// Keys lists all keys with the given prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()

	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	storage.ObserveOperation(ctx, s.instrumentation, "memory", "keys", start, nil)
	return keys, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored keys. Used by tests and metrics callbacks.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
