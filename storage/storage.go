// Package storage defines the key-value persistence contract for playground
// state: per-flow credentials, shared credentials, the global environment id,
// and per-flow settings. Backends include in-memory and bbolt.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for a key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a JSON-record key-value store. Values are opaque byte slices;
// callers own serialization. All methods accept a context for tracing and
// cancellation.
//
// Implementations must be safe for concurrent use. Writes to the same key
// are last-write-wins; no transactional guarantees are offered or needed.
type Store interface {
	// Get retrieves the value for a key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under a key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys with the given prefix, in unspecified order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
