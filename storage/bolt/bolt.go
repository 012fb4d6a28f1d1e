// Package bolt provides a bbolt-backed implementation of the storage.Store
// interface. It is the durable analog of the in-memory store: playground
// credentials and settings survive restarts in a single local database file.
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/oauthlab/playground/instrumentation"
	"github.com/oauthlab/playground/storage"
)

// bucketName is the single bucket holding all playground records.
var bucketName = []byte("playground")

// Store is a bbolt-backed key-value store.
type Store struct {
	db *bbolt.DB

	instrumentation *instrumentation.Instrumentation
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database file at path and ensures the
// playground bucket exists. The open times out after one second so a stale
// file lock fails fast instead of hanging startup.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening storage file %q: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating storage bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// SetInstrumentation attaches OpenTelemetry instrumentation. Call before the
// store is shared across goroutines.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
}

// Get retrieves the value for a key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}
		// v is only valid inside the transaction.
		value = make([]byte, len(v))
		copy(value, v)
		return nil
	})

	storage.ObserveOperation(ctx, s.instrumentation, "bolt", "get", start, err)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a value under a key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})

	storage.ObserveOperation(ctx, s.instrumentation, "bolt", "set", start, err)
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})

	storage.ObserveOperation(ctx, s.instrumentation, "bolt", "delete", start, err)
	if err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	return nil
}

// Keys lists all keys with the given prefix.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})

	storage.ObserveOperation(ctx, s.instrumentation, "bolt", "keys", start, err)
	if err != nil {
		return nil, fmt.Errorf("listing keys with prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}
