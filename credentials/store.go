package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oauthlab/playground/security"
	"github.com/oauthlab/playground/storage"
)

// Store persists the two credential tiers and the global environment id.
// Records are JSON-serialized and, when an encryptor is configured,
// encrypted at rest. Read failures degrade to empty records: the playground
// must keep working with in-memory defaults when storage is unavailable.
type Store struct {
	backend   storage.Store
	encryptor *security.Encryptor
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEncryptor enables encryption at rest for credential records.
func WithEncryptor(e *security.Encryptor) StoreOption {
	return func(s *Store) { s.encryptor = e }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a credentials store over the given backend.
func NewStore(backend storage.Store, opts ...StoreOption) *Store {
	s := &Store{backend: backend}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.encryptor == nil {
		// Disabled encryptor passes data through; keeps the read/write
		// paths branch-free.
		s.encryptor, _ = security.NewEncryptor(nil)
	}
	return s
}

// LoadFlow loads the flow-specific tier for a flow key. A missing record is
// a zero Partial, not an error.
func (s *Store) LoadFlow(ctx context.Context, flowKey string) (Partial, error) {
	return s.loadPartial(ctx, storage.FlowCredentialsKey(flowKey))
}

// SaveFlow persists the flow-specific tier for a flow key.
func (s *Store) SaveFlow(ctx context.Context, flowKey string, p Partial) error {
	return s.savePartial(ctx, storage.FlowCredentialsKey(flowKey), p)
}

// LoadShared loads the shared tier.
func (s *Store) LoadShared(ctx context.Context) (Partial, error) {
	return s.loadPartial(ctx, storage.SharedCredentialsKey)
}

// SaveShared persists the shared tier.
func (s *Store) SaveShared(ctx context.Context, p Partial) error {
	return s.savePartial(ctx, storage.SharedCredentialsKey, p)
}

// GlobalEnvironmentID returns the application-wide environment id fallback,
// or "" when unset or unreadable.
func (s *Store) GlobalEnvironmentID(ctx context.Context) string {
	data, err := s.backend.Get(ctx, storage.GlobalEnvironmentKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read global environment id, using empty fallback", "error", err)
		}
		return ""
	}

	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		s.logger.Warn("corrupt global environment id record", "error", err)
		return ""
	}
	return strings.TrimSpace(id)
}

// SaveGlobalEnvironmentID persists the application-wide environment id.
func (s *Store) SaveGlobalEnvironmentID(ctx context.Context, id string) error {
	data, err := json.Marshal(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("encoding global environment id: %w", err)
	}
	if err := s.backend.Set(ctx, storage.GlobalEnvironmentKey, data); err != nil {
		return fmt.Errorf("saving global environment id: %w", err)
	}
	return nil
}

// Resolve merges both tiers and the global fallback into a full Credentials
// record for a flow key. Storage failures are logged and treated as empty
// tiers so the result is always usable.
func (s *Store) Resolve(ctx context.Context, flowKey string) Credentials {
	flowSpecific, err := s.LoadFlow(ctx, flowKey)
	if err != nil {
		s.logger.Warn("failed to load flow credentials, using defaults", "flow_key", flowKey, "error", err)
		flowSpecific = Partial{}
	}

	shared, err := s.LoadShared(ctx)
	if err != nil {
		s.logger.Warn("failed to load shared credentials, using defaults", "error", err)
		shared = Partial{}
	}

	return Merge(flowSpecific, shared, s.GlobalEnvironmentID(ctx))
}

func (s *Store) loadPartial(ctx context.Context, key string) (Partial, error) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Partial{}, nil
		}
		return Partial{}, fmt.Errorf("reading %q: %w", key, err)
	}

	plaintext, err := s.encryptor.Decrypt(data)
	if err != nil {
		return Partial{}, fmt.Errorf("decrypting %q: %w", key, err)
	}

	var p Partial
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return Partial{}, fmt.Errorf("decoding %q: %w", key, err)
	}
	return p, nil
}

func (s *Store) savePartial(ctx context.Context, key string, p Partial) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}

	ciphertext, err := s.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("encrypting %q: %w", key, err)
	}

	if err := s.backend.Set(ctx, key, ciphertext); err != nil {
		return fmt.Errorf("saving %q: %w", key, err)
	}
	return nil
}

// EncryptionEnabled reports whether records are encrypted at rest.
func (s *Store) EncryptionEnabled() bool {
	return s.encryptor.IsEnabled()
}
