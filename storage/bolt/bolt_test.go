package bolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/oauthlab/playground/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "playground.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesFile(t *testing.T) {
	s := newTestStore(t)
	if s == nil {
		t.Fatal("Open() returned nil store")
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "oauth2.1-device-code-v8u", []byte(`{"environmentId":"env-1"}`)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := s.Get(ctx, "oauth2.1-device-code-v8u")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != `{"environmentId":"env-1"}` {
		t.Errorf("Get() = %s", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("first")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("second")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Get() = %s, want second", got)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}
}

func TestKeysPrefixScan(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	records := map[string]string{
		"flow-settings-implicit":    "{}",
		"flow-settings-oauth-authz": "{}",
		"advanced-features-hybrid":  "[]",
		"shared-credentials-v8u":    "{}",
	}
	for k, v := range records {
		if err := s.Set(ctx, k, []byte(v)); err != nil {
			t.Fatalf("Set(%q) error: %v", k, err)
		}
	}

	keys, err := s.Keys(ctx, "flow-settings-")
	if err != nil {
		t.Fatalf("Keys() error: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("Keys() = %v, want 2 entries", keys)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "playground.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := s.Set(ctx, "global-environment-id", []byte(`"env-xyz"`)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, "global-environment-id")
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if string(got) != `"env-xyz"` {
		t.Errorf("Get() after reopen = %s", got)
	}
}
