package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	// Guard against ambient values leaking into assertions.
	for _, key := range []string{
		"PLAYGROUND_LISTEN_ADDR",
		"PLAYGROUND_STORAGE_PATH",
		"PLAYGROUND_ENVIRONMENT_ID",
		"PLAYGROUND_WORKER_CLIENT_ID",
		"PLAYGROUND_WORKER_CLIENT_SECRET",
		"PLAYGROUND_LOG_LEVEL",
		"PLAYGROUND_SAVE_DEBOUNCE",
	} {
		if old, ok := os.LookupEnv(key); ok {
			t.Setenv(key, old) // register restore
			_ = os.Unsetenv(key)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.IssuerTemplate != "https://auth.pingone.com/%s/as" {
		t.Errorf("IssuerTemplate = %q", cfg.IssuerTemplate)
	}
	if cfg.SaveDebounce != 250*time.Millisecond {
		t.Errorf("SaveDebounce = %v", cfg.SaveDebounce)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestLoadWorkerCredentialsRequirePair(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PLAYGROUND_WORKER_CLIENT_ID", "worker-1")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "together") {
		t.Errorf("Load() error = %v, want pairing error", err)
	}

	t.Setenv("PLAYGROUND_WORKER_CLIENT_SECRET", "secret-1")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PLAYGROUND_ENVIRONMENT_ID") {
		t.Errorf("Load() error = %v, want environment id error", err)
	}

	t.Setenv("PLAYGROUND_ENVIRONMENT_ID", "env-1")
	if _, err := Load(); err != nil {
		t.Errorf("Load() error: %v", err)
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PLAYGROUND_LOG_LEVEL", "verbose")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject unknown log level")
	}
}
