// Package config holds the environment-based configuration for the
// playground binary.
package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration.
type Config struct {
	// HTTP server
	ListenAddr string `env:"PLAYGROUND_LISTEN_ADDR" envDefault:":8080"`
	BaseURL    string `env:"PLAYGROUND_BASE_URL" envDefault:"http://localhost:8080"`

	// Storage. Empty path keeps everything in memory.
	StoragePath string `env:"PLAYGROUND_STORAGE_PATH"`

	// Identity provider
	EnvironmentID       string `env:"PLAYGROUND_ENVIRONMENT_ID"`
	IssuerTemplate      string `env:"PLAYGROUND_ISSUER_TEMPLATE" envDefault:"https://auth.pingone.com/%s/as"`
	AllowInsecureIssuer bool   `env:"PLAYGROUND_ALLOW_INSECURE_ISSUER" envDefault:"false"`

	// Worker app credentials for the playground's own administrative
	// calls. Optional; both must be set together.
	WorkerClientID     string `env:"PLAYGROUND_WORKER_CLIENT_ID"`
	WorkerClientSecret string `env:"PLAYGROUND_WORKER_CLIENT_SECRET"`

	// Credentials at rest. Empty passphrase disables encryption.
	EncryptionPassphrase string `env:"PLAYGROUND_ENCRYPTION_PASSPHRASE"`

	// Rate limiting per IP. Zero disables.
	RateLimit  int  `env:"PLAYGROUND_RATE_LIMIT" envDefault:"20"`
	RateBurst  int  `env:"PLAYGROUND_RATE_BURST" envDefault:"40"`
	TrustProxy bool `env:"PLAYGROUND_TRUST_PROXY" envDefault:"false"`

	// Persistence debounce for credential edits.
	SaveDebounce time.Duration `env:"PLAYGROUND_SAVE_DEBOUNCE" envDefault:"250ms"`

	// Observability
	LogLevel     string `env:"PLAYGROUND_LOG_LEVEL" envDefault:"info"`
	Environment  string `env:"PLAYGROUND_ENVIRONMENT" envDefault:"development"`
	AuditLogging bool   `env:"PLAYGROUND_AUDIT_LOGGING" envDefault:"true"`
	Metrics      bool   `env:"PLAYGROUND_METRICS" envDefault:"false"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has overly
// permissive permissions. Group or world readable files risk exposing
// credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables. It first attempts
// to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if (c.WorkerClientID == "") != (c.WorkerClientSecret == "") {
		return fmt.Errorf("PLAYGROUND_WORKER_CLIENT_ID and PLAYGROUND_WORKER_CLIENT_SECRET must be set together")
	}

	if c.WorkerClientID != "" && c.EnvironmentID == "" {
		return fmt.Errorf("PLAYGROUND_ENVIRONMENT_ID is required when worker credentials are configured")
	}

	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}

	if c.SaveDebounce < 0 {
		return fmt.Errorf("PLAYGROUND_SAVE_DEBOUNCE must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown PLAYGROUND_LOG_LEVEL %q", c.LogLevel)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
