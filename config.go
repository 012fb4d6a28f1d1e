package playground

import (
	"errors"
	"log/slog"
	"time"

	"github.com/oauthlab/playground/flow"
	"github.com/oauthlab/playground/instrumentation"
	"github.com/oauthlab/playground/security"
	"github.com/oauthlab/playground/storage"
)

// Defaults applied by Config.withDefaults.
const (
	// DefaultRoutePrefix is the path segment flows are mounted under.
	DefaultRoutePrefix = "p"

	// DefaultSaveDebounce coalesces rapid credential edits into one
	// storage write.
	DefaultSaveDebounce = 250 * time.Millisecond
)

// Config holds the orchestrator configuration.
type Config struct {
	// Storage is the key-value backend for credentials and flow settings
	// (required).
	Storage storage.Store

	// RoutePrefix is the first path segment of flow routes
	// ("/{prefix}/{flowType}/{step}"). Default: "p".
	RoutePrefix string

	// DefaultFlow is the flow selected when a new session starts.
	// Default: authorization code.
	DefaultFlow flow.Type

	// SaveDebounce is how long credential edits are held before being
	// written to storage. Default: 250ms. Negative disables debouncing
	// (writes happen synchronously, used in tests).
	SaveDebounce time.Duration

	// Encryptor optionally encrypts credentials at rest.
	Encryptor *security.Encryptor

	// Auditor optionally records security-relevant events.
	Auditor *security.Auditor

	// Logger for structured logging (optional, uses slog.Default if not
	// provided).
	Logger *slog.Logger

	// Instrumentation provides meters and tracers (optional).
	Instrumentation *instrumentation.Instrumentation
}

func (c Config) withDefaults() (Config, error) {
	if c.Storage == nil {
		return c, errors.New("playground: Config.Storage is required")
	}
	if c.RoutePrefix == "" {
		c.RoutePrefix = DefaultRoutePrefix
	}
	if c.DefaultFlow == "" {
		c.DefaultFlow = flow.TypeAuthorizationCode
	}
	if !c.DefaultFlow.Valid() {
		return c, ErrUnknownFlowType
	}
	if c.SaveDebounce == 0 {
		c.SaveDebounce = DefaultSaveDebounce
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}
