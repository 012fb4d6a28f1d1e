package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oauthlab/playground/instrumentation"
)

// DefaultIssuerTemplate builds an issuer URL from an environment id.
const DefaultIssuerTemplate = "https://auth.pingone.com/%s/as"

// Config holds the HTTP server configuration.
type Config struct {
	// ListenAddr is the address the server binds to. Default: ":8080".
	ListenAddr string

	// BaseURL is the externally visible server URL, used in security
	// headers. Default: "http://localhost:8080".
	BaseURL string

	// IssuerTemplate renders the provider issuer URL from the resolved
	// environment id, e.g. "https://auth.pingone.com/%s/as". A template
	// without a %s verb is used verbatim.
	IssuerTemplate string

	// AllowInsecureIssuer disables HTTPS enforcement on the issuer. Only
	// for a provider on localhost.
	AllowInsecureIssuer bool

	// DiscoveryTTL bounds how long discovery documents are cached.
	// Default: 1 hour.
	DiscoveryTTL time.Duration

	// RateLimit is requests per second allowed per IP. Zero disables
	// limiting.
	RateLimit int

	// RateBurst is the maximum burst size allowed per IP.
	RateBurst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration

	// HTTPClient is used for all identity provider calls. Default has a
	// 10s timeout.
	HTTPClient *http.Client

	// Logger for structured logging (optional, uses slog.Default if not
	// provided).
	Logger *slog.Logger

	// Instrumentation provides meters and tracers (optional).
	Instrumentation *instrumentation.Instrumentation
}

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.IssuerTemplate == "" {
		c.IssuerTemplate = DefaultIssuerTemplate
	}
	if c.DiscoveryTTL == 0 {
		c.DiscoveryTTL = time.Hour
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// issuerURL renders the issuer for an environment id.
func (c Config) issuerURL(environmentID string) string {
	if strings.Contains(c.IssuerTemplate, "%s") {
		return fmt.Sprintf(c.IssuerTemplate, environmentID)
	}
	return c.IssuerTemplate
}
