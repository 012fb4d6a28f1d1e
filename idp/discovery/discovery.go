// Package discovery fetches and caches OIDC discovery documents
// (/.well-known/openid-configuration) for the identity provider a playground
// session is pointed at.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Document is the OpenID Connect provider metadata (RFC 8414) the
// playground consumes. Only the fields the flows need are decoded.
type Document struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserInfoEndpoint                  string   `json:"userinfo_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint,omitempty"`
	RevocationEndpoint                string   `json:"revocation_endpoint,omitempty"`
	DeviceAuthorizationEndpoint       string   `json:"device_authorization_endpoint,omitempty"`
	EndSessionEndpoint                string   `json:"end_session_endpoint,omitempty"`
	JWKSUri                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// cachedDocument holds a discovery document with its fetch timestamp.
type cachedDocument struct {
	document  *Document
	fetchedAt time.Time
}

// Client fetches and caches discovery documents. It is safe for concurrent
// use. HTTPS is enforced on the issuer and all discovered endpoints unless
// AllowInsecure is set (local development providers only).
type Client struct {
	httpClient    *http.Client
	cache         sync.Map // issuerURL -> *cachedDocument
	cacheTTL      time.Duration
	logger        *slog.Logger
	allowInsecure bool
}

// Option configures a Client.
type Option func(*Client)

// WithAllowInsecure disables HTTPS enforcement and issuer validation.
// Only for local development against a provider on localhost.
func WithAllowInsecure() Option {
	return func(c *Client) { c.allowInsecure = true }
}

// NewClient creates a discovery client. A nil httpClient uses a default
// with a 10s timeout; a zero cacheTTL defaults to 1 hour; a nil logger uses
// slog.Default().
func NewClient(httpClient *http.Client, cacheTTL time.Duration, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTTL == 0 {
		cacheTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient: httpClient,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover fetches the discovery document for an issuer, serving from cache
// while the TTL holds.
func (c *Client) Discover(ctx context.Context, issuerURL string) (*Document, error) {
	if !c.allowInsecure {
		if err := ValidateIssuerURL(issuerURL); err != nil {
			return nil, fmt.Errorf("invalid issuer URL: %w", err)
		}
	}

	if cached, ok := c.cache.Load(issuerURL); ok {
		doc := cached.(*cachedDocument)
		if time.Since(doc.fetchedAt) < c.cacheTTL {
			c.logger.Debug("discovery cache hit", "issuer", issuerURL)
			return doc.document, nil
		}
		c.logger.Debug("discovery cache expired", "issuer", issuerURL)
	}

	discoveryURL := strings.TrimSuffix(issuerURL, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating discovery request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching discovery document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery failed with status %d", resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}

	if !c.allowInsecure {
		if err := validateDocument(&doc); err != nil {
			return nil, fmt.Errorf("invalid discovery document: %w", err)
		}
	}

	c.cache.Store(issuerURL, &cachedDocument{
		document:  &doc,
		fetchedAt: time.Now(),
	})

	c.logger.Info("discovery successful",
		"issuer", issuerURL,
		"authorization_endpoint", doc.AuthorizationEndpoint,
		"token_endpoint", doc.TokenEndpoint)

	return &doc, nil
}

// validateDocument checks that required endpoints are present and that all
// endpoints use HTTPS.
func validateDocument(doc *Document) error {
	required := []struct {
		name string
		url  string
	}{
		{"issuer", doc.Issuer},
		{"authorization_endpoint", doc.AuthorizationEndpoint},
		{"token_endpoint", doc.TokenEndpoint},
		{"jwks_uri", doc.JWKSUri},
	}
	for _, ep := range required {
		if ep.url == "" {
			return fmt.Errorf("%s is required but missing", ep.name)
		}
		if !strings.HasPrefix(ep.url, "https://") {
			return fmt.Errorf("%s must use HTTPS: %s", ep.name, ep.url)
		}
	}

	optional := []struct {
		name string
		url  string
	}{
		{"userinfo_endpoint", doc.UserInfoEndpoint},
		{"introspection_endpoint", doc.IntrospectionEndpoint},
		{"revocation_endpoint", doc.RevocationEndpoint},
		{"device_authorization_endpoint", doc.DeviceAuthorizationEndpoint},
		{"end_session_endpoint", doc.EndSessionEndpoint},
	}
	for _, ep := range optional {
		if ep.url != "" && !strings.HasPrefix(ep.url, "https://") {
			return fmt.Errorf("%s must use HTTPS if present: %s", ep.name, ep.url)
		}
	}

	return nil
}

// ClearCache drops all cached documents, forcing a refresh on the next
// Discover call.
func (c *Client) ClearCache() {
	count := 0
	c.cache.Range(func(key, _ any) bool {
		c.cache.Delete(key)
		count++
		return true
	})
	c.logger.Debug("discovery cache cleared", "entries_removed", count)
}
