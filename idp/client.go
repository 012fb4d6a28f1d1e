// Package idp is the playground's client for the identity provider under
// test: it builds authorization URLs, exchanges codes, runs the client
// credentials and device flows, and calls the introspection and userinfo
// endpoints. All requests go to endpoints taken from the provider's
// discovery document.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/oauthlab/playground/idp/discovery"
	"github.com/oauthlab/playground/instrumentation"
)

// Client authentication methods at the token endpoint.
const (
	AuthMethodBasic = "client_secret_basic"
	AuthMethodPost  = "client_secret_post"
	AuthMethodNone  = "none"
)

// Endpoints are the provider URLs a client talks to.
type Endpoints struct {
	Issuer              string
	Authorization       string
	Token               string
	UserInfo            string
	Introspection       string
	Revocation          string
	DeviceAuthorization string
	JWKS                string
}

// EndpointsFromDiscovery maps a discovery document onto the endpoint set.
func EndpointsFromDiscovery(doc *discovery.Document) Endpoints {
	return Endpoints{
		Issuer:              doc.Issuer,
		Authorization:       doc.AuthorizationEndpoint,
		Token:               doc.TokenEndpoint,
		UserInfo:            doc.UserInfoEndpoint,
		Introspection:       doc.IntrospectionEndpoint,
		Revocation:          doc.RevocationEndpoint,
		DeviceAuthorization: doc.DeviceAuthorizationEndpoint,
		JWKS:                doc.JWKSUri,
	}
}

// Config holds everything needed to build a Client from the playground's
// merged credentials and a discovery document.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// AuthMethod is the client authentication method at the token
	// endpoint: client_secret_basic, client_secret_post, or none.
	AuthMethod string

	Endpoints Endpoints

	// HTTPClient overrides the default HTTP client (10s timeout).
	HTTPClient *http.Client

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
}

// Client calls the identity provider's endpoints.
type Client struct {
	cfg    Config
	oauth  oauth2.Config
	http   *http.Client
	logger *slog.Logger
	inst   *instrumentation.Instrumentation
}

// NewClient creates a provider client. ClientID and a token endpoint are
// required; everything else is optional depending on which flow is run.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("idp: client id is required")
	}
	if cfg.Endpoints.Token == "" {
		return nil, errors.New("idp: token endpoint is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthMethodPost
	}

	return &Client{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:       cfg.Endpoints.Authorization,
				TokenURL:      cfg.Endpoints.Token,
				DeviceAuthURL: cfg.Endpoints.DeviceAuthorization,
				AuthStyle:     authStyle(cfg.AuthMethod),
			},
		},
		http:   cfg.HTTPClient,
		logger: cfg.Logger,
		inst:   cfg.Instrumentation,
	}, nil
}

func authStyle(method string) oauth2.AuthStyle {
	switch method {
	case AuthMethodBasic:
		return oauth2.AuthStyleInHeader
	default:
		return oauth2.AuthStyleInParams
	}
}

// httpContext injects the client's HTTP client into the context so the
// oauth2 package routes its requests through it.
func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// AuthorizationURL builds the authorization endpoint URL for a redirect
// flow. responseType selects the grant shape ("code", "token",
// "id_token token", "code id_token"); pkce may be nil for flows without a
// code exchange; nonce is included when non-empty (OIDC flows).
func (c *Client) AuthorizationURL(state, nonce, responseType string, pkce *PKCE) string {
	opts := []oauth2.AuthCodeOption{}
	if responseType != "" && responseType != "code" {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", responseType))
	}
	if nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	if pkce != nil {
		opts = append(opts, oauth2.S256ChallengeOption(pkce.Verifier))
	}
	return c.oauth.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges an authorization code for tokens. verifier is the
// PKCE code verifier; pass "" when PKCE is not in use.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	start := time.Now()

	opts := []oauth2.AuthCodeOption{}
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	token, err := c.oauth.Exchange(c.httpContext(ctx), code, opts...)
	c.observe(ctx, "token", start, err)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return token, nil
}

// ClientCredentialsToken requests a token with the client credentials grant.
func (c *Client) ClientCredentialsToken(ctx context.Context) (*oauth2.Token, error) {
	start := time.Now()

	cc := clientcredentials.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		TokenURL:     c.cfg.Endpoints.Token,
		Scopes:       c.cfg.Scopes,
		AuthStyle:    authStyle(c.cfg.AuthMethod),
	}

	token, err := cc.Token(c.httpContext(ctx))
	c.observe(ctx, "token", start, err)
	if err != nil {
		return nil, fmt.Errorf("client credentials grant: %w", err)
	}
	return token, nil
}

// RefreshToken redeems a refresh token for a fresh token pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	start := time.Now()

	src := c.oauth.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	c.observe(ctx, "token", start, err)
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}
	return token, nil
}

// Introspection is the token introspection response (RFC 7662).
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Subject   string `json:"sub,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// Introspect asks the provider whether a token is active (RFC 7662).
func (c *Client) Introspect(ctx context.Context, token string) (*Introspection, error) {
	if c.cfg.Endpoints.Introspection == "" {
		return nil, errors.New("idp: provider does not advertise an introspection endpoint")
	}

	start := time.Now()

	form := url.Values{"token": {token}}
	resp, err := c.postForm(ctx, c.cfg.Endpoints.Introspection, form, true)
	c.observe(ctx, "introspection", start, err)
	if err != nil {
		return nil, fmt.Errorf("introspecting token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError("introspection", resp)
	}

	var result Introspection
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding introspection response: %w", err)
	}
	return &result, nil
}

// UserInfo fetches the userinfo document with a bearer access token. Claims
// are returned as-is: the playground displays them, it does not act on them.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	if c.cfg.Endpoints.UserInfo == "" {
		return nil, errors.New("idp: provider does not advertise a userinfo endpoint")
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoints.UserInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	c.observe(ctx, "userinfo", start, err)
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.providerError("userinfo", resp)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decoding userinfo response: %w", err)
	}
	return claims, nil
}

// RevokeToken revokes an access or refresh token (RFC 7009).
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	if c.cfg.Endpoints.Revocation == "" {
		return errors.New("idp: provider does not advertise a revocation endpoint")
	}

	start := time.Now()

	form := url.Values{"token": {token}}
	resp, err := c.postForm(ctx, c.cfg.Endpoints.Revocation, form, true)
	c.observe(ctx, "revocation", start, err)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.providerError("revocation", resp)
	}
	return nil
}

// postForm sends an authenticated form POST to a provider endpoint.
func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, authenticate bool) (*http.Response, error) {
	if authenticate && c.cfg.AuthMethod == AuthMethodPost {
		form.Set("client_id", c.cfg.ClientID)
		if c.cfg.ClientSecret != "" {
			form.Set("client_secret", c.cfg.ClientSecret)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if authenticate && c.cfg.AuthMethod == AuthMethodBasic {
		req.SetBasicAuth(url.QueryEscape(c.cfg.ClientID), url.QueryEscape(c.cfg.ClientSecret))
	}

	return c.http.Do(req)
}

// ProviderError carries the provider's own error message through to the
// surface that displays it.
type ProviderError struct {
	Endpoint    string
	StatusCode  int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		if e.Description != "" {
			return fmt.Sprintf("%s: %s: %s", e.Endpoint, e.Code, e.Description)
		}
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: provider returned status %d", e.Endpoint, e.StatusCode)
}

// providerError parses an OAuth-style error body into a ProviderError.
func (c *Client) providerError(endpoint string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	perr := &ProviderError{Endpoint: endpoint, StatusCode: resp.StatusCode}

	var oauthErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauthErr); err == nil {
		perr.Code = oauthErr.Error
		perr.Description = oauthErr.ErrorDescription
	}

	return perr
}

// observe records one provider API call on the shared instruments.
func (c *Client) observe(ctx context.Context, endpoint string, start time.Time, err error) {
	if c.inst == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String(instrumentation.AttrEndpoint, endpoint),
		attribute.String(instrumentation.AttrStatus, status),
	)

	m := c.inst.Metrics()
	m.ProviderCallsTotal.Add(ctx, 1, attrs)
	m.ProviderCallDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
}
