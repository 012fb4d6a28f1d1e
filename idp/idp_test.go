package idp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProvider is a minimal in-process token endpoint for exercising the
// client without a real identity provider.
type fakeProvider struct {
	srv *httptest.Server

	// devicePollsUntilGrant controls how many polls return
	// authorization_pending before the token is granted. Negative means
	// pending forever.
	devicePollsUntilGrant int32
	devicePolls           atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	p := &fakeProvider{devicePollsUntilGrant: -1}
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}

		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			if r.PostForm.Get("code") != "good-code" {
				writeOAuthError(w, "invalid_grant", "unknown code")
				return
			}
			writeToken(w, "access-from-code")
		case "client_credentials":
			if r.PostForm.Get("client_id") != "client-1" {
				writeOAuthError(w, "invalid_client", "unknown client")
				return
			}
			writeToken(w, "access-from-cc")
		case "urn:ietf:params:oauth:grant-type:device_code":
			n := p.devicePolls.Add(1)
			limit := atomic.LoadInt32(&p.devicePollsUntilGrant)
			if limit < 0 || n <= limit {
				writeOAuthError(w, "authorization_pending", "")
				return
			}
			writeToken(w, "access-from-device")
		default:
			writeOAuthError(w, "unsupported_grant_type", "")
		}
	})

	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev-123",
			"user_code":        "ABCD-EFGH",
			"verification_uri": p.srv.URL + "/activate",
			"expires_in":       600,
			"interval":         0,
		})
	})

	mux.HandleFunc("/introspect", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		active := r.PostForm.Get("token") == "access-from-cc"
		_ = json.NewEncoder(w).Encode(Introspection{
			Active:   active,
			ClientID: "client-1",
			Scope:    "openid",
		})
	})

	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-from-code" {
			writeOAuthError(w, "invalid_token", "bad bearer token")
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":   "user-42",
			"email": "dev@example.com",
		})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func writeToken(w http.ResponseWriter, accessToken string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func writeOAuthError(w http.ResponseWriter, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (p *fakeProvider) endpoints() Endpoints {
	return Endpoints{
		Issuer:              p.srv.URL,
		Authorization:       p.srv.URL + "/authorize",
		Token:               p.srv.URL + "/token",
		UserInfo:            p.srv.URL + "/userinfo",
		Introspection:       p.srv.URL + "/introspect",
		DeviceAuthorization: p.srv.URL + "/device",
		JWKS:                p.srv.URL + "/jwks",
	}
}

func newTestClient(t *testing.T, p *fakeProvider) *Client {
	t.Helper()

	c, err := NewClient(Config{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "http://localhost:3000/callback",
		Scopes:       []string{"openid"},
		AuthMethod:   AuthMethodPost,
		Endpoints:    p.endpoints(),
		HTTPClient:   p.srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return c
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{Endpoints: Endpoints{Token: "https://x/token"}}); err == nil {
		t.Error("NewClient() should require a client id")
	}
	if _, err := NewClient(Config{ClientID: "c"}); err == nil {
		t.Error("NewClient() should require a token endpoint")
	}
}

func TestAuthorizationURL(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)

	pkce := NewPKCE()
	raw := c.AuthorizationURL("state-1", "nonce-1", "code", pkce)

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing authorization URL: %v", err)
	}
	q := u.Query()

	checks := map[string]string{
		"response_type":         "code",
		"client_id":             "client-1",
		"state":                 "state-1",
		"nonce":                 "nonce-1",
		"redirect_uri":          "http://localhost:3000/callback",
		"code_challenge":        pkce.Challenge,
		"code_challenge_method": "S256",
	}
	for param, want := range checks {
		if got := q.Get(param); got != want {
			t.Errorf("param %s = %q, want %q", param, got, want)
		}
	}
}

func TestAuthorizationURLResponseTypeOverride(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)

	tests := []struct {
		name         string
		responseType string
	}{
		{"implicit", "token"},
		{"oidc implicit", "id_token token"},
		{"hybrid", "code id_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := c.AuthorizationURL("s", "", tt.responseType, nil)
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parsing URL: %v", err)
			}
			if got := u.Query().Get("response_type"); got != tt.responseType {
				t.Errorf("response_type = %q, want %q", got, tt.responseType)
			}
			if u.Query().Has("code_challenge") {
				t.Error("code_challenge present without PKCE")
			}
		})
	}
}

func TestExchangeCode(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	token, err := c.ExchangeCode(ctx, "good-code", "")
	if err != nil {
		t.Fatalf("ExchangeCode() error: %v", err)
	}
	if token.AccessToken != "access-from-code" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}

	if _, err := c.ExchangeCode(ctx, "bad-code", ""); err == nil {
		t.Error("ExchangeCode(bad code) should fail")
	}
}

func TestClientCredentialsToken(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)

	token, err := c.ClientCredentialsToken(context.Background())
	if err != nil {
		t.Fatalf("ClientCredentialsToken() error: %v", err)
	}
	if token.AccessToken != "access-from-cc" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
}

func TestIntrospect(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	result, err := c.Introspect(ctx, "access-from-cc")
	if err != nil {
		t.Fatalf("Introspect() error: %v", err)
	}
	if !result.Active {
		t.Error("Introspect(valid token).Active = false")
	}

	result, err = c.Introspect(ctx, "revoked")
	if err != nil {
		t.Fatalf("Introspect(revoked) error: %v", err)
	}
	if result.Active {
		t.Error("Introspect(revoked token).Active = true")
	}
}

func TestUserInfo(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	claims, err := c.UserInfo(ctx, "access-from-code")
	if err != nil {
		t.Fatalf("UserInfo() error: %v", err)
	}
	if claims["sub"] != "user-42" {
		t.Errorf("sub = %v", claims["sub"])
	}

	_, err = c.UserInfo(ctx, "wrong")
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("UserInfo(bad token) error = %v, want ProviderError", err)
	}
	if perr.Code != "invalid_token" {
		t.Errorf("ProviderError.Code = %q", perr.Code)
	}
}

func TestDeviceAuthorize(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)

	auth, err := c.DeviceAuthorize(context.Background())
	if err != nil {
		t.Fatalf("DeviceAuthorize() error: %v", err)
	}
	if auth.DeviceCode != "dev-123" || auth.UserCode != "ABCD-EFGH" {
		t.Errorf("unexpected device authorization: %+v", auth)
	}
}

func TestPollDeviceTokenOnce(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	if _, err := c.PollDeviceTokenOnce(ctx, "dev-123"); !errors.Is(err, ErrAuthorizationPending) {
		t.Errorf("first poll error = %v, want ErrAuthorizationPending", err)
	}

	atomic.StoreInt32(&p.devicePollsUntilGrant, 1)
	token, err := c.PollDeviceTokenOnce(ctx, "dev-123")
	if err != nil {
		t.Fatalf("poll after grant error: %v", err)
	}
	if token.AccessToken != "access-from-device" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}
}

func TestPollDeviceTokenBounded(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)
	ctx := context.Background()

	auth := &DeviceAuthorization{DeviceCode: "dev-123"}

	// Grant on the third poll.
	atomic.StoreInt32(&p.devicePollsUntilGrant, 2)
	token, err := c.PollDeviceToken(ctx, auth, 5, time.Millisecond)
	if err != nil {
		t.Fatalf("PollDeviceToken() error: %v", err)
	}
	if token.AccessToken != "access-from-device" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}

	// Never granted: the loop must stop after the attempt budget.
	p.devicePolls.Store(0)
	atomic.StoreInt32(&p.devicePollsUntilGrant, -1)
	if _, err := c.PollDeviceToken(ctx, auth, 3, time.Millisecond); !errors.Is(err, ErrPollExhausted) {
		t.Errorf("PollDeviceToken(never granted) error = %v, want ErrPollExhausted", err)
	}
	if got := p.devicePolls.Load(); got != 3 {
		t.Errorf("poll count = %d, want exactly 3", got)
	}
}

func TestPollDeviceTokenContextCancel(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestClient(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	auth := &DeviceAuthorization{DeviceCode: "dev-123"}
	if _, err := c.PollDeviceToken(ctx, auth, 10, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("PollDeviceToken(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestWorkerTokenSource(t *testing.T) {
	p := newFakeProvider(t)
	ctx := context.Background()

	src, err := NewWorkerTokenSource(ctx, "client-1", "secret-1", p.srv.URL+"/token", []string{"openid"}, p.srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewWorkerTokenSource() error: %v", err)
	}

	token, err := src.Token()
	if err != nil {
		t.Fatalf("Token() error: %v", err)
	}
	if token.AccessToken != "access-from-cc" {
		t.Errorf("AccessToken = %q", token.AccessToken)
	}

	if err := src.WaitReady(ctx, 2, time.Millisecond); err != nil {
		t.Errorf("WaitReady() error: %v", err)
	}
}

func TestWorkerTokenSourceValidation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewWorkerTokenSource(ctx, "", "s", "https://x/token", nil, nil, nil); err == nil {
		t.Error("missing client id should fail")
	}
	if _, err := NewWorkerTokenSource(ctx, "c", "s", "", nil, nil, nil); err == nil {
		t.Error("missing token URL should fail")
	}
}

func TestNewPKCE(t *testing.T) {
	a := NewPKCE()
	b := NewPKCE()

	if a.Verifier == "" || a.Challenge == "" {
		t.Fatal("NewPKCE() produced empty fields")
	}
	if a.Method != "S256" {
		t.Errorf("Method = %q", a.Method)
	}
	if a.Verifier == b.Verifier {
		t.Error("two PKCE verifiers should differ")
	}
	if a.Challenge == a.Verifier {
		t.Error("challenge must not equal verifier")
	}
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error: %v", err)
	}
	b, _ := GenerateState()
	if a == b {
		t.Error("two states should differ")
	}
	if len(a) < 32 {
		t.Errorf("state too short: %d chars", len(a))
	}
}

func TestInspectToken(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","typ":"JWT","kid":"key-1"}`))
	exp := time.Now().Add(-time.Hour).Unix()
	claims := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"sub":"user-42","iss":"https://idp.example.com","exp":%d,"iat":%d}`,
		exp, exp-3600)))
	raw := header + "." + claims + ".fake-signature"

	tok, err := InspectToken(raw)
	if err != nil {
		t.Fatalf("InspectToken() error: %v", err)
	}
	if tok.Algorithm != "RS256" || tok.KeyID != "key-1" {
		t.Errorf("header fields = %q/%q", tok.Algorithm, tok.KeyID)
	}
	if tok.Claims["sub"] != "user-42" {
		t.Errorf("sub = %v", tok.Claims["sub"])
	}
	if tok.Signature != "fake-signature" {
		t.Errorf("Signature = %q", tok.Signature)
	}
	if !tok.Expired {
		t.Error("token with past exp should be marked expired")
	}

	if _, err := InspectToken("not-a-jwt"); err == nil {
		t.Error("InspectToken(garbage) should fail")
	}
}
