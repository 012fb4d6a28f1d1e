package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Device flow errors.
var (
	// ErrAuthorizationPending is returned by a single poll while the user
	// has not yet approved the device.
	ErrAuthorizationPending = errors.New("authorization pending")

	// ErrPollExhausted is returned when the bounded polling loop runs out
	// of attempts before the user approves the device.
	ErrPollExhausted = errors.New("device authorization not completed within polling window")

	// ErrAccessDenied is returned when the user rejects the device.
	ErrAccessDenied = errors.New("access denied by user")

	// ErrDeviceCodeExpired is returned when the device code expires before
	// the user completes authorization.
	ErrDeviceCodeExpired = errors.New("device code expired")
)

// Default polling parameters. The loop is bounded: a fixed number of
// attempts at a fixed interval, no backoff.
const (
	DefaultPollAttempts = 12
	DefaultPollInterval = 5 * time.Second
)

// DeviceAuthorization is the device authorization response shown to the
// user (RFC 8628 §3.2).
type DeviceAuthorization struct {
	DeviceCode              string    `json:"deviceCode"`
	UserCode                string    `json:"userCode"`
	VerificationURI         string    `json:"verificationUri"`
	VerificationURIComplete string    `json:"verificationUriComplete,omitempty"`
	ExpiresAt               time.Time `json:"expiresAt"`
	Interval                int64     `json:"interval"`
}

// DeviceAuthorize starts the device authorization grant and returns the
// user code and verification URI to display.
func (c *Client) DeviceAuthorize(ctx context.Context) (*DeviceAuthorization, error) {
	if c.cfg.Endpoints.DeviceAuthorization == "" {
		return nil, errors.New("idp: provider does not advertise a device authorization endpoint")
	}

	start := time.Now()
	resp, err := c.oauth.DeviceAuth(c.httpContext(ctx))
	c.observe(ctx, "device_authorization", start, err)
	if err != nil {
		return nil, fmt.Errorf("device authorization: %w", err)
	}

	return &DeviceAuthorization{
		DeviceCode:              resp.DeviceCode,
		UserCode:                resp.UserCode,
		VerificationURI:         resp.VerificationURI,
		VerificationURIComplete: resp.VerificationURIComplete,
		ExpiresAt:               resp.Expiry,
		Interval:                resp.Interval,
	}, nil
}

// PollDeviceTokenOnce performs a single token poll for a device code.
// It returns ErrAuthorizationPending while the user has not approved,
// ErrAccessDenied on rejection, and ErrDeviceCodeExpired once the code
// is dead.
func (c *Client) PollDeviceTokenOnce(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	start := time.Now()

	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
	}
	resp, err := c.postForm(ctx, c.cfg.Endpoints.Token, form, true)
	c.observe(ctx, "token", start, err)
	if err != nil {
		return nil, fmt.Errorf("polling token endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		var tr struct {
			AccessToken  string `json:"access_token"`
			TokenType    string `json:"token_type"`
			RefreshToken string `json:"refresh_token"`
			ExpiresIn    int64  `json:"expires_in"`
			IDToken      string `json:"id_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return nil, fmt.Errorf("decoding token response: %w", err)
		}
		token := &oauth2.Token{
			AccessToken:  tr.AccessToken,
			TokenType:    tr.TokenType,
			RefreshToken: tr.RefreshToken,
		}
		if tr.ExpiresIn > 0 {
			token.Expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
		}
		if tr.IDToken != "" {
			token = token.WithExtra(map[string]any{"id_token": tr.IDToken})
		}
		return token, nil
	}

	perr, _ := c.providerError("token", resp).(*ProviderError)
	switch perr.Code {
	case "authorization_pending", "slow_down":
		return nil, ErrAuthorizationPending
	case "access_denied":
		return nil, ErrAccessDenied
	case "expired_token":
		return nil, ErrDeviceCodeExpired
	default:
		return nil, perr
	}
}

// PollDeviceToken polls the token endpoint until the user approves the
// device, the code expires, or the attempt budget is spent. Pass zero
// values to use the defaults; the provider's advertised interval wins when
// larger than the requested one.
func (c *Client) PollDeviceToken(ctx context.Context, auth *DeviceAuthorization, attempts int, interval time.Duration) (*oauth2.Token, error) {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if min := time.Duration(auth.Interval) * time.Second; min > interval {
		interval = min
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for i := 0; i < attempts; i++ {
		token, err := c.PollDeviceTokenOnce(ctx, auth.DeviceCode)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrAuthorizationPending) {
			return nil, err
		}

		c.logger.Debug("device authorization pending",
			"attempt", i+1,
			"attempts", attempts)

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, ErrPollExhausted
}
