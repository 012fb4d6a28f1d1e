package idp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ErrNonceMismatch is returned when the ID token's nonce does not match
// the one sent on the authorization request.
var ErrNonceMismatch = errors.New("id token nonce mismatch")

// IDTokenClaims is the verified ID token content surfaced to the user.
type IDTokenClaims struct {
	Issuer    string         `json:"issuer"`
	Subject   string         `json:"subject"`
	Audience  []string       `json:"audience"`
	IssuedAt  time.Time      `json:"issuedAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Nonce     string         `json:"nonce,omitempty"`
	Claims    map[string]any `json:"claims"`
}

// VerifyIDToken verifies an ID token's signature against the provider's
// JWKS and validates issuer, audience, expiry, and nonce. nonce may be ""
// for flows that did not send one.
func (c *Client) VerifyIDToken(ctx context.Context, rawIDToken, nonce string) (*IDTokenClaims, error) {
	if c.cfg.Endpoints.JWKS == "" {
		return nil, errors.New("idp: provider does not advertise a jwks_uri")
	}

	start := time.Now()

	keySet := oidc.NewRemoteKeySet(c.httpContext(ctx), c.cfg.Endpoints.JWKS)
	verifier := oidc.NewVerifier(c.cfg.Endpoints.Issuer, keySet, &oidc.Config{
		ClientID: c.cfg.ClientID,
	})

	idToken, err := verifier.Verify(ctx, rawIDToken)
	c.observe(ctx, "jwks", start, err)
	if err != nil {
		return nil, fmt.Errorf("verifying id token: %w", err)
	}

	if nonce != "" && idToken.Nonce != nonce {
		return nil, ErrNonceMismatch
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decoding id token claims: %w", err)
	}

	return &IDTokenClaims{
		Issuer:    idToken.Issuer,
		Subject:   idToken.Subject,
		Audience:  idToken.Audience,
		IssuedAt:  idToken.IssuedAt,
		ExpiresAt: idToken.Expiry,
		Nonce:     idToken.Nonce,
		Claims:    claims,
	}, nil
}
