package idp

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InspectedToken is the decoded-but-unverified view of a JWT, used to show
// the user what a token contains. Nothing here is trustworthy: the
// signature is not checked. Use VerifyIDToken for verified claims.
type InspectedToken struct {
	Header    map[string]any `json:"header"`
	Claims    map[string]any `json:"claims"`
	Signature string         `json:"signature"`
	Algorithm string         `json:"algorithm,omitempty"`
	KeyID     string         `json:"keyId,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	IssuedAt  *time.Time     `json:"issuedAt,omitempty"`
	Expired   bool           `json:"expired"`
}

// InspectToken decodes a JWT without verifying its signature.
func InspectToken(raw string) (*InspectedToken, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()

	token, _, err := parser.ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}

	out := &InspectedToken{
		Header: token.Header,
		Claims: claims,
	}

	if parts := strings.Split(raw, "."); len(parts) == 3 {
		out.Signature = parts[2]
	}
	if alg, ok := token.Header["alg"].(string); ok {
		out.Algorithm = alg
	}
	if kid, ok := token.Header["kid"].(string); ok {
		out.KeyID = kid
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		out.ExpiresAt = &t
		out.Expired = time.Now().After(t)
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		out.IssuedAt = &t
	}

	return out, nil
}
