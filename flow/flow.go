// Package flow defines the specification-version and flow-type vocabulary for
// the playground, the static compatibility table between the two, and the
// per-flow step sequencing rules.
//
// Everything in this package is pure data and pure functions. Stateful
// concerns (persistence, reconciliation, URL sync) live in the root
// playground package.
package flow

import "fmt"

// SpecVersion identifies which OAuth/OIDC specification revision governs a
// flow's rules. Changed only by explicit user action or by the orchestrator's
// conflict resolution.
type SpecVersion string

const (
	SpecOAuth20 SpecVersion = "oauth2.0"
	SpecOAuth21 SpecVersion = "oauth2.1"
	SpecOIDC    SpecVersion = "oidc"
)

// Valid reports whether s is a known specification version.
func (s SpecVersion) Valid() bool {
	switch s {
	case SpecOAuth20, SpecOAuth21, SpecOIDC:
		return true
	}
	return false
}

// ParseSpecVersion parses a specification version identifier.
func ParseSpecVersion(s string) (SpecVersion, error) {
	v := SpecVersion(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown spec version %q", s)
	}
	return v, nil
}

// Type identifies which OAuth grant/authorization pattern is being exercised.
type Type string

const (
	TypeAuthorizationCode Type = "oauth-authz"
	TypeImplicit          Type = "implicit"
	TypeClientCredentials Type = "client-credentials"
	TypeDeviceCode        Type = "device-code"
	TypeHybrid            Type = "hybrid"
)

// Valid reports whether t is a known flow type.
func (t Type) Valid() bool {
	switch t {
	case TypeAuthorizationCode, TypeImplicit, TypeClientCredentials, TypeDeviceCode, TypeHybrid:
		return true
	}
	return false
}

// ParseType parses a flow type identifier.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown flow type %q", s)
	}
	return t, nil
}

// Key returns the storage partition key for a spec+flow pairing, in the form
// "{specVersion}-{flowType}". Keys are derived on demand and never persisted
// independently.
func Key(spec SpecVersion, t Type) string {
	return string(spec) + "-" + string(t)
}

// FeatureID identifies an advanced feature toggle persisted per flow type.
type FeatureID string

const (
	FeaturePAR  FeatureID = "par"
	FeatureJAR  FeatureID = "jar"
	FeatureMTLS FeatureID = "mtls"
	FeatureDPoP FeatureID = "dpop"
)
