package flow

// compatibility is the static table of flow types legal under each
// specification version. Every version includes the authorization code flow.
// The implicit grant was removed in OAuth 2.1, and the hybrid flow only
// exists in OpenID Connect.
var compatibility = map[SpecVersion][]Type{
	SpecOAuth20: {TypeAuthorizationCode, TypeImplicit, TypeClientCredentials, TypeDeviceCode},
	SpecOAuth21: {TypeAuthorizationCode, TypeClientCredentials, TypeDeviceCode},
	SpecOIDC:    {TypeAuthorizationCode, TypeImplicit, TypeHybrid, TypeDeviceCode, TypeClientCredentials},
}

// specSearchOrder is the fixed order in which spec versions are searched when
// a requested flow type is illegal under the current version. The order is a
// policy choice and must stay stable: changing it changes which spec a
// conflicting flow selection resolves to.
var specSearchOrder = []SpecVersion{SpecOAuth20, SpecOAuth21, SpecOIDC}

// AvailableFlows returns the flow types legal under the given spec version.
// The result is a fresh slice; callers may modify it. Unknown versions return
// nil.
func AvailableFlows(spec SpecVersion) []Type {
	flows, ok := compatibility[spec]
	if !ok {
		return nil
	}
	out := make([]Type, len(flows))
	copy(out, flows)
	return out
}

// Available reports whether the flow type is legal under the spec version.
func Available(spec SpecVersion, t Type) bool {
	for _, f := range compatibility[spec] {
		if f == t {
			return true
		}
	}
	return false
}

// ResolveSpec searches the spec versions in the fixed order and returns the
// first one that legalizes the given flow type. The second return value is
// false when no version does (only possible for unknown flow types, since
// every known type is legal somewhere).
func ResolveSpec(t Type) (SpecVersion, bool) {
	for _, spec := range specSearchOrder {
		if Available(spec, t) {
			return spec, true
		}
	}
	return "", false
}

// TotalSteps returns the number of steps in the flow's linear walkthrough.
// Authorization-code-family flows gain one step when PKCE is enabled (the
// code verifier/challenge generation step).
func TotalSteps(t Type, usePKCE bool) int {
	switch t {
	case TypeClientCredentials:
		return 4
	case TypeDeviceCode:
		return 5
	case TypeImplicit:
		return 5
	case TypeAuthorizationCode, TypeHybrid:
		if usePKCE {
			return 7
		}
		return 6
	default:
		if usePKCE {
			return 7
		}
		return 6
	}
}

// ClampStep clamps a step index into [0, TotalSteps(t, usePKCE)).
func ClampStep(t Type, usePKCE bool, step int) int {
	if step < 0 {
		return 0
	}
	if max := TotalSteps(t, usePKCE) - 1; step > max {
		return max
	}
	return step
}
