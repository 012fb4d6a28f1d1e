package credentials

import "testing"

func boolPtr(v bool) *bool { return &v }

func TestMergePrecedence(t *testing.T) {
	flowSpecific := Partial{
		EnvironmentID: "flow-env",
		ClientID:      "flow-client",
		Scopes:        "openid profile",
	}
	shared := Partial{
		EnvironmentID: "shared-env",
		ClientID:      "shared-client",
		ClientSecret:  "shared-secret",
		RedirectURI:   "https://shared.example.com/cb",
	}

	got := Merge(flowSpecific, shared, "global-env")

	if got.EnvironmentID != "flow-env" {
		t.Errorf("EnvironmentID = %q, want flow-env", got.EnvironmentID)
	}
	if got.ClientID != "flow-client" {
		t.Errorf("ClientID = %q, want flow-client", got.ClientID)
	}
	if got.ClientSecret != "shared-secret" {
		t.Errorf("ClientSecret = %q, want shared-secret (gap filled)", got.ClientSecret)
	}
	if got.RedirectURI != "https://shared.example.com/cb" {
		t.Errorf("RedirectURI = %q", got.RedirectURI)
	}
	if got.Scopes != "openid profile" {
		t.Errorf("Scopes = %q", got.Scopes)
	}
}

func TestMergeEnvironmentIDChain(t *testing.T) {
	tests := []struct {
		name         string
		flowSpecific string
		shared       string
		global       string
		want         string
	}{
		{"flow specific wins", "a", "b", "c", "a"},
		{"shared fills gap", "", "b", "c", "b"},
		{"global is last fallback", "", "", "c", "c"},
		{"whitespace is absent", "   ", "\t", "c", "c"},
		{"all empty", "", "", "", ""},
		{"values are trimmed", " abc ", "", "", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(Partial{EnvironmentID: tt.flowSpecific}, Partial{EnvironmentID: tt.shared}, tt.global)
			if got.EnvironmentID != tt.want {
				t.Errorf("EnvironmentID = %q, want %q", got.EnvironmentID, tt.want)
			}
		})
	}
}

func TestMergeEmptyStringsNeverOverride(t *testing.T) {
	// An accidentally persisted "" in the flow tier must not shadow the
	// shared value.
	flowSpecific := Partial{EnvironmentID: " abc ", Scopes: ""}
	shared := Partial{EnvironmentID: "", Scopes: "profile"}

	got := Merge(flowSpecific, shared, "")

	if got.EnvironmentID != "abc" {
		t.Errorf("EnvironmentID = %q, want abc", got.EnvironmentID)
	}
	if got.Scopes != "profile" {
		t.Errorf("Scopes = %q, want profile", got.Scopes)
	}
}

func TestMergeDefaults(t *testing.T) {
	got := Merge(Partial{}, Partial{}, "")

	if got.Scopes != DefaultScopes {
		t.Errorf("Scopes = %q, want %q", got.Scopes, DefaultScopes)
	}
	if got.ResponseType != DefaultResponseType {
		t.Errorf("ResponseType = %q, want %q", got.ResponseType, DefaultResponseType)
	}
	if got.ClientAuthMethod != DefaultClientAuthMethod {
		t.Errorf("ClientAuthMethod = %q, want %q", got.ClientAuthMethod, DefaultClientAuthMethod)
	}
	if got.RedirectURI != DefaultRedirectURI {
		t.Errorf("RedirectURI = %q, want %q", got.RedirectURI, DefaultRedirectURI)
	}
	if !got.UsePKCE {
		t.Error("UsePKCE should default to true")
	}
	if got.RequestRefreshToken {
		t.Error("RequestRefreshToken should default to false")
	}
}

func TestMergeBooleanPrecedence(t *testing.T) {
	got := Merge(
		Partial{UsePKCE: boolPtr(false)},
		Partial{UsePKCE: boolPtr(true), Redirectless: boolPtr(true)},
		"",
	)
	if got.UsePKCE {
		t.Error("flow-specific false should override shared true")
	}
	if !got.Redirectless {
		t.Error("shared toggle should fill unset flow-specific toggle")
	}
}

func TestMergeIdempotent(t *testing.T) {
	first := Merge(
		Partial{EnvironmentID: "env", ClientID: "client", UsePKCE: boolPtr(false)},
		Partial{Scopes: "openid email"},
		"global",
	)

	// Feeding the result back through the merge as both tiers must be a
	// fixed point.
	second := Merge(first.AsPartial(), first.AsPartial(), "global")
	if first != second {
		t.Errorf("merge not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	pkce := true
	flowSpecific := Partial{EnvironmentID: " padded ", UsePKCE: &pkce}
	shared := Partial{EnvironmentID: "shared"}

	_ = Merge(flowSpecific, shared, "g")

	if flowSpecific.EnvironmentID != " padded " {
		t.Error("flow-specific input was mutated")
	}
	if shared.EnvironmentID != "shared" {
		t.Error("shared input was mutated")
	}
	if !*flowSpecific.UsePKCE {
		t.Error("flow-specific toggle was mutated")
	}
}

func TestPartialOverlay(t *testing.T) {
	base := Partial{EnvironmentID: "env", ClientID: "client"}
	updated := base.Overlay(Partial{ClientID: "new-client", Scopes: "openid"})

	if updated.EnvironmentID != "env" {
		t.Errorf("EnvironmentID = %q, want env", updated.EnvironmentID)
	}
	if updated.ClientID != "new-client" {
		t.Errorf("ClientID = %q, want new-client", updated.ClientID)
	}
	if updated.Scopes != "openid" {
		t.Errorf("Scopes = %q, want openid", updated.Scopes)
	}

	// Empty fields in the update leave the base alone.
	same := updated.Overlay(Partial{})
	if same != updated {
		t.Errorf("empty overlay changed the record: %+v", same)
	}
}

func TestPartialIsZero(t *testing.T) {
	if !(Partial{}).IsZero() {
		t.Error("zero Partial should report IsZero")
	}
	if (Partial{ClientID: "x"}).IsZero() {
		t.Error("Partial with ClientID should not report IsZero")
	}
	if (Partial{UsePKCE: boolPtr(false)}).IsZero() {
		t.Error("Partial with set toggle should not report IsZero")
	}
	if !(Partial{EnvironmentID: "   "}).IsZero() {
		t.Error("whitespace-only Partial should report IsZero")
	}
}
