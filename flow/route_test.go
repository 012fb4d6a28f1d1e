package flow

import (
	"fmt"
	"testing"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantFlow Type
		wantStep int
		wantErr  bool
	}{
		{"flow and step", "/p/oauth-authz/3", TypeAuthorizationCode, 3, false},
		{"missing step defaults to zero", "/p/device-code", TypeDeviceCode, 0, false},
		{"malformed step defaults to zero", "/p/implicit/abc", TypeImplicit, 0, false},
		{"negative step defaults to zero", "/p/implicit/-2", TypeImplicit, 0, false},
		{"trailing slash tolerated", "/p/hybrid/2/", TypeHybrid, 2, false},
		{"unknown flow type", "/p/password/0", "", 0, true},
		{"outside prefix", "/other/oauth-authz/0", "", 0, true},
		{"empty path", "/", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRoute("p", tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRoute(%q) = %+v, want error", tt.path, r)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRoute(%q) error: %v", tt.path, err)
			}
			if r.Flow != tt.wantFlow || r.Step != tt.wantStep {
				t.Errorf("ParseRoute(%q) = %+v, want flow %q step %d", tt.path, r, tt.wantFlow, tt.wantStep)
			}
		})
	}
}

func TestRouteRoundTrip(t *testing.T) {
	// A step index written into the route must parse back to the identical
	// integer for all values up to 1000.
	for n := 0; n < 1000; n++ {
		path := FormatRoute("p", TypeAuthorizationCode, n)
		r, err := ParseRoute("p", path)
		if err != nil {
			t.Fatalf("ParseRoute(%q) error: %v", path, err)
		}
		if r.Step != n {
			t.Fatalf("round trip step %d: got %d via %q", n, r.Step, path)
		}
		if r.Flow != TypeAuthorizationCode {
			t.Fatalf("round trip flow: got %q via %q", r.Flow, path)
		}
	}
}

func TestFormatRoute(t *testing.T) {
	tests := []struct {
		prefix string
		flow   Type
		step   int
		want   string
	}{
		{"p", TypeDeviceCode, 2, "/p/device-code/2"},
		{"/p/", TypeDeviceCode, 2, "/p/device-code/2"},
		{"playground", TypeImplicit, 0, "/playground/implicit/0"},
		{"p", TypeHybrid, -1, "/p/hybrid/0"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s_%d", tt.prefix, tt.flow, tt.step), func(t *testing.T) {
			if got := FormatRoute(tt.prefix, tt.flow, tt.step); got != tt.want {
				t.Errorf("FormatRoute(%q, %q, %d) = %q, want %q", tt.prefix, tt.flow, tt.step, got, tt.want)
			}
		})
	}
}

func TestParseSpecVersion(t *testing.T) {
	for _, s := range []string{"oauth2.0", "oauth2.1", "oidc"} {
		if _, err := ParseSpecVersion(s); err != nil {
			t.Errorf("ParseSpecVersion(%q) error: %v", s, err)
		}
	}
	if _, err := ParseSpecVersion("oauth1.0"); err == nil {
		t.Error("ParseSpecVersion(oauth1.0) should fail")
	}
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"oauth-authz", "implicit", "client-credentials", "device-code", "hybrid"} {
		if _, err := ParseType(s); err != nil {
			t.Errorf("ParseType(%q) error: %v", s, err)
		}
	}
	if _, err := ParseType("authorization_code"); err == nil {
		t.Error("ParseType(authorization_code) should fail")
	}
}
