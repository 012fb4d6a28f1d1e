package security

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		trustProxy bool
		want       string
	}{
		{"direct connection", "203.0.113.7:51234", "", "", false, "203.0.113.7"},
		{"xff ignored without trust", "203.0.113.7:51234", "198.51.100.1", "", false, "203.0.113.7"},
		{"xff used with trust", "203.0.113.7:51234", "198.51.100.1, 10.0.0.1", "", true, "198.51.100.1"},
		{"x-real-ip fallback", "203.0.113.7:51234", "", "198.51.100.2", true, "198.51.100.2"},
		{"invalid xff falls through", "203.0.113.7:51234", "not-an-ip", "", true, "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := ClientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
