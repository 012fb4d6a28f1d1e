package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from a request.
//
// Only set trustProxy when the server sits behind a trusted reverse proxy;
// otherwise X-Forwarded-For is attacker-controlled. With trustProxy enabled,
// the leftmost valid address in X-Forwarded-For is used, then X-Real-IP,
// then the connection address.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			if net.ParseIP(real) != nil {
				return real
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
