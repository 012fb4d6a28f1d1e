// Package security provides the playground's security support: credential
// encryption at rest, audit logging with hashed identifiers, per-client rate
// limiting, request ID propagation, and secure response headers.
package security
