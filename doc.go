// Package playground implements the flow orchestration core of an
// OAuth/OIDC playground: a state machine that tracks the selected
// specification version and flow type, enforces which flows are legal under
// which spec, merges credentials from their storage tiers, and keeps the
// route, in-memory state, and persisted settings consistent without
// feedback loops.
//
// The HTTP surface lives in the server package; identity provider calls in
// idp; storage backends under storage.
package playground
