// Package credentials holds the playground's client configuration records
// and the precedence merge between the flow-specific tier, the shared tier,
// and the global environment fallback.
package credentials

import "strings"

// Field defaults applied when neither tier provides a value.
const (
	DefaultScopes           = "openid"
	DefaultResponseType     = "code"
	DefaultClientAuthMethod = "client_secret_post"
	DefaultRedirectURI      = "http://localhost:3000/callback"
)

// Credentials is a fully resolved configuration record: every field has
// passed through the merge and carries either a stored value or its default.
type Credentials struct {
	EnvironmentID    string `json:"environmentId"`
	ClientID         string `json:"clientId"`
	ClientSecret     string `json:"clientSecret,omitempty"`
	RedirectURI      string `json:"redirectUri"`
	Scopes           string `json:"scopes"`
	ResponseType     string `json:"responseType"`
	ClientAuthMethod string `json:"clientAuthMethod"`

	UsePKCE             bool `json:"usePkce"`
	RequestRefreshToken bool `json:"requestRefreshToken"`
	Redirectless        bool `json:"redirectless"`
}

// Partial is a sparse configuration record as persisted per tier. Empty
// strings mean "not set" and never act as an explicit override; boolean
// toggles use pointers to distinguish unset from false.
type Partial struct {
	EnvironmentID    string `json:"environmentId,omitempty"`
	ClientID         string `json:"clientId,omitempty"`
	ClientSecret     string `json:"clientSecret,omitempty"`
	RedirectURI      string `json:"redirectUri,omitempty"`
	Scopes           string `json:"scopes,omitempty"`
	ResponseType     string `json:"responseType,omitempty"`
	ClientAuthMethod string `json:"clientAuthMethod,omitempty"`

	UsePKCE             *bool `json:"usePkce,omitempty"`
	RequestRefreshToken *bool `json:"requestRefreshToken,omitempty"`
	Redirectless        *bool `json:"redirectless,omitempty"`
}

// IsZero reports whether no field of the partial is set.
func (p Partial) IsZero() bool {
	return strings.TrimSpace(p.EnvironmentID) == "" &&
		strings.TrimSpace(p.ClientID) == "" &&
		strings.TrimSpace(p.ClientSecret) == "" &&
		strings.TrimSpace(p.RedirectURI) == "" &&
		strings.TrimSpace(p.Scopes) == "" &&
		strings.TrimSpace(p.ResponseType) == "" &&
		strings.TrimSpace(p.ClientAuthMethod) == "" &&
		p.UsePKCE == nil && p.RequestRefreshToken == nil && p.Redirectless == nil
}

// Overlay returns a copy of p with every set field of update applied on top.
// Used to fold user edits into the pending flow-specific record.
func (p Partial) Overlay(update Partial) Partial {
	out := p
	if strings.TrimSpace(update.EnvironmentID) != "" {
		out.EnvironmentID = update.EnvironmentID
	}
	if strings.TrimSpace(update.ClientID) != "" {
		out.ClientID = update.ClientID
	}
	if strings.TrimSpace(update.ClientSecret) != "" {
		out.ClientSecret = update.ClientSecret
	}
	if strings.TrimSpace(update.RedirectURI) != "" {
		out.RedirectURI = update.RedirectURI
	}
	if strings.TrimSpace(update.Scopes) != "" {
		out.Scopes = update.Scopes
	}
	if strings.TrimSpace(update.ResponseType) != "" {
		out.ResponseType = update.ResponseType
	}
	if strings.TrimSpace(update.ClientAuthMethod) != "" {
		out.ClientAuthMethod = update.ClientAuthMethod
	}
	if update.UsePKCE != nil {
		v := *update.UsePKCE
		out.UsePKCE = &v
	}
	if update.RequestRefreshToken != nil {
		v := *update.RequestRefreshToken
		out.RequestRefreshToken = &v
	}
	if update.Redirectless != nil {
		v := *update.Redirectless
		out.Redirectless = &v
	}
	return out
}

// AsPartial converts a resolved record back into the sparse form, for
// feeding merge output back through the merge (which must be idempotent)
// and for persisting a full working copy.
func (c Credentials) AsPartial() Partial {
	pkce := c.UsePKCE
	refresh := c.RequestRefreshToken
	redirectless := c.Redirectless
	return Partial{
		EnvironmentID:       c.EnvironmentID,
		ClientID:            c.ClientID,
		ClientSecret:        c.ClientSecret,
		RedirectURI:         c.RedirectURI,
		Scopes:              c.Scopes,
		ResponseType:        c.ResponseType,
		ClientAuthMethod:    c.ClientAuthMethod,
		UsePKCE:             &pkce,
		RequestRefreshToken: &refresh,
		Redirectless:        &redirectless,
	}
}

// Merge resolves a full Credentials record from the two storage tiers and
// the global environment fallback. Per field the precedence is:
//
//  1. non-empty, trimmed flow-specific value,
//  2. non-empty, trimmed shared value,
//  3. the global environment id (environment id field only),
//  4. the field default.
//
// Empty or whitespace-only strings are treated as absent, never as an
// explicit override. The merge is pure: deterministic, no side effects,
// inputs are not mutated.
func Merge(flowSpecific, shared Partial, globalEnvID string) Credentials {
	return Credentials{
		EnvironmentID:    firstNonEmpty(flowSpecific.EnvironmentID, shared.EnvironmentID, globalEnvID),
		ClientID:         firstNonEmpty(flowSpecific.ClientID, shared.ClientID),
		ClientSecret:     firstNonEmpty(flowSpecific.ClientSecret, shared.ClientSecret),
		RedirectURI:      firstNonEmpty(flowSpecific.RedirectURI, shared.RedirectURI, DefaultRedirectURI),
		Scopes:           firstNonEmpty(flowSpecific.Scopes, shared.Scopes, DefaultScopes),
		ResponseType:     firstNonEmpty(flowSpecific.ResponseType, shared.ResponseType, DefaultResponseType),
		ClientAuthMethod: firstNonEmpty(flowSpecific.ClientAuthMethod, shared.ClientAuthMethod, DefaultClientAuthMethod),

		UsePKCE:             firstBool(flowSpecific.UsePKCE, shared.UsePKCE, true),
		RequestRefreshToken: firstBool(flowSpecific.RequestRefreshToken, shared.RequestRefreshToken, false),
		Redirectless:        firstBool(flowSpecific.Redirectless, shared.Redirectless, false),
	}
}

// firstNonEmpty returns the first value that is non-empty after trimming,
// trimmed, or "".
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

// firstBool returns the flow-specific toggle if set, else the shared one,
// else the default.
func firstBool(flowSpecific, shared *bool, def bool) bool {
	if flowSpecific != nil {
		return *flowSpecific
	}
	if shared != nil {
		return *shared
	}
	return def
}
