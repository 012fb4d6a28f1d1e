// Package export renders the playground's current configuration into a
// Postman-style collection (schema v2.1) so flows can be replayed from an
// external API client. Generation is a pure transform: equal input yields
// byte-identical output, with collection and item ids derived
// deterministically from their content path.
package export

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/oauthlab/playground/credentials"
	"github.com/oauthlab/playground/flow"
	"github.com/oauthlab/playground/idp"
)

const schemaURL = "https://schema.getpostman.com/json/collection/v2.1.0/collection.json"

// namespace roots the deterministic id derivation.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/oauthlab/playground"))

// Collection is the exported document.
type Collection struct {
	Info     Info       `json:"info"`
	Items    []Folder   `json:"item"`
	Variable []Variable `json:"variable"`
}

// Info is the collection header.
type Info struct {
	PostmanID string `json:"_postman_id"`
	Name      string `json:"name"`
	Schema    string `json:"schema"`
}

// Folder groups one flow's requests.
type Folder struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Items []Request `json:"item"`
}

// Request is one HTTP request template.
type Request struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Request RequestSpec `json:"request"`
}

// RequestSpec is the request body of a collection item.
type RequestSpec struct {
	Method string   `json:"method"`
	URL    URLSpec  `json:"url"`
	Header []Header `json:"header,omitempty"`
	Body   *Body    `json:"body,omitempty"`
}

// URLSpec is a raw URL plus its decomposed query.
type URLSpec struct {
	Raw   string  `json:"raw"`
	Query []Param `json:"query,omitempty"`
}

// Param is one query or form parameter.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Header is one request header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Body is a urlencoded form body.
type Body struct {
	Mode       string  `json:"mode"`
	URLEncoded []Param `json:"urlencoded,omitempty"`
}

// Variable is a collection-level variable.
type Variable struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Generate builds the collection for every flow legal under the given spec
// version, in the compatibility table's order.
func Generate(spec flow.SpecVersion, creds credentials.Credentials, eps idp.Endpoints) (*Collection, error) {
	if !spec.Valid() {
		return nil, fmt.Errorf("export: unknown spec version %q", spec)
	}

	name := fmt.Sprintf("OAuth Playground (%s)", spec)
	c := &Collection{
		Info: Info{
			PostmanID: deriveID("collection", string(spec), creds.EnvironmentID),
			Name:      name,
			Schema:    schemaURL,
		},
		Variable: []Variable{
			{Key: "environmentId", Value: creds.EnvironmentID},
			{Key: "clientId", Value: creds.ClientID},
			{Key: "redirectUri", Value: creds.RedirectURI},
			{Key: "scopes", Value: creds.Scopes},
		},
	}

	for _, t := range flow.AvailableFlows(spec) {
		c.Items = append(c.Items, buildFolder(spec, t, creds, eps))
	}
	return c, nil
}

// Render serializes a collection with stable formatting.
func Render(c *Collection) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encoding collection: %w", err)
	}
	return append(data, '\n'), nil
}

func buildFolder(spec flow.SpecVersion, t flow.Type, creds credentials.Credentials, eps idp.Endpoints) Folder {
	key := flow.Key(spec, t)
	f := Folder{
		ID:   deriveID("folder", key, creds.EnvironmentID),
		Name: folderName(t),
	}

	switch t {
	case flow.TypeAuthorizationCode:
		f.Items = append(f.Items,
			authorizeRequest(key, creds, eps, creds.ResponseType),
			tokenExchangeRequest(key, creds, eps))
	case flow.TypeHybrid:
		f.Items = append(f.Items,
			authorizeRequest(key, creds, eps, "code id_token"),
			tokenExchangeRequest(key, creds, eps))
	case flow.TypeImplicit:
		responseType := "token"
		if spec == flow.SpecOIDC {
			responseType = "id_token token"
		}
		f.Items = append(f.Items, authorizeRequest(key, creds, eps, responseType))
	case flow.TypeClientCredentials:
		f.Items = append(f.Items, clientCredentialsRequest(key, creds, eps))
	case flow.TypeDeviceCode:
		f.Items = append(f.Items,
			deviceAuthorizeRequest(key, creds, eps),
			devicePollRequest(key, creds, eps))
	}

	if eps.Introspection != "" {
		f.Items = append(f.Items, introspectRequest(key, creds, eps))
	}
	if eps.UserInfo != "" && spec == flow.SpecOIDC {
		f.Items = append(f.Items, userInfoRequest(key, eps))
	}
	return f
}

func folderName(t flow.Type) string {
	switch t {
	case flow.TypeAuthorizationCode:
		return "Authorization Code"
	case flow.TypeImplicit:
		return "Implicit"
	case flow.TypeClientCredentials:
		return "Client Credentials"
	case flow.TypeDeviceCode:
		return "Device Code"
	case flow.TypeHybrid:
		return "Hybrid"
	default:
		return string(t)
	}
}

func authorizeRequest(key string, creds credentials.Credentials, eps idp.Endpoints, responseType string) Request {
	params := []Param{
		{Key: "response_type", Value: responseType},
		{Key: "client_id", Value: creds.ClientID},
		{Key: "redirect_uri", Value: creds.RedirectURI},
		{Key: "scope", Value: creds.Scopes},
		{Key: "state", Value: "{{state}}"},
	}
	if creds.UsePKCE && strings.Contains(responseType, "code") {
		params = append(params,
			Param{Key: "code_challenge", Value: "{{codeChallenge}}"},
			Param{Key: "code_challenge_method", Value: "S256"})
	}

	return Request{
		ID:   deriveID("request", key, "authorize"),
		Name: "Authorization Request",
		Request: RequestSpec{
			Method: "GET",
			URL:    urlWithQuery(eps.Authorization, params),
		},
	}
}

func tokenExchangeRequest(key string, creds credentials.Credentials, eps idp.Endpoints) Request {
	form := []Param{
		{Key: "grant_type", Value: "authorization_code"},
		{Key: "code", Value: "{{authorizationCode}}"},
		{Key: "redirect_uri", Value: creds.RedirectURI},
		{Key: "client_id", Value: creds.ClientID},
	}
	if creds.UsePKCE {
		form = append(form, Param{Key: "code_verifier", Value: "{{codeVerifier}}"})
	}
	return formPost(deriveID("request", key, "token"), "Token Exchange", eps.Token, form)
}

func clientCredentialsRequest(key string, creds credentials.Credentials, eps idp.Endpoints) Request {
	form := []Param{
		{Key: "grant_type", Value: "client_credentials"},
		{Key: "client_id", Value: creds.ClientID},
		{Key: "client_secret", Value: "{{clientSecret}}"},
		{Key: "scope", Value: creds.Scopes},
	}
	return formPost(deriveID("request", key, "token"), "Token Request", eps.Token, form)
}

func deviceAuthorizeRequest(key string, creds credentials.Credentials, eps idp.Endpoints) Request {
	form := []Param{
		{Key: "client_id", Value: creds.ClientID},
		{Key: "scope", Value: creds.Scopes},
	}
	return formPost(deriveID("request", key, "device-authorize"), "Device Authorization", eps.DeviceAuthorization, form)
}

func devicePollRequest(key string, creds credentials.Credentials, eps idp.Endpoints) Request {
	form := []Param{
		{Key: "grant_type", Value: "urn:ietf:params:oauth:grant-type:device_code"},
		{Key: "device_code", Value: "{{deviceCode}}"},
		{Key: "client_id", Value: creds.ClientID},
	}
	return formPost(deriveID("request", key, "device-token"), "Device Token Poll", eps.Token, form)
}

func introspectRequest(key string, creds credentials.Credentials, eps idp.Endpoints) Request {
	form := []Param{
		{Key: "token", Value: "{{accessToken}}"},
		{Key: "client_id", Value: creds.ClientID},
		{Key: "client_secret", Value: "{{clientSecret}}"},
	}
	return formPost(deriveID("request", key, "introspect"), "Token Introspection", eps.Introspection, form)
}

func userInfoRequest(key string, eps idp.Endpoints) Request {
	return Request{
		ID:   deriveID("request", key, "userinfo"),
		Name: "UserInfo",
		Request: RequestSpec{
			Method: "GET",
			URL:    URLSpec{Raw: eps.UserInfo},
			Header: []Header{{Key: "Authorization", Value: "Bearer {{accessToken}}"}},
		},
	}
}

func formPost(id, name, endpoint string, form []Param) Request {
	return Request{
		ID:   id,
		Name: name,
		Request: RequestSpec{
			Method: "POST",
			URL:    URLSpec{Raw: endpoint},
			Header: []Header{{Key: "Content-Type", Value: "application/x-www-form-urlencoded"}},
			Body:   &Body{Mode: "urlencoded", URLEncoded: form},
		},
	}
}

func urlWithQuery(endpoint string, params []Param) URLSpec {
	q := url.Values{}
	for _, p := range params {
		q.Set(p.Key, p.Value)
	}
	raw := endpoint
	if len(params) > 0 {
		raw += "?" + q.Encode()
	}
	return URLSpec{Raw: raw, Query: params}
}

// deriveID builds a stable v5 UUID from the item's content path.
func deriveID(parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "/"))).String()
}
