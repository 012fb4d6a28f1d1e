package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/oauthlab/playground"
	"github.com/oauthlab/playground/credentials"
	"github.com/oauthlab/playground/flow"
	"github.com/oauthlab/playground/idp"
	"github.com/oauthlab/playground/idp/discovery"
)

// discover fetches the provider's discovery document for the resolved
// environment. A missing environment id is a configuration error; an
// unreachable provider surfaces as a provider error.
func (s *Server) discover(ctx context.Context, creds credentials.Credentials) (*discovery.Document, error) {
	if creds.EnvironmentID == "" {
		return nil, &playground.ConfigError{Field: "environmentId"}
	}

	doc, err := s.discovery.Discover(ctx, s.cfg.issuerURL(creds.EnvironmentID))
	if err != nil {
		return nil, &idp.ProviderError{Endpoint: "discovery", Description: err.Error()}
	}
	return doc, nil
}

func (s *Server) resolveEndpoints(ctx context.Context, creds credentials.Credentials) (idp.Endpoints, error) {
	doc, err := s.discover(ctx, creds)
	if err != nil {
		return idp.Endpoints{}, err
	}
	return idp.EndpointsFromDiscovery(doc), nil
}

// idpClient builds a provider client from the current merged credentials.
func (s *Server) idpClient(ctx context.Context, creds credentials.Credentials) (*idp.Client, error) {
	if creds.ClientID == "" {
		return nil, &playground.ConfigError{Field: "clientId"}
	}

	eps, err := s.resolveEndpoints(ctx, creds)
	if err != nil {
		return nil, err
	}

	return idp.NewClient(idp.Config{
		ClientID:        creds.ClientID,
		ClientSecret:    creds.ClientSecret,
		RedirectURI:     creds.RedirectURI,
		Scopes:          strings.Fields(creds.Scopes),
		AuthMethod:      creds.ClientAuthMethod,
		Endpoints:       eps,
		HTTPClient:      s.cfg.HTTPClient,
		Logger:          s.logger,
		Instrumentation: s.cfg.Instrumentation,
	})
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	doc, err := s.discover(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	state := s.orch.State()

	client, err := s.idpClient(r.Context(), state.Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	oauthState, err := idp.GenerateState()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var nonce string
	if state.SpecVersion == flow.SpecOIDC || strings.Contains(state.Credentials.ResponseType, "id_token") {
		if nonce, err = idp.GenerateNonce(); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	var pkce *idp.PKCE
	if state.Credentials.UsePKCE && strings.Contains(state.Credentials.ResponseType, "code") {
		pkce = idp.NewPKCE()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":   client.AuthorizationURL(oauthState, nonce, state.Credentials.ResponseType, pkce),
		"state": oauthState,
		"nonce": nonce,
		"pkce":  pkce,
	})
}

func (s *Server) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		Verifier string `json:"verifier,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.Code == "" {
		writeBadRequest(w, `"code" is required`)
		return
	}

	client, err := s.idpClient(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	token, err := client.ExchangeCode(r.Context(), req.Code, req.Verifier)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleClientCredentials(w http.ResponseWriter, r *http.Request) {
	creds := s.orch.State().Credentials
	if creds.ClientSecret == "" {
		writeError(w, s.logger, &playground.ConfigError{Field: "clientSecret"})
		return
	}

	client, err := s.idpClient(r.Context(), creds)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	token, err := client.ClientCredentialsToken(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, `"refreshToken" is required`)
		return
	}

	client, err := s.idpClient(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	token, err := client.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleDeviceStart(w http.ResponseWriter, r *http.Request) {
	client, err := s.idpClient(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	auth, err := client.DeviceAuthorize(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

func (s *Server) handleDevicePoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceCode string `json:"deviceCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}
	if req.DeviceCode == "" {
		writeBadRequest(w, `"deviceCode" is required`)
		return
	}

	client, err := s.idpClient(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	token, err := client.PollDeviceTokenOnce(r.Context(), req.DeviceCode)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "granted", "token": token})
	case errors.Is(err, idp.ErrAuthorizationPending):
		writeJSON(w, http.StatusOK, map[string]any{"status": "pending"})
	case errors.Is(err, idp.ErrAccessDenied):
		writeJSON(w, http.StatusOK, map[string]any{"status": "denied"})
	case errors.Is(err, idp.ErrDeviceCodeExpired):
		writeJSON(w, http.StatusOK, map[string]any{"status": "expired"})
	default:
		writeError(w, s.logger, err)
	}
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeBadRequest(w, `"token" is required`)
		return
	}

	client, err := s.idpClient(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	result, err := client.Introspect(r.Context(), req.Token)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"accessToken"`
	}
	if err := decodeJSON(r, &req); err != nil || req.AccessToken == "" {
		writeBadRequest(w, `"accessToken" is required`)
		return
	}

	client, err := s.idpClient(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	claims, err := client.UserInfo(r.Context(), req.AccessToken)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// handleInspect decodes a JWT without verification. Pure display aid, no
// provider call involved.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeBadRequest(w, `"token" is required`)
		return
	}

	inspected, err := idp.InspectToken(req.Token)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, inspected)
}

func (s *Server) handleVerifyIDToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
		Nonce   string `json:"nonce,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil || req.IDToken == "" {
		writeBadRequest(w, `"idToken" is required`)
		return
	}

	client, err := s.idpClient(r.Context(), s.orch.State().Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	claims, err := client.VerifyIDToken(r.Context(), req.IDToken, req.Nonce)
	if err != nil {
		if errors.Is(err, idp.ErrNonceMismatch) {
			writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": err.Error()})
			return
		}
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "claims": claims})
}
