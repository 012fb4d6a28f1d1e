package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oauthlab/playground"
	"github.com/oauthlab/playground/idp"
)

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"description,omitempty"`
	Field       string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: configuration
// errors are 422, compliance errors 409, provider errors pass through as
// 502 with the provider's own message, bad input is 400, and anything else
// is a generic 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		configErr     *playground.ConfigError
		complianceErr *playground.ComplianceError
		providerErr   *idp.ProviderError
	)

	switch {
	case errors.As(err, &configErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:       "configuration_error",
			Description: configErr.Error(),
			Field:       configErr.Field,
		})
	case errors.As(err, &complianceErr):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:       "flow_not_available",
			Description: complianceErr.Error(),
		})
	case errors.As(err, &providerErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:       "provider_error",
			Description: providerErr.Error(),
		})
	case errors.Is(err, playground.ErrUnknownSpecVersion),
		errors.Is(err, playground.ErrUnknownFlowType):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:       "invalid_request",
			Description: err.Error(),
		})
	case errors.Is(err, playground.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "shutting_down",
		})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error: "internal_error",
		})
	}
}

// decodeJSON reads a bounded JSON request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeBadRequest(w http.ResponseWriter, description string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:       "invalid_request",
		Description: description,
	})
}
