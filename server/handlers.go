package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oauthlab/playground/credentials"
	"github.com/oauthlab/playground/export"
	"github.com/oauthlab/playground/flow"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.State())
}

func (s *Server) handleSelectSpec(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SpecVersion string `json:"specVersion"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	state, err := s.orch.SelectSpec(r.Context(), flow.SpecVersion(req.SpecVersion))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSelectFlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FlowType string `json:"flowType"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	state, err := s.orch.SelectFlow(r.Context(), flow.Type(req.FlowType))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step *int   `json:"step,omitempty"`
		Move string `json:"move,omitempty"` // "advance" | "back"
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	var (
		state any
		err   error
	)
	switch {
	case req.Step != nil:
		state, err = s.orch.GoToStep(*req.Step)
	case req.Move == "advance":
		state, err = s.orch.Advance()
	case req.Move == "back":
		state, err = s.orch.Back()
	default:
		writeBadRequest(w, `either "step" or "move" is required`)
		return
	}
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	state, err := s.orch.ResetFlow(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetCredentials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.State().Credentials)
}

func (s *Server) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	var update credentials.Partial
	if err := decodeJSON(r, &update); err != nil {
		writeBadRequest(w, "malformed credentials record")
		return
	}

	state, err := s.orch.UpdateCredentials(r.Context(), update)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePutSharedCredentials(w http.ResponseWriter, r *http.Request) {
	var update credentials.Partial
	if err := decodeJSON(r, &update); err != nil {
		writeBadRequest(w, "malformed credentials record")
		return
	}

	state, err := s.orch.UpdateSharedCredentials(r.Context(), update)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePutEnvironment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EnvironmentID string `json:"environmentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	state, err := s.orch.SetGlobalEnvironmentID(r.Context(), req.EnvironmentID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePutFeatures(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Features []flow.FeatureID `json:"features"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "malformed request body")
		return
	}

	state, err := s.orch.SetAdvancedFeatures(r.Context(), req.Features)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleRoute adopts a visited flow route into orchestrator state, the
// server-side analog of deep linking.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	path := "/" + s.orch.RoutePrefix() + "/" + chi.URLParam(r, "flowType")
	if step := chi.URLParam(r, "step"); step != "" {
		path += "/" + step
	}

	state, err := s.orch.HandleRoute(r.Context(), path)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	state := s.orch.State()

	eps, err := s.resolveEndpoints(r.Context(), state.Credentials)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	collection, err := export.Generate(state.SpecVersion, state.Credentials, eps)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	data, err := export.Render(collection)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	s.auditor.LogExportGenerated(state.FlowKey, state.Credentials.ClientID)
	if s.cfg.Instrumentation != nil {
		s.cfg.Instrumentation.Metrics().CollectionsExported.Add(r.Context(), 1)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="playground-collection.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
