package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/applock/pkg/models"
)

// TogglesHandler handles GET /v1/settings/toggles
func (s *Server) TogglesHandler(w http.ResponseWriter, r *http.Request) {
	toggles, err := s.app.Policy.Toggles(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"toggles": toggles})
}

// ToggleSetHandler handles PUT /v1/settings/toggles/:flag
//
// Enabling blocks until the consent prompt is answered.
func (s *Server) ToggleSetHandler(w http.ResponseWriter, r *http.Request) {
	flag, err := models.ParsePolicyFlag(chi.URLParam(r, "flag"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", `body must be {"enabled": true|false}`)
		return
	}

	if err := s.app.SetFlag(r.Context(), flag, *req.Enabled); err != nil {
		writeErr(w, err)
		return
	}
	s.TogglesHandler(w, r)
}
