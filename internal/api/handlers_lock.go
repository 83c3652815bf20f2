package api

import (
	"net/http"

	"github.com/org/applock/pkg/models"
)

// OverlayHandler handles GET /v1/lock/overlay
func (s *Server) OverlayHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Lock.Overlay())
}

// OverlayRenderedHandler handles POST /v1/lock/rendered
func (s *Server) OverlayRenderedHandler(w http.ResponseWriter, r *http.Request) {
	s.app.Lock.OverlayRendered()
	writeJSON(w, http.StatusAccepted, s.app.Lock.Overlay())
}

// RetryHandler handles POST /v1/lock/retry
func (s *Server) RetryHandler(w http.ResponseWriter, r *http.Request) {
	s.app.Lock.Retry()
	writeJSON(w, http.StatusAccepted, s.app.Lock.Overlay())
}

// LifecycleHandler handles POST /v1/lifecycle
func (s *Server) LifecycleHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	state, err := models.ParseAppState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.app.Lock.Lifecycle(state)
	w.WriteHeader(http.StatusAccepted)
}
