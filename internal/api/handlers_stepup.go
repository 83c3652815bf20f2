package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/org/applock/internal/stepup"
	"github.com/org/applock/pkg/models"
)

type stepUpResult struct {
	Outcome models.OutcomeKind `json:"outcome,omitempty"`
	Reason  string             `json:"reason,omitempty"`
	Error   string             `json:"error,omitempty"`
	Modal   stepup.Modal       `json:"modal"`
}

// StepUpOpenHandler handles POST /v1/stepup
func (s *Server) StepUpOpenHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string         `json:"title"`
		Description string         `json:"description"`
		Amount      *stepup.Amount `json:"amount"`
		AutoTrigger bool           `json:"auto_trigger"`
		Flag        string         `json:"flag"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}
	var flag models.PolicyFlag
	if req.Flag != "" {
		f, err := models.ParsePolicyFlag(req.Flag)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		flag = f
	}

	sess := s.app.StepUp.Open(stepup.Request{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		AutoTrigger: req.AutoTrigger,
		Flag:        flag,
	})
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) stepUpSession(w http.ResponseWriter, r *http.Request) (*stepup.Session, bool) {
	sess, ok := s.app.StepUp.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "step-up session not found")
	}
	return sess, ok
}

// StepUpViewHandler handles GET /v1/stepup/:id
func (s *Server) StepUpViewHandler(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.stepUpSession(w, r); ok {
		writeJSON(w, http.StatusOK, sess.View())
	}
}

// StepUpMountHandler handles POST /v1/stepup/:id/mount
func (s *Server) StepUpMountHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.stepUpSession(w, r)
	if !ok {
		return
	}
	out, err := sess.Mount(r.Context())
	s.writeStepUp(w, sess, out, err)
}

// StepUpAuthenticateHandler handles POST /v1/stepup/:id/authenticate
func (s *Server) StepUpAuthenticateHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.stepUpSession(w, r)
	if !ok {
		return
	}
	out, err := sess.Authenticate(r.Context())
	s.writeStepUp(w, sess, out, err)
}

// StepUpCancelHandler handles POST /v1/stepup/:id/cancel
func (s *Server) StepUpCancelHandler(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.stepUpSession(w, r); ok {
		sess.Cancel()
		writeJSON(w, http.StatusOK, sess.View())
	}
}

// writeStepUp reports prompt outcomes inline; the modal shows them. Only
// a closed gate is an HTTP error.
func (s *Server) writeStepUp(w http.ResponseWriter, sess *stepup.Session, out models.Outcome, err error) {
	if errors.Is(err, models.ErrGateClosed) {
		writeErr(w, err)
		return
	}
	res := stepUpResult{Outcome: out.Kind, Reason: out.Reason, Modal: sess.View()}
	if err != nil {
		_, res.Error = errorStatus(err)
	}
	writeJSON(w, http.StatusOK, res)
}
