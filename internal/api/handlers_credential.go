package api

import (
	"net/http"
)

// SessionSaveHandler handles POST /v1/session with the access token from a
// password login.
func (s *Server) SessionSaveHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := s.app.Sessions.Save(r.Context(), req.AccessToken); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_token", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": s.app.Sessions.Valid(r.Context())})
}

// SessionClearHandler handles DELETE /v1/session
func (s *Server) SessionClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sessions.Clear(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CredentialCreateHandler handles POST /v1/credential
func (s *Server) CredentialCreateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identity  string `json:"identity"`
		SubjectID string `json:"subject_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if err := s.app.Credentials.Create(r.Context(), req.Identity, req.SubjectID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CredentialReadHandler handles GET /v1/credential. Only presence and
// creation time are returned.
func (s *Server) CredentialReadHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.app.Credentials.Read(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, map[string]any{"present": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"present": true, "created_at": rec.CreatedAt})
}

// CredentialDeleteHandler handles DELETE /v1/credential
func (s *Server) CredentialDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Credentials.Destroy(r.Context()); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BiometricLoginHandler handles POST /v1/auth/biometric-login
func (s *Server) BiometricLoginHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.app.Credentials.Login(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity":   rec.Identity,
		"subject_id": rec.SubjectID,
	})
}
