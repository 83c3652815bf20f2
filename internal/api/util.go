package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/org/applock/internal/credential"
	"github.com/org/applock/internal/storage"
	"github.com/org/applock/internal/vault"
	"github.com/org/applock/pkg/models"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"errors": []string{msg}, "code": code})
}

// errorStatus maps the error taxonomy onto HTTP. The code string is what
// the host shell switches on.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrCapabilityUnavailable):
		return http.StatusPreconditionFailed, "capability_unavailable"
	case errors.Is(err, models.ErrUserCancel):
		return http.StatusConflict, "user_cancel"
	case errors.Is(err, models.ErrSystemCancel):
		return http.StatusConflict, "system_cancel"
	case errors.Is(err, models.ErrAuthenticationFailure):
		return http.StatusUnauthorized, "authentication_failure"
	case errors.Is(err, models.ErrBusy):
		return http.StatusLocked, "busy"
	case errors.Is(err, models.ErrSessionExpired):
		return http.StatusUnauthorized, "session_expired"
	case errors.Is(err, models.ErrPasswordRequired):
		return http.StatusUnauthorized, "password_required"
	case errors.Is(err, models.ErrRetriesExhausted):
		return http.StatusForbidden, "retries_exhausted"
	case errors.Is(err, models.ErrGateClosed):
		return http.StatusGone, "gate_closed"
	case errors.Is(err, credential.ErrInvalidRecord):
		return http.StatusBadRequest, "invalid_record"
	case errors.Is(err, credential.ErrLoginDisabled):
		return http.StatusConflict, "biometric_login_disabled"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, vault.ErrSealed):
		return http.StatusServiceUnavailable, "sealed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeErr also tells the shell whether offering "try again" makes sense.
func writeErr(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeJSON(w, status, map[string]any{
		"errors":    []string{err.Error()},
		"code":      code,
		"retryable": models.Retryable(err),
	})
}
