package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/org/applock/internal/storage"
)

// HealthHandler handles GET /v1/sys/health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	sealed := s.app.Vault.Sealed()
	code := http.StatusOK
	if sealed {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"sealed":  sealed,
		"lock":    s.app.Lock.State().Phase.String(),
		"version": "1.0.0",
	})
}

// CapabilityHandler handles GET /v1/capability
func (s *Server) CapabilityHandler(w http.ResponseWriter, r *http.Request) {
	c := s.app.Resolver.Query(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"capability":       c,
		"satisfied":        c.Satisfied(),
		"primary_modality": c.PrimaryModality(),
		"prompt_in_flight": s.app.Auth.InFlight(),
	})
}

// AuditLogHandler handles GET /v1/sys/audit-log
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AuditFilter{Event: q.Get("event")}

	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err == nil {
			filter.Since = &t
		}
	}

	entries, err := s.app.Audit.Query(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}
