package api

import (
	"net/http"

	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/config"
)

// SimCapabilityHandler handles PUT /v1/sim/capability (dev mode only).
func (s *Server) SimCapabilityHandler(w http.ResponseWriter, r *http.Request) {
	var req config.SimulatorConfig
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	s.app.Simulator.SetCapability(req.Capability())
	writeJSON(w, http.StatusOK, s.app.Resolver.Query(r.Context()))
}

// SimOutcomeHandler handles PUT /v1/sim/outcome (dev mode only). With
// queue=true the result applies to the next prompt only; otherwise it
// becomes the default.
func (s *Server) SimOutcomeHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Result string `json:"result"`
		Queue  bool   `json:"queue"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	res := biometric.PromptResult{Success: req.Result == "success"}
	if !res.Success {
		if req.Result == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "result is required")
			return
		}
		res.Error = req.Result
	}
	if req.Queue {
		s.app.Simulator.Enqueue(res)
	} else {
		s.app.Simulator.SetDefault(res)
	}
	w.WriteHeader(http.StatusNoContent)
}
