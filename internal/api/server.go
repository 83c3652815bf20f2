package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/org/applock/internal/app"
	"github.com/rs/zerolog/log"
)

// Config holds server configuration.
type Config struct {
	ListenAddr string
	// DevMode exposes the simulator control routes.
	DevMode bool
}

// Server is the JSON bridge between the host UI shell and the gate.
type Server struct {
	app     *app.App
	cfg     Config
	httpSrv *http.Server
}

// NewServer creates a Server over a wired App.
func NewServer(a *app.App, cfg Config) *Server {
	return &Server{app: a, cfg: cfg}
}

// BuildRouter wires up all routes and returns a chi router.
func (s *Server) BuildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(requestLogger)
	r.Use(metricsMiddleware)
	r.Use(newRateLimiter(50, 100).middleware)

	r.Handle("/metrics", MetricsHandler())

	r.Get("/v1/sys/health", s.HealthHandler)
	r.Get("/v1/sys/audit-log", s.AuditLogHandler)
	r.Get("/v1/capability", s.CapabilityHandler)

	// Lock overlay
	r.Get("/v1/lock/overlay", s.OverlayHandler)
	r.Post("/v1/lock/rendered", s.OverlayRenderedHandler)
	r.Post("/v1/lock/retry", s.RetryHandler)
	r.Post("/v1/lifecycle", s.LifecycleHandler)

	// Settings
	r.Get("/v1/settings/toggles", s.TogglesHandler)
	r.Put("/v1/settings/toggles/{flag}", s.ToggleSetHandler)

	// Session artifact and login-assist record
	r.Post("/v1/session", s.SessionSaveHandler)
	r.Delete("/v1/session", s.SessionClearHandler)
	r.Post("/v1/credential", s.CredentialCreateHandler)
	r.Get("/v1/credential", s.CredentialReadHandler)
	r.Delete("/v1/credential", s.CredentialDeleteHandler)
	r.Post("/v1/auth/biometric-login", s.BiometricLoginHandler)

	// Step-up
	r.Route("/v1/stepup", func(r chi.Router) {
		r.Post("/", s.StepUpOpenHandler)
		r.Get("/{id}", s.StepUpViewHandler)
		r.Post("/{id}/mount", s.StepUpMountHandler)
		r.Post("/{id}/authenticate", s.StepUpAuthenticateHandler)
		r.Post("/{id}/cancel", s.StepUpCancelHandler)
	})

	if s.cfg.DevMode && s.app.Simulator != nil {
		r.Put("/v1/sim/capability", s.SimCapabilityHandler)
		r.Put("/v1/sim/outcome", s.SimOutcomeHandler)
	}

	return r
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        s.cfg.ListenAddr,
		Handler:     s.BuildRouter(),
		ReadTimeout: 30 * time.Second,
		// Prompts block until the user answers, so writes get no deadline.
		IdleTimeout: 60 * time.Second,
	}
	log.Info().Str("addr", s.cfg.ListenAddr).Bool("dev_mode", s.cfg.DevMode).Msg("starting HTTP bridge")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
