// Package app builds the gate's object graph from a Config and tears it
// down again. Nothing in the module holds package-level service state.
package app

import (
	"context"
	"fmt"

	"github.com/org/applock/internal/audit"
	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/config"
	"github.com/org/applock/internal/credential"
	"github.com/org/applock/internal/lock"
	"github.com/org/applock/internal/policy"
	"github.com/org/applock/internal/session"
	"github.com/org/applock/internal/stepup"
	"github.com/org/applock/internal/storage"
	"github.com/org/applock/internal/vault"
	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog/log"
)

// App holds every constructed service.
type App struct {
	Config      config.Config
	Backend     storage.Backend
	Vault       *vault.Vault
	Resolver    *biometric.Resolver
	Auth        *biometric.Authenticator
	Audit       *audit.Logger
	Credentials *credential.Manager
	Policy      *policy.Store
	Sessions    *session.Store
	Lock        *lock.Controller
	StepUp      *stepup.Gate
	// Simulator is set when platform is the built-in simulator.
	Simulator *biometric.Simulator
}

// New opens storage, unseals the vault and wires the services. The lock
// controller is started and stops when ctx is done or Close is called.
func New(ctx context.Context, cfg config.Config, platform biometric.Platform) (*App, error) {
	backend, err := OpenBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	master, err := cfg.LoadMasterKey()
	if err != nil {
		backend.Close()
		return nil, err
	}
	v, err := vault.Open(backend, master)
	if err != nil {
		backend.Close()
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Backend:  backend,
		Vault:    v,
		Resolver: biometric.NewResolver(platform),
		Auth:     biometric.NewAuthenticator(platform),
		Audit:    audit.NewLogger(backend),
	}
	if sim, ok := platform.(*biometric.Simulator); ok {
		a.Simulator = sim
	}

	a.Sessions = session.NewStore(v)
	a.Credentials = credential.NewManager(v, a.Resolver, a.Auth, a.Sessions, a.Audit)
	a.Credentials.SetPrompt(cfg.Prompts.Login.Apply(credential.DefaultLoginPrompt()))

	a.Policy = policy.NewStore(v, a.Resolver, a.Auth, a.Credentials, a.Audit)
	defaults := policy.DefaultPrompts()
	a.Policy.SetPrompts(policy.Prompts{
		models.FlagAppLock:        cfg.Prompts.AppLock.Apply(defaults[models.FlagAppLock]),
		models.FlagBiometricLogin: cfg.Prompts.BiometricLogin.Apply(defaults[models.FlagBiometricLogin]),
		models.FlagTransferStepUp: cfg.Prompts.TransferStepUp.Apply(defaults[models.FlagTransferStepUp]),
	})

	a.Lock = lock.NewController(v, a.Resolver, a.Auth, a.Audit)
	a.Lock.SetPrompt(cfg.Prompts.Unlock.Apply(lock.DefaultPrompt()))
	a.StepUp = stepup.NewGate(v, a.Resolver, a.Auth, a.Audit, cfg.StepUp.MaxRetries)

	a.Lock.Start(ctx)
	log.Info().Str("driver", cfg.Storage.Driver).Msg("applock services ready")
	return a, nil
}

// OpenBackend opens the configured storage driver, running Postgres
// migrations first.
func OpenBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return storage.NewMemoryBackend(), nil
	case config.DriverSQLite:
		return storage.NewSQLiteBackend(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		if err := storage.RunMigrations(cfg.PostgresURL); err != nil {
			return nil, err
		}
		log.Info().Msg("migrations applied")
		return storage.NewPostgresBackend(ctx, cfg.PostgresURL, cfg.Namespace)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// SetFlag changes a policy flag and lets the lock controller see the new
// value right away.
func (a *App) SetFlag(ctx context.Context, flag models.PolicyFlag, enabled bool) error {
	err := a.Policy.SetFlag(ctx, flag, enabled)
	if flag == models.FlagAppLock {
		a.Lock.Reevaluate()
	}
	return err
}

// Close stops the controller, then seals the vault and closes storage.
func (a *App) Close() {
	a.Lock.Close()
	a.Vault.Close()
	log.Info().Msg("applock services stopped")
}
