// Package credential manages the login-assist record that lets a biometric
// success stand in for typing the password.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/org/applock/internal/audit"
	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/policy"
	"github.com/org/applock/internal/storage"
	"github.com/org/applock/internal/vault"
	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidRecord is returned by Create for empty fields.
	ErrInvalidRecord = errors.New("identity and subject id are required")
	// ErrLoginDisabled is returned by Create while biometric login is off.
	ErrLoginDisabled = errors.New("biometric login is disabled")
)

// KV is the vault surface the Manager needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// SessionChecker is satisfied by *session.Store.
type SessionChecker interface {
	Valid(ctx context.Context) bool
}

// Manager owns the single CredentialRecord.
type Manager struct {
	kv       KV
	resolver policy.CapabilityQuerier
	auth     policy.Prompter
	sessions SessionChecker
	audit    audit.Recorder
	prompt   biometric.PromptOptions
	now      func() time.Time
	log      zerolog.Logger
}

// DefaultLoginPrompt is shown on biometric login.
func DefaultLoginPrompt() biometric.PromptOptions {
	return biometric.PromptOptions{
		Message:     "Sign in with biometrics",
		CancelLabel: "Use password",
		Purpose:     "login",
	}
}

// NewManager wires a Manager. rec may be nil.
func NewManager(kv KV, resolver policy.CapabilityQuerier, auth policy.Prompter, sessions SessionChecker, rec audit.Recorder) *Manager {
	if rec == nil {
		rec = audit.Discard{}
	}
	return &Manager{
		kv:       kv,
		resolver: resolver,
		auth:     auth,
		sessions: sessions,
		audit:    rec,
		prompt:   DefaultLoginPrompt(),
		now:      time.Now,
		log:      log.With().Str("component", "credential").Logger(),
	}
}

// SetPrompt overrides the login prompt copy. Purpose is always "login".
func (m *Manager) SetPrompt(p biometric.PromptOptions) {
	p.Purpose = "login"
	m.prompt = p
}

// Create stores the record after a password login, replacing any previous
// one. It requires biometric login to be enabled.
func (m *Manager) Create(ctx context.Context, identity, subjectID string) error {
	identity, subjectID = strings.TrimSpace(identity), strings.TrimSpace(subjectID)
	if identity == "" || subjectID == "" {
		return ErrInvalidRecord
	}
	enabled, err := policy.ReadFlag(ctx, m.kv, models.FlagBiometricLogin)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrLoginDisabled
	}
	enc, err := encode(models.CredentialRecord{Identity: identity, SubjectID: subjectID, CreatedAt: m.now().UTC()})
	if err != nil {
		return err
	}
	if err := m.kv.Set(ctx, vault.KeyCredentialRecord, enc); err != nil {
		return fmt.Errorf("storing credential record: %w", err)
	}
	m.log.Info().Msg("credential record created")
	m.audit.Record(ctx, &models.AuditEntry{Event: models.EventCredentialCreated})
	return nil
}

// Read returns the record, or nil if there is none.
func (m *Manager) Read(ctx context.Context) (*models.CredentialRecord, error) {
	raw, err := m.kv.Get(ctx, vault.KeyCredentialRecord)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential record: %w", err)
	}
	rec, err := decode(raw)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Destroy removes the record. Removing an absent record is not an error.
func (m *Manager) Destroy(ctx context.Context) error {
	if err := m.kv.Remove(ctx, vault.KeyCredentialRecord); err != nil {
		return fmt.Errorf("removing credential record: %w", err)
	}
	m.log.Info().Msg("credential record destroyed")
	m.audit.Record(ctx, &models.AuditEntry{Event: models.EventCredentialDeleted})
	return nil
}

// Login performs biometric login.
//
// It returns ErrPasswordRequired when the feature is off or no record
// exists, ErrCapabilityUnavailable without enrolled biometrics, the
// outcome's error when the prompt does not succeed, and ErrSessionExpired
// (after destroying the record) when the backing session is stale.
// A new session is never issued here.
func (m *Manager) Login(ctx context.Context) (*models.CredentialRecord, error) {
	enabled, err := policy.ReadFlag(ctx, m.kv, models.FlagBiometricLogin)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, models.ErrPasswordRequired
	}
	if !m.resolver.Query(ctx).Satisfied() {
		return nil, models.ErrCapabilityUnavailable
	}

	out := m.auth.Authenticate(ctx, m.prompt)
	if err := out.Err(); err != nil {
		if !errors.Is(err, models.ErrBusy) {
			m.audit.Record(ctx, &models.AuditEntry{Event: models.EventBiometricLogin, Outcome: string(out.Kind)})
		}
		return nil, err
	}

	rec, err := m.Read(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		m.audit.Record(ctx, &models.AuditEntry{Event: models.EventBiometricLogin, Outcome: "no_record"})
		return nil, models.ErrPasswordRequired
	}

	if !m.sessions.Valid(ctx) {
		if err := m.Destroy(ctx); err != nil {
			m.log.Error().Err(err).Msg("destroying record after stale session")
		}
		m.audit.Record(ctx, &models.AuditEntry{Event: models.EventBiometricLogin, Outcome: "session_expired"})
		return nil, models.ErrSessionExpired
	}

	m.audit.Record(ctx, &models.AuditEntry{Event: models.EventBiometricLogin, Outcome: "success"})
	return rec, nil
}
