// Package policy persists the three lock policies. Turning a protection on
// needs a fresh biometric proof; turning it off never does.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/org/applock/internal/audit"
	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/storage"
	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FlagReader is the minimal vault interface needed to read a flag.
type FlagReader interface {
	Get(ctx context.Context, key string) (string, error)
}

// KV is the vault surface the Store needs.
type KV interface {
	FlagReader
	Set(ctx context.Context, key, value string) error
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
}

// CapabilityQuerier is satisfied by *biometric.Resolver.
type CapabilityQuerier interface {
	Query(ctx context.Context) models.BiometricCapability
}

// Prompter is satisfied by *biometric.Authenticator.
type Prompter interface {
	Authenticate(ctx context.Context, opts biometric.PromptOptions) models.Outcome
	InFlight() bool
}

// CredentialDestroyer is satisfied by *credential.Manager.
type CredentialDestroyer interface {
	Destroy(ctx context.Context) error
}

// Prompts holds the consent prompt shown when enabling each flag.
type Prompts map[models.PolicyFlag]biometric.PromptOptions

// DefaultPrompts returns the stock English consent prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		models.FlagAppLock: {
			Message:     "Confirm to lock the app with biometrics",
			CancelLabel: "Cancel",
			Purpose:     "settings",
		},
		models.FlagBiometricLogin: {
			Message:     "Confirm to sign in with biometrics",
			CancelLabel: "Cancel",
			Purpose:     "settings",
		},
		models.FlagTransferStepUp: {
			Message:     "Confirm to require biometrics for transfers",
			CancelLabel: "Cancel",
			Purpose:     "settings",
		},
	}
}

// Toggle is the settings-screen view of one flag.
type Toggle struct {
	Flag           models.PolicyFlag `json:"flag"`
	Enabled        bool              `json:"enabled"`
	Disabled       bool              `json:"disabled"`
	DisabledReason string            `json:"disabled_reason,omitempty"`
}

// Reasons a toggle is not interactive.
const (
	ReasonCapabilityUnavailable = "capability_unavailable"
	ReasonPromptInFlight        = "prompt_in_flight"
)

// ReadFlag reads one flag. A missing value means disabled.
func ReadFlag(ctx context.Context, kv FlagReader, flag models.PolicyFlag) (bool, error) {
	raw, err := kv.Get(ctx, flag.VaultKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", flag, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", flag, err)
	}
	return v, nil
}

// Store reads and writes the LockPolicy record.
type Store struct {
	mu       sync.Mutex
	kv       KV
	resolver CapabilityQuerier
	auth     Prompter
	creds    CredentialDestroyer
	audit    audit.Recorder
	prompts  Prompts
	log      zerolog.Logger
}

// NewStore wires a Store. rec may be nil.
func NewStore(kv KV, resolver CapabilityQuerier, auth Prompter, creds CredentialDestroyer, rec audit.Recorder) *Store {
	if rec == nil {
		rec = audit.Discard{}
	}
	return &Store{
		kv:       kv,
		resolver: resolver,
		auth:     auth,
		creds:    creds,
		audit:    rec,
		prompts:  DefaultPrompts(),
		log:      log.With().Str("component", "policy").Logger(),
	}
}

// SetPrompts overrides consent prompts; flags not in p keep their default.
func (s *Store) SetPrompts(p Prompts) {
	for f, opts := range p {
		s.prompts[f] = opts
	}
}

// Load reads all three flags in one pass. Nothing is cached.
func (s *Store) Load(ctx context.Context) (models.LockPolicy, error) {
	keys := make([]string, len(models.AllFlags))
	for i, f := range models.AllFlags {
		keys[i] = f.VaultKey()
	}
	raw, err := s.kv.MultiGet(ctx, keys)
	if err != nil {
		return models.LockPolicy{}, fmt.Errorf("loading lock policy: %w", err)
	}
	var p models.LockPolicy
	for _, f := range models.AllFlags {
		v, ok := raw[f.VaultKey()]
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return models.LockPolicy{}, fmt.Errorf("decoding %s: %w", f, err)
		}
		p = p.Set(f, b)
	}
	return p, nil
}

// SetFlag changes one flag.
//
// Disabling persists immediately; disabling biometric login also destroys
// the credential record, and if that fails the flag is restored.
// Enabling requires capability and a successful consent prompt; on any
// other outcome the flag keeps its value and the outcome's error is returned.
func (s *Store) SetFlag(ctx context.Context, flag models.PolicyFlag, enabled bool) error {
	if !enabled {
		return s.disable(ctx, flag)
	}

	// Capability is checked even for a flag that is already on.
	if !s.resolver.Query(ctx).Satisfied() {
		s.reject(ctx, flag, models.ErrCapabilityUnavailable)
		return models.ErrCapabilityUnavailable
	}

	current, err := ReadFlag(ctx, s.kv, flag)
	if err != nil {
		return err
	}
	if current {
		return nil
	}

	out := s.auth.Authenticate(ctx, s.prompts[flag])
	if err := out.Err(); err != nil {
		if !errors.Is(err, models.ErrBusy) {
			s.reject(ctx, flag, err)
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, flag.VaultKey(), "true"); err != nil {
		return fmt.Errorf("persisting %s: %w", flag, err)
	}
	s.log.Info().Str("flag", string(flag)).Msg("policy enabled")
	s.audit.Record(ctx, &models.AuditEntry{Event: models.EventPolicyChanged, Subject: string(flag), Outcome: "enabled"})
	return nil
}

func (s *Store) disable(ctx context.Context, flag models.PolicyFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, err := ReadFlag(ctx, s.kv, flag)
	if err != nil {
		// A corrupt flag is still disabled by overwriting it.
		s.log.Warn().Err(err).Str("flag", string(flag)).Msg("prior value unreadable")
	}
	if err := s.kv.Set(ctx, flag.VaultKey(), "false"); err != nil {
		return fmt.Errorf("persisting %s: %w", flag, err)
	}

	if flag == models.FlagBiometricLogin {
		if err := s.creds.Destroy(ctx); err != nil {
			if rerr := s.kv.Set(ctx, flag.VaultKey(), strconv.FormatBool(prior)); rerr != nil {
				s.log.Error().Err(rerr).Str("flag", string(flag)).Msg("reverting flag after failed credential delete")
			}
			return fmt.Errorf("destroying credential record: %w", err)
		}
	}

	s.log.Info().Str("flag", string(flag)).Msg("policy disabled")
	s.audit.Record(ctx, &models.AuditEntry{Event: models.EventPolicyChanged, Subject: string(flag), Outcome: "disabled"})
	return nil
}

func (s *Store) reject(ctx context.Context, flag models.PolicyFlag, err error) {
	s.log.Info().Err(err).Str("flag", string(flag)).Msg("policy enable rejected")
	s.audit.Record(ctx, &models.AuditEntry{Event: models.EventPolicyRejected, Subject: string(flag), Outcome: err.Error()})
}

// Toggles builds the settings view. A toggle is disabled while a prompt is
// showing, and an off toggle is disabled while capability is unmet. An on
// toggle stays switchable off so a user is never trapped.
func (s *Store) Toggles(ctx context.Context) ([]Toggle, error) {
	p, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	capable := s.resolver.Query(ctx).Satisfied()
	busy := s.auth.InFlight()

	toggles := make([]Toggle, 0, len(models.AllFlags))
	for _, f := range models.AllFlags {
		t := Toggle{Flag: f, Enabled: p.Get(f)}
		switch {
		case busy:
			t.Disabled, t.DisabledReason = true, ReasonPromptInFlight
		case !capable && !t.Enabled:
			t.Disabled, t.DisabledReason = true, ReasonCapabilityUnavailable
		}
		toggles = append(toggles, t)
	}
	return toggles, nil
}
