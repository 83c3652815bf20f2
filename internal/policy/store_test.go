package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/org/applock/internal/audit"
	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/crypto"
	"github.com/org/applock/internal/storage"
	"github.com/org/applock/internal/vault"
	"github.com/org/applock/pkg/models"
)

// fakeCreds stands in for the credential manager.
type fakeCreds struct {
	present  bool
	destroys int
	err      error
}

func (f *fakeCreds) Destroy(context.Context) error {
	f.destroys++
	if f.err != nil {
		return f.err
	}
	f.present = false
	return nil
}

type fixture struct {
	store   *Store
	vault   *vault.Vault
	sim     *biometric.Simulator
	auth    *biometric.Authenticator
	creds   *fakeCreds
	backend *storage.MemoryBackend
}

func newFixture(t *testing.T, c biometric.PlatformCapability) *fixture {
	t.Helper()
	master, _ := crypto.GenerateMasterKey()
	backend := storage.NewMemoryBackend()
	v, err := vault.Open(backend, master)
	if err != nil {
		t.Fatal(err)
	}
	sim := biometric.NewSimulator(c)
	auth := biometric.NewAuthenticator(sim)
	creds := &fakeCreds{}
	s := NewStore(v, biometric.NewResolver(sim), auth, creds, audit.NewLogger(backend))
	return &fixture{store: s, vault: v, sim: sim, auth: auth, creds: creds, backend: backend}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fixture) flag(t *testing.T, flag models.PolicyFlag) bool {
	t.Helper()
	v, err := ReadFlag(context.Background(), f.vault, flag)
	if err != nil {
		t.Fatalf("ReadFlag: %v", err)
	}
	return v
}

func TestLoadDefaultsToDisabled(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	p, err := f.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p != (models.LockPolicy{}) {
		t.Errorf("expected all flags off, got %+v", p)
	}
}

func TestEnableRequiresSuccessfulPrompt(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()

	if err := f.store.SetFlag(ctx, models.FlagAppLock, true); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}
	if !f.flag(t, models.FlagAppLock) {
		t.Error("app lock should be enabled")
	}
	if f.sim.Prompts() != 1 {
		t.Errorf("expected one consent prompt, got %d", f.sim.Prompts())
	}
	if f.sim.LastPrompt().Message != DefaultPrompts()[models.FlagAppLock].Message {
		t.Errorf("unexpected prompt message %q", f.sim.LastPrompt().Message)
	}

	// Already on: no second prompt.
	if err := f.store.SetFlag(ctx, models.FlagAppLock, true); err != nil {
		t.Fatalf("SetFlag again: %v", err)
	}
	if f.sim.Prompts() != 1 {
		t.Errorf("re-enabling should not prompt, got %d prompts", f.sim.Prompts())
	}
}

func TestEnableWithoutEnrollmentFails(t *testing.T) {
	cases := []biometric.PlatformCapability{
		{HasHardware: true, IsEnrolled: false, ModalityCodes: []int{biometric.CodeFace}},
		{HasHardware: false, IsEnrolled: false},
	}
	for _, c := range cases {
		for _, flag := range models.AllFlags {
			f := newFixture(t, c)
			err := f.store.SetFlag(context.Background(), flag, true)
			if !errors.Is(err, models.ErrCapabilityUnavailable) {
				t.Errorf("%s with %+v: expected ErrCapabilityUnavailable, got %v", flag, c, err)
			}
			if f.flag(t, flag) {
				t.Errorf("%s should remain disabled", flag)
			}
			if f.sim.Prompts() != 0 {
				t.Errorf("no prompt should be shown without capability")
			}
		}
	}
}

func TestEnableAlreadyOnFlagAfterEnrollmentLoss(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	if err := f.store.SetFlag(ctx, models.FlagAppLock, true); err != nil {
		t.Fatalf("SetFlag: %v", err)
	}

	f.sim.SetCapability(biometric.PlatformCapability{HasHardware: true, IsEnrolled: false})
	err := f.store.SetFlag(ctx, models.FlagAppLock, true)
	if !errors.Is(err, models.ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
	if !f.flag(t, models.FlagAppLock) {
		t.Error("flag should keep its previous value")
	}
	if f.sim.Prompts() != 1 {
		t.Errorf("expected no extra prompt, got %d prompts", f.sim.Prompts())
	}
}

func TestEnableKeepsPriorValueOnFailedPrompt(t *testing.T) {
	cases := []struct {
		res  biometric.PromptResult
		want error
	}{
		{biometric.PromptResult{Error: biometric.ErrCodeUserCancel}, models.ErrUserCancel},
		{biometric.PromptResult{Error: biometric.ErrCodeSystemCancel}, models.ErrSystemCancel},
		{biometric.PromptResult{Error: biometric.ErrCodeLockout}, models.ErrAuthenticationFailure},
	}
	for _, tc := range cases {
		f := newFixture(t, biometric.EnrolledDevice())
		f.sim.Enqueue(tc.res)
		err := f.store.SetFlag(context.Background(), models.FlagTransferStepUp, true)
		if !errors.Is(err, tc.want) {
			t.Errorf("result %+v: expected %v, got %v", tc.res, tc.want, err)
		}
		if f.flag(t, models.FlagTransferStepUp) {
			t.Errorf("result %+v: flag must stay off", tc.res)
		}
	}
}

func TestEnableWhilePromptInFlightIsBusy(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	release := f.sim.Hold()
	defer release()

	done := make(chan models.Outcome, 1)
	go func() {
		done <- f.auth.Authenticate(context.Background(), biometric.PromptOptions{Purpose: "app_lock"})
	}()
	waitUntil(t, f.auth.InFlight)

	err := f.store.SetFlag(context.Background(), models.FlagAppLock, true)
	if !errors.Is(err, models.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if f.flag(t, models.FlagAppLock) {
		t.Error("flag must stay off while busy")
	}
	release()
	<-done
}

func TestDisableNeedsNoPrompt(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	f.store.SetFlag(ctx, models.FlagAppLock, true) //nolint:errcheck
	f.sim.SetCapability(biometric.PlatformCapability{})
	prompts := f.sim.Prompts()

	if err := f.store.SetFlag(ctx, models.FlagAppLock, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if f.flag(t, models.FlagAppLock) {
		t.Error("app lock should be disabled")
	}
	if f.sim.Prompts() != prompts {
		t.Error("disabling must not prompt")
	}
}

func TestDisableBiometricLoginDestroysCredential(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	f.store.SetFlag(ctx, models.FlagBiometricLogin, true) //nolint:errcheck
	f.creds.present = true

	if err := f.store.SetFlag(ctx, models.FlagBiometricLogin, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if f.creds.present || f.creds.destroys != 1 {
		t.Errorf("credential should be destroyed once, present=%v destroys=%d", f.creds.present, f.creds.destroys)
	}

	// Idempotent: disabling again still clears a (now absent) record.
	if err := f.store.SetFlag(ctx, models.FlagBiometricLogin, false); err != nil {
		t.Fatalf("second disable: %v", err)
	}
	if f.creds.destroys != 2 {
		t.Errorf("expected destroy on every disable, got %d", f.creds.destroys)
	}
}

func TestDisableBiometricLoginRevertsOnDestroyFailure(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	f.store.SetFlag(ctx, models.FlagBiometricLogin, true) //nolint:errcheck
	f.creds.present = true
	f.creds.err = errors.New("disk full")

	if err := f.store.SetFlag(ctx, models.FlagBiometricLogin, false); err == nil {
		t.Fatal("expected error when credential delete fails")
	}
	if !f.flag(t, models.FlagBiometricLogin) {
		t.Error("flag should revert to its prior value")
	}
}

func TestOtherFlagsDoNotTouchCredential(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	f.store.SetFlag(ctx, models.FlagAppLock, false)        //nolint:errcheck
	f.store.SetFlag(ctx, models.FlagTransferStepUp, false) //nolint:errcheck
	if f.creds.destroys != 0 {
		t.Errorf("unexpected credential destroy calls: %d", f.creds.destroys)
	}
}

func TestPolicyChangesAreAudited(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	f.store.SetFlag(ctx, models.FlagAppLock, true)  //nolint:errcheck
	f.store.SetFlag(ctx, models.FlagAppLock, false) //nolint:errcheck

	entries, _ := f.backend.QueryAuditLog(ctx, storage.AuditFilter{Event: models.EventPolicyChanged})
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Outcome != "disabled" || entries[1].Outcome != "enabled" {
		t.Errorf("unexpected audit order: %q, %q", entries[0].Outcome, entries[1].Outcome)
	}
}

func TestToggles(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	f.store.SetFlag(ctx, models.FlagBiometricLogin, true) //nolint:errcheck

	toggles, err := f.store.Toggles(ctx)
	if err != nil {
		t.Fatalf("Toggles: %v", err)
	}
	if len(toggles) != 3 {
		t.Fatalf("expected 3 toggles, got %d", len(toggles))
	}
	for _, tg := range toggles {
		if tg.Disabled {
			t.Errorf("%s should be interactive", tg.Flag)
		}
		if tg.Enabled != (tg.Flag == models.FlagBiometricLogin) {
			t.Errorf("%s enabled=%v", tg.Flag, tg.Enabled)
		}
	}

	f.sim.SetCapability(biometric.PlatformCapability{HasHardware: true})
	toggles, _ = f.store.Toggles(ctx)
	for _, tg := range toggles {
		switch tg.Flag {
		case models.FlagBiometricLogin:
			if tg.Disabled {
				t.Error("an enabled toggle must stay switchable off")
			}
		default:
			if !tg.Disabled || tg.DisabledReason != ReasonCapabilityUnavailable {
				t.Errorf("%s should be disabled for capability, got %+v", tg.Flag, tg)
			}
		}
	}
}

func TestTogglesDisabledWhilePromptInFlight(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	release := f.sim.Hold()
	done := make(chan struct{})
	go func() {
		f.auth.Authenticate(context.Background(), biometric.PromptOptions{})
		close(done)
	}()
	waitUntil(t, f.auth.InFlight)

	toggles, err := f.store.Toggles(context.Background())
	if err != nil {
		t.Fatalf("Toggles: %v", err)
	}
	for _, tg := range toggles {
		if !tg.Disabled || tg.DisabledReason != ReasonPromptInFlight {
			t.Errorf("%s should be disabled while prompting, got %+v", tg.Flag, tg)
		}
	}
	release()
	<-done
}

func TestReadFlagCorruptValue(t *testing.T) {
	f := newFixture(t, biometric.EnrolledDevice())
	ctx := context.Background()
	f.vault.Set(ctx, models.FlagAppLock.VaultKey(), "maybe") //nolint:errcheck
	if _, err := ReadFlag(ctx, f.vault, models.FlagAppLock); err == nil {
		t.Error("expected decode error")
	}
	if _, err := f.store.Load(ctx); err == nil {
		t.Error("Load should surface decode error")
	}
	// Disabling overwrites the corrupt value.
	if err := f.store.SetFlag(ctx, models.FlagAppLock, false); err != nil {
		t.Fatalf("disable corrupt flag: %v", err)
	}
	if f.flag(t, models.FlagAppLock) {
		t.Error("flag should now read false")
	}
}
