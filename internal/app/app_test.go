package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/org/applock/internal/biometric"
	"github.com/org/applock/internal/config"
	"github.com/org/applock/internal/lock"
	"github.com/org/applock/internal/vault"
	"github.com/org/applock/pkg/models"
)

func memoryConfig() config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverMemory
	return cfg
}

func waitPhase(t *testing.T, a *App, p lock.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for a.Lock.State().Phase != p {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, at %s", p, a.Lock.State().Phase)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewWiresSimulator(t *testing.T) {
	sim := biometric.NewSimulator(biometric.EnrolledDevice())
	a, err := New(context.Background(), memoryConfig(), sim)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Simulator != sim {
		t.Error("simulator should be exposed")
	}
	waitPhase(t, a, lock.PhaseUnlocked)
}

func TestSetFlagReevaluatesLock(t *testing.T) {
	cfg := memoryConfig()
	cfg.Prompts.AppLock.Message = "Turn on app lock?"
	sim := biometric.NewSimulator(biometric.EnrolledDevice())
	a, err := New(context.Background(), cfg, sim)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	ctx := context.Background()
	waitPhase(t, a, lock.PhaseUnlocked)

	if err := a.SetFlag(ctx, models.FlagAppLock, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if sim.LastPrompt().Message != "Turn on app lock?" {
		t.Errorf("configured consent copy not used: %q", sim.LastPrompt().Message)
	}

	// Enabled takes effect on the next foreground.
	a.Lock.Lifecycle(models.AppBackground)
	a.Lock.Lifecycle(models.AppActive)
	waitPhase(t, a, lock.PhaseLocked)

	// Disabling releases the lock immediately.
	if err := a.SetFlag(ctx, models.FlagAppLock, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	waitPhase(t, a, lock.PhaseUnlocked)
}

func TestSQLiteStatePersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.SQLitePath = filepath.Join(dir, "applock.db")
	cfg.Vault.MasterKeyFile = filepath.Join(dir, "applock.key")
	ctx := context.Background()

	a, err := New(ctx, cfg, biometric.NewSimulator(biometric.EnrolledDevice()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.SetFlag(ctx, models.FlagAppLock, true); err != nil {
		t.Fatal(err)
	}
	a.Close()

	a, err = New(ctx, cfg, biometric.NewSimulator(biometric.EnrolledDevice()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer a.Close()
	waitPhase(t, a, lock.PhaseLocked)
}

func TestClosedAppFailsClosed(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), biometric.NewSimulator(biometric.EnrolledDevice()))
	if err != nil {
		t.Fatal(err)
	}
	a.Close()
	if _, err := a.Vault.Get(context.Background(), models.FlagAppLock.VaultKey()); !errors.Is(err, vault.ErrSealed) {
		t.Errorf("expected ErrSealed after close, got %v", err)
	}
}
