package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/org/applock/pkg/models"
)

// exerciseBackend runs the contract every Backend must honor.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := b.Set(ctx, "policy.app_lock", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := b.Set(ctx, "policy.app_lock", "false"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, err := b.Get(ctx, "policy.app_lock")
	if err != nil || v != "false" {
		t.Fatalf("Get = %q, %v; want false", v, err)
	}

	if err := b.MultiSet(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("MultiSet: %v", err)
	}
	got, err := b.MultiGet(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("MultiGet: %v", err)
	}
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Errorf("MultiGet = %v", got)
	}
	if _, ok := got["c"]; ok {
		t.Error("missing key should be omitted from MultiGet")
	}

	if err := b.Remove(ctx, "a", "never-existed"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := b.Remove(ctx, "a"); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if _, err := b.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected a to be removed, got %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute)
	for i, ev := range []string{models.EventPolicyChanged, models.EventLockUnlocked, models.EventPolicyChanged} {
		e := &models.AuditEntry{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Event:     ev,
			Subject:   "app_lock",
			Metadata:  map[string]any{"n": float64(i)},
		}
		if err := b.WriteAuditEntry(ctx, e); err != nil {
			t.Fatalf("WriteAuditEntry: %v", err)
		}
		if e.ID == 0 {
			t.Error("expected audit entry id to be assigned")
		}
	}
	entries, err := b.QueryAuditLog(ctx, AuditFilter{Event: models.EventPolicyChanged})
	if err != nil {
		t.Fatalf("QueryAuditLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 policy entries, got %d", len(entries))
	}
	if entries[0].ID < entries[1].ID {
		t.Error("expected newest entry first")
	}
	if entries[0].Metadata["n"] != float64(2) {
		t.Errorf("metadata not round-tripped: %v", entries[0].Metadata)
	}
	page, _ := b.QueryAuditLog(ctx, AuditFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Event != models.EventLockUnlocked {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()
	exerciseBackend(t, b)
}

func TestSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	b, err := NewSQLiteBackend(context.Background(), path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	defer b.Close()
	exerciseBackend(t, b)
}

func TestSQLiteBackendPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")
	b, err := NewSQLiteBackend(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	if err := b.Set(ctx, "policy.app_lock", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b.Close()

	reopened, err := NewSQLiteBackend(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	v, err := reopened.Get(ctx, "policy.app_lock")
	if err != nil || v != "true" {
		t.Errorf("after reopen Get = %q, %v", v, err)
	}
}
