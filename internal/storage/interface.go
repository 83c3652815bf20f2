package storage

import (
	"context"
	"errors"
	"time"

	"github.com/org/applock/pkg/models"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// Backend is the secure key/value store consumed by the vault. Values are
// opaque strings; confidentiality is added one layer up.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// MultiGet omits keys that do not exist.
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
	// MultiSet writes all pairs or none.
	MultiSet(ctx context.Context, pairs map[string]string) error
	// Remove is idempotent; missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error

	// Audit
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	Close()
}

// AuditFilter specifies query parameters for audit log retrieval.
type AuditFilter struct {
	Event  string
	Since  *time.Time
	Limit  int
	Offset int
}

// EffectiveLimit applies the default page size.
func (f AuditFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 100
	}
	return f.Limit
}
