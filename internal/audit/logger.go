package audit

import (
	"context"
	"time"

	"github.com/org/applock/internal/storage"
	"github.com/org/applock/pkg/models"
	"github.com/rs/zerolog/log"
)

// Recorder is what gate components need to leave an audit trail.
type Recorder interface {
	Record(ctx context.Context, entry *models.AuditEntry)
}

// Logger writes audit entries to the backend and mirrors them to the log.
type Logger struct {
	store storage.Backend
}

// NewLogger creates an audit Logger.
func NewLogger(store storage.Backend) *Logger {
	return &Logger{store: store}
}

// Record stores an entry. Identities and tokens must NEVER be passed here.
func (l *Logger) Record(ctx context.Context, entry *models.AuditEntry) {
	entry.Timestamp = time.Now().UTC()
	log.Info().
		Str("component", "audit").
		Str("event", entry.Event).
		Str("subject", entry.Subject).
		Str("outcome", entry.Outcome).
		Msg(entry.Detail)
	// Audit failures must not change gate decisions.
	if err := l.store.WriteAuditEntry(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Str("component", "audit").Msg("writing audit entry")
	}
}

// Query retrieves paginated audit log entries.
func (l *Logger) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error) {
	return l.store.QueryAuditLog(ctx, filter)
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Record(context.Context, *models.AuditEntry) {}
