package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/org/applock/pkg/models"
)

// PostgresBackend is a Backend backed by PostgreSQL. Used by shared
// emulator farms where several simulated devices share one database, each
// under its own namespace.
type PostgresBackend struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgresBackend opens a pgxpool connection and returns a ready backend.
func NewPostgresBackend(ctx context.Context, connStr, namespace string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if namespace == "" {
		namespace = "default"
	}
	return &PostgresBackend{pool: pool, namespace: namespace}, nil
}

func (p *PostgresBackend) Close() {
	p.pool.Close()
}

func (p *PostgresBackend) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM vault_kv WHERE namespace = $1 AND key = $2`,
		p.namespace, key,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

const pgUpsert = `INSERT INTO vault_kv (namespace, key, value, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`

func (p *PostgresBackend) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, pgUpsert, p.namespace, key, value)
	return err
}

func (p *PostgresBackend) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM vault_kv WHERE namespace = $1 AND key = ANY($2::text[])`,
		p.namespace, keys,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (p *PostgresBackend) MultiSet(ctx context.Context, pairs map[string]string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for k, v := range pairs {
		batch.Queue(pgUpsert, p.namespace, k, v)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresBackend) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx,
		`DELETE FROM vault_kv WHERE namespace = $1 AND key = ANY($2::text[])`,
		p.namespace, keys,
	)
	return err
}

func (p *PostgresBackend) WriteAuditEntry(ctx context.Context, e *models.AuditEntry) error {
	var meta []byte
	if e.Metadata != nil {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return err
		}
	}
	return p.pool.QueryRow(ctx,
		`INSERT INTO audit_log (namespace, timestamp, event, subject, outcome, detail, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.namespace, e.Timestamp, e.Event, e.Subject, e.Outcome, e.Detail, meta,
	).Scan(&e.ID)
}

func (p *PostgresBackend) QueryAuditLog(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	query := `SELECT id, timestamp, event, subject, outcome, detail, metadata
	          FROM audit_log WHERE namespace = $1`
	args := []any{p.namespace}
	if filter.Event != "" {
		args = append(args, filter.Event)
		query += fmt.Sprintf(" AND event = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	args = append(args, filter.EffectiveLimit(), filter.Offset)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Event, &e.Subject, &e.Outcome, &e.Detail, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decoding audit metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
