package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool the journal needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS action_log (
    id         UUID PRIMARY KEY,
    action     TEXT        NOT NULL,
    job_id     TEXT        NOT NULL,
    applied    BOOLEAN     NOT NULL,
    warning    TEXT        NOT NULL DEFAULT '',
    error      TEXT        NOT NULL DEFAULT '',
    payload    JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS action_log_created_at_idx ON action_log (created_at DESC);`

// Postgres stores entries in the action_log table.
type Postgres struct {
	db DBTX
}

// NewPostgres returns a Postgres journal. Call Migrate once at startup.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the action_log table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("journal migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, e Entry) error {
	stamp(&e, time.Now())
	var payload any
	if len(e.Payload) > 0 {
		payload = string(e.Payload)
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO action_log (id, action, job_id, applied, warning, error, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		e.ID, e.Action, e.JobID, e.Applied, e.Warning, e.Error, payload, e.At,
	)
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries (at most MaxLimit), newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = clampLimit(limit)
	rows, err := p.db.Query(ctx,
		`SELECT id, action, job_id, applied, warning, error, COALESCE(payload::text, ''), created_at
		 FROM action_log
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal recent query: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, min(limit, DefaultLimit))
	for rows.Next() {
		var (
			e       Entry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.JobID, &e.Applied, &e.Warning, &e.Error, &payload, &e.At); err != nil {
			return nil, fmt.Errorf("journal recent scan: %w", err)
		}
		if payload != "" {
			e.Payload = []byte(payload)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal recent rows: %w", err)
	}
	return entries, nil
}
