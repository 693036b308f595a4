// Package postgres implements the storage interface on PostgreSQL via
// pgx. It is the backend for shared deployments where several operators
// read the same backlog; the import path itself is still serialized by
// the caller.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/EngSayh/backsync/internal/storage"
	"github.com/EngSayh/backsync/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS issues (
    key TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    priority TEXT NOT NULL DEFAULT 'unspecified',
    status TEXT NOT NULL DEFAULT 'open',
    category TEXT NOT NULL DEFAULT 'other',
    effort TEXT NOT NULL DEFAULT 'unspecified',
    file TEXT NOT NULL DEFAULT 'Doc-only',
    line_start INTEGER,
    line_end INTEGER,
    source_ref TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    first_seen_at TIMESTAMPTZ NOT NULL,
    last_seen_at TIMESTAMPTZ NOT NULL,
    status_history JSONB NOT NULL DEFAULT '[]',
    content_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_file ON issues(file);

CREATE TABLE IF NOT EXISTS batches (
    session_id TEXT PRIMARY KEY,
    ran_at TIMESTAMPTZ NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    created INTEGER NOT NULL DEFAULT 0,
    updated INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    category_counts JSONB NOT NULL DEFAULT '{}',
    priority_counts JSONB NOT NULL DEFAULT '{}'
);
`

// PostgresStore implements storage.Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*PostgresStore)(nil)

// New connects to dsn, pings, and ensures the schema exists.
func New(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) GetIssue(ctx context.Context, key string) (*types.Issue, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT key, title, priority, status, category, effort,
		       file, line_start, line_end, source_ref, session_id,
		       first_seen_at, last_seen_at, status_history, content_hash
		FROM issues WHERE key = $1`, key)

	is, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	return is, nil
}

func (p *PostgresStore) UpsertIssue(ctx context.Context, issue *types.Issue) error {
	history, err := json.Marshal(issue.StatusHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal status history: %w", err)
	}

	var lineStart, lineEnd *int
	if issue.Location.Lines != nil {
		lineStart, lineEnd = &issue.Location.Lines[0], &issue.Location.Lines[1]
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO issues (key, title, priority, status, category, effort,
		    file, line_start, line_end, source_ref, session_id,
		    first_seen_at, last_seen_at, status_history, content_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (key) DO UPDATE SET
		    title = EXCLUDED.title,
		    priority = EXCLUDED.priority,
		    status = EXCLUDED.status,
		    category = EXCLUDED.category,
		    effort = EXCLUDED.effort,
		    file = EXCLUDED.file,
		    line_start = EXCLUDED.line_start,
		    line_end = EXCLUDED.line_end,
		    source_ref = EXCLUDED.source_ref,
		    session_id = EXCLUDED.session_id,
		    last_seen_at = EXCLUDED.last_seen_at,
		    status_history = EXCLUDED.status_history,
		    content_hash = EXCLUDED.content_hash`,
		issue.Key, issue.Title, string(issue.Priority), string(issue.Status),
		string(issue.Category), string(issue.Effort),
		issue.Location.File, lineStart, lineEnd,
		issue.SourceRef, issue.SessionID,
		issue.FirstSeenAt, issue.LastSeenAt, history, issue.ContentHash)
	if err != nil {
		return fmt.Errorf("failed to upsert issue %s: %w", issue.Key, err)
	}
	return nil
}

func (p *PostgresStore) ListIssues(ctx context.Context, filter storage.Filter) ([]*types.Issue, error) {
	query := `
		SELECT key, title, priority, status, category, effort,
		       file, line_start, line_end, source_ref, session_id,
		       first_seen_at, last_seen_at, status_history, content_hash
		FROM issues WHERE 1=1`
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.Status != "" {
		add(" AND status = $%d", string(filter.Status))
	}
	if filter.Category != "" {
		add(" AND category = $%d", string(filter.Category))
	}
	if filter.Priority != "" {
		add(" AND priority = $%d", string(filter.Priority))
	}
	if filter.File != "" {
		add(" AND file = $%d", filter.File)
	}
	query += " ORDER BY key"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var out []*types.Issue
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func (p *PostgresStore) SaveBatch(ctx context.Context, batch *types.Batch) error {
	catCounts, err := json.Marshal(batch.CategoryCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal category counts: %w", err)
	}
	priCounts, err := json.Marshal(batch.PriorityCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal priority counts: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO batches (session_id, ran_at, source, created, updated, skipped, errors,
		    category_counts, priority_counts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (session_id) DO UPDATE SET
		    ran_at = EXCLUDED.ran_at,
		    source = EXCLUDED.source,
		    created = EXCLUDED.created,
		    updated = EXCLUDED.updated,
		    skipped = EXCLUDED.skipped,
		    errors = EXCLUDED.errors,
		    category_counts = EXCLUDED.category_counts,
		    priority_counts = EXCLUDED.priority_counts`,
		batch.SessionID, batch.RanAt, batch.Source,
		batch.Created, batch.Updated, batch.Skipped, batch.Errors,
		catCounts, priCounts)
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", batch.SessionID, err)
	}
	return nil
}

func (p *PostgresStore) ListBatches(ctx context.Context, limit int) ([]*types.Batch, error) {
	query := `
		SELECT session_id, ran_at, source, created, updated, skipped, errors,
		       category_counts, priority_counts
		FROM batches ORDER BY ran_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []*types.Batch
	for rows.Next() {
		var b types.Batch
		var catCounts, priCounts []byte
		if err := rows.Scan(&b.SessionID, &b.RanAt, &b.Source,
			&b.Created, &b.Updated, &b.Skipped, &b.Errors,
			&catCounts, &priCounts); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if err := json.Unmarshal(catCounts, &b.CategoryCounts); err != nil {
			return nil, fmt.Errorf("failed to parse category counts: %w", err)
		}
		if err := json.Unmarshal(priCounts, &b.PriorityCounts); err != nil {
			return nil, fmt.Errorf("failed to parse priority counts: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func scanIssue(row pgx.Row) (*types.Issue, error) {
	var is types.Issue
	var priority, status, category, effort string
	var lineStart, lineEnd *int
	var history []byte

	err := row.Scan(&is.Key, &is.Title, &priority, &status, &category, &effort,
		&is.Location.File, &lineStart, &lineEnd, &is.SourceRef, &is.SessionID,
		&is.FirstSeenAt, &is.LastSeenAt, &history, &is.ContentHash)
	if err != nil {
		return nil, err
	}

	is.Priority = types.Priority(priority)
	is.Status = types.Status(status)
	is.Category = types.Category(category)
	is.Effort = types.Effort(effort)

	if lineStart != nil && lineEnd != nil {
		lines := [2]int{*lineStart, *lineEnd}
		is.Location.Lines = &lines
	}
	if err := json.Unmarshal(history, &is.StatusHistory); err != nil {
		return nil, fmt.Errorf("bad status_history: %w", err)
	}
	return &is, nil
}
