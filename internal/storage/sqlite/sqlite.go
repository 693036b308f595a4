// Package sqlite implements the storage interface on an embedded SQLite
// database via the ncruces/go-sqlite3 driver (pure Go, WASM build of
// SQLite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

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
    first_seen_at TEXT NOT NULL,
    last_seen_at TEXT NOT NULL,
    status_history TEXT NOT NULL DEFAULT '[]',
    content_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
CREATE INDEX IF NOT EXISTS idx_issues_category ON issues(category);
CREATE INDEX IF NOT EXISTS idx_issues_priority ON issues(priority);
CREATE INDEX IF NOT EXISTS idx_issues_file ON issues(file);

CREATE TABLE IF NOT EXISTS batches (
    session_id TEXT PRIMARY KEY,
    ran_at TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    created INTEGER NOT NULL DEFAULT 0,
    updated INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    errors INTEGER NOT NULL DEFAULT 0,
    category_counts TEXT NOT NULL DEFAULT '{}',
    priority_counts TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_batches_ran_at ON batches(ran_at);
`

// timeFormat is how timestamps are stored. TEXT columns keep the database
// portable across drivers; parsing happens in Go.
const timeFormat = time.RFC3339Nano

// SQLiteStore implements storage.Store on a single database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ storage.Store = (*SQLiteStore)(nil)

// New opens (and if needed creates) the database at path.
func New(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps upserts serialized without busy retries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, key string) (*types.Issue, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, title, priority, status, category, effort,
		       file, line_start, line_end, source_ref, session_id,
		       first_seen_at, last_seen_at, status_history, content_hash
		FROM issues WHERE key = ?`, key)

	is, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	return is, nil
}

func (s *SQLiteStore) UpsertIssue(ctx context.Context, issue *types.Issue) error {
	history, err := json.Marshal(issue.StatusHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal status history: %w", err)
	}

	var lineStart, lineEnd sql.NullInt64
	if issue.Location.Lines != nil {
		lineStart = sql.NullInt64{Int64: int64(issue.Location.Lines[0]), Valid: true}
		lineEnd = sql.NullInt64{Int64: int64(issue.Location.Lines[1]), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO issues (key, title, priority, status, category, effort,
		    file, line_start, line_end, source_ref, session_id,
		    first_seen_at, last_seen_at, status_history, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		    title = excluded.title,
		    priority = excluded.priority,
		    status = excluded.status,
		    category = excluded.category,
		    effort = excluded.effort,
		    file = excluded.file,
		    line_start = excluded.line_start,
		    line_end = excluded.line_end,
		    source_ref = excluded.source_ref,
		    session_id = excluded.session_id,
		    last_seen_at = excluded.last_seen_at,
		    status_history = excluded.status_history,
		    content_hash = excluded.content_hash`,
		issue.Key, issue.Title, string(issue.Priority), string(issue.Status),
		string(issue.Category), string(issue.Effort),
		issue.Location.File, lineStart, lineEnd,
		issue.SourceRef, issue.SessionID,
		issue.FirstSeenAt.UTC().Format(timeFormat),
		issue.LastSeenAt.UTC().Format(timeFormat),
		string(history), issue.ContentHash)
	if err != nil {
		return fmt.Errorf("failed to upsert issue %s: %w", issue.Key, err)
	}
	return nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter storage.Filter) ([]*types.Issue, error) {
	query := `
		SELECT key, title, priority, status, category, effort,
		       file, line_start, line_end, source_ref, session_id,
		       first_seen_at, last_seen_at, status_history, content_hash
		FROM issues WHERE 1=1`
	var args []interface{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
	}
	if filter.Priority != "" {
		query += " AND priority = ?"
		args = append(args, string(filter.Priority))
	}
	if filter.File != "" {
		query += " AND file = ?"
		args = append(args, filter.File)
	}
	query += " ORDER BY key"

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) SaveBatch(ctx context.Context, batch *types.Batch) error {
	catCounts, err := json.Marshal(batch.CategoryCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal category counts: %w", err)
	}
	priCounts, err := json.Marshal(batch.PriorityCounts)
	if err != nil {
		return fmt.Errorf("failed to marshal priority counts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (session_id, ran_at, source, created, updated, skipped, errors,
		    category_counts, priority_counts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
		    ran_at = excluded.ran_at,
		    source = excluded.source,
		    created = excluded.created,
		    updated = excluded.updated,
		    skipped = excluded.skipped,
		    errors = excluded.errors,
		    category_counts = excluded.category_counts,
		    priority_counts = excluded.priority_counts`,
		batch.SessionID, batch.RanAt.UTC().Format(timeFormat), batch.Source,
		batch.Created, batch.Updated, batch.Skipped, batch.Errors,
		string(catCounts), string(priCounts))
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", batch.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]*types.Batch, error) {
	query := `
		SELECT session_id, ran_at, source, created, updated, skipped, errors,
		       category_counts, priority_counts
		FROM batches ORDER BY ran_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var out []*types.Batch
	for rows.Next() {
		var b types.Batch
		var ranAt, catCounts, priCounts string
		if err := rows.Scan(&b.SessionID, &ranAt, &b.Source,
			&b.Created, &b.Updated, &b.Skipped, &b.Errors,
			&catCounts, &priCounts); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if b.RanAt, err = time.Parse(timeFormat, ranAt); err != nil {
			return nil, fmt.Errorf("failed to parse batch time: %w", err)
		}
		if err := json.Unmarshal([]byte(catCounts), &b.CategoryCounts); err != nil {
			return nil, fmt.Errorf("failed to parse category counts: %w", err)
		}
		if err := json.Unmarshal([]byte(priCounts), &b.PriorityCounts); err != nil {
			return nil, fmt.Errorf("failed to parse priority counts: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row scanner) (*types.Issue, error) {
	var is types.Issue
	var priority, status, category, effort string
	var lineStart, lineEnd sql.NullInt64
	var firstSeen, lastSeen, history string

	err := row.Scan(&is.Key, &is.Title, &priority, &status, &category, &effort,
		&is.Location.File, &lineStart, &lineEnd, &is.SourceRef, &is.SessionID,
		&firstSeen, &lastSeen, &history, &is.ContentHash)
	if err != nil {
		return nil, err
	}

	is.Priority = types.Priority(priority)
	is.Status = types.Status(status)
	is.Category = types.Category(category)
	is.Effort = types.Effort(effort)

	if lineStart.Valid && lineEnd.Valid {
		lines := [2]int{int(lineStart.Int64), int(lineEnd.Int64)}
		is.Location.Lines = &lines
	}
	if is.FirstSeenAt, err = time.Parse(timeFormat, firstSeen); err != nil {
		return nil, fmt.Errorf("bad first_seen_at: %w", err)
	}
	if is.LastSeenAt, err = time.Parse(timeFormat, lastSeen); err != nil {
		return nil, fmt.Errorf("bad last_seen_at: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &is.StatusHistory); err != nil {
		return nil, fmt.Errorf("bad status_history: %w", err)
	}
	return &is, nil
}
