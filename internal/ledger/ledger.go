// Package ledger records reconciliation runs in SQLite so their outcomes can be
// listed after the in-memory job has expired.
package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Run is one recorded reconciliation.
type Run struct {
	ID                string    `json:"id"`
	ExecutionID       string    `json:"execution_id"`
	Status            string    `json:"status"`
	FieldsConsidered  int       `json:"fields_considered"`
	ArtifactsModified []string  `json:"artifacts_modified"`
	Unresolved        []string  `json:"unresolved"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Ledger persists runs.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	l := &Ledger{db: db, path: path}
	if err := l.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) initSchema(ctx context.Context) error {
	var tableExists int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return l.createSchema(ctx)
	}

	var version int
	if err := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, l.path)
	}
	return nil
}

func (l *Ledger) createSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Record inserts run, or replaces the stored copy when the id already exists.
// CreatedAt of an existing run is kept.
func (l *Ledger) Record(ctx context.Context, run Run) error {
	if run.ID == "" || run.ExecutionID == "" {
		return errors.New("run id and execution id are required")
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = now
	}
	modified, err := marshalList(run.ArtifactsModified)
	if err != nil {
		return fmt.Errorf("marshal modified: %w", err)
	}
	unresolved, err := marshalList(run.Unresolved)
	if err != nil {
		return fmt.Errorf("marshal unresolved: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, execution_id, status, fields_considered, artifacts_modified,
            unresolved, error, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            fields_considered = excluded.fields_considered,
            artifacts_modified = excluded.artifacts_modified,
            unresolved = excluded.unresolved,
            error = excluded.error,
            updated_at = excluded.updated_at`,
		run.ID,
		run.ExecutionID,
		run.Status,
		run.FieldsConsidered,
		modified,
		unresolved,
		nullableString(run.Error),
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
		run.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

const selectRun = `SELECT id, execution_id, status, fields_considered, artifacts_modified,
    unresolved, error, created_at, updated_at FROM runs`

// Get fetches a run by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Run, error) {
	row := l.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListByExecution returns the newest runs of an execution first. A limit of
// zero or less returns all of them.
func (l *Ledger) ListByExecution(ctx context.Context, executionID string, limit int) ([]Run, error) {
	query := selectRun + " WHERE execution_id = ? ORDER BY created_at DESC, id"
	args := []any{executionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run                  Run
		modified, unresolved string
		errText              sql.NullString
		created, updated     string
	)
	if err := s.Scan(&run.ID, &run.ExecutionID, &run.Status, &run.FieldsConsidered,
		&modified, &unresolved, &errText, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(modified), &run.ArtifactsModified); err != nil {
		return nil, fmt.Errorf("decode artifacts_modified: %w", err)
	}
	if err := json.Unmarshal([]byte(unresolved), &run.Unresolved); err != nil {
		return nil, fmt.Errorf("decode unresolved: %w", err)
	}
	run.Error = errText.String
	var err error
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &run, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
