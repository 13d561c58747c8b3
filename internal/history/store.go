// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history keeps an SQLite audit trail of sync runs and publish
// attempts. Change detection never reads it; the per-destination state files
// stay authoritative.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Run is one sync invocation.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	DryRun     bool      `json:"dry_run"`
	Completed  int       `json:"completed"`
	Partial    int       `json:"partially_failed"`
	Failed     int       `json:"failed"`
}

// Publish is one attempt to deliver a notebook to a destination.
type Publish struct {
	RunID       string    `json:"run_id"`
	NotebookID  string    `json:"notebook_id"`
	Title       string    `json:"title"`
	Destination string    `json:"destination"`
	Fingerprint string    `json:"fingerprint"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Open opens or creates the database at path and its schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			dry_run INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			partial INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS publishes (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			notebook_id TEXT NOT NULL,
			title TEXT NOT NULL,
			destination TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			success INTEGER NOT NULL,
			error TEXT,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_publishes_run_id ON publishes(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_publishes_notebook ON publishes(notebook_id, destination)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}

// StartRun inserts a run row and returns its new ID.
func (s *Store) StartRun(ctx context.Context, dryRun bool) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, dry_run) VALUES (?, ?, ?)`,
		id, formatTime(s.now()), dryRun)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's end time and outcome counts.
func (s *Store) FinishRun(ctx context.Context, id string, completed, partial, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, completed = ?, partial = ?, failed = ? WHERE id = ?`,
		formatTime(s.now()), completed, partial, failed, id)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// RecordPublish appends one publish attempt. A zero At is set to now.
func (s *Store) RecordPublish(ctx context.Context, p Publish) error {
	if p.At.IsZero() {
		p.At = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publishes (run_id, notebook_id, title, destination, fingerprint, success, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RunID, p.NotebookID, p.Title, p.Destination, p.Fingerprint, p.Success, p.Error, formatTime(p.At))
	if err != nil {
		return fmt.Errorf("recording publish: %w", err)
	}
	return nil
}

// Recent returns up to limit publish attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Publish, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, notebook_id, title, destination, fingerprint, success, error, at
		 FROM publishes ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying publishes: %w", err)
	}
	defer rows.Close()

	var out []Publish
	for rows.Next() {
		var p Publish
		var errText, at sql.NullString
		if err := rows.Scan(&p.RunID, &p.NotebookID, &p.Title, &p.Destination, &p.Fingerprint, &p.Success, &errText, &at); err != nil {
			return nil, fmt.Errorf("scanning publish: %w", err)
		}
		p.Error = errText.String
		p.At = parseTime(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, dry_run, completed, partial, failed
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started, finished sql.NullString
		if err := rows.Scan(&r.ID, &started, &finished, &r.DryRun, &r.Completed, &r.Partial, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
