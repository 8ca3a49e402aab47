// Package history persists an audit trail of sync runs: one row per
// run with its counts and outcome, one row per field restriction the
// run discovered.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Run kinds.
const (
	KindSchema = "schema"
	KindData   = "data"
)

// Run is one recorded sync run.
type Run struct {
	ID           string        `json:"id"`
	Kind         string        `json:"kind"`
	Model        string        `json:"model,omitempty"`
	Added        int           `json:"added"`
	Modified     int           `json:"modified"`
	Deleted      int           `json:"deleted"`
	Unchanged    int           `json:"unchanged"`
	Fetched      int           `json:"fetched"`
	Upserted     int           `json:"upserted"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	DurationMS   int64         `json:"duration_ms"`
	StartedAt    string        `json:"started_at"`
	Restrictions []Restriction `json:"restrictions,omitempty"`
}

// Restriction is one field the source system refused to serve during a
// run.
type Restriction struct {
	FieldName string `json:"field_name"`
	Reason    string `json:"reason"`
	Offset    int    `json:"discovered_at_offset"`
}

// Store records sync runs in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the history database at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			model       TEXT,
			added       INTEGER NOT NULL DEFAULT 0,
			modified    INTEGER NOT NULL DEFAULT 0,
			deleted     INTEGER NOT NULL DEFAULT 0,
			unchanged   INTEGER NOT NULL DEFAULT 0,
			fetched     INTEGER NOT NULL DEFAULT 0,
			upserted    INTEGER NOT NULL DEFAULT 0,
			success     INTEGER NOT NULL DEFAULT 0,
			error       TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			started_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_runs_kind    ON runs(kind);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

		CREATE TABLE IF NOT EXISTS restrictions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			field_name TEXT NOT NULL,
			reason     TEXT NOT NULL,
			at_offset  INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_restrictions_run ON restrictions(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun persists one run and its restrictions in a transaction.
func (s *Store) RecordRun(run Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if run.StartedAt == "" {
		run.StartedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err = tx.Exec(`
		INSERT INTO runs (id, kind, model, added, modified, deleted, unchanged,
		                  fetched, upserted, success, error, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Model, run.Added, run.Modified, run.Deleted, run.Unchanged,
		run.Fetched, run.Upserted, boolToInt(run.Success), run.Error, run.DurationMS, run.StartedAt)
	if err != nil {
		return fmt.Errorf("history: insert run %s: %w", run.ID, err)
	}

	for _, r := range run.Restrictions {
		if _, err := tx.Exec(`
			INSERT INTO restrictions (run_id, field_name, reason, at_offset)
			VALUES (?, ?, ?, ?)`,
			run.ID, r.FieldName, r.Reason, r.Offset); err != nil {
			return fmt.Errorf("history: insert restriction %s: %w", r.FieldName, err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns the latest runs, newest first, with their
// restrictions attached.
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, kind, COALESCE(model, ''), added, modified, deleted, unchanged,
		       fetched, upserted, success, COALESCE(error, ''), duration_ms, started_at
		FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			success int
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.Model, &r.Added, &r.Modified, &r.Deleted, &r.Unchanged,
			&r.Fetched, &r.Upserted, &success, &r.Error, &r.DurationMS, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.Success = success != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}

	for i := range runs {
		restrictions, err := s.runRestrictions(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Restrictions = restrictions
	}
	return runs, nil
}

func (s *Store) runRestrictions(runID string) ([]Restriction, error) {
	rows, err := s.db.Query(`
		SELECT field_name, reason, at_offset FROM restrictions
		WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query restrictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Restriction
	for rows.Next() {
		var r Restriction
		if err := rows.Scan(&r.FieldName, &r.Reason, &r.Offset); err != nil {
			return nil, fmt.Errorf("history: scan restriction: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarshalRuns renders runs as indented JSON for tool output.
func MarshalRuns(runs []Run) (string, error) {
	raw, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("history: marshal runs: %w", err)
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
