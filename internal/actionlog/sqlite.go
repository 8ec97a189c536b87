// Package actionlog provides persistent storage for executed plan steps.
// The log is the source of truth for per-step result caching.
package actionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/talentmesh/actionloop"
)

// openDB is a variable to allow test injection.
var openDB = func(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// SQLiteStore persists log entries in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS action_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		step_index INTEGER NOT NULL,
		args_hash TEXT NOT NULL,
		input TEXT,
		output TEXT,
		downstream TEXT,
		success INTEGER NOT NULL,
		error TEXT,
		embedding TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_action_log_session_tool
		ON action_log(session_id, tool, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append persists one executed step.
func (s *SQLiteStore) Append(ctx context.Context, entry actionloop.LogEntry) error {
	input, err := json.Marshal(entry.Input)
	if err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}
	output, err := json.Marshal(entry.Output)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	downstream, err := json.Marshal(entry.Downstream)
	if err != nil {
		return fmt.Errorf("failed to encode downstream: %w", err)
	}
	embedding, err := json.Marshal(entry.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO action_log (session_id, tool, step_index, args_hash, input, output, downstream, success, error, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID, entry.Tool, entry.StepIndex, entry.ArgsHash,
		string(input), string(output), string(downstream), boolToInt(entry.Success), entry.Error,
		string(embedding), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// FindLatest returns the most recent entry for the tool in the session, or
// (nil, nil) when none exists.
func (s *SQLiteStore) FindLatest(ctx context.Context, sessionID, toolID string) (*actionloop.LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, tool, step_index, args_hash, input, output, downstream, success, error, embedding, created_at
		FROM action_log
		WHERE session_id = ? AND tool = ?
		ORDER BY id DESC
		LIMIT 1`,
		sessionID, toolID,
	)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query log entry: %w", err)
	}
	return entry, nil
}

// Recent returns up to limit entries for the session, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]actionloop.LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, tool, step_index, args_hash, input, output, downstream, success, error, embedding, created_at
		FROM action_log
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	var entries []actionloop.LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*actionloop.LogEntry, error) {
	var (
		entry      actionloop.LogEntry
		input      string
		output     string
		downstream string
		embedding  string
		success    int
	)
	err := row.Scan(
		&entry.SessionID, &entry.Tool, &entry.StepIndex, &entry.ArgsHash,
		&input, &output, &downstream, &success, &entry.Error, &embedding, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Success = success != 0
	if input != "" && input != "null" {
		_ = json.Unmarshal([]byte(input), &entry.Input)
	}
	if output != "" && output != "null" {
		_ = json.Unmarshal([]byte(output), &entry.Output)
	}
	if downstream != "" && downstream != "null" {
		_ = json.Unmarshal([]byte(downstream), &entry.Downstream)
	}
	if embedding != "" && embedding != "null" {
		_ = json.Unmarshal([]byte(embedding), &entry.Embedding)
	}
	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
