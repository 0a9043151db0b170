// SPDX-License-Identifier: AGPL-3.0-only

// Package store persists tool run records in a SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nexroo-ai/anthropic-rooms-pkg/model"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so lexical ORDER BY and range comparisons in
// SQL agree with chronological order; RFC3339Nano trims trailing zeros and
// breaks that. Reads stay permissive via time.RFC3339Nano.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements model.RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure the parent directory exists.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveRun persists a tool run record.
func (s *SQLiteStore) SaveRun(run *model.ToolRun) error {
	res, err := s.db.Exec(`
		INSERT INTO tool_runs (tool_name, addon_id, input, output, success, error, retry_attempt, max_retries, execution_ms, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ToolName,
		run.AddonID,
		run.Input,
		run.Output,
		boolToInt(run.Success),
		run.Error,
		run.RetryAttempt,
		run.MaxRetries,
		run.ExecutionMS,
		run.StartTime.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("insert tool run: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

// ListRuns returns up to limit runs for the given tool name, ordered by
// start_time descending (most recent first). An empty toolName matches all
// tools.
func (s *SQLiteStore) ListRuns(toolName string, limit int) ([]*model.ToolRun, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, tool_name, addon_id, input, output, success, error, retry_attempt, max_retries, execution_ms, start_time
		FROM tool_runs`
	args := []interface{}{}
	if toolName != "" {
		query += " WHERE tool_name = ?"
		args = append(args, toolName)
	}
	query += " ORDER BY start_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tool runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.ToolRun
	for rows.Next() {
		var r model.ToolRun
		var success int
		var startStr string
		if err := rows.Scan(
			&r.ID, &r.ToolName, &r.AddonID, &r.Input, &r.Output,
			&success, &r.Error, &r.RetryAttempt, &r.MaxRetries,
			&r.ExecutionMS, &startStr,
		); err != nil {
			return nil, fmt.Errorf("scan tool run row: %w", err)
		}
		r.Success = success != 0
		r.StartTime, _ = time.Parse(time.RFC3339Nano, startStr)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool run rows: %w", err)
	}

	return runs, nil
}

// PruneRunsBefore deletes runs that started before cutoff and returns the
// number of rows removed.
func (s *SQLiteStore) PruneRunsBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM tool_runs WHERE start_time < ?", cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("prune tool runs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check prune result: %w", err)
	}
	return removed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
