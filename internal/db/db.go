// Package db opens the workspace-local SQLite store backing sheet cells and
// the run history log.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema holds the ordered steps needed to bring an empty database up to
// date. The step count is tracked in sqlite's user_version, so opening an
// existing store applies only what it is missing.
var schema = []string{
	`CREATE TABLE cells (
		sheet TEXT NOT NULL,
		row INTEGER NOT NULL,
		col TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (sheet, row, col)
	);
	CREATE TABLE runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		project_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		total INTEGER NOT NULL,
		completed INTEGER NOT NULL
	);
	CREATE INDEX idx_runs_project ON runs(project_id, id DESC);`,
}

// Open opens the workspace database, creating the .tasktally directory and
// applying pending schema steps as needed. Callers own the returned handle.
func Open(workspace string) (*sql.DB, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, ".tasktally")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", filepath.Join(dir, "tasktally.db"))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrateSchema(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func migrateSchema(conn *sql.DB) error {
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(schema) {
		return tx.Commit()
	}
	for i := version; i < len(schema); i++ {
		if _, err := tx.Exec(schema[i]); err != nil {
			return fmt.Errorf("schema step %d: %w", i+1, err)
		}
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, len(schema))); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
