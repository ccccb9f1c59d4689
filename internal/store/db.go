// Package store persists the activity log and rollback checkpoints in a
// local SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultPath is the database location relative to the workspace root.
const DefaultPath = ".sepilot/agent.db"

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL lets readers proceed while the activity writer is busy.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db}
	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema(ctx context.Context) error {
	schema := `
	-- Tool executions, one row per call
	CREATE TABLE IF NOT EXISTS activities (
		activity_id     INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		tool_name       TEXT NOT NULL,
		args_json       TEXT NOT NULL,
		result          TEXT NOT NULL,
		status          TEXT NOT NULL,
		duration_ms     INTEGER NOT NULL,
		created_at      INTEGER NOT NULL
	);

	-- Rollback points
	CREATE TABLE IF NOT EXISTS checkpoints (
		checkpoint_id   TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		label           TEXT NOT NULL,
		created_at      INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS checkpoint_changes (
		checkpoint_id    TEXT NOT NULL,
		seq              INTEGER NOT NULL,
		path             TEXT NOT NULL,
		kind             TEXT NOT NULL,
		before_exists    INTEGER NOT NULL,
		before_hash      TEXT,
		before_content   BLOB,
		before_truncated INTEGER NOT NULL DEFAULT 0,
		after_exists     INTEGER NOT NULL,
		after_hash       TEXT,
		PRIMARY KEY (checkpoint_id, seq),
		FOREIGN KEY (checkpoint_id) REFERENCES checkpoints(checkpoint_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_activities_conv ON activities(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_conv ON checkpoints(conversation_id, created_at);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
