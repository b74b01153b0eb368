// Package db is the durable persistence gateway: exploration metadata, stage
// rows, and serialized analysis results in SQLite, keyed by exploration id.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// DefaultDBPath returns ~/.droidscope/droidscope.db, creating the directory
// if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	dir := filepath.Join(home, ".droidscope")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "droidscope.db"), nil
}

// Open opens or creates the database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &DB{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Conn exposes the underlying connection for aggregate queries.
func (d *DB) Conn() *sql.DB {
	return d.conn
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS explorations (
    id                TEXT PRIMARY KEY,
    app_name          TEXT NOT NULL,
    category          TEXT NOT NULL,
    persona           TEXT NOT NULL,
    custom_navigation TEXT,
    max_depth         INTEGER NOT NULL DEFAULT 6,
    save_to_memory    BOOLEAN NOT NULL DEFAULT FALSE,
    status            TEXT NOT NULL DEFAULT 'running',
    current_stage     INTEGER NOT NULL DEFAULT 0,
    error             TEXT,
    created_at        TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at        TEXT NOT NULL DEFAULT (datetime('now')),
    completed_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_explorations_category ON explorations(category);
CREATE INDEX IF NOT EXISTS idx_explorations_persona ON explorations(persona);

CREATE TABLE IF NOT EXISTS exploration_stages (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    exploration_id TEXT NOT NULL,
    stage_number   INTEGER NOT NULL,
    stage_name     TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    content        TEXT,
    error_message  TEXT,
    started_at     TEXT,
    completed_at   TEXT,
    FOREIGN KEY (exploration_id) REFERENCES explorations(id) ON DELETE CASCADE,
    UNIQUE(exploration_id, stage_number)
);

CREATE TABLE IF NOT EXISTS exploration_results (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    exploration_id TEXT UNIQUE NOT NULL,
    summary        TEXT,
    ux_score       REAL,
    complexity_score REAL,
    full_json      TEXT NOT NULL,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    FOREIGN KEY (exploration_id) REFERENCES explorations(id) ON DELETE CASCADE
);
`

// Migrate applies the database schema.
func (d *DB) Migrate() error {
	var count int
	err := d.conn.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = 1").Scan(&count)
	if err == nil && count > 0 {
		return nil
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaV1); err != nil {
		return fmt.Errorf("apply schema v1: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// Reset drops all tables and re-applies the schema.
func (d *DB) Reset() error {
	tables := []string{"exploration_results", "exploration_stages", "explorations", "schema_version"}
	for _, t := range tables {
		if _, err := d.conn.Exec("DROP TABLE IF EXISTS " + t); err != nil {
			return fmt.Errorf("drop table %s: %w", t, err)
		}
	}
	return d.Migrate()
}
