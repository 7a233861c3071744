// Package history persists import results in an embedded SQLite database.
//
// Each successfully pushed branch becomes one row, so partial imports are
// visible as-is: querying a package shows exactly which branches carry
// which commit. The database uses WAL mode so the daemon can write while
// the CLI reads.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Record is one imported branch.
type Record struct {
	ID         int64
	RepoName   string
	Package    string
	Envr       string
	Branch     string
	Commit     string
	ImportedAt time.Time
}

// DB wraps the history database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the history database at path. The caller
// must Close it.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := db.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS import_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	repo_name   TEXT NOT NULL,
	package     TEXT NOT NULL,
	envr        TEXT NOT NULL,
	branch      TEXT NOT NULL,
	commit_hash TEXT NOT NULL,
	imported_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_records_repo
	ON import_records(repo_name, branch);
`
	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Add inserts one record. A zero ImportedAt is filled with the current
// time.
func (db *DB) Add(ctx context.Context, rec Record) error {
	if rec.ImportedAt.IsZero() {
		rec.ImportedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
INSERT INTO import_records (repo_name, package, envr, branch, commit_hash, imported_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RepoName, rec.Package, rec.Envr, rec.Branch, rec.Commit, rec.ImportedAt)
	if err != nil {
		return fmt.Errorf("failed to record import of %s (%s): %w", rec.RepoName, rec.Branch, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
SELECT id, repo_name, package, envr, branch, commit_hash, imported_at
FROM import_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.RepoName, &rec.Package, &rec.Envr,
			&rec.Branch, &rec.Commit, &rec.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
