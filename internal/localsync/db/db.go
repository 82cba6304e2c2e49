// Package db provides the embedded SQLite store backing local-first data.
//
// The store is the primary source of truth: repositories read and write it
// directly and the sync engine mirrors it against a remote service. It runs
// in embedded mode with WAL so readers are not blocked while a sync pass
// writes.
//
// Architecture:
//   - Database file: lsync.db (path configurable)
//   - WAL mode: concurrent readers during writes
//   - Schema: users, todos, app_config tables
//   - Indexes: remote_id lookups, updated_at ordering, dirty-record scans
//
// Repositories do not depend on *DB directly. They accept the Store
// interface, the parameterized select/execute contract the rest of the
// module is written against.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	// DriverNCruces is the WASM-based ncruces/go-sqlite3 driver (default).
	DriverNCruces = "sqlite3"

	// DriverModernc is the pure-Go transpiled modernc.org/sqlite driver.
	DriverModernc = "sqlite"
)

// Store is the parameterized query contract repositories run against.
// Each statement is committed independently.
type Store interface {
	// Select runs a query and returns every row as a column map.
	Select(ctx context.Context, query string, args ...any) ([]Row, error)

	// Execute runs a statement that returns no rows.
	Execute(ctx context.Context, query string, args ...any) (ExecResult, error)
}

// ExecResult reports the effect of an Execute call.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// DB wraps the SQLite connection pool.
type DB struct {
	conn   *sql.DB
	path   string
	driver string
}

// Open creates a new database connection at the specified path using the
// default driver.
//
// If the database doesn't exist, it is created. The caller MUST call Close()
// when done to ensure the WAL is checkpointed.
//
// Example:
//
//	database, err := db.Open(".lsync/lsync.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	return OpenDriver(DriverNCruces, path)
}

// OpenDriver is Open with an explicit driver name.
func OpenDriver(driver, path string) (*DB, error) {
	if driver == "" {
		driver = DriverNCruces
	}
	if driver != DriverNCruces && driver != DriverModernc {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	filePath := strings.TrimPrefix(path, "file:")
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := "file:" + filePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:   conn,
		path:   filePath,
		driver: driver,
	}

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.conn.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Driver returns the database/sql driver name in use.
func (db *DB) Driver() string {
	return db.driver
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables the default repositories and the config
// store use. This is idempotent - safe to call multiple times.
//
// Hosts that own their own migrations can skip it; repositories only rely
// on the shared sync columns being present.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		remote_id TEXT,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		avatar TEXT,
		preferences TEXT,  -- JSON object
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_sync_at TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		remote_id TEXT,
		title TEXT NOT NULL,
		description TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		priority INTEGER NOT NULL DEFAULT 1,
		due_date TEXT,
		user_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_sync_at TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	-- Single-row settings such as the remote configuration
	CREATE TABLE IF NOT EXISTS app_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_remote ON users(remote_id);
	CREATE INDEX IF NOT EXISTS idx_users_updated ON users(is_deleted, updated_at);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE INDEX IF NOT EXISTS idx_todos_remote ON todos(remote_id);
	CREATE INDEX IF NOT EXISTS idx_todos_updated ON todos(is_deleted, updated_at);
	CREATE INDEX IF NOT EXISTS idx_todos_user ON todos(user_id);
	CREATE INDEX IF NOT EXISTS idx_todos_dirty ON todos(last_sync_at, updated_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Select implements Store.
func (db *DB) Select(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Execute implements Store.
func (db *DB) Execute(ctx context.Context, query string, args ...any) (ExecResult, error) {
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to execute: %w", err)
	}

	var out ExecResult
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	return out, nil
}

// scanRows reads every row into a column map. Byte slices are converted to
// strings since every column this module defines is TEXT or INTEGER.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}
