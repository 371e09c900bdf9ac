// Package db provides the embedded SQLite store that backs pacelog's local
// repositories.
//
// The database runs in embedded mode with WAL so the sync daemon can read
// pending records while the CLI writes.
//
// Architecture:
//   - Database file: <data_dir>/pacelog.db
//   - One table per record type: activities, activity_kinds, activity_logs,
//     goals, tasks. Each row stores the record as JSON next to the columns
//     the store filters on (parent_id, sort_key, sync_status, deleted_at).
//   - activity_icon_blobs: icon images waiting to be uploaded
//   - activity_icon_delete_queue: icon delete tombstones
//
// Records are read and written through Table, a typed view of one record
// table. A Table is bound either to the database or to a transaction
// (see DB.WithTx and Table.In).
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Record tables.
const (
	TableActivities    = "activities"
	TableActivityKinds = "activity_kinds"
	TableActivityLogs  = "activity_logs"
	TableGoals         = "goals"
	TableTasks         = "tasks"
)

// RecordTables lists every record table in creation order.
var RecordTables = []string{
	TableActivities,
	TableActivityKinds,
	TableActivityLogs,
	TableGoals,
	TableTasks,
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// Open creates a new database connection at the specified path.
//
// If the database doesn't exist, it is created. The caller must call
// InitSchema before using any table and Close when done.
//
// Example:
//
//	store, err := db.Open(filepath.Join(dataDir, "pacelog.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
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
		conn: conn,
		path: path,
		now:  time.Now,
	}

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA foreign_keys=ON", "enable foreign keys"},
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

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// SetClock replaces the clock used to stamp updatedAt and deletedAt.
// Tests use it to get deterministic timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

// Now returns the current time according to the store's clock.
func (db *DB) Now() time.Time {
	return db.now()
}

// Close checkpoints the WAL and closes the connection.
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

// InitSchema creates the database schema if it doesn't exist. It is
// idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	for _, table := range RecordTables {
		if _, err := db.conn.ExecContext(ctx, recordTableDDL(table)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}

	icons := `
	CREATE TABLE IF NOT EXISTS activity_icon_blobs (
		activity_id TEXT PRIMARY KEY,
		base64 TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activity_icon_delete_queue (
		activity_id TEXT PRIMARY KEY,
		queued_at TEXT NOT NULL
	);
	`
	if _, err := db.conn.ExecContext(ctx, icons); err != nil {
		return fmt.Errorf("failed to initialize icon tables: %w", err)
	}

	return nil
}

func recordTableDDL(table string) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL DEFAULT '',
		sort_key TEXT NOT NULL DEFAULT '',
		sync_status TEXT NOT NULL DEFAULT 'pending',
		deleted_at TEXT,
		updated_at TEXT NOT NULL,
		data TEXT NOT NULL  -- JSON record
	);

	CREATE INDEX IF NOT EXISTS idx_%[1]s_sync_status ON %[1]s(sync_status);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_parent ON %[1]s(parent_id);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_live
	    ON %[1]s(sort_key) WHERE deleted_at IS NULL;
	`, table)
}

// Tx is an open transaction. Tables bound to it with Table.In run their
// statements inside the transaction.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. The transaction commits if fn
// returns nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
