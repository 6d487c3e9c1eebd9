// Package persistence stores simulation runs, their input entities and their
// step results in SQLite or PostgreSQL.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run, entity or meta key does not exist.
var ErrNotFound = errors.New("not found")

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a database connection for run storage.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// Open opens or creates a database. For sqlite the dsn is a file path.
func Open(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("open db: unsupported driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, driver: driver}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the driver name the database was opened with.
func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) blobType() string {
	if db.driver == DriverPostgres {
		return "BYTEA"
	}
	return "BLOB"
}

func (db *DB) migrate() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		parameters TEXT NOT NULL,
		status TEXT NOT NULL,
		steps INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		results %s
	);

	CREATE TABLE IF NOT EXISTS entities (
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		body TEXT NOT NULL,
		PRIMARY KEY (run_id, kind, entity_id)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_entities_order ON entities(run_id, kind, position);
	`, db.blobType())

	_, err := db.conn.Exec(schema)
	return err
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, db.conn.Rebind("SELECT value FROM meta WHERE key = ?"), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, ErrNotFound)
	}
	return value, err
}
