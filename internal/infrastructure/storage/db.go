package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB bundles the connection with a statement builder for its dialect.
type DB struct {
	conn    *sql.DB
	driver  string
	builder sq.StatementBuilderType
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tracked_handles (
		handle TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS processed_items (
		item_id TEXT PRIMARY KEY,
		handle TEXT NOT NULL,
		text TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		fetched_at BIGINT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		exhausted BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at BIGINT NOT NULL,
		dispatched_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_items_status ON processed_items (status, fetched_at)`,
	`CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY,
		credentials_json TEXT NOT NULL,
		status TEXT NOT NULL,
		last_validated BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
}

// Open connects to the configured backend and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var (
		conn *sql.DB
		err  error
	)

	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if dir := filepath.Dir(dsn); dir != "." {
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return nil, fmt.Errorf("create data directory: %w", err)
				}
			}
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		conn, err = sql.Open(DriverSQLite, dsn+sep+"_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// single writer keeps sqlite free of SQLITE_BUSY under the worker pool
		conn.SetMaxOpenConns(1)
	case DriverPostgres:
		conn, err = sql.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db := &DB{conn: conn, driver: driver, builder: sq.StatementBuilder.PlaceholderFormat(sq.Question)}
	if driver == DriverPostgres {
		db.builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping reports whether the backend is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Driver returns the configured driver name.
func (d *DB) Driver() string {
	return d.driver
}

func (d *DB) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return d.conn.ExecContext(ctx, query, args...)
}

func (d *DB) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return d.conn.QueryContext(ctx, query, args...)
}

func (d *DB) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return d.conn.QueryRowContext(ctx, query, args...), nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
