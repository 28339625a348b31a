package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "modernc.org/sqlite"
)

const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// SQLStore keeps key/value pairs in a single table of a DuckDB or SQLite file.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

func OpenSQL(driver, path string, logger *slog.Logger) (*SQLStore, error) {
	var dsn string
	switch driver {
	case DriverDuckDB:
		dsn = path
	case DriverSQLite:
		// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	// one writer keeps both engines happy with a single local file
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &SQLStore{db: db, driver: driver, logger: logger}, nil
}

func (r *SQLStore) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS kv_store (
		cache_key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("init %s store: %w", r.driver, err)
	}
	return nil
}

func (r *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM kv_store WHERE cache_key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(payload), nil
}

func (r *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
	INSERT INTO kv_store (cache_key, payload, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (cache_key) DO UPDATE SET
		payload = EXCLUDED.payload,
		updated_at = EXCLUDED.updated_at;`

	_, err := r.db.ExecContext(ctx, query, key, string(value), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		r.logger.Error("Store write failed", "driver", r.driver, "key", key, "err", err)
	}
	return err
}

func (r *SQLStore) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE cache_key = ?`, key)
	return err
}

func (r *SQLStore) Close() error {
	return r.db.Close()
}
