package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// busyTimeout lets the audit writer and API reads wait for each other instead of failing with SQLITE_BUSY.
const busyTimeout = "_pragma=busy_timeout(5000)"

// Database owns the single SQLite handle shared by the ledger gateway, audit writer, risk store and API.
type Database struct {
	DB *sql.DB
}

// New opens the SQLite file at path, creating its directory. ":memory:" is accepted for tests.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = "file:" + path + "?" + busyTimeout
	}

	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	handle.SetMaxOpenConns(1)
	handle.SetConnMaxLifetime(time.Hour)
	return &Database{DB: handle}, nil
}

// Queries returns the user-scoped query set.
func (d *Database) Queries() *UserQueries {
	return NewUserQueries(d.DB)
}

// InTx runs fn inside a transaction, committing only when fn returns nil.
func (d *Database) InTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
