// Package sqlite provides a SQLite-backed store.Medium for durable on-device storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"example.com/trainingsync/internal/store"
)

const currentSchemaVersion = 1

var migrations = map[int]string{
	1: `CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

// Medium stores blobs in a single key/value table.
type Medium struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Medium, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps the read-modify-write cycle of the store serialized at the driver level too.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Medium{db: db}, nil
}

// Read returns the blob stored under key or store.ErrKeyNotFound.
func (m *Medium) Read(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Write upserts every entry inside one transaction.
func (m *Medium) Write(ctx context.Context, entries ...store.Entry) (err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, entry := range entries {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			entry.Key, entry.Value, now,
		); err != nil {
			return fmt.Errorf("write %s: %w", entry.Key, err)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (m *Medium) Close() error {
	return m.db.Close()
}

// migrate applies pending schema migrations tracked through PRAGMA user_version.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	for next := version + 1; next <= currentSchemaVersion; next++ {
		if _, err := db.ExecContext(ctx, migrations[next]); err != nil {
			return fmt.Errorf("apply migration %d: %w", next, err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
