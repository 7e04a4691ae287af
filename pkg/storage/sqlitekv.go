package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	apperrors "invitely/pkg/errors"
)

// SQLiteKV keeps values in a single-table SQLite database
type SQLiteKV struct {
	db    *sql.DB
	quota int64
}

// NewSQLiteKV opens (or creates) the database at dbPath
func NewSQLiteKV(dbPath string, quota int64) (*SQLiteKV, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	createTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &SQLiteKV{db: db, quota: quota}, nil
}

// Get returns the value for key
func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	return value, nil
}

// Set upserts the value for key
func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	if s.quota > 0 {
		var used sql.NullInt64
		err := s.db.QueryRowContext(ctx,
			`SELECT SUM(LENGTH(key) + LENGTH(value)) FROM kv WHERE key <> ?`, key).Scan(&used)
		if err != nil {
			return apperrors.ErrStorageFailed.WithCause(err)
		}
		if used.Int64+int64(len(key)+len(value)) > s.quota {
			return apperrors.ErrQuotaExceeded.WithContext("key", key).
				WithContext("size", len(value))
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	return nil
}

// Delete removes key
func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return apperrors.ErrStorageFailed.WithCause(err).WithContext("key", key)
	}
	return nil
}

// Close closes the database
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
