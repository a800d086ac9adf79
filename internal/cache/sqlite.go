package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"goportfolio/internal/core"
	"goportfolio/internal/storage"
)

// SQLiteStore implements Store in a SQLite table.
type SQLiteStore struct {
	conn storage.Storage
	db   *sql.DB
	now  func() time.Time
}

// NewSQLiteStore creates the snapshot table if needed. The store takes
// ownership of conn and closes it on Close.
func NewSQLiteStore(ctx context.Context, conn storage.Storage) (*SQLiteStore, error) {
	db := conn.SQLiteDB()
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires a sqlite connection, got %s", conn.Type())
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bucket_snapshots (
			key TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket_snapshots table: %w", err)
	}

	return &SQLiteStore{conn: conn, db: db, now: time.Now}, nil
}

// Get retrieves an unexpired snapshot.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*core.BucketSnapshot, error) {
	now := s.now()
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM bucket_snapshots WHERE key = ? AND expires_at > ?`,
		key, now.UnixMilli(),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot from sqlite: %w", err)
	}

	return decodeRecord(payload, now)
}

// Set upserts a snapshot and purges expired rows.
func (s *SQLiteStore) Set(ctx context.Context, key string, snap *core.BucketSnapshot, ttl time.Duration) error {
	ttl = effectiveTTL(ttl)
	now := s.now()
	expiresAt := now.Add(ttl)
	data, err := encodeRecord(snap, expiresAt)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bucket_snapshots (key, payload, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, data, expiresAt.UnixMilli(), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write snapshot to sqlite: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM bucket_snapshots WHERE expires_at <= ?`, now.UnixMilli()); err != nil {
		return fmt.Errorf("failed to purge expired snapshots: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Type() string { return TypeSQLite }

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
