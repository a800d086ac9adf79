package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"goportfolio/internal/core"
	"goportfolio/internal/storage"
)

// PostgreSQLStore implements Store in a PostgreSQL table shared by all instances.
type PostgreSQLStore struct {
	conn storage.Storage
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgreSQLStore creates the snapshot table if needed. The store takes
// ownership of conn and closes it on Close.
func NewPostgreSQLStore(ctx context.Context, conn storage.Storage) (*PostgreSQLStore, error) {
	pool := conn.PostgreSQLPool()
	if pool == nil {
		return nil, fmt.Errorf("postgresql store requires a postgresql connection, got %s", conn.Type())
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bucket_snapshots (
			key TEXT PRIMARY KEY,
			payload BYTEA NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket_snapshots table: %w", err)
	}

	return &PostgreSQLStore{conn: conn, pool: pool, now: time.Now}, nil
}

// Get retrieves an unexpired snapshot.
func (s *PostgreSQLStore) Get(ctx context.Context, key string) (*core.BucketSnapshot, error) {
	now := s.now()
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM bucket_snapshots WHERE key = $1 AND expires_at > $2`,
		key, now,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot from postgresql: %w", err)
	}

	return decodeRecord(payload, now)
}

// Set upserts a snapshot and purges expired rows.
func (s *PostgreSQLStore) Set(ctx context.Context, key string, snap *core.BucketSnapshot, ttl time.Duration) error {
	ttl = effectiveTTL(ttl)
	now := s.now()
	expiresAt := now.Add(ttl)
	data, err := encodeRecord(snap, expiresAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO bucket_snapshots (key, payload, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, key, data, expiresAt, now)
	batch.Queue(`DELETE FROM bucket_snapshots WHERE expires_at <= $1`, now)

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write snapshot to postgresql: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) Type() string { return TypePostgreSQL }

func (s *PostgreSQLStore) Close() error {
	return s.conn.Close()
}
