// Package cache provides durable stores for bucket snapshots so a fresh process
// can serve the last known-good assets without waiting for a remote scan.
// Supports local file, Redis, Badger, SQLite, PostgreSQL and MongoDB backends;
// Redis, PostgreSQL and MongoDB can be shared by several instances.
package cache

import (
	"context"
	"time"

	"goportfolio/internal/core"
)

// Store type names accepted by New.
const (
	TypeNone       = "none"
	TypeLocal      = "local"
	TypeRedis      = "redis"
	TypeBadger     = "badger"
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
)

// Store persists bucket snapshots with an expiry.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the snapshot stored under key.
	// Returns nil, nil if nothing is stored or the entry has expired.
	Get(ctx context.Context, key string) (*core.BucketSnapshot, error)

	// Set stores snap under key for ttl.
	Set(ctx context.Context, key string, snap *core.BucketSnapshot, ttl time.Duration) error

	// Type returns the backend name.
	Type() string

	// Close releases any resources held by the store.
	Close() error
}

// NoneStore keeps nothing. It is used when no durable store is configured.
type NoneStore struct{}

func (NoneStore) Get(context.Context, string) (*core.BucketSnapshot, error) { return nil, nil }

func (NoneStore) Set(context.Context, string, *core.BucketSnapshot, time.Duration) error {
	return nil
}

func (NoneStore) Type() string { return TypeNone }
func (NoneStore) Close() error { return nil }
