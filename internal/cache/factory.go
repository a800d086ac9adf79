package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"goportfolio/internal/storage"
)

// Config selects and configures the durable snapshot store.
type Config struct {
	// Type is one of none, local, redis, badger, sqlite, postgresql, mongodb.
	Type string
	// Path is the directory (local, badger) or database file (sqlite).
	Path string
	// URL is the connection URL (redis, postgresql, mongodb).
	URL string
	// KeyPrefix namespaces keys in Redis.
	KeyPrefix string
	// Database is the MongoDB database name.
	Database string
}

// New builds the configured store. An empty type means none.
func New(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case "", TypeNone:
		return NoneStore{}, nil
	case TypeLocal:
		dir := cfg.Path
		if dir == "" {
			dir = filepath.Join(".cache", "snapshots")
		}
		store = NewLocalStore(dir)
	case TypeRedis:
		store, err = NewRedisStore(ctx, RedisConfig{URL: cfg.URL, KeyPrefix: cfg.KeyPrefix})
	case TypeBadger:
		dir := cfg.Path
		if dir == "" {
			dir = filepath.Join("data", "badger")
		}
		store, err = NewBadgerStore(dir)
	case TypeSQLite:
		store, err = newDatabaseStore(ctx, storage.Config{Type: storage.TypeSQLite, Path: cfg.Path})
	case TypePostgreSQL:
		store, err = newDatabaseStore(ctx, storage.Config{Type: storage.TypePostgreSQL, URL: cfg.URL})
	case TypeMongoDB:
		store, err = newDatabaseStore(ctx, storage.Config{Type: storage.TypeMongoDB, URL: cfg.URL, Database: cfg.Database})
	default:
		return nil, fmt.Errorf("unknown cache store type: %s (valid: none, local, redis, badger, sqlite, postgresql, mongodb)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("snapshot store initialized", "type", store.Type())
	return store, nil
}

// newDatabaseStore opens a database connection and wraps it in the matching store.
// The connection is closed if the store cannot be created.
func newDatabaseStore(ctx context.Context, cfg storage.Config) (Store, error) {
	conn, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Type, err)
	}

	var store Store
	switch cfg.Type {
	case storage.TypeSQLite:
		store, err = NewSQLiteStore(ctx, conn)
	case storage.TypePostgreSQL:
		store, err = NewPostgreSQLStore(ctx, conn)
	case storage.TypeMongoDB:
		store, err = NewMongoDBStore(ctx, conn)
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}
