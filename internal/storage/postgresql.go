package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Snapshot writes come from one refresh at a time, so a handful of
// connections covers reads and writes alike.
const (
	postgresMaxConns    = 4
	postgresIdleTimeout = 5 * time.Minute
	postgresAppName     = "goportfolio-snapshots"
)

type postgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgreSQL opens a small pool against cfg.URL and pings it.
func NewPostgreSQL(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgresql snapshot store needs a URL")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgresql URL: %w", err)
	}
	poolCfg.MaxConns = postgresMaxConns
	poolCfg.MaxConnIdleTime = postgresIdleTimeout
	if _, set := poolCfg.ConnConfig.RuntimeParams["application_name"]; !set {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = postgresAppName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgresql pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgresql: %w", err)
	}
	return &postgresStorage{pool: pool}, nil
}

func (s *postgresStorage) Type() string                   { return TypePostgreSQL }
func (s *postgresStorage) SQLiteDB() *sql.DB              { return nil }
func (s *postgresStorage) PostgreSQLPool() *pgxpool.Pool  { return s.pool }
func (s *postgresStorage) MongoDatabase() *mongo.Database { return nil }

func (s *postgresStorage) Close() error {
	s.pool.Close()
	return nil
}
