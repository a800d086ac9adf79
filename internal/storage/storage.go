// Package storage opens the database connection behind a durable snapshot
// store. A connection serves one backend; the accessors of the others return nil.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Backends a snapshot store can sit on.
const (
	TypeSQLite     = "sqlite"
	TypePostgreSQL = "postgresql"
	TypeMongoDB    = "mongodb"
)

// Config locates the snapshot database. Path is read by SQLite, URL by
// PostgreSQL and MongoDB, Database by MongoDB.
type Config struct {
	Type     string
	Path     string
	URL      string
	Database string
}

// Storage is an open snapshot database.
type Storage interface {
	Type() string
	SQLiteDB() *sql.DB
	PostgreSQLPool() *pgxpool.Pool
	MongoDatabase() *mongo.Database
	Close() error
}

// New opens the backend named by cfg.Type.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeSQLite:
		return NewSQLite(ctx, cfg)
	case TypePostgreSQL:
		return NewPostgreSQL(ctx, cfg)
	case TypeMongoDB:
		return NewMongoDB(ctx, cfg)
	}
	return nil, fmt.Errorf("snapshot database %q is not one of %s, %s, %s", cfg.Type, TypeSQLite, TypePostgreSQL, TypeMongoDB)
}
