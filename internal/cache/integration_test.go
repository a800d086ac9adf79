//go:build integration

// Run with: go test -tags=integration ./internal/cache/...
package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"goportfolio/internal/storage"
)

func TestPostgreSQLStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("goportfolio_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := storage.NewPostgreSQL(ctx, storage.Config{Type: storage.TypePostgreSQL, URL: url})
	require.NoError(t, err)

	store, err := NewPostgreSQLStore(ctx, conn)
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store, func(now time.Time) { store.now = func() time.Time { return now } })
}

func TestMongoDBStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	conn, err := storage.NewMongoDB(ctx, storage.Config{Type: storage.TypeMongoDB, URL: url, Database: "goportfolio_test"})
	require.NoError(t, err)

	store, err := NewMongoDBStore(ctx, conn)
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store, func(now time.Time) { store.now = func() time.Time { return now } })
}

func TestRedisStore_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	store, err := NewRedisStore(ctx, RedisConfig{URL: fmt.Sprintf("redis://%s:%s/0", host, port.Port())})
	require.NoError(t, err)
	defer store.Close()

	storeContract(t, store, func(now time.Time) { store.now = func() time.Time { return now } })
}
