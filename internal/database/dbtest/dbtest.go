// Package dbtest provides migrated databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fjod/go_cart/internal/database"
)

// NewSQLite returns a fresh in-memory SQLite database with the schema applied.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()

	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(db, database.DriverSQLite))
	return db
}

// NewPostgres starts a disposable postgres container and returns a migrated
// connection to it. Skipped in short mode.
func NewPostgres(t testing.TB) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("checkout_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.Open(&database.Credentials{
		Driver:   database.DriverPostgres,
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		DBName:   "checkout_test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.RunMigrations(db, database.DriverPostgres))
	return db
}
