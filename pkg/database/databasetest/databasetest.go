// Package databasetest opens a migrated PostgreSQL pool for integration tests.
package databasetest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aura-events/ticketsync/pkg/database"
)

// EnvDSN names the variable holding the test database URL.
const EnvDSN = "TEST_DATABASE_URL"

// NewPool connects to $TEST_DATABASE_URL, applies migrations and empties every table.
// The test is skipped when the variable is unset.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skipf("%s not set", EnvDSN)
	}
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	pool, err := database.NewPostgresPool(ctx, dsn, 4, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool, logger))
	_, err = pool.Exec(ctx, `TRUNCATE sync_runs, users, redacted_tickets, tickets, item_mirrors, event_mirrors, event_configs, organizers CASCADE`)
	require.NoError(t, err)
	return pool
}
