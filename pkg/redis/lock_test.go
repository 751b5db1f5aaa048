package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Requires a Redis server at $TEST_REDIS_ADDR.
func TestRunLockIsExclusiveAcrossHolders(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	id := uuid.New()
	server := NewRunLock(client, 300*time.Millisecond, zaptest.NewLogger(t))
	worker := NewRunLock(client, 300*time.Millisecond, zaptest.NewLogger(t))

	unlock, ok, err := server.TryLock(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	// Outlives the ttl because the holder keeps refreshing it.
	time.Sleep(500 * time.Millisecond)
	_, ok, err = worker.TryLock(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	other, ok, err := worker.TryLock(ctx, uuid.New())
	require.NoError(t, err)
	require.True(t, ok, "organizers do not share a lock")
	other()

	unlock()
	again, ok, err := worker.TryLock(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	again()
}
