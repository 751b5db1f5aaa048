package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunLockPrefix namespaces the per-organizer run locks.
const RunLockPrefix = "ticketsync:run-lock:"

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RunLock is a per-organizer mutex shared by every process using the same Redis.
// A held lock is refreshed every ttl/3 and expires after ttl if its holder dies.
type RunLock struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewRunLock creates a RunLock. ttl <= 0 defaults to two minutes.
func NewRunLock(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RunLock {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunLock{client: client, ttl: ttl, logger: logger}
}

// TryLock takes the organizer's lock without waiting. ok is false if another holder has
// it. The returned unlock stops the refresh and releases the lock; it is nil unless ok.
func (l *RunLock) TryLock(ctx context.Context, organizerID uuid.UUID) (unlock func(), ok bool, err error) {
	key := RunLockPrefix + organizerID.String()
	token := uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("set %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.refresh(key, token, stop, done)

	return func() {
		close(stop)
		<-done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			l.logger.Warn("release run lock", zap.String("key", key), zap.Error(err))
		}
	}, true, nil
}

func (l *RunLock) refresh(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				l.logger.Warn("refresh run lock", zap.String("key", key), zap.Error(err))
			case n == 0:
				l.logger.Warn("run lock lost", zap.String("key", key))
			}
		}
	}
}
