package locker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	acquireWait     = 5 * time.Second
	acquirePollStep = 50 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so a lock
// that expired and was re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX on a shared redis instance.
type RedisLocker struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

func NewRedisLocker(client *redis.Client, logger *slog.Logger, prefix string) *RedisLocker {
	return &RedisLocker{
		client: client,
		logger: logger.With("component", "redis_locker"),
		prefix: prefix,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(ctx context.Context), error) {
	redisKey := fmt.Sprintf("%s:lock:%s", l.prefix, key)
	token := uuid.NewString()

	deadline := time.Now().Add(acquireWait)
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock acquire: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollStep):
		}
	}

	release := func(releaseCtx context.Context) {
		if _, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Result(); err != nil {
			l.logger.WarnContext(releaseCtx, "Failed to release lock; key will expire by TTL", "key", redisKey, "error", err)
		}
	}
	return release, nil
}
