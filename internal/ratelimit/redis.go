package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript checks the window count before incrementing so a saturated
// window is never bumped past the limit, and arms the TTL on the first
// request of a window.
var allowScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return -1
end
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return count
`)

// RedisLimiter keeps windows in Redis, sharing quota between processes
// pointed at the same instance.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) key(keyID uint) string {
	return fmt.Sprintf("pagebuilder:ratelimit:%d", keyID)
}

func (l *RedisLimiter) Allow(ctx context.Context, keyID uint) (bool, error) {
	n, err := allowScript.Run(ctx, l.rdb,
		[]string{l.key(keyID)},
		l.limit, int(l.ttl.Seconds()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return n != -1, nil
}

func (l *RedisLimiter) Remaining(ctx context.Context, keyID uint) (int, error) {
	count, err := l.rdb.Get(ctx, l.key(keyID)).Int()
	if err == redis.Nil {
		return l.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rate limit lookup failed: %w", err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, keyID uint) error {
	return l.rdb.Del(ctx, l.key(keyID)).Err()
}
