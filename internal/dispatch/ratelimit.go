package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for an atomic per-second counter check. GET then INCR from
// the client races against other dispatchers; the script does not.
const secondLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])

local current = tonumber(redis.call("GET", key) or "0")
if current + 1 > limit then
    return 0
end

local updated = redis.call("INCR", key)
if updated == 1 then
    redis.call("EXPIRE", key, 2)
end
return 1
`

// RedisLimiter coordinates the send rate across dispatcher processes
// sharing one relay.
type RedisLimiter struct {
	redis  *redis.Client
	script *redis.Script
	limit  int
}

// NewRedisLimiter builds a limiter allowing at most limit sends per
// second across all holders of the same Redis.
func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		script: redis.NewScript(secondLimitLuaScript),
		limit:  limit,
	}
}

// NewRedisLimiterFromURL parses a redis:// URL and builds a limiter.
func NewRedisLimiterFromURL(rawURL string, limit int) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisLimiter(redis.NewClient(opts), limit), nil
}

// Allow consumes one slot from the current second's window. When denied
// it suggests waiting until the window rolls over.
func (rl *RedisLimiter) Allow(ctx context.Context) (bool, time.Duration, error) {
	now := time.Now()
	key := fmt.Sprintf("dispatch:rate:sec:%d", now.Unix())

	res, err := rl.script.Run(ctx, rl.redis, []string{key}, rl.limit).Int()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}
	if res == 1 {
		return true, 0, nil
	}
	wait := now.Truncate(time.Second).Add(time.Second).Sub(now)
	if wait <= 0 {
		wait = 50 * time.Millisecond
	}
	return false, wait, nil
}

// Close releases the underlying Redis connection.
func (rl *RedisLimiter) Close() error {
	return rl.redis.Close()
}
