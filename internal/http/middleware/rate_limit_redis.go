package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// One INCR per request inside a fixed one-minute window; the first hit in a
// window arms its expiry.
var redisFixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisFixedWindowLimiter enforces one shared request budget across all
// instances serving the API.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string, perMinute int) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix, limit: perMinute}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}
	windowMS := int64(time.Minute / time.Millisecond)
	raw, err := redisFixedWindowScript.Run(ctx, l.client, []string{l.prefix + ":" + key}, windowMS).Result()
	if err != nil {
		return Decision{}, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Decision{}, fmt.Errorf("unexpected redis script response")
	}
	count, ok := values[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected count type %T", values[0])
	}
	ttlMS, ok := values[1].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("unexpected ttl type %T", values[1])
	}

	if count > int64(l.limit) {
		return Decision{Allowed: false, RetryAfter: time.Duration(ttlMS) * time.Millisecond}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - int(count)}, nil
}
