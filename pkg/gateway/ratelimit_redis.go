package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTokenBucketScript implements a token bucket atomically in Redis so
// every gateway replica shares one rate limit per actor.
//
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens/second)
// ARGV[2] = capacity (burst size)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = now, unix seconds as a float
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    local added = elapsed * rate
    tokens = tokens + added
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisLimiter is a Limiter backed by Redis, for multi-replica gateway
// deployments that need one shared rate-limit view.
type RedisLimiter struct {
	client   *redis.Client
	rate     float64 // tokens per second
	capacity float64
}

// NewRedisLimiter builds a Redis-backed limiter admitting ratePerMinute
// requests per minute per actor, with capacity as the burst allowance.
func NewRedisLimiter(client *redis.Client, ratePerMinute uint64, capacity float64) *RedisLimiter {
	rps := float64(ratePerMinute) / 60.0
	if rps <= 0 {
		rps = 1.0
	}
	return &RedisLimiter{client: client, rate: rps, capacity: capacity}
}

// Allow reports whether actorID may proceed right now, consuming one token
// via the shared Redis bucket. Errors talking to Redis fail open so a
// transient Redis outage does not take down the whole gateway.
func (l *RedisLimiter) Allow(actorID string) bool {
	ok, err := l.allowWithContext(context.Background(), actorID)
	if err != nil {
		return true
	}
	return ok
}

func (l *RedisLimiter) allowWithContext(ctx context.Context, actorID string) (bool, error) {
	key := fmt.Sprintf("gateway:limiter:%s", actorID)
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := redisTokenBucketScript.Run(ctx, l.client, []string{key}, l.rate, l.capacity, 1, now).Result()
	if err != nil {
		return false, fmt.Errorf("gateway: redis limiter: %w", err)
	}

	results, ok := res.([]any)
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("gateway: unexpected redis limiter response")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}
