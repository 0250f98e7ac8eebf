package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript executes the refill-and-take atomically server-side so
// concurrent instances cannot double-spend tokens.
//
// KEYS[1] bucket hash; ARGV: capacity, refill rate, refill interval (ms),
// now (ms). Returns {remaining, last_refill_ms}.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'last_refill')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil then
  tokens = capacity
  last_refill = now
end

local intervals = math.floor((now - last_refill) / interval)
if intervals > 0 then
  tokens = math.min(tokens + intervals * rate, capacity)
  last_refill = now
end

tokens = tokens - 1

redis.call('HMSET', KEYS[1], 'tokens', tokens, 'last_refill', last_refill)
redis.call('PEXPIRE', KEYS[1], interval * math.ceil(capacity / rate) + interval)

return {tokens, last_refill}
`)

// RedisStore keeps bucket state in Redis so limits hold across instances.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a store using the given client. Keys are namespaced
// under "ratelimit:".
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, keyPrefix: "ratelimit:"}
}

func (rs *RedisStore) Take(ctx context.Context, key string, cfg Config) (int, time.Time, error) {
	now := time.Now()
	res, err := tokenBucketScript.Run(ctx, rs.client, []string{rs.keyPrefix + key},
		cfg.Capacity, cfg.RefillRate, cfg.RefillInterval.Milliseconds(), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis rate limit: unexpected script reply")
	}

	remaining := int(res[0])
	resetAt := time.UnixMilli(res[1]).Add(cfg.RefillInterval)
	return remaining, resetAt, nil
}
