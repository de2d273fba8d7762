package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript atomically checks the block key, then counts the request in
// a fixed window. Exhaustion sets the block key and drops the counter so the
// identity starts a fresh window once the block expires.
//
// Returns {allowed, remaining, retry_after_ms, exhausted}.
var consumeScript = redis.NewScript(`
local counter = KEYS[1]
local block = KEYS[2]
local quota = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local block_ms = tonumber(ARGV[3])

local blocked = redis.call('PTTL', block)
if blocked > 0 then
	return {0, 0, blocked, 0}
end

local count = redis.call('INCR', counter)
if count == 1 then
	redis.call('PEXPIRE', counter, window_ms)
end

if count <= quota then
	return {1, quota - count, 0, 0}
end

if block_ms > 0 then
	redis.call('SET', block, '1', 'PX', block_ms)
	redis.call('DEL', counter)
	return {0, 0, block_ms, 1}
end

local exhausted = 0
if count == quota + 1 then
	exhausted = 1
end
return {0, 0, redis.call('PTTL', counter), exhausted}
`)

// RedisStore keeps buckets in Redis so every guard instance shares quotas.
// Expiry uses the Redis clock; the now argument to Consume is ignored.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

func (s *RedisStore) Consume(ctx context.Context, key string, p Policy, _ time.Time) (Decision, error) {
	keys := []string{s.prefix + key, s.prefix + key + ":block"}
	res, err := consumeScript.Run(ctx, s.client, keys,
		p.Quota, p.Window.Milliseconds(), p.BlockDuration.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("rate limit check failed: unexpected reply length %d", len(res))
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
		Exhausted:  res[3] == 1,
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key, s.prefix+key+":block").Err()
}
