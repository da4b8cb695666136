package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1] window key; ARGV[1] limit; ARGV[2] window length in ms.
// Returns {allowed, count, ttl_ms}.
var admitScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, 1, window}
end
local count = tonumber(current)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
if count < limit then
  count = redis.call('INCR', KEYS[1])
  return {1, count, ttl}
end
return {0, count, ttl}
`)

// RedisStore shares windows across processes. Expiry is left to Redis, so it
// needs no sweeper.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Increment(ctx context.Context, key string, policy Policy, now time.Time) (Window, bool, error) {
	res, err := admitScript.Run(ctx, s.client, []string{s.prefix + key}, policy.MaxRequests, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Window{}, false, fmt.Errorf("redis admit failed: %w", err)
	}
	if len(res) != 3 {
		return Window{}, false, fmt.Errorf("redis admit returned %d values", len(res))
	}

	resetAt := now.Add(time.Duration(res[2]) * time.Millisecond)
	return Window{
		Key:         key,
		Count:       int(res[1]),
		Limit:       policy.MaxRequests,
		WindowStart: resetAt.Add(-policy.Window),
		ResetAt:     resetAt,
	}, res[0] == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time) (*Window, error) {
	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, s.prefix+key)
	ttlCmd := pipe.PTTL(ctx, s.prefix+key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis window lookup failed: %w", err)
	}

	count, err := getCmd.Int()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis window lookup failed: %w", err)
	}
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return nil, nil
	}

	// The key only holds the count; Limiter.Status fills in the policy fields.
	return &Window{
		Key:     key,
		Count:   count,
		ResetAt: now.Add(ttl),
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis window delete failed: %w", err)
	}
	return nil
}
