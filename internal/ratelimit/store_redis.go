package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims expired entries, then admits the request when
// the window still has room. It returns {allowed, remaining, resetAtMillis}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  count = count + 1
  allowed = 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local resetAt = now + window
if oldest[2] then
  resetAt = tonumber(oldest[2]) + window
end

local remaining = limit - count
if remaining < 0 then
  remaining = 0
end
return {allowed, remaining, resetAt}
`)

// RedisStore shares sliding windows across server instances.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: "legitify:ratelimit:"}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	vals, err := slidingWindowScript.Run(ctx, s.client,
		[]string{s.prefix + key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("run sliding window script: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("unexpected sliding window reply: %v", vals)
	}

	allowed := vals[0] == 1
	resetAt := time.UnixMilli(vals[2])
	return Result{
		Allowed:    allowed,
		Limit:      limit,
		Remaining:  int(vals[1]),
		ResetAt:    resetAt,
		RetryAfter: retryAfter(allowed, resetAt, now),
	}, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("delete rate limit key: %w", err)
	}
	return nil
}
