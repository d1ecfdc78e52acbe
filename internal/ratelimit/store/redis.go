package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"dropin/internal/ratelimit/models"
	"dropin/pkg/platform/sentinel"
)

// allowScript trims the sorted set to the window, then adds the request
// when there is room. Returns {allowed, count, oldest_ms}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then oldestScore = tonumber(oldest[2]) end
return {allowed, count, oldestScore}
`)

// Redis is a sliding window limiter shared by every replica.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (s *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := s.now()
	res, err := allowScript.Run(ctx, s.client, []string{s.prefix + "ratelimit:" + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w: %w", sentinel.ErrUnavailable, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit check: unexpected reply %v", res)
	}

	resetAt := time.UnixMilli(res[2]).Add(window)
	result := &models.Result{
		Allowed:   res[0] == 1,
		Limit:     limit,
		Remaining: max(limit-int(res[1]), 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = retryAfter(resetAt.Sub(now))
	}
	return result, nil
}

func (s *Redis) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+"ratelimit:"+key).Err()
}
