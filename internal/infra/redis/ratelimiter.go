package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openctemio/reposcan/pkg/logger"
)

// allowScript checks and consumes one request slot atomically using a
// sliding window log kept in a sorted set.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local window_ms = tonumber(ARGV[3])
	local limit = tonumber(ARGV[4])
	local request_id = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, request_id)
		redis.call('PEXPIRE', key, window_ms)
		return {1, limit - count - 1, now + window_ms}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_at = oldest[2] and (tonumber(oldest[2]) + window_ms) or (now + window_ms)
	return {0, 0, retry_at}
`)

// RateLimiter implements distributed sliding-window rate limiting.
type RateLimiter struct {
	client    *Client
	keyPrefix string
	limit     int
	window    time.Duration
	logger    *logger.Logger
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	// RetryAt is when the client should retry. Only set when not allowed.
	RetryAt time.Time
}

// NewRateLimiter creates a new distributed rate limiter.
func NewRateLimiter(client *Client, prefix string, limit int, window time.Duration, log *logger.Logger) (*RateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		return nil, errors.New("key prefix is required")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if window <= 0 {
		return nil, errors.New("window must be positive")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RateLimiter{client: client, keyPrefix: prefix, limit: limit, window: window, logger: log}, nil
}

// Allow checks if a request is allowed and consumes one slot.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}

	start := time.Now()
	now := time.Now()
	res, err := allowScript.Run(ctx, rl.client.client, []string{rl.keyPrefix + ":" + key},
		now.UnixMilli(), now.Add(-rl.window).UnixMilli(), rl.window.Milliseconds(), rl.limit, uuid.NewString(),
	).Int64Slice()
	DefaultMetrics.ObserveOperation("ratelimit_allow", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit check: unexpected reply of length %d", len(res))
	}

	result := &RateLimitResult{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
	}
	DefaultMetrics.RecordRateLimitResult(rl.keyPrefix, result.Allowed)
	if !result.Allowed {
		result.RetryAt = time.UnixMilli(res[2])
		rl.logger.Debug("rate limit exceeded", "limiter", rl.keyPrefix, "retry_at", result.RetryAt)
	}
	return result, nil
}

// Reset clears the window for key, for example after a successful login.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	if err := rl.client.client.Del(ctx, rl.keyPrefix+":"+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}

// Limit returns the configured maximum requests per window.
func (rl *RateLimiter) Limit() int {
	return rl.limit
}
