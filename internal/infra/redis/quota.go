package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript takes one slot from a daily counter. A missing key returns
// {-1, 0} unless a seed is supplied, so the caller can seed it from the
// database. A negative limit never refuses.
var reserveScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local expire_at = tonumber(ARGV[2])
	local seed = tonumber(ARGV[3])

	local current = redis.call('GET', key)
	if not current then
		if seed < 0 then
			return {-1, 0}
		end
		current = seed
	else
		current = tonumber(current)
	end

	if limit >= 0 and current >= limit then
		redis.call('SET', key, current)
		redis.call('EXPIREAT', key, expire_at)
		return {0, current}
	end

	redis.call('SET', key, current + 1)
	redis.call('EXPIREAT', key, expire_at)
	return {1, current + 1}
`)

// releaseScript gives back one slot without going below zero.
var releaseScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	if current > 0 then
		return redis.call('DECR', KEYS[1])
	end
	return 0
`)

// Seeder returns how many slots an organization already used since the start
// of the current UTC day. It is consulted when the counter key is missing,
// for example after a Redis restart.
type Seeder func(ctx context.Context, orgID string, dayStart time.Time) (int, error)

// QuotaCounter counts per-organization daily usage. Counters reset at UTC
// midnight by key expiry.
type QuotaCounter struct {
	client    *Client
	keyPrefix string
	seed      Seeder
	now       func() time.Time
}

// NewQuotaCounter creates a counter. seed may be nil, in which case missing
// counters start at zero.
func NewQuotaCounter(client *Client, prefix string, seed Seeder) (*QuotaCounter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		return nil, errors.New("key prefix is required")
	}
	return &QuotaCounter{client: client, keyPrefix: prefix, seed: seed, now: time.Now}, nil
}

// Reservation is the outcome of Reserve.
type Reservation struct {
	Granted bool
	Used    int
	ResetAt time.Time
}

// Reserve takes one slot for orgID if usage is below limit. A limit of -1
// always grants.
func (q *QuotaCounter) Reserve(ctx context.Context, orgID string, limit int) (Reservation, error) {
	now := q.now().UTC()
	dayStart := startOfDay(now)
	resetAt := dayStart.AddDate(0, 0, 1)
	key := q.buildKey(orgID, dayStart)

	start := time.Now()
	code, used, err := q.run(ctx, key, limit, resetAt, -1)
	if err == nil && code == -1 {
		seed := 0
		if q.seed != nil {
			seed, err = q.seed(ctx, orgID, dayStart)
			if err != nil {
				return Reservation{}, fmt.Errorf("seed quota counter: %w", err)
			}
		}
		code, used, err = q.run(ctx, key, limit, resetAt, seed)
	}
	DefaultMetrics.ObserveOperation("quota_reserve", time.Since(start), err)
	if err != nil {
		return Reservation{}, fmt.Errorf("quota reserve: %w", err)
	}

	granted := code == 1
	DefaultMetrics.RecordQuotaReservation(granted)
	return Reservation{Granted: granted, Used: used, ResetAt: resetAt}, nil
}

func (q *QuotaCounter) run(ctx context.Context, key string, limit int, resetAt time.Time, seed int) (int64, int, error) {
	res, err := reserveScript.Run(ctx, q.client.client, []string{key},
		limit, resetAt.Unix(), seed).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("unexpected script reply of length %d", len(res))
	}
	return res[0], int(res[1]), nil
}

// Release returns a slot taken by Reserve, for example when the work it
// guarded could not be queued.
func (q *QuotaCounter) Release(ctx context.Context, orgID string) error {
	key := q.buildKey(orgID, startOfDay(q.now().UTC()))
	if err := releaseScript.Run(ctx, q.client.client, []string{key}).Err(); err != nil {
		return fmt.Errorf("quota release: %w", err)
	}
	return nil
}

// Used returns today's usage. ok is false when no counter exists yet.
func (q *QuotaCounter) Used(ctx context.Context, orgID string) (used int, ok bool, err error) {
	key := q.buildKey(orgID, startOfDay(q.now().UTC()))
	val, err := q.client.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("quota used: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("quota used: %w", err)
	}
	return n, true, nil
}

func (q *QuotaCounter) buildKey(orgID string, day time.Time) string {
	return q.keyPrefix + ":" + orgID + ":" + day.Format("20060102")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
