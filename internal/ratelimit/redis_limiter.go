/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

// DefaultRedisKeyPrefix is prepended to client keys in Redis.
const DefaultRedisKeyPrefix = "taskgw:ratelimit:"

// slidingLogScript keeps the log in a sorted set scored by unix microseconds.
// Scores are passed as strings, Lua numbers are formatted with 14 significant digits only.
// KEYS[1] - client key, ARGV: now, cutoff, quota, unique member, key TTL in ms.
var slidingLogScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. ARGV[2])
if redis.call('ZCARD', key) >= tonumber(ARGV[3]) then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	return {0, oldest[2]}
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, '0'}
`)

// RedisLimiter is a sliding-window log limiter that keeps the log in Redis,
// so all gateway instances using the same Redis share one quota per client.
type RedisLimiter struct {
	client    redis.UniversalClient
	rate      Rate
	keyPrefix string
}

var _ Limiter = (*RedisLimiter)(nil)

// RedisLimiterOpts represents options for RedisLimiter.
type RedisLimiterOpts struct {
	// KeyPrefix is prepended to client keys. DefaultRedisKeyPrefix is used by default.
	KeyPrefix string
}

// NewRedisLimiter creates a new Redis-backed sliding-window log limiter.
func NewRedisLimiter(client redis.UniversalClient, rate Rate, opts RedisLimiterOpts) (*RedisLimiter, error) {
	if rate.Count <= 0 {
		return nil, fmt.Errorf("rate count should be positive, got %d", rate.Count)
	}
	if rate.Duration < time.Millisecond {
		return nil, fmt.Errorf("rate duration should be at least 1ms, got %s", rate.Duration)
	}
	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisLimiter{client: client, rate: rate, keyPrefix: keyPrefix}, nil
}

// Allow implements Limiter with the same semantics as SlidingLogLimiter, atomically on the Redis side.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (allow bool, retryAfter time.Duration, err error) {
	nowMicro := now.UnixMicro()
	windowMicro := l.rate.Duration.Microseconds()
	res, err := slidingLogScript.Run(ctx, l.client, []string{l.keyPrefix + key},
		strconv.FormatInt(nowMicro, 10),
		strconv.FormatInt(nowMicro-windowMicro, 10),
		l.rate.Count,
		xid.New().String(),
		l.rate.Duration.Milliseconds()+1,
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("run sliding log script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected sliding log script result %v", res)
	}
	if admitted, _ := res[0].(int64); admitted == 1 {
		return true, 0, nil
	}
	oldestScore, _ := res[1].(string)
	oldest, err := strconv.ParseFloat(oldestScore, 64)
	if err != nil {
		return false, 0, fmt.Errorf("parse oldest timestamp %q: %w", oldestScore, err)
	}
	return false, time.Duration(int64(oldest)+windowMicro-nowMicro) * time.Microsecond, nil
}

// Ping checks that Redis is reachable.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
