package ephstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript performs the same atomic read-modify-write as
// rate-limiter/gateway/ratelimiter/token_bucket.go: refill by elapsed time,
// consume one token if available, save state, all in one round trip.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local bucket_size = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = tonumber(redis.call('HGET', key, 'tokens'))
local last_refill = tonumber(redis.call('HGET', key, 'last_refill'))
if tokens == nil then
	tokens = bucket_size
	last_refill = now
end

local elapsed = now - last_refill
tokens = math.min(bucket_size, tokens + elapsed * refill_rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', now)
redis.call('EXPIRE', key, 3600)
return {allowed, math.floor(tokens)}
`)

// RateLimiter is a Redis-backed token bucket keyed per caller (user id,
// porter id, IP). Used by location ingress and chat.
type RateLimiter struct {
	rdb        redis.Cmdable
	keyPrefix  string
	bucketSize int64
	refillRate float64
}

// NewRateLimiter builds a limiter allowing up to pointsPerWindow events per
// window, expressed as an equivalent continuous refill rate.
func NewRateLimiter(rdb redis.Cmdable, keyPrefix string, pointsPerWindow int64, window time.Duration) *RateLimiter {
	refillRate := float64(pointsPerWindow) / window.Seconds()
	return &RateLimiter{rdb: rdb, keyPrefix: keyPrefix, bucketSize: pointsPerWindow, refillRate: refillRate}
}

// Allow reports whether the caller identified by key may proceed now.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	result, err := tokenBucketScript.Run(ctx, rl.rdb, []string{rl.keyPrefix + ":" + key},
		rl.bucketSize, rl.refillRate, now,
	).Int64Slice()
	if err != nil {
		return false, err
	}
	return result[0] == 1, nil
}
