// Package ephstore is the ephemeral store client: key/value with TTL,
// set membership, sorted sets, a distributed lock primitive built on a
// scripted compare-and-delete, and pub/sub. Grounded on the token-bucket
// Lua script pattern used for atomic read-modify-write in
// rate-limiter/gateway/ratelimiter/token_bucket.go — the lock release here
// is the same shape: a Lua script that reads-then-conditionally-deletes in
// one round trip so no other client can observe the gap.
package ephstore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("ephstore: lock already held")

// releaseScript deletes key only if its value still equals the caller's
// token — otherwise the caller isn't (or is no longer) the lock holder.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
else
	return 0
end
`)

type Client struct {
	rdb redis.Cmdable
	keyPrefix string
	logger *slog.Logger
}

func New(rdb redis.Cmdable, keyPrefix string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rdb: rdb, keyPrefix: keyPrefix, logger: logger}
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func (c *Client) key(k string) string {
	if c.keyPrefix == "" {
		return k
	}
	return c.keyPrefix + ":" + k
}

// --- basic KV ---

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, c.key(key), value, 0).Err()
}

func (c *Client) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.rdb.Expire(ctx, c.key(key), ttl).Err()
}

// --- sets ---

func (c *Client) SAdd(ctx context.Context, key string, members...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SAdd(ctx, c.key(key), args...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.SRem(ctx, c.key(key), args...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return c.rdb.SMembers(ctx, c.key(key)).Result()
}

func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	return c.rdb.SCard(ctx, c.key(key)).Result()
}

// --- sorted sets (deadline / retry queues) ---

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.rdb.ZAdd(ctx, c.key(key), redis.Z{Score: score, Member: member}).Err()
}

func (c *Client) ZRem(ctx context.Context, key string, member string) error {
	return c.rdb.ZRem(ctx, c.key(key), member).Err()
}

// ZRangeByScoreUpTo returns members whose score is <= max, ascending — used
// by the expiry reaper and job-offer sweep to find due deadlines.
func (c *Client) ZRangeByScoreUpTo(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	return c.rdb.ZRangeByScore(ctx, c.key(key), &redis.ZRangeBy{
		Min: "-inf",
		Max: formatFloat(max),
		Offset: 0,
		Count: limit,
	}).Result()
}

// --- distributed lock ---

// Acquire sets key to a fresh opaque token with TTL, only if key is absent.
// Returns the token (needed to release) and whether acquisition succeeded.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, c.key(key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes key iff its current value equals token, atomically.
func (c *Client) Release(ctx context.Context, key, token string) error {
	_, err := releaseScript.Run(ctx, c.rdb, []string{c.key(key)}, token).Result()
	return err
}

// WithLock acquires key (TTL as a safety net, not a scheduling mechanism —
// it must exceed any expected critical section), runs fn, and releases on
// every exit path. Returns ErrLockHeld on contention.
func (c *Client) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	token, ok, err := c.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() {
		if relErr := c.Release(ctx, key, token); relErr != nil {
			c.logger.Error("ephstore lock release failed",
				"event", "ephstore_lock_release_failed",
				"key", key,
				"error", relErr.Error(),
			)
		}
	}()
	return fn(ctx)
}

// --- pub/sub ---

func (c *Client) Publish(ctx context.Context, channel string, message string) error {
	return c.rdb.Publish(ctx, c.key(channel), message).Err()
}

// Subscriber is satisfied by *redis.PubSub.
type Subscriber interface {
	Channel() <-chan *redis.Message
	Close() error
}

func (c *Client) Subscribe(ctx context.Context, channel string) (Subscriber, error) {
	rdb, ok := c.rdb.(*redis.Client)
	if !ok {
		return nil, errors.New("ephstore: subscribe requires a *redis.Client")
	}
	return rdb.Subscribe(ctx, c.key(channel)), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
