// Package ephstore adapts the platform ephemeral-store client to the
// bidding engine's Locker, WindowCache, IdempotencyStore, and
// EventDedupStore ports.
package ephstore

import (
	"context"
	"errors"
	"time"

	platform "porterdispatch/internal/platform/ephstore"

	"porterdispatch/contexts/dispatch/bidding-engine/ports"
)

// Locker adapts platform.Client's lock primitive, translating contention
// into the domain-agnostic ports.ErrLockHeld.
type Locker struct {
	Client *platform.Client
}

func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	err := l.Client.WithLock(ctx, key, ttl, fn)
	if errors.Is(err, platform.ErrLockHeld) {
		return ports.ErrLockHeld
	}
	return err
}

// WindowCache adapts platform.Client's GET/SETEX/DEL to the window:<id>
// cache seam openWindow/placeBid/acceptBid use.
type WindowCache struct {
	Client *platform.Client
}

func (c WindowCache) PutWindow(key string, ttl time.Duration, payload []byte) error {
	return c.Client.SetEx(context.Background(), key, string(payload), ttl)
}

func (c WindowCache) GetWindow(key string) ([]byte, bool, error) {
	val, found, err := c.Client.Get(context.Background(), key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return []byte(val), true, nil
}

func (c WindowCache) DeleteWindow(key string) error {
	return c.Client.Del(context.Background(), key)
}

// IdempotencyStore stores one SETEX-backed record per idempotency key: the
// value is "<payloadHash>\x00<resultPayload>" so a single GET round trip
// recovers both fields.
type IdempotencyStore struct {
	Client *platform.Client
}

const idemSeparator = "\x00"

func (s IdempotencyStore) Get(ctx context.Context, key string) (string, []byte, bool, error) {
	raw, found, err := s.Client.Get(ctx, "idem:"+key)
	if err != nil {
		return "", nil, false, err
	}
	if !found {
		return "", nil, false, nil
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] == 0 {
			return raw[:i], []byte(raw[i+1:]), true, nil
		}
	}
	return raw, nil, true, nil
}

func (s IdempotencyStore) Save(ctx context.Context, key, payloadHash string, resultPayload []byte, ttl time.Duration) error {
	value := payloadHash + idemSeparator + string(resultPayload)
	return s.Client.SetEx(ctx, "idem:"+key, value, ttl)
}

// EventDedupStore gates redelivered events on a SET-IF-ABSENT key.
type EventDedupStore struct {
	Client *platform.Client
}

func (s EventDedupStore) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	_, ok, err := s.Client.Acquire(ctx, "dedup:"+eventID, ttl)
	if err != nil {
		return false, err
	}
	return ok, nil
}
