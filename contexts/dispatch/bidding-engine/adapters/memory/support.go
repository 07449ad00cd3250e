package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
)

// Locker is a single-process in-memory stand-in for the ephemeral store's
// distributed lock, sufficient for unit tests that exercise one process.
type Locker struct {
	mu    sync.Mutex
	held  map[string]bool
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]bool)}
}

func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return ports.ErrLockHeld
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// UUIDGenerator issues google/uuid-backed identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// FixedClock lets tests control "now" deterministically.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AllowAllEligibility treats every porter as eligible; used by tests that
// aren't exercising the eligibility seam itself.
type AllowAllEligibility struct{}

func (AllowAllEligibility) IsEligible(ctx context.Context, porterID string, filters []entities.PorterFilter) (bool, error) {
	return true, nil
}

// Cache is an in-process stand-in for the ephemeral-store window cache.
type Cache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewCache() *Cache {
	return &Cache{data: make(map[string][]byte)}
}

func (c *Cache) PutWindow(key string, ttl time.Duration, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = payload
	return nil
}

func (c *Cache) GetWindow(key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *Cache) DeleteWindow(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// NoopPublisher discards outbox rows instead of shipping them to a real
// event log; used by in-memory/dev wiring where nothing consumes the topic.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutbox(ctx context.Context, rec ports.OutboxRecord) error {
	return nil
}
