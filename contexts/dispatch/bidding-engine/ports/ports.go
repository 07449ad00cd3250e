// Package ports declares the seams the bidding engine's application layer
// depends on; adapters/* provide the concrete implementations.
package ports

import (
	"context"
	"errors"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
)

// WindowRepository persists bidding windows and their bids.
type WindowRepository interface {
	CreateWindow(ctx context.Context, w entities.BiddingWindow) error
	GetWindow(ctx context.Context, windowID string) (entities.BiddingWindow, error)
	GetWindowByOrder(ctx context.Context, orderID string) (entities.BiddingWindow, error)
	UpdateWindowStatus(ctx context.Context, windowID string, status entities.WindowStatus, closedAt *time.Time) error
	ListExpiredOpenWindows(ctx context.Context, asOf time.Time, limit int) ([]entities.BiddingWindow, error)

	PlaceBid(ctx context.Context, b entities.Bid) error
	GetBid(ctx context.Context, bidID string) (entities.Bid, error)
	ListBidsByWindow(ctx context.Context, windowID string) ([]entities.Bid, error)
	ListBidsByPorter(ctx context.Context, porterID string, limit, offset int) ([]entities.Bid, error)
	CountPorterBidsInWindow(ctx context.Context, windowID, porterID string) (int, error)
	UpdateBidStatus(ctx context.Context, bidID string, status entities.BidStatus, terminalAt time.Time, acceptedBy string) error
	ExpirePendingBidsForWindow(ctx context.Context, windowID string, terminalAt time.Time) (int, error)

	AppendAudit(ctx context.Context, e entities.BidAuditEvent) error

	// AcceptWinningBid performs steps 1-6 of acceptBid as one
	// atomic transaction: reload+validate window and bid, accept the winner,
	// close the window, expire every sibling PLACED bid. Returns the
	// accepted bid, the closed window, and how many siblings were expired.
	AcceptWinningBid(ctx context.Context, windowID, bidID, acceptedBy string, now time.Time) (entities.Bid, entities.BiddingWindow, int, error)

	// CloseAndExpire performs closeWindow/Expiry-Reaper's shared atomic
	// transaction: set status CLOSED and expire every PLACED bid. Returns
	// the closed window and how many bids were expired.
	CloseAndExpire(ctx context.Context, windowID string, now time.Time) (entities.BiddingWindow, int, error)
}

// StrategyRepository resolves the weighting strategy used by the bid evaluator.
type StrategyRepository interface {
	GetStrategy(ctx context.Context, strategyID string) (entities.BidStrategy, error)
}

// IdempotencyStore gives write commands replay-safety under retried calls,
// grounded on a vote idempotency shape (hash payload, check,
// replay, record after success).
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (payloadHash string, resultPayload []byte, found bool, err error)
	Save(ctx context.Context, key, payloadHash string, resultPayload []byte, ttl time.Duration) error
}

// OutboxWriter appends a domain event in the same transaction as the state
// change it describes; OutboxRelay publishes it later.
type OutboxWriter interface {
	WriteOutbox(ctx context.Context, eventType, aggregateID, correlationID, partitionKey string, payload []byte) error
}

// OutboxRepository is the relay-side read/mark-published interface.
type OutboxRepository interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string) error
}

// OutboxRecord is one pending or published row in the outbox table.
type OutboxRecord struct {
	ID string
	EventType string
	AggregateID string
	CorrelationID string
	PartitionKey string
	Payload []byte
	CreatedAt time.Time
	Attempts int
}

// EventPublisher pushes an already-built envelope to the event log.
type EventPublisher interface {
	PublishOutbox(ctx context.Context, rec OutboxRecord) error
}

// EventDedupStore gates handler execution on at-least-once redelivery.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (firstSeen bool, err error)
}

// ErrLockHeld is returned by Locker.WithLock on contention; application code
// translates it to the domain's CONCURRENT_ACCEPT error.
var ErrLockHeld = errors.New("bidding: lock held by another caller")

// Locker provides the single-winner critical section acceptBid needs.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// EligibilityChecker evaluates a window's PorterFilters against a porter;
// the bidding engine treats this as an opaque external call.
type EligibilityChecker interface {
	IsEligible(ctx context.Context, porterID string, filters []entities.PorterFilter) (bool, error)
}

// PorterProfileLookup resolves the metadata the strategy evaluator needs
// that isn't carried on the bid itself.
type PorterProfileLookup interface {
	GetPorterMetadata(ctx context.Context, porterID string) (entities.PorterMetadata, error)
}

// Clock is injected so command/worker tests can control time.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues new identifiers for windows, bids, audit events.
type IDGenerator interface {
	NewID() string
}
