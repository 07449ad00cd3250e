// Package entities holds the bidding engine's core data model.
package entities

import "time"

type WindowStatus string

const (
	WindowOpen WindowStatus = "OPEN"
	WindowClosed WindowStatus = "CLOSED"
	WindowCancelled WindowStatus = "CANCELLED"
)

// PorterFilter is an opaque predicate description evaluated by an external
// eligibility check (role, verification, geography); the bidding engine
// never interprets it itself.
type PorterFilter struct {
	Key string `json:"key"`
	Value string `json:"value"`
}

// BiddingWindow is one auction, possibly covering a bundle of orders.
type BiddingWindow struct {
	WindowID string
	OrderIDs []string
	Status WindowStatus
	StrategyID string
	MinimumBidCents int64
	ReservePriceCents *int64
	PorterFilters []PorterFilter
	MaxBidsPerPorter int
	OpenAt time.Time
	ExpiresAt time.Time
	ClosedAt *time.Time
	CreatedBy string
	CorrelationID string
}

func (w BiddingWindow) IsExpired(now time.Time) bool {
	return now.After(w.ExpiresAt)
}

func (w BiddingWindow) ContainsOrder(orderID string) bool {
	for _, id := range w.OrderIDs {
		if id == orderID {
			return true
		}
	}
	return false
}

type BidStatus string

const (
	BidPlacedStatus BidStatus = "PLACED"
	BidAcceptedStatus BidStatus = "ACCEPTED"
	BidCancelledStatus BidStatus = "CANCELLED"
	BidExpiredStatus BidStatus = "EXPIRED"
)

// PorterMetadata is the subset of porter profile data the strategy
// evaluator consults; absent fields use the documented fallback
// scores rather than erroring.
type PorterMetadata struct {
	Rating *float64
	Reliability *float64
	DistanceMeter *float64
}

// Bid is one porter's offer against a window.
type Bid struct {
	BidID string
	WindowID string
	PorterID string
	AmountCents int64
	ETAMinutes int
	Status BidStatus
	PlacedAt time.Time
	TerminalAt *time.Time
	IdempotencyKey string
	CancelReason string
	AcceptedBy string
	CorrelationID string
	Metadata PorterMetadata
}

type StrategyWeights struct {
	PriceWeight float64
	ETAWeight float64
	RatingWeight float64
	ReliabilityWeight float64
	DistanceWeight float64
}

// Sum returns the sum of all five weights.
func (w StrategyWeights) Sum() float64 {
	return w.PriceWeight + w.ETAWeight + w.RatingWeight + w.ReliabilityWeight + w.DistanceWeight
}

type BidStrategy struct {
	StrategyID string
	Name string
	Description string
	Weights StrategyWeights
	Active bool
}

type AuditEventKind string

const (
	AuditPlaced AuditEventKind = "PLACED"
	AuditAccepted AuditEventKind = "ACCEPTED"
	AuditCancelled AuditEventKind = "CANCELLED"
	AuditExpired AuditEventKind = "EXPIRED"
	AuditEvaluated AuditEventKind = "EVALUATED"
)

// BidAuditEvent is an append-only record of every state transition a bid
// goes through, independent of the outbox event stream.
type BidAuditEvent struct {
	EventID string
	BidID string
	Kind AuditEventKind
	Payload []byte
	OccurredAt time.Time
	Actor string
	CorrelationID string
}
