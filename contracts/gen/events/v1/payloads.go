package v1

import "time"

// BidWindowOpenedPayload is emitted by the bidding engine when an auction opens.
type BidWindowOpenedPayload struct {
	WindowID      string    `json:"windowId"`
	OrderIDs      []string  `json:"orderIds"`
	ExpiresAt     time.Time `json:"expiresAt"`
	StrategyID    string    `json:"strategyId"`
	MinimumBidCts int64     `json:"minimumBidCents"`
}

// BidPlacedPayload is emitted by the bidding engine on every accepted placement.
type BidPlacedPayload struct {
	BidID       string    `json:"bidId"`
	WindowID    string    `json:"windowId"`
	PorterID    string    `json:"porterId"`
	AmountCents int64     `json:"amountCents"`
	ETAMinutes  int       `json:"etaMinutes"`
	PlacedAt    time.Time `json:"placedAt"`
}

// BidAcceptedPayload is emitted by the bidding engine when the winning bid is selected.
type BidAcceptedPayload struct {
	BidID       string    `json:"bidId"`
	WindowID    string    `json:"windowId"`
	PorterID    string    `json:"porterId"`
	AmountCents int64     `json:"amountCents"`
	AcceptedAt  time.Time `json:"acceptedAt"`
	AcceptedBy  string    `json:"acceptedBy"`
}

// BidWinnerSelectedPayload is the dispatcher-facing enrichment; emitted
// exactly once per window over its lifetime.
type BidWinnerSelectedPayload struct {
	WindowID          string   `json:"windowId"`
	BidID             string   `json:"bidId"`
	OrderIDs          []string `json:"orderIds"`
	WinnerPorterID    string   `json:"winnerPorterId"`
	WinningAmountCts  int64    `json:"winningAmountCents"`
}

// BidCancelledPayload is emitted when a PLACED bid is cancelled.
type BidCancelledPayload struct {
	BidID    string `json:"bidId"`
	WindowID string `json:"windowId"`
	PorterID string `json:"porterId"`
	Reason   string `json:"reason"`
}

// BidExpiredPayload is emitted by the expiry reaper per window that timed out.
type BidExpiredPayload struct {
	WindowID   string    `json:"windowId"`
	OrderIDs   []string  `json:"orderIds"`
	TotalBids  int       `json:"totalBids"`
	ExpiredAt  time.Time `json:"expiredAt"`
}

// BidClosedOutcome enumerates why a window reached CLOSED.
type BidClosedOutcome string

const (
	OutcomeWinnerSelected BidClosedOutcome = "winner_selected"
	OutcomeExpired        BidClosedOutcome = "expired"
	OutcomeCancelled      BidClosedOutcome = "cancelled"
	OutcomeNoBids         BidClosedOutcome = "no_bids"
)

// BidClosedPayload is the terminal event for a window's lifecycle.
type BidClosedPayload struct {
	WindowID string           `json:"windowId"`
	OrderIDs []string         `json:"orderIds"`
	Outcome  BidClosedOutcome `json:"outcome"`
}

// JobOfferCreatedPayload is consumed by the offer broker; produced by the (external) dispatcher.
type JobOfferCreatedPayload struct {
	OfferID   string    `json:"offerId"`
	OrderID   string    `json:"orderId"`
	PorterID  string    `json:"porterId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JobOfferOutcomePayload covers accepted/rejected/expired — same shape, different type.
type JobOfferOutcomePayload struct {
	OfferID   string    `json:"offerId"`
	OrderID   string    `json:"orderId"`
	PorterID  string    `json:"porterId"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLifecyclePayload covers the external order lifecycle events the bidding engine and subscription router consume.
type OrderLifecyclePayload struct {
	OrderID  string `json:"orderId"`
	PorterID string `json:"porterId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	Status   string `json:"status,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// PorterSuspendedPayload is consumed by the bidding engine's domain event reactor.
type PorterSuspendedPayload struct {
	PorterID string `json:"porterId"`
	Reason   string `json:"reason"`
}

// PorterLocationUpdatedPayload is the sampled event emitted by the location hub.
type PorterLocationUpdatedPayload struct {
	PorterID  string    `json:"porterId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessageSentPayload is emitted by the chat relay for durable persistence.
type ChatMessageSentPayload struct {
	MessageID  string    `json:"messageId"`
	OrderID    string    `json:"orderId"`
	SenderID   string    `json:"senderId"`
	SenderRole string    `json:"senderRole"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}
