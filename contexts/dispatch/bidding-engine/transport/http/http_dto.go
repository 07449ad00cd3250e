// Package http holds the bidding engine's wire DTOs. It imports nothing
// from net/http itself; request decoding and response writing live in the
// central platform httpserver.
package http

import "time"

// ErrorResponse is the uniform error body every bidding endpoint returns.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type OpenWindowRequest struct {
	OrderIDs          []string          `json:"order_ids"`
	DurationSec       int               `json:"duration_sec"`
	StrategyID        string            `json:"strategy_id"`
	MinimumBidCents   int64             `json:"minimum_bid_cents"`
	ReservePriceCents *int64            `json:"reserve_price_cents,omitempty"`
	PorterFilters     []PorterFilterDTO `json:"porter_filters,omitempty"`
	MaxBidsPerPorter  int               `json:"max_bids_per_porter,omitempty"`
	CorrelationID     string            `json:"correlation_id,omitempty"`
}

type PorterFilterDTO struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type WindowResponse struct {
	WindowID          string            `json:"window_id"`
	OrderIDs          []string          `json:"order_ids"`
	Status            string            `json:"status"`
	StrategyID        string            `json:"strategy_id"`
	MinimumBidCents   int64             `json:"minimum_bid_cents"`
	ReservePriceCents *int64            `json:"reserve_price_cents,omitempty"`
	PorterFilters     []PorterFilterDTO `json:"porter_filters,omitempty"`
	MaxBidsPerPorter  int               `json:"max_bids_per_porter"`
	OpenAt            time.Time         `json:"open_at"`
	ExpiresAt         time.Time         `json:"expires_at"`
	ClosedAt          *time.Time        `json:"closed_at,omitempty"`
	CreatedBy         string            `json:"created_by,omitempty"`
	Replayed          bool              `json:"replayed,omitempty"`
}

type PorterMetadataDTO struct {
	Rating        *float64 `json:"rating,omitempty"`
	Reliability   *float64 `json:"reliability,omitempty"`
	DistanceMeter *float64 `json:"distance_meter,omitempty"`
}

type PlaceBidRequest struct {
	AmountCents    int64             `json:"amount_cents"`
	ETAMinutes     int               `json:"eta_minutes"`
	Metadata       PorterMetadataDTO `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"-"`
	CorrelationID  string            `json:"correlation_id,omitempty"`
}

type BidResponse struct {
	BidID           string            `json:"bid_id"`
	WindowID        string            `json:"window_id"`
	PorterID        string            `json:"porter_id"`
	AmountCents     int64             `json:"amount_cents"`
	ETAMinutes      int               `json:"eta_minutes"`
	Status          string            `json:"status"`
	PlacedAt        time.Time         `json:"placed_at"`
	TerminalAt      *time.Time        `json:"terminal_at,omitempty"`
	CancelReason    string            `json:"cancel_reason,omitempty"`
	AcceptedBy      string            `json:"accepted_by,omitempty"`
	Metadata        PorterMetadataDTO `json:"metadata,omitempty"`
	Replayed        bool              `json:"replayed,omitempty"`
	CurrentTopCents int64             `json:"current_top_cents,omitempty"`
	TentativeRank   int               `json:"tentative_rank,omitempty"`
}

type AcceptBidRequest struct {
	CorrelationID string `json:"correlation_id,omitempty"`
}

type CancelBidRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CloseWindowRequest struct {
	CorrelationID string `json:"correlation_id,omitempty"`
}

type ActiveBidResponse struct {
	Bid    BidResponse    `json:"bid"`
	Window WindowResponse `json:"window"`
}

type ActiveBidsResponse struct {
	Items []ActiveBidResponse `json:"items"`
	Page  int                 `json:"page"`
}

type MyBidsResponse struct {
	Items []BidResponse `json:"items"`
	Page  int           `json:"page"`
}

type PreviewBidOutcomeRequest struct {
	AmountCents int               `json:"amount_cents"`
	ETAMinutes  int               `json:"eta_minutes"`
	Metadata    PorterMetadataDTO `json:"metadata,omitempty"`
}

type ScoreBreakdownDTO struct {
	PriceScore       float64 `json:"price_score"`
	ETAScore         float64 `json:"eta_score"`
	RatingScore      float64 `json:"rating_score"`
	ReliabilityScore float64 `json:"reliability_score"`
	DistanceScore    float64 `json:"distance_score"`
	Composite        float64 `json:"composite"`
}

type PreviewBidOutcomeResponse struct {
	Rank      int               `json:"rank"`
	Score     float64           `json:"score"`
	Breakdown ScoreBreakdownDTO `json:"breakdown"`
}

type StatisticsResponse struct {
	WindowsByStatus       map[string]int `json:"windows_by_status"`
	BidsByStatus          map[string]int `json:"bids_by_status"`
	MeanTimeToFirstBidSec float64        `json:"mean_time_to_first_bid_sec"`
	MeanOpenToAcceptSec   float64        `json:"mean_open_to_accept_sec"`
}
