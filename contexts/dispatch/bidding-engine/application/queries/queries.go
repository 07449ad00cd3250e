// Package queries implements the bidding window manager's read operations plus the supplemented
// getStatistics and previewBidOutcome features.
package queries

import (
	"context"
	"log/slog"
	"sort"
	"time"

	application "porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/application/strategy"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
)

// QueryService serves every bidding read model.
type QueryService struct {
	Windows ports.WindowRepository
	Strategies ports.StrategyRepository
	Profiles ports.PorterProfileLookup
	Logger *slog.Logger
}

// GetBiddingWindow returns a single window by id.
func (s QueryService) GetBiddingWindow(ctx context.Context, windowID string) (entities.BiddingWindow, error) {
	return s.Windows.GetWindow(ctx, windowID)
}

// ActiveBid is the projection getActiveBidsForOrder returns: it filters on
// biddingWindow.status='OPEN' and bid.status='PLACED'.
type ActiveBid struct {
	Bid entities.Bid
	Window entities.BiddingWindow
}

// GetActiveBidsForOrder implements the paginated active-bids query. The
// Open Question on orderIds indexing is resolved at the
// repository layer (a GIN-indexed jsonb column); this method keeps the
// window's PLACED bids, orders them by PlacedAt, and paginates them.
func (s QueryService) GetActiveBidsForOrder(ctx context.Context, orderID string, page, pageSize int) ([]ActiveBid, error) {
	window, err := s.Windows.GetWindowByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if window.Status != entities.WindowOpen {
		return nil, nil
	}
	bids, err := s.Windows.ListBidsByWindow(ctx, window.WindowID)
	if err != nil {
		return nil, err
	}
	var placed []entities.Bid
	for _, b := range bids {
		if b.Status == entities.BidPlacedStatus {
			placed = append(placed, b)
		}
	}
	sort.Slice(placed, func(i, j int) bool { return placed[i].PlacedAt.Before(placed[j].PlacedAt) })

	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(placed) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(placed) {
		end = len(placed)
	}
	out := make([]ActiveBid, 0, end-start)
	for _, b := range placed[start:end] {
		out = append(out, ActiveBid{Bid: b, Window: window})
	}
	return out, nil
}

// GetMyBids lists a porter's own bid history, most recent first.
func (s QueryService) GetMyBids(ctx context.Context, porterID string, page, pageSize int) ([]entities.Bid, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	return s.Windows.ListBidsByPorter(ctx, porterID, pageSize, (page-1)*pageSize)
}

// PreviewOutcome is the supplemented previewBidOutcome response: the
// hypothetical bid's rank/score/breakdown against the window's current
// PLACED bids, without writing anything.
type PreviewOutcome struct {
	Rank int
	Score float64
	Breakdown strategy.ScoreBreakdown
}

// PreviewBidOutcome merges a hypothetical bid into the window's current
// PLACED bids and returns its projected standing.
func (s QueryService) PreviewBidOutcome(ctx context.Context, windowID, porterID string, amountCents int64, etaMinutes int, metadata entities.PorterMetadata) (PreviewOutcome, error) {
	window, err := s.Windows.GetWindow(ctx, windowID)
	if err != nil {
		return PreviewOutcome{}, err
	}
	strat, err := s.Strategies.GetStrategy(ctx, window.StrategyID)
	if err != nil {
		return PreviewOutcome{}, err
	}
	bids, err := s.Windows.ListBidsByWindow(ctx, windowID)
	if err != nil {
		return PreviewOutcome{}, err
	}
	var existing []entities.Bid
	metaByPorter := map[string]entities.PorterMetadata{porterID: metadata}
	for _, b := range bids {
		if b.Status != entities.BidPlacedStatus {
			continue
		}
		existing = append(existing, b)
		if s.Profiles != nil {
			if m, err := s.Profiles.GetPorterMetadata(ctx, b.PorterID); err == nil {
				metaByPorter[b.PorterID] = m
			}
		}
	}

	hypothetical := entities.Bid{
		BidID: "preview",
		PorterID: porterID,
		AmountCents: amountCents,
		ETAMinutes: etaMinutes,
		PlacedAt: time.Now(),
	}
	breakdown := strategy.Preview(existing, metaByPorter, strat.Weights, hypothetical)
	return PreviewOutcome{Rank: breakdown.Rank, Score: breakdown.Composite, Breakdown: breakdown}, nil
}

// Statistics is the supplemented getStatistics response: window/bid counts
// by status plus two timing means worth surfacing operationally
// (time-to-first-bid, open-to-accept) that have no read model elsewhere.
type Statistics struct {
	WindowsByStatus map[entities.WindowStatus]int
	BidsByStatus map[entities.BidStatus]int
	MeanTimeToFirstBidSec float64
	MeanOpenToAcceptSec float64
}

// GetStatistics aggregates over every window/bid the repository can see.
// StatsRepository is a narrower seam than WindowRepository so the postgres
// adapter can serve it with a handful of aggregate SQL queries instead of
// loading every row into memory.
type StatsRepository interface {
	CountWindowsByStatus(ctx context.Context) (map[entities.WindowStatus]int, error)
	CountBidsByStatus(ctx context.Context) (map[entities.BidStatus]int, error)
	MeanTimeToFirstBidSeconds(ctx context.Context) (float64, error)
	MeanOpenToAcceptSeconds(ctx context.Context) (float64, error)
}

func (s QueryService) GetStatistics(ctx context.Context, repo StatsRepository) (Statistics, error) {
	logger := application.ResolveLogger(s.Logger)
	windowCounts, err := repo.CountWindowsByStatus(ctx)
	if err != nil {
		return Statistics{}, err
	}
	bidCounts, err := repo.CountBidsByStatus(ctx)
	if err != nil {
		return Statistics{}, err
	}
	ttfb, err := repo.MeanTimeToFirstBidSeconds(ctx)
	if err != nil {
		logger.Warn("statistics: time-to-first-bid unavailable",
			"event", "bidding_statistics_ttfb_failed",
			"module", "dispatch/bidding-engine",
			"layer", "application",
			"error", err.Error(),
		)
	}
	openToAccept, err := repo.MeanOpenToAcceptSeconds(ctx)
	if err != nil {
		logger.Warn("statistics: open-to-accept unavailable",
			"event", "bidding_statistics_open_to_accept_failed",
			"module", "dispatch/bidding-engine",
			"layer", "application",
			"error", err.Error(),
		)
	}
	return Statistics{
		WindowsByStatus: windowCounts,
		BidsByStatus: bidCounts,
		MeanTimeToFirstBidSec: ttfb,
		MeanOpenToAcceptSec: openToAccept,
	}, nil
}
