// Package http is the bidding engine's transport-facing facade: one method
// per RPC operation, each logging received/failed/succeeded around a call
// into the application layer, grounded on a voting-engine-style
// adapters/http handler.
package http

import (
	"context"
	"log/slog"

	application "porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/application/commands"
	"porterdispatch/contexts/dispatch/bidding-engine/application/queries"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	biddinghttp "porterdispatch/contexts/dispatch/bidding-engine/transport/http"
)

// Handler wraps the command/query use cases behind a single facade the
// platform httpserver calls into.
type Handler struct {
	UseCase commands.BiddingUseCase
	Queries queries.QueryService
	Stats queries.StatsRepository
	Logger *slog.Logger
}

func (h Handler) logger() *slog.Logger {
	return application.ResolveLogger(h.Logger)
}

func toPorterFilters(in []biddinghttp.PorterFilterDTO) []entities.PorterFilter {
	if in == nil {
		return nil
	}
	out := make([]entities.PorterFilter, len(in))
	for i, f := range in {
		out[i] = entities.PorterFilter{Key: f.Key, Value: f.Value}
	}
	return out
}

func fromPorterFilters(in []entities.PorterFilter) []biddinghttp.PorterFilterDTO {
	if in == nil {
		return nil
	}
	out := make([]biddinghttp.PorterFilterDTO, len(in))
	for i, f := range in {
		out[i] = biddinghttp.PorterFilterDTO{Key: f.Key, Value: f.Value}
	}
	return out
}

func toMetadata(in biddinghttp.PorterMetadataDTO) entities.PorterMetadata {
	return entities.PorterMetadata{Rating: in.Rating, Reliability: in.Reliability, DistanceMeter: in.DistanceMeter}
}

func fromMetadata(in entities.PorterMetadata) biddinghttp.PorterMetadataDTO {
	return biddinghttp.PorterMetadataDTO{Rating: in.Rating, Reliability: in.Reliability, DistanceMeter: in.DistanceMeter}
}

func mapWindow(w entities.BiddingWindow) biddinghttp.WindowResponse {
	return biddinghttp.WindowResponse{
		WindowID: w.WindowID,
		OrderIDs: w.OrderIDs,
		Status: string(w.Status),
		StrategyID: w.StrategyID,
		MinimumBidCents: w.MinimumBidCents,
		ReservePriceCents: w.ReservePriceCents,
		PorterFilters: fromPorterFilters(w.PorterFilters),
		MaxBidsPerPorter: w.MaxBidsPerPorter,
		OpenAt: w.OpenAt,
		ExpiresAt: w.ExpiresAt,
		ClosedAt: w.ClosedAt,
		CreatedBy: w.CreatedBy,
	}
}

func mapBid(b entities.Bid) biddinghttp.BidResponse {
	return biddinghttp.BidResponse{
		BidID: b.BidID,
		WindowID: b.WindowID,
		PorterID: b.PorterID,
		AmountCents: b.AmountCents,
		ETAMinutes: b.ETAMinutes,
		Status: string(b.Status),
		PlacedAt: b.PlacedAt,
		TerminalAt: b.TerminalAt,
		CancelReason: b.CancelReason,
		AcceptedBy: b.AcceptedBy,
		Metadata: fromMetadata(b.Metadata),
	}
}

// OpenWindowHandler implements the openWindow RPC.
func (h Handler) OpenWindowHandler(ctx context.Context, createdBy, idempotencyKey string, req biddinghttp.OpenWindowRequest) (biddinghttp.WindowResponse, error) {
	h.logger().Info("bidding open window request received",
		"event", "bidding_http_open_window_received",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"order_ids", req.OrderIDs,
	)
	res, err := h.UseCase.OpenWindow(ctx, commands.OpenWindowCommand{
		OrderIDs: req.OrderIDs,
		DurationSec: req.DurationSec,
		StrategyID: req.StrategyID,
		MinimumBidCents: req.MinimumBidCents,
		ReservePriceCents: req.ReservePriceCents,
		PorterFilters: toPorterFilters(req.PorterFilters),
		MaxBidsPerPorter: req.MaxBidsPerPorter,
		CreatedBy: createdBy,
		CorrelationID: req.CorrelationID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		h.logger().Warn("bidding open window request failed",
			"event", "bidding_http_open_window_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"error", err.Error(),
		)
		return biddinghttp.WindowResponse{}, err
	}
	resp := mapWindow(res.Window)
	resp.Replayed = res.Replayed
	h.logger().Info("bidding open window request completed",
		"event", "bidding_http_open_window_completed",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"window_id", resp.WindowID,
	)
	return resp, nil
}

// PlaceBidHandler implements the placeBid RPC.
func (h Handler) PlaceBidHandler(ctx context.Context, windowID, porterID, idempotencyKey string, req biddinghttp.PlaceBidRequest) (biddinghttp.BidResponse, error) {
	h.logger().Info("bidding place bid request received",
		"event", "bidding_http_place_bid_received",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"window_id", windowID,
		"porter_id", porterID,
	)
	res, err := h.UseCase.PlaceBid(ctx, commands.PlaceBidCommand{
		WindowID: windowID,
		PorterID: porterID,
		AmountCents: req.AmountCents,
		ETAMinutes: req.ETAMinutes,
		Metadata: toMetadata(req.Metadata),
		IdempotencyKey: idempotencyKey,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		h.logger().Warn("bidding place bid request failed",
			"event", "bidding_http_place_bid_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"window_id", windowID,
			"porter_id", porterID,
			"error", err.Error(),
		)
		return biddinghttp.BidResponse{}, err
	}
	resp := mapBid(res.Bid)
	resp.Replayed = res.Replayed
	resp.CurrentTopCents = res.CurrentTopCents
	resp.TentativeRank = res.TentativeRank
	h.logger().Info("bidding place bid request completed",
		"event", "bidding_http_place_bid_completed",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"bid_id", resp.BidID,
	)
	return resp, nil
}

// AcceptBidHandler implements the acceptBid RPC.
func (h Handler) AcceptBidHandler(ctx context.Context, windowID, bidID, acceptedBy string, req biddinghttp.AcceptBidRequest) (biddinghttp.BidResponse, error) {
	h.logger().Info("bidding accept bid request received",
		"event", "bidding_http_accept_bid_received",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"window_id", windowID,
		"bid_id", bidID,
	)
	bid, err := h.UseCase.AcceptBid(ctx, commands.AcceptBidCommand{
		WindowID: windowID,
		BidID: bidID,
		AcceptedBy: acceptedBy,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		h.logger().Warn("bidding accept bid request failed",
			"event", "bidding_http_accept_bid_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"window_id", windowID,
			"bid_id", bidID,
			"error", err.Error(),
		)
		return biddinghttp.BidResponse{}, err
	}
	h.logger().Info("bidding accept bid request completed",
		"event", "bidding_http_accept_bid_completed",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"bid_id", bid.BidID,
	)
	return mapBid(bid), nil
}

// CancelBidHandler implements the cancelBid RPC.
func (h Handler) CancelBidHandler(ctx context.Context, bidID, porterID string, req biddinghttp.CancelBidRequest) error {
	h.logger().Info("bidding cancel bid request received",
		"event", "bidding_http_cancel_bid_received",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"bid_id", bidID,
	)
	if err := h.UseCase.CancelBid(ctx, commands.CancelBidCommand{BidID: bidID, PorterID: porterID, Reason: req.Reason}); err != nil {
		h.logger().Warn("bidding cancel bid request failed",
			"event", "bidding_http_cancel_bid_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"bid_id", bidID,
			"error", err.Error(),
		)
		return err
	}
	h.logger().Info("bidding cancel bid request completed",
		"event", "bidding_http_cancel_bid_completed",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"bid_id", bidID,
	)
	return nil
}

// CloseWindowHandler implements the closeWindow RPC.
func (h Handler) CloseWindowHandler(ctx context.Context, windowID, actor string, req biddinghttp.CloseWindowRequest) error {
	h.logger().Info("bidding close window request received",
		"event", "bidding_http_close_window_received",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"window_id", windowID,
	)
	if err := h.UseCase.CloseWindow(ctx, commands.CloseWindowCommand{WindowID: windowID, Actor: actor, CorrelationID: req.CorrelationID}); err != nil {
		h.logger().Warn("bidding close window request failed",
			"event", "bidding_http_close_window_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"window_id", windowID,
			"error", err.Error(),
		)
		return err
	}
	h.logger().Info("bidding close window request completed",
		"event", "bidding_http_close_window_completed",
		"module", "dispatch/bidding-engine",
		"layer", "adapter",
		"window_id", windowID,
	)
	return nil
}

// GetBiddingWindowHandler implements the getBiddingWindow read.
func (h Handler) GetBiddingWindowHandler(ctx context.Context, windowID string) (biddinghttp.WindowResponse, error) {
	window, err := h.Queries.GetBiddingWindow(ctx, windowID)
	if err != nil {
		h.logger().Warn("bidding get window request failed",
			"event", "bidding_http_get_window_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"window_id", windowID,
			"error", err.Error(),
		)
		return biddinghttp.WindowResponse{}, err
	}
	return mapWindow(window), nil
}

// GetActiveBidsForOrderHandler implements the getActiveBidsForOrder read.
func (h Handler) GetActiveBidsForOrderHandler(ctx context.Context, orderID string, page, pageSize int) (biddinghttp.ActiveBidsResponse, error) {
	bids, err := h.Queries.GetActiveBidsForOrder(ctx, orderID, page, pageSize)
	if err != nil {
		h.logger().Warn("bidding get active bids request failed",
			"event", "bidding_http_get_active_bids_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"order_id", orderID,
			"error", err.Error(),
		)
		return biddinghttp.ActiveBidsResponse{}, err
	}
	items := make([]biddinghttp.ActiveBidResponse, 0, len(bids))
	for _, b := range bids {
		items = append(items, biddinghttp.ActiveBidResponse{Bid: mapBid(b.Bid), Window: mapWindow(b.Window)})
	}
	return biddinghttp.ActiveBidsResponse{Items: items, Page: page}, nil
}

// GetMyBidsHandler implements the getMyBids read.
func (h Handler) GetMyBidsHandler(ctx context.Context, porterID string, page, pageSize int) (biddinghttp.MyBidsResponse, error) {
	bids, err := h.Queries.GetMyBids(ctx, porterID, page, pageSize)
	if err != nil {
		h.logger().Warn("bidding get my bids request failed",
			"event", "bidding_http_get_my_bids_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"porter_id", porterID,
			"error", err.Error(),
		)
		return biddinghttp.MyBidsResponse{}, err
	}
	items := make([]biddinghttp.BidResponse, 0, len(bids))
	for _, b := range bids {
		items = append(items, mapBid(b))
	}
	return biddinghttp.MyBidsResponse{Items: items, Page: page}, nil
}

// PreviewBidOutcomeHandler implements the supplemented previewBidOutcome read.
func (h Handler) PreviewBidOutcomeHandler(ctx context.Context, windowID, porterID string, req biddinghttp.PreviewBidOutcomeRequest) (biddinghttp.PreviewBidOutcomeResponse, error) {
	outcome, err := h.Queries.PreviewBidOutcome(ctx, windowID, porterID, int64(req.AmountCents), req.ETAMinutes, toMetadata(req.Metadata))
	if err != nil {
		h.logger().Warn("bidding preview outcome request failed",
			"event", "bidding_http_preview_outcome_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"window_id", windowID,
			"error", err.Error(),
		)
		return biddinghttp.PreviewBidOutcomeResponse{}, err
	}
	return biddinghttp.PreviewBidOutcomeResponse{
		Rank: outcome.Rank,
		Score: outcome.Score,
		Breakdown: biddinghttp.ScoreBreakdownDTO{
			PriceScore: outcome.Breakdown.PriceScore,
			ETAScore: outcome.Breakdown.ETAScore,
			RatingScore: outcome.Breakdown.RatingScore,
			ReliabilityScore: outcome.Breakdown.ReliabilityScore,
			DistanceScore: outcome.Breakdown.DistanceScore,
			Composite: outcome.Breakdown.Composite,
		},
	}, nil
}

// GetStatisticsHandler implements the supplemented getStatistics read.
func (h Handler) GetStatisticsHandler(ctx context.Context) (biddinghttp.StatisticsResponse, error) {
	stats, err := h.Queries.GetStatistics(ctx, h.Stats)
	if err != nil {
		h.logger().Warn("bidding get statistics request failed",
			"event", "bidding_http_get_statistics_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"error", err.Error(),
		)
		return biddinghttp.StatisticsResponse{}, err
	}
	windowsByStatus := make(map[string]int, len(stats.WindowsByStatus))
	for k, v := range stats.WindowsByStatus {
		windowsByStatus[string(k)] = v
	}
	bidsByStatus := make(map[string]int, len(stats.BidsByStatus))
	for k, v := range stats.BidsByStatus {
		bidsByStatus[string(k)] = v
	}
	return biddinghttp.StatisticsResponse{
		WindowsByStatus: windowsByStatus,
		BidsByStatus: bidsByStatus,
		MeanTimeToFirstBidSec: stats.MeanTimeToFirstBidSec,
		MeanOpenToAcceptSec: stats.MeanOpenToAcceptSec,
	}, nil
}
