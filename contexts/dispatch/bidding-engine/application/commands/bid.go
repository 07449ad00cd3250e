package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	application "porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	domainerrors "porterdispatch/contexts/dispatch/bidding-engine/domain/errors"
)

// PlaceBidCommand is the write-model input for a porter's bid.
type PlaceBidCommand struct {
	WindowID string
	PorterID string
	AmountCents int64
	ETAMinutes int
	Metadata entities.PorterMetadata
	IdempotencyKey string
	CorrelationID string
}

// PlaceBidResult carries UI-feedback fields that ocuments as
// best-effort and not serialized into the persisted bid row.
type PlaceBidResult struct {
	Bid entities.Bid
	Replayed bool
	CurrentTopCents int64
	TentativeRank int
}

// PlaceBid places a new bid against an open window.
func (uc BiddingUseCase) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (PlaceBidResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	logger.Info("place bid started",
		"event", "bidding_place_bid_started",
		"module", "dispatch/bidding-engine",
		"layer", "application",
		"window_id", cmd.WindowID,
		"porter_id", cmd.PorterID,
		"amount_cents", cmd.AmountCents,
	)

	if strings.TrimSpace(cmd.IdempotencyKey) == "" {
		return PlaceBidResult{}, fmt.Errorf("%w: idempotencyKey required", domainerrors.ErrInvalidInput)
	}

	requestHash := hashPlaceBidCommand(cmd)
	if replay, found, err := uc.checkIdempotency(ctx, cmd.IdempotencyKey, requestHash); err != nil {
		return PlaceBidResult{}, err
	} else if found {
		var b entities.Bid
		if err := json.Unmarshal(replay, &b); err != nil {
			return PlaceBidResult{}, err
		}
		logger.Info("place bid replayed",
			"event", "bidding_place_bid_replayed",
			"module", "dispatch/bidding-engine",
			"layer", "application",
			"bid_id", b.BidID,
		)
		return PlaceBidResult{Bid: b, Replayed: true}, nil
	}

	window, err := uc.loadWindow(ctx, cmd.WindowID)
	if err != nil {
		return PlaceBidResult{}, err
	}
	now := uc.now()
	if window.Status != entities.WindowOpen {
		return PlaceBidResult{}, domainerrors.ErrWindowNotOpen
	}
	if window.IsExpired(now) {
		return PlaceBidResult{}, domainerrors.ErrWindowExpired
	}
	if cmd.AmountCents < window.MinimumBidCents {
		return PlaceBidResult{}, domainerrors.ErrBidTooLow
	}

	count, err := uc.Windows.CountPorterBidsInWindow(ctx, cmd.WindowID, cmd.PorterID)
	if err != nil {
		return PlaceBidResult{}, err
	}
	maxBids := window.MaxBidsPerPorter
	if maxBids <= 0 {
		maxBids = 1
	}
	if count >= maxBids {
		return PlaceBidResult{}, domainerrors.ErrPorterLimit
	}

	if uc.Eligibility != nil {
		eligible, err := uc.Eligibility.IsEligible(ctx, cmd.PorterID, window.PorterFilters)
		if err != nil {
			return PlaceBidResult{}, err
		}
		if !eligible {
			return PlaceBidResult{}, domainerrors.ErrPorterIneligible
		}
	}

	bid := entities.Bid{
		BidID: uc.IDGen.NewID(),
		WindowID: cmd.WindowID,
		PorterID: cmd.PorterID,
		AmountCents: cmd.AmountCents,
		ETAMinutes: cmd.ETAMinutes,
		Status: entities.BidPlacedStatus,
		PlacedAt: now,
		IdempotencyKey: cmd.IdempotencyKey,
		CorrelationID: cmd.CorrelationID,
		Metadata: cmd.Metadata,
	}
	if err := uc.Windows.PlaceBid(ctx, bid); err != nil {
		return PlaceBidResult{}, err
	}
	if err := uc.Windows.AppendAudit(ctx, entities.BidAuditEvent{
		EventID: uc.IDGen.NewID(),
		BidID: bid.BidID,
		Kind: entities.AuditPlaced,
		OccurredAt: now,
		Actor: cmd.PorterID,
		CorrelationID: cmd.CorrelationID,
	}); err != nil {
		return PlaceBidResult{}, err
	}
	if err := uc.emitBidPlaced(ctx, bid, now); err != nil {
		return PlaceBidResult{}, err
	}
	if err := uc.saveIdempotentResult(ctx, cmd.IdempotencyKey, requestHash, bid); err != nil {
		return PlaceBidResult{}, err
	}

	topCents, rank := uc.tentativeStanding(ctx, window, bid)
	logger.Info("bid placed",
		"event", "bidding_bid_placed",
		"module", "dispatch/bidding-engine",
		"layer", "application",
		"bid_id", bid.BidID,
		"window_id", cmd.WindowID,
		"porter_id", cmd.PorterID,
	)
	return PlaceBidResult{Bid: bid, CurrentTopCents: topCents, TentativeRank: rank}, nil
}

// CancelBidCommand requests a porter-initiated cancellation.
type CancelBidCommand struct {
	BidID string
	PorterID string
	Reason string
	CorrelationID string
}

// CancelBid withdraws a bid, only permitted while PLACED.
func (uc BiddingUseCase) CancelBid(ctx context.Context, cmd CancelBidCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	bid, err := uc.Windows.GetBid(ctx, cmd.BidID)
	if err != nil {
		return err
	}
	if cmd.PorterID != "" && bid.PorterID != cmd.PorterID {
		return domainerrors.ErrNotBidOwner
	}
	if bid.Status != entities.BidPlacedStatus {
		return domainerrors.ErrBidTerminal
	}

	now := uc.now()
	if err := uc.Windows.UpdateBidStatus(ctx, bid.BidID, entities.BidCancelledStatus, now, ""); err != nil {
		return err
	}
	bid.Status = entities.BidCancelledStatus
	bid.CancelReason = cmd.Reason
	if err := uc.Windows.AppendAudit(ctx, entities.BidAuditEvent{
		EventID: uc.IDGen.NewID(),
		BidID: bid.BidID,
		Kind: entities.AuditCancelled,
		OccurredAt: now,
		Actor: cmd.PorterID,
		CorrelationID: cmd.CorrelationID,
	}); err != nil {
		return err
	}
	if err := uc.emitBidCancelled(ctx, bid, now); err != nil {
		return err
	}
	logger.Info("bid cancelled",
		"event", "bidding_bid_cancelled",
		"module", "dispatch/bidding-engine",
		"layer", "application",
		"bid_id", bid.BidID,
		"reason", cmd.Reason,
	)
	return nil
}

func (uc BiddingUseCase) loadWindow(ctx context.Context, windowID string) (entities.BiddingWindow, error) {
	if uc.Cache != nil {
		if raw, found, err := uc.Cache.GetWindow(cacheKey(windowID)); err == nil && found {
			var w entities.BiddingWindow
			if err := json.Unmarshal(raw, &w); err == nil {
				return w, nil
			}
		}
	}
	return uc.Windows.GetWindow(ctx, windowID)
}

// tentativeStanding is best-effort UI feedback computed against whatever
// bids are currently loadable; failures are swallowed since this data is
// never persisted.
func (uc BiddingUseCase) tentativeStanding(ctx context.Context, window entities.BiddingWindow, bid entities.Bid) (int64, int) {
	bids, err := uc.Windows.ListBidsByWindow(ctx, window.WindowID)
	if err != nil {
		return bid.AmountCents, 1
	}
	top := bid.AmountCents
	rank := 1
	for _, b := range bids {
		if b.Status != entities.BidPlacedStatus && b.BidID != bid.BidID {
			continue
		}
		if b.AmountCents < top {
			top = b.AmountCents
		}
		if b.AmountCents < bid.AmountCents {
			rank++
		}
	}
	return top, rank
}

func hashPlaceBidCommand(cmd PlaceBidCommand) string {
	payload := map[string]any{
		"window_id": cmd.WindowID,
		"porter_id": cmd.PorterID,
		"amount": cmd.AmountCents,
		"eta": cmd.ETAMinutes,
		"op": "place_bid",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
