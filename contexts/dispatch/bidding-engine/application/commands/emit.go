package commands

import (
	"context"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

func (uc BiddingUseCase) writeOutbox(ctx context.Context, eventType, aggregateID, correlationID, partitionKey string, occurredAt time.Time, payload any) error {
	if uc.Outbox == nil {
		return nil
	}
	raw, err := application.BuildEnvelopePayload(uc.IDGen.NewID(), eventType, correlationID, uc.source(), partitionKey, occurredAt, payload)
	if err != nil {
		return err
	}
	return uc.Outbox.WriteOutbox(ctx, eventType, aggregateID, correlationID, partitionKey, raw)
}

func (uc BiddingUseCase) emitWindowOpened(ctx context.Context, w entities.BiddingWindow, now time.Time) error {
	return uc.writeOutbox(ctx, eventsv1.BidWindowOpened, w.WindowID, w.CorrelationID, w.WindowID, now, eventsv1.BidWindowOpenedPayload{
		WindowID:      w.WindowID,
		OrderIDs:      w.OrderIDs,
		ExpiresAt:     w.ExpiresAt,
		StrategyID:    w.StrategyID,
		MinimumBidCts: w.MinimumBidCents,
	})
}

func (uc BiddingUseCase) emitBidPlaced(ctx context.Context, b entities.Bid, now time.Time) error {
	return uc.writeOutbox(ctx, eventsv1.BidPlaced, b.BidID, b.CorrelationID, b.WindowID, now, eventsv1.BidPlacedPayload{
		BidID:       b.BidID,
		WindowID:    b.WindowID,
		PorterID:    b.PorterID,
		AmountCents: b.AmountCents,
		ETAMinutes:  b.ETAMinutes,
		PlacedAt:    b.PlacedAt,
	})
}

func (uc BiddingUseCase) emitBidAccepted(ctx context.Context, b entities.Bid, now time.Time) error {
	return uc.writeOutbox(ctx, eventsv1.BidAccepted, b.BidID, b.CorrelationID, b.WindowID, now, eventsv1.BidAcceptedPayload{
		BidID:       b.BidID,
		WindowID:    b.WindowID,
		PorterID:    b.PorterID,
		AmountCents: b.AmountCents,
		AcceptedAt:  now,
		AcceptedBy:  b.AcceptedBy,
	})
}

func (uc BiddingUseCase) emitBidWinnerSelected(ctx context.Context, w entities.BiddingWindow, b entities.Bid, now time.Time) error {
	return uc.writeOutbox(ctx, eventsv1.BidWinnerSelected, w.WindowID, w.CorrelationID, w.WindowID, now, eventsv1.BidWinnerSelectedPayload{
		WindowID:         w.WindowID,
		BidID:            b.BidID,
		OrderIDs:         w.OrderIDs,
		WinnerPorterID:   b.PorterID,
		WinningAmountCts: b.AmountCents,
	})
}

func (uc BiddingUseCase) emitBidCancelled(ctx context.Context, b entities.Bid, now time.Time) error {
	return uc.writeOutbox(ctx, eventsv1.BidCancelled, b.BidID, b.CorrelationID, b.WindowID, now, eventsv1.BidCancelledPayload{
		BidID:    b.BidID,
		WindowID: b.WindowID,
		PorterID: b.PorterID,
		Reason:   b.CancelReason,
	})
}

func (uc BiddingUseCase) emitBidClosed(ctx context.Context, w entities.BiddingWindow, outcome eventsv1.BidClosedOutcome, now time.Time) error {
	return uc.writeOutbox(ctx, eventsv1.BidClosed, w.WindowID, w.CorrelationID, w.WindowID, now, eventsv1.BidClosedPayload{
		WindowID: w.WindowID,
		OrderIDs: w.OrderIDs,
		Outcome:  outcome,
	})
}

func (uc BiddingUseCase) emitBidExpired(ctx context.Context, w entities.BiddingWindow, totalBids int, now time.Time) error {
	return uc.writeOutbox(ctx, eventsv1.BidExpired, w.WindowID, w.CorrelationID, w.WindowID, now, eventsv1.BidExpiredPayload{
		WindowID:  w.WindowID,
		OrderIDs:  w.OrderIDs,
		TotalBids: totalBids,
		ExpiredAt: now,
	})
}
