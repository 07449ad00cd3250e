package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// DomainEventReactor reacts to four external event kinds with forced
// transitions. Every handler is idempotent against redelivery via the
// EventDedupStore, grounded on a dedup-gated-consumer idiom.
type DomainEventReactor struct {
	Windows ports.WindowRepository
	Outbox ports.OutboxWriter
	Dedup ports.EventDedupStore
	Clock ports.Clock
	IDGen ports.IDGenerator
	DedupTTL time.Duration
	SourceService string
	Logger *slog.Logger
}

func (r DomainEventReactor) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (r DomainEventReactor) dedupTTL() time.Duration {
	if r.DedupTTL <= 0 {
		return 24 * time.Hour
	}
	return r.DedupTTL
}

// HandleOrderCancelled cancels every OPEN window containing the order and
// all its PLACED bids.
func (r DomainEventReactor) HandleOrderCancelled(ctx context.Context, envelope eventsv1.Envelope) error {
	logger := application.ResolveLogger(r.Logger)
	if first, err := r.reserve(ctx, envelope); err != nil || !first {
		return err
	}
	var payload eventsv1.OrderLifecyclePayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return err
	}
	window, err := r.Windows.GetWindowByOrder(ctx, payload.OrderID)
	if err != nil {
		return nil // no open window covers this order; nothing to do
	}
	current, err := r.Windows.GetWindow(ctx, window.WindowID)
	if err != nil {
		return err
	}
	if current.Status != entities.WindowOpen {
		return nil // already closed or cancelled via another path
	}
	now := r.now()
	if err := r.Windows.UpdateWindowStatus(ctx, window.WindowID, entities.WindowCancelled, &now); err != nil {
		return err
	}
	bids, err := r.Windows.ListBidsByWindow(ctx, window.WindowID)
	if err != nil {
		return err
	}
	count := 0
	for _, b := range bids {
		if b.Status != entities.BidPlacedStatus {
			continue
		}
		if err := r.Windows.UpdateBidStatus(ctx, b.BidID, entities.BidCancelledStatus, now, ""); err != nil {
			return err
		}
		count++
	}
	logger.Info("order cancelled: window cancelled and bids cancelled",
		"event", "bidding_reactor_order_cancelled",
		"module", "dispatch/bidding-engine",
		"layer", "worker",
		"window_id", window.WindowID,
		"order_id", payload.OrderID,
		"bids_cancelled", count,
	)
	return nil
}

// HandlePorterSuspended cancels every PLACED bid by the suspended porter
// across all windows.
func (r DomainEventReactor) HandlePorterSuspended(ctx context.Context, envelope eventsv1.Envelope) error {
	logger := application.ResolveLogger(r.Logger)
	if first, err := r.reserve(ctx, envelope); err != nil || !first {
		return err
	}
	var payload eventsv1.PorterSuspendedPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return err
	}
	now := r.now()
	bids, err := r.Windows.ListBidsByPorter(ctx, payload.PorterID, 0, 0)
	if err != nil {
		return err
	}
	cancelled := 0
	for _, b := range bids {
		if b.Status != entities.BidPlacedStatus {
			continue
		}
		if err := r.Windows.UpdateBidStatus(ctx, b.BidID, entities.BidCancelledStatus, now, ""); err != nil {
			return err
		}
		cancelled++
	}
	logger.Info("porter suspended: bids cancelled",
		"event", "bidding_reactor_porter_suspended",
		"module", "dispatch/bidding-engine",
		"layer", "worker",
		"porter_id", payload.PorterID,
		"bids_cancelled", cancelled,
	)
	return nil
}

// HandleOrderAssigned closes every OPEN window covering the order (another
// path to fulfillment was chosen externally). This acquires the same
// accept:<windowId> lock acceptBid uses, resolving the race 
// documents: whichever path reaches the lock first wins.
func (r DomainEventReactor) HandleOrderAssigned(ctx context.Context, envelope eventsv1.Envelope, locker ports.Locker, lockTTL time.Duration) error {
	logger := application.ResolveLogger(r.Logger)
	if first, err := r.reserve(ctx, envelope); err != nil || !first {
		return err
	}
	var payload eventsv1.OrderLifecyclePayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return err
	}
	window, err := r.Windows.GetWindowByOrder(ctx, payload.OrderID)
	if err != nil {
		return nil
	}
	return locker.WithLock(ctx, "accept:"+window.WindowID, lockTTL, func(ctx context.Context) error {
		current, err := r.Windows.GetWindow(ctx, window.WindowID)
		if err != nil {
			return err
		}
		if current.Status != entities.WindowOpen {
			return nil // already closed via acceptBid or another reactor pass
		}
		now := r.now()
		_, expiredCount, err := r.Windows.CloseAndExpire(ctx, window.WindowID, now)
		if err != nil {
			return err
		}
		logger.Info("order assigned externally: window closed",
			"event", "bidding_reactor_order_assigned",
			"module", "dispatch/bidding-engine",
			"layer", "worker",
			"window_id", window.WindowID,
			"order_id", payload.OrderID,
			"bids_expired", expiredCount,
		)
		return nil
	})
}

// HandleOrderCompleted is informational only.
func (r DomainEventReactor) HandleOrderCompleted(ctx context.Context, envelope eventsv1.Envelope) error {
	logger := application.ResolveLogger(r.Logger)
	if first, err := r.reserve(ctx, envelope); err != nil || !first {
		return err
	}
	logger.Debug("order completed event observed",
		"event", "bidding_reactor_order_completed",
		"module", "dispatch/bidding-engine",
		"layer", "worker",
		"correlation_id", envelope.CorrelationID,
	)
	return nil
}

func (r DomainEventReactor) reserve(ctx context.Context, envelope eventsv1.Envelope) (bool, error) {
	if r.Dedup == nil {
		return true, nil
	}
	hash := envelope.EventID + ":" + string(envelope.Data)
	return r.Dedup.ReserveEvent(ctx, envelope.EventID, hash, r.now().Add(r.dedupTTL()))
}
