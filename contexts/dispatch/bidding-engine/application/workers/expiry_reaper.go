package workers

import (
	"context"
	"log/slog"
	"time"

	application "porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// ExpiryReaper is a periodic sweep (tick interval <= 10s) over OPEN
// windows whose deadline has passed, closing each with the same atomic
// transaction closeWindow uses. One window's failure never halts
// the scan, grounded on a bulk-transition idiom.
type ExpiryReaper struct {
	Windows ports.WindowRepository
	Outbox ports.OutboxWriter
	Clock ports.Clock
	IDGen ports.IDGenerator
	BatchSize int
	SourceService string
	Logger *slog.Logger
}

func (r ExpiryReaper) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// Tick scans for expired OPEN windows and closes each one.
func (r ExpiryReaper) Tick(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}
	now := r.now()

	expired, err := r.Windows.ListExpiredOpenWindows(ctx, now, limit)
	if err != nil {
		logger.Error("expiry reaper scan failed",
			"event", "bidding_expiry_reaper_scan_failed",
			"module", "dispatch/bidding-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	for _, w := range expired {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.closeOne(ctx, w, now); err != nil {
			logger.Error("expiry reaper failed to close window",
				"event", "bidding_expiry_reaper_close_failed",
				"module", "dispatch/bidding-engine",
				"layer", "worker",
				"window_id", w.WindowID,
				"error", err.Error(),
			)
			continue
		}
	}
	logger.Info("expiry reaper tick completed",
		"event", "bidding_expiry_reaper_tick_completed",
		"module", "dispatch/bidding-engine",
		"layer", "worker",
		"windows_closed", len(expired),
	)
	return nil
}

func (r ExpiryReaper) closeOne(ctx context.Context, w entities.BiddingWindow, now time.Time) error {
	closed, expiredCount, err := r.Windows.CloseAndExpire(ctx, w.WindowID, now)
	if err != nil {
		return err
	}

	if err := r.emit(ctx, eventsv1.BidExpired, closed.WindowID, closed.CorrelationID, closed.WindowID, now, eventsv1.BidExpiredPayload{
		WindowID: closed.WindowID,
		OrderIDs: closed.OrderIDs,
		TotalBids: expiredCount,
		ExpiredAt: now,
	}); err != nil {
		return err
	}

	outcome := eventsv1.OutcomeExpired
	if expiredCount == 0 {
		outcome = eventsv1.OutcomeNoBids
	}
	return r.emit(ctx, eventsv1.BidClosed, closed.WindowID, closed.CorrelationID, closed.WindowID, now, eventsv1.BidClosedPayload{
		WindowID: closed.WindowID,
		OrderIDs: closed.OrderIDs,
		Outcome: outcome,
	})
}

func (r ExpiryReaper) emit(ctx context.Context, eventType, aggregateID, correlationID, partitionKey string, occurredAt time.Time, payload any) error {
	if r.Outbox == nil {
		return nil
	}
	source := r.SourceService
	if source == "" {
		source = "bidding-engine"
	}
	raw, err := application.BuildEnvelopePayload(r.IDGen.NewID(), eventType, correlationID, source, partitionKey, occurredAt, payload)
	if err != nil {
		return err
	}
	return r.Outbox.WriteOutbox(ctx, eventType, aggregateID, correlationID, partitionKey, raw)
}

// Run loops Tick on the given interval until ctx is cancelled, skipping a
// tick if the previous one hasn't completed.
func (r ExpiryReaper) Run(ctx context.Context, interval time.Duration) {
	logger := application.ResolveLogger(r.Logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	idle := make(chan struct{}, 1)
	idle <- struct{}{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-idle:
			default:
				logger.Debug("expiry reaper tick skipped: previous tick still running",
					"event", "bidding_expiry_reaper_tick_skipped",
					"module", "dispatch/bidding-engine",
					"layer", "worker",
				)
				continue
			}
			if err := r.Tick(ctx); err != nil {
				logger.Error("expiry reaper tick error",
					"event", "bidding_expiry_reaper_tick_error",
					"module", "dispatch/bidding-engine",
					"layer", "worker",
					"error", err.Error(),
				)
			}
			idle <- struct{}{}
		}
	}
}
