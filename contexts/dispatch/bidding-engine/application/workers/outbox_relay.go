package workers

import (
	"context"
	"log/slog"
	"time"

	application "porterdispatch/contexts/dispatch/bidding-engine/application"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
)

// OutboxRelay publishes persisted outbox rows to the event log, marking
// each published only after the publish call succeeds, grounded on the
// teacher's OutboxRelay worker.
type OutboxRelay struct {
	Outbox    ports.OutboxRepository
	Publisher ports.EventPublisher
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (r OutboxRelay) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

// RunOnce publishes a bounded batch of pending rows. It stops at the first
// publish failure so the row (and everything after it) is retried next
// cycle rather than silently skipped.
func (r OutboxRelay) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = 100
	}

	pending, err := r.Outbox.ListPending(ctx, limit)
	if err != nil {
		logger.Error("outbox relay list failed",
			"event", "bidding_outbox_relay_list_failed",
			"module", "dispatch/bidding-engine",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	now := r.now()
	for _, rec := range pending {
		if err := r.Publisher.PublishOutbox(ctx, rec); err != nil {
			logger.Error("outbox relay publish failed",
				"event", "bidding_outbox_relay_publish_failed",
				"module", "dispatch/bidding-engine",
				"layer", "worker",
				"outbox_id", rec.ID,
				"event_type", rec.EventType,
				"error", err.Error(),
			)
			_ = r.Outbox.MarkFailed(ctx, rec.ID, err.Error())
			return err
		}
		if err := r.Outbox.MarkPublished(ctx, rec.ID, now); err != nil {
			logger.Error("outbox relay mark published failed",
				"event", "bidding_outbox_relay_mark_published_failed",
				"module", "dispatch/bidding-engine",
				"layer", "worker",
				"outbox_id", rec.ID,
				"error", err.Error(),
			)
			return err
		}
	}
	logger.Info("outbox relay cycle completed",
		"event", "bidding_outbox_relay_completed",
		"module", "dispatch/bidding-engine",
		"layer", "worker",
		"published_count", len(pending),
	)
	return nil
}

// Run loops RunOnce on the given interval until ctx is cancelled.
func (r OutboxRelay) Run(ctx context.Context, interval time.Duration) {
	logger := application.ResolveLogger(r.Logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				logger.Error("outbox relay tick error",
					"event", "bidding_outbox_relay_tick_error",
					"module", "dispatch/bidding-engine",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		}
	}
}
