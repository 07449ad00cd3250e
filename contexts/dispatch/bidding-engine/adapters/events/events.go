// Package events wires the bidding engine to the platform event log:
// a publisher adapter satisfying ports.EventPublisher, and registry wiring
// that feeds the four external event kinds DomainEventReactor reacts
// to, grounded on a distribution-service's event log wiring.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/application/workers"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
	"porterdispatch/internal/platform/eventlog"

	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// TopicBidding is where every bidding-engine-originated event is published;
// order/porter lifecycle events the reactor consumes live on their own
// owning context's topics.
const (
	TopicBidding = "bidding.events"
	TopicOrders = "order.events"
	TopicPorters = "porter.events"
)

// Publisher adapts eventlog.Publisher to ports.EventPublisher: it decodes
// the outbox row's already-built envelope and republishes it verbatim.
type Publisher struct {
	inner *eventlog.Publisher
	logger *slog.Logger
}

func NewPublisher(inner *eventlog.Publisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{inner: inner, logger: logger}
}

func (p *Publisher) PublishOutbox(ctx context.Context, rec ports.OutboxRecord) error {
	var envelope eventsv1.Envelope
	if err := json.Unmarshal(rec.Payload, &envelope); err != nil {
		p.logger.Error("bidding outbox publish decode failed",
			"event", "bidding_outbox_publish_decode_failed",
			"module", "dispatch/bidding-engine",
			"layer", "adapter",
			"outbox_id", rec.ID,
			"error", err.Error(),
		)
		return err
	}
	return p.inner.Publish(ctx, TopicBidding, envelope)
}

var _ ports.EventPublisher = (*Publisher)(nil)

// RegisterReactor wires DomainEventReactor's four handlers onto registry,
// keyed by the event types the reactor reacts to. orderAssigned
// additionally needs the Locker/lockTTL acceptBid itself uses, since it
// acquires the same accept:<windowId> critical section.
func RegisterReactor(registry *eventlog.Registry, reactor workers.DomainEventReactor, locker ports.Locker, lockTTL time.Duration) {
	registry.On(eventsv1.OrderCancelled, func(ctx context.Context, envelope eventsv1.Envelope) error {
		return reactor.HandleOrderCancelled(ctx, envelope)
	})
	registry.On(eventsv1.PorterSuspended, func(ctx context.Context, envelope eventsv1.Envelope) error {
		return reactor.HandlePorterSuspended(ctx, envelope)
	})
	registry.On(eventsv1.OrderAssigned, func(ctx context.Context, envelope eventsv1.Envelope) error {
		return reactor.HandleOrderAssigned(ctx, envelope, locker, lockTTL)
	})
	registry.On(eventsv1.OrderCompleted, func(ctx context.Context, envelope eventsv1.Envelope) error {
		return reactor.HandleOrderCompleted(ctx, envelope)
	})
}
