// Package events wires the gateway to the platform event log: a
// publisher adapter satisfying ports.EventPublisher, and registry wiring
// that feeds the subscription router's order-lifecycle consumption.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"porterdispatch/contexts/realtime/gateway-service/application/subscriptions"
	"porterdispatch/contexts/realtime/gateway-service/ports"
	"porterdispatch/internal/platform/eventlog"

	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// Event-log topics the gateway produces onto and consumes from.
const (
	TopicGatewayEvents = "gateway.events"
	TopicOrders = "order.events"
)

// Publisher adapts eventlog.Publisher to ports.EventPublisher.
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

func (p *Publisher) Publish(ctx context.Context, topic string, envelope eventsv1.Envelope) error {
	return p.inner.Publish(ctx, topic, envelope)
}

var _ ports.EventPublisher = (*Publisher)(nil)

// RegisterSubscriptionRouter wires the subscription router's order-lifecycle consumption onto
// registry: every event type the gateway rebroadcasts to order: rooms
// carries an orderId in its payload, so a single generic handler covers
// all six event types.
func RegisterSubscriptionRouter(registry *eventlog.Registry, router subscriptions.Service) {
	orderEventTypes := []string{
		eventsv1.OrderStatusChanged,
		eventsv1.OrderTimelineUpdate,
		eventsv1.OrderAssigned,
		eventsv1.OrderStarted,
		eventsv1.OrderCompleted,
		eventsv1.OrderCancelled,
	}
	for _, eventType := range orderEventTypes {
		registry.On(eventType, func(ctx context.Context, envelope eventsv1.Envelope) error {
			var payload eventsv1.OrderLifecyclePayload
			if err := json.Unmarshal(envelope.Data, &payload); err != nil {
				return err
			}
			raw, err := json.Marshal(envelope)
			if err != nil {
				return err
			}
			return router.ConsumeOrderEvent(ctx, payload.OrderID, raw)
		})
	}
}
