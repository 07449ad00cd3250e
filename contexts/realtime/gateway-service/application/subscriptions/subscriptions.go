// Package subscriptions implements the subscription router: per-order
// broadcast rooms, authorization, and cross-instance fan-out of order
// lifecycle events consumed from the event log.
package subscriptions

import (
	"context"
	"fmt"
	"log/slog"

	"porterdispatch/contexts/realtime/gateway-service/application"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
	"porterdispatch/contexts/realtime/gateway-service/ports"
)

// Room returns the broadcast room name for an order.
func Room(orderID string) string { return "order:" + orderID }

type Service struct {
	Subscriptions ports.SubscriptionRegistry
	Rooms ports.RoomBroadcaster
	Authorizer ports.OrderAuthorizer
	Logger *slog.Logger
}

func (s Service) logger() *slog.Logger { return application.ResolveLogger(s.Logger) }

// Subscribe joins userID to orderID's room, if authorized.
func (s Service) Subscribe(ctx context.Context, userID string, role entities.Role, orderID string) error {
	ok, err := s.Authorizer.IsAuthorizedForOrder(ctx, userID, role, orderID)
	if err != nil {
		return fmt.Errorf("check order authorization: %w", err)
	}
	if !ok {
		s.logger().Warn("order subscribe denied",
			"event", "gateway_order_subscribe_denied",
			"module", "realtime/gateway-service",
			"layer", "application",
			"user_id", userID,
			"order_id", orderID,
		)
		return domainerrors.ErrForbidden
	}
	if err := s.Subscriptions.Subscribe(ctx, orderID, userID); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger().Info("order subscribed",
		"event", "gateway_order_subscribed",
		"module", "realtime/gateway-service",
		"layer", "application",
		"user_id", userID,
		"order_id", orderID,
	)
	return nil
}

// Unsubscribe removes userID from orderID's room.
func (s Service) Unsubscribe(ctx context.Context, userID, orderID string) error {
	return s.Subscriptions.Unsubscribe(ctx, orderID, userID)
}

// Broadcast fans an arbitrary payload to every subscriber of orderID
// across every gateway instance, via the ephemeral store's pub/sub.
func (s Service) Broadcast(ctx context.Context, orderID string, message []byte) error {
	return s.Rooms.Publish(ctx, Room(orderID), message)
}

// ConsumeOrderEvent handles one of the order-lifecycle events the gateway
// subscribes to from the event log (OrderStatusChanged, OrderTimelineUpdated,
// OrderAssigned, OrderStarted, OrderCompleted, OrderCancelled) and rebroadcasts
// it verbatim to the order's room.
func (s Service) ConsumeOrderEvent(ctx context.Context, orderID string, rawEvent []byte) error {
	if err := s.Broadcast(ctx, orderID, rawEvent); err != nil {
		s.logger().Error("order event fan-out failed",
			"event", "gateway_order_event_fanout_failed",
			"module", "realtime/gateway-service",
			"layer", "application",
			"order_id", orderID,
			"error", err.Error(),
		)
		return err
	}
	return nil
}
