// Package chat implements the chat relay: per-order messaging rooms
// and best-effort typing indicators.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/application"
	"porterdispatch/contexts/realtime/gateway-service/application/subscriptions"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
	"porterdispatch/contexts/realtime/gateway-service/ports"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// TopicChatMessages is the event-log topic sent messages persist to —
// chat has no database of its own.
const TopicChatMessages = "chat-messages"

// MaxContentLength is this layer's content length ceiling.
const MaxContentLength = 5000

type Service struct {
	Subscriptions ports.SubscriptionRegistry
	Rooms ports.RoomBroadcaster
	RateLimiter ports.RateLimiter
	Publisher ports.EventPublisher
	Clock ports.Clock
	IDGen ports.IDGenerator
	Logger *slog.Logger
	RatePoints int64
	RateWindow time.Duration
}

func (s Service) logger() *slog.Logger { return application.ResolveLogger(s.Logger) }

// SendMessage validates, rate-limits, persists (via the event log), and
// broadcasts a chat message.
func (s Service) SendMessage(ctx context.Context, orderID, senderID string, senderRole entities.Role, content, tempID string) (entities.ChatMessage, error) {
	if len(content) == 0 || len(content) > MaxContentLength {
		return entities.ChatMessage{}, fmt.Errorf("%w: content length must be in (0, %d]", domainerrors.ErrInvalidPayload, MaxContentLength)
	}

	subscribed, err := s.Subscriptions.IsSubscribed(ctx, orderID, senderID)
	if err != nil {
		return entities.ChatMessage{}, fmt.Errorf("check subscription: %w", err)
	}
	if !subscribed {
		return entities.ChatMessage{}, domainerrors.ErrNotSubscribed
	}

	allowed, err := s.RateLimiter.Allow(ctx, "chat:"+senderID, s.RatePoints, s.RateWindow)
	if err != nil {
		return entities.ChatMessage{}, fmt.Errorf("check rate limit: %w", err)
	}
	if !allowed {
		return entities.ChatMessage{}, domainerrors.ErrRateLimitExceeded
	}

	msg := entities.ChatMessage{
		MessageID: s.IDGen.NewID(),
		OrderID: orderID,
		SenderID: senderID,
		SenderRole: senderRole,
		Content: content,
		TempID: tempID,
		SentAt: s.Clock.Now(),
	}

	envelope, err := eventsv1.New(
		s.IDGen.NewID(),
		eventsv1.ChatMessageSent,
		msg.MessageID,
		"gateway-service",
		orderID,
		msg.SentAt,
		eventsv1.ChatMessageSentPayload{
			MessageID: msg.MessageID,
			OrderID: msg.OrderID,
			SenderID: msg.SenderID,
			SenderRole: string(msg.SenderRole),
			Content: msg.Content,
			Timestamp: msg.SentAt,
		},
	)
	if err != nil {
		return entities.ChatMessage{}, err
	}
	if err := s.Publisher.Publish(ctx, TopicChatMessages, envelope); err != nil {
		return entities.ChatMessage{}, fmt.Errorf("publish chat message: %w", err)
	}

	broadcastPayload, err := json.Marshal(ports.ChatMessageReceivedMessage{
		Type: "CHAT_MESSAGE_RECEIVED",
		MessageID: msg.MessageID,
		OrderID: msg.OrderID,
		SenderID: msg.SenderID,
		SenderRole: string(msg.SenderRole),
		Content: msg.Content,
		TempID: msg.TempID,
		Timestamp: msg.SentAt.Format(timeLayout),
	})
	if err == nil {
		if err := s.Rooms.Publish(ctx, subscriptions.Room(orderID), broadcastPayload); err != nil {
			s.logger().Error("chat message broadcast failed",
				"event", "gateway_chat_message_broadcast_failed",
				"module", "realtime/gateway-service",
				"layer", "application",
				"order_id", orderID,
				"error", err.Error(),
			)
		}
	}
	return msg, nil
}

// Typing broadcasts a best-effort, unpersisted typing indicator. Validation
// failures (not subscribed) are silently dropped.
func (s Service) Typing(ctx context.Context, orderID, senderID string, starting bool) {
	subscribed, err := s.Subscriptions.IsSubscribed(ctx, orderID, senderID)
	if err != nil || !subscribed {
		return
	}
	eventType := "CHAT_TYPING_STOP"
	if starting {
		eventType = "CHAT_TYPING_START"
	}
	payload, err := json.Marshal(ports.ChatTypingMessage{Type: eventType, OrderID: orderID, SenderID: senderID})
	if err != nil {
		return
	}
	_ = s.Rooms.Publish(ctx, subscriptions.Room(orderID), payload)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
