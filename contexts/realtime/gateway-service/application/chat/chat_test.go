package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/adapters/memory"
	"porterdispatch/contexts/realtime/gateway-service/application/chat"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
)

func newService(t *testing.T, ratePoints int64) (chat.Service, *memory.Subscriptions, *memory.Rooms) {
	t.Helper()
	subs := memory.NewSubscriptions()
	rooms := memory.NewRooms()
	svc := chat.Service{
		Subscriptions: subs,
		Rooms:         rooms,
		RateLimiter:   memory.NewRateLimiter(),
		Publisher:     memory.NewPublisher(),
		Clock:         memory.NewFixedClock(time.Now()),
		IDGen:         &memory.SequentialIDGenerator{},
		RatePoints:    ratePoints,
		RateWindow:    time.Second,
	}
	return svc, subs, rooms
}

func TestSendMessage_SubscribedSenderBroadcasts(t *testing.T) {
	svc, subs, rooms := newService(t, 100)
	if err := subs.Subscribe(context.Background(), "order-1", "customer-1"); err != nil {
		t.Fatalf("Add subscription: %v", err)
	}

	msg, err := svc.SendMessage(context.Background(), "order-1", "customer-1", entities.RoleCustomer, "hello", "tmp-1")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("expected content round-trip, got %q", msg.Content)
	}
	if len(rooms.Published) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(rooms.Published))
	}
}

func TestSendMessage_UnsubscribedSenderIsRejected(t *testing.T) {
	svc, _, _ := newService(t, 100)
	_, err := svc.SendMessage(context.Background(), "order-1", "customer-1", entities.RoleCustomer, "hello", "tmp-1")
	if !errors.Is(err, domainerrors.ErrNotSubscribed) {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}
}

func TestSendMessage_EmptyContentIsInvalid(t *testing.T) {
	svc, subs, _ := newService(t, 100)
	if err := subs.Subscribe(context.Background(), "order-1", "customer-1"); err != nil {
		t.Fatalf("Add subscription: %v", err)
	}
	_, err := svc.SendMessage(context.Background(), "order-1", "customer-1", entities.RoleCustomer, "", "tmp-1")
	if !errors.Is(err, domainerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for empty content, got %v", err)
	}
}

func TestSendMessage_OverlongContentIsInvalid(t *testing.T) {
	svc, subs, _ := newService(t, 100)
	if err := subs.Subscribe(context.Background(), "order-1", "customer-1"); err != nil {
		t.Fatalf("Add subscription: %v", err)
	}
	overlong := strings.Repeat("x", chat.MaxContentLength+1)
	_, err := svc.SendMessage(context.Background(), "order-1", "customer-1", entities.RoleCustomer, overlong, "tmp-1")
	if !errors.Is(err, domainerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for overlong content, got %v", err)
	}
}

func TestSendMessage_RateLimitExceededIsRejected(t *testing.T) {
	svc, subs, _ := newService(t, 1)
	if err := subs.Subscribe(context.Background(), "order-1", "customer-1"); err != nil {
		t.Fatalf("Add subscription: %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), "order-1", "customer-1", entities.RoleCustomer, "first", "tmp-1"); err != nil {
		t.Fatalf("first SendMessage: %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), "order-1", "customer-1", entities.RoleCustomer, "second", "tmp-2"); !errors.Is(err, domainerrors.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}

func TestTyping_UnsubscribedSenderIsSilentlyDropped(t *testing.T) {
	svc, _, rooms := newService(t, 100)
	svc.Typing(context.Background(), "order-1", "customer-1", true)
	if len(rooms.Published) != 0 {
		t.Fatalf("expected no broadcast for an unsubscribed typer, got %d", len(rooms.Published))
	}
}

func TestTyping_SubscribedSenderBroadcasts(t *testing.T) {
	svc, subs, rooms := newService(t, 100)
	if err := subs.Subscribe(context.Background(), "order-1", "customer-1"); err != nil {
		t.Fatalf("Add subscription: %v", err)
	}
	svc.Typing(context.Background(), "order-1", "customer-1", true)
	if len(rooms.Published) != 1 {
		t.Fatalf("expected one typing broadcast, got %d", len(rooms.Published))
	}
}
