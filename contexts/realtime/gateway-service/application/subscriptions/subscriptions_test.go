package subscriptions_test

import (
	"context"
	"errors"
	"testing"

	"porterdispatch/contexts/realtime/gateway-service/adapters/memory"
	"porterdispatch/contexts/realtime/gateway-service/application/subscriptions"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
)

func newService(t *testing.T, allow bool) (subscriptions.Service, *memory.Subscriptions, *memory.Rooms) {
	t.Helper()
	subs := memory.NewSubscriptions()
	rooms := memory.NewRooms()
	svc := subscriptions.Service{
		Subscriptions: subs,
		Rooms:         rooms,
		Authorizer:    memory.Authorizer{Allow: allow},
	}
	return svc, subs, rooms
}

func TestSubscribe_AuthorizedUserJoinsRoom(t *testing.T) {
	svc, subs, _ := newService(t, true)
	if err := svc.Subscribe(context.Background(), "user-1", entities.RoleCustomer, "order-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	ok, err := subs.IsSubscribed(context.Background(), "order-1", "user-1")
	if err != nil {
		t.Fatalf("IsSubscribed: %v", err)
	}
	if !ok {
		t.Fatalf("expected user-1 subscribed to order-1")
	}
}

func TestSubscribe_UnauthorizedUserIsForbidden(t *testing.T) {
	svc, subs, _ := newService(t, false)
	err := svc.Subscribe(context.Background(), "user-1", entities.RoleCustomer, "order-1")
	if !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	ok, _ := subs.IsSubscribed(context.Background(), "order-1", "user-1")
	if ok {
		t.Fatalf("expected no subscription recorded for a denied user")
	}
}

func TestUnsubscribe_RemovesMembership(t *testing.T) {
	svc, subs, _ := newService(t, true)
	if err := svc.Subscribe(context.Background(), "user-1", entities.RoleCustomer, "order-1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := svc.Unsubscribe(context.Background(), "user-1", "order-1"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	ok, _ := subs.IsSubscribed(context.Background(), "order-1", "user-1")
	if ok {
		t.Fatalf("expected user-1 no longer subscribed")
	}
}

func TestBroadcast_PublishesToOrderRoom(t *testing.T) {
	svc, _, rooms := newService(t, true)
	if err := svc.Broadcast(context.Background(), "order-1", []byte(`{"type":"X"}`)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(rooms.Published) != 1 || rooms.Published[0].Room != subscriptions.Room("order-1") {
		t.Fatalf("expected one publish to the order's room, got %+v", rooms.Published)
	}
}

func TestConsumeOrderEvent_RebroadcastsVerbatim(t *testing.T) {
	svc, _, rooms := newService(t, true)
	raw := []byte(`{"type":"OrderStatusChanged"}`)
	if err := svc.ConsumeOrderEvent(context.Background(), "order-1", raw); err != nil {
		t.Fatalf("ConsumeOrderEvent: %v", err)
	}
	if len(rooms.Published) != 1 || string(rooms.Published[0].Message) != string(raw) {
		t.Fatalf("expected the raw event rebroadcast verbatim, got %+v", rooms.Published)
	}
}
