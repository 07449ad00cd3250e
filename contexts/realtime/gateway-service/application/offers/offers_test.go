package offers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/adapters/memory"
	"porterdispatch/contexts/realtime/gateway-service/application/offers"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
)

func newService(t *testing.T) (offers.Service, *memory.Offers, *memory.Sessions, *memory.FixedClock, *memory.Rooms) {
	t.Helper()
	store := memory.NewOffers()
	sessions := memory.NewSessions()
	rooms := memory.NewRooms()
	clock := memory.NewFixedClock(time.Now())
	svc := offers.Service{
		Offers:    store,
		Sessions:  sessions,
		Rooms:     rooms,
		Publisher: memory.NewPublisher(),
		Clock:     clock,
		IDGen:     &memory.SequentialIDGenerator{},
	}
	return svc, store, sessions, clock, rooms
}

func testOffer(now time.Time) entities.JobOffer {
	return entities.JobOffer{
		OfferID:   "offer-1",
		OrderID:   "order-1",
		PorterID:  "porter-1",
		ExpiresAt: now.Add(time.Minute),
	}
}

func TestSendOffer_DeliversToLiveSocket(t *testing.T) {
	svc, _, sessions, clock, rooms := newService(t)
	if err := sessions.AddSession(context.Background(), entities.SocketSession{SocketID: "sock-1", UserID: "porter-1"}); err != nil {
		t.Fatalf("AddSession: %v", err)
	}

	result, err := svc.SendOffer(context.Background(), testOffer(clock.Now()))
	if err != nil {
		t.Fatalf("SendOffer: %v", err)
	}
	if !result.Delivered {
		t.Fatalf("expected delivery to a live socket")
	}
	if len(rooms.Published) != 1 {
		t.Fatalf("expected one room publish, got %d", len(rooms.Published))
	}
}

func TestSendOffer_NoLiveSocketIsNotDelivered(t *testing.T) {
	svc, store, _, clock, rooms := newService(t)
	result, err := svc.SendOffer(context.Background(), testOffer(clock.Now()))
	if err != nil {
		t.Fatalf("SendOffer: %v", err)
	}
	if result.Delivered {
		t.Fatalf("expected no delivery when the porter has no live socket")
	}
	if len(rooms.Published) != 0 {
		t.Fatalf("expected no room publish, got %d", len(rooms.Published))
	}
	if _, ok, err := store.Get(context.Background(), "offer-1"); err != nil || !ok {
		t.Fatalf("expected the offer persisted for later delivery, ok=%v err=%v", ok, err)
	}
}

func TestAccept_TransitionsOnceAndIsTerminal(t *testing.T) {
	svc, _, _, clock, _ := newService(t)
	if _, err := svc.SendOffer(context.Background(), testOffer(clock.Now())); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}

	accepted, err := svc.Accept(context.Background(), "offer-1", "porter-1")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != entities.OfferAccepted {
		t.Fatalf("expected ACCEPTED, got %s", accepted.Status)
	}

	if _, err := svc.Reject(context.Background(), "offer-1", "porter-1"); !errors.Is(err, domainerrors.ErrOfferAlreadyProcessed) {
		t.Fatalf("expected ErrOfferAlreadyProcessed on a second transition, got %v", err)
	}
}

func TestAccept_WrongPorterIsForbidden(t *testing.T) {
	svc, _, _, clock, _ := newService(t)
	if _, err := svc.SendOffer(context.Background(), testOffer(clock.Now())); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}
	if _, err := svc.Accept(context.Background(), "offer-1", "someone-else"); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAccept_PastDeadlineIsExpired(t *testing.T) {
	svc, _, _, clock, _ := newService(t)
	if _, err := svc.SendOffer(context.Background(), testOffer(clock.Now())); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := svc.Accept(context.Background(), "offer-1", "porter-1"); !errors.Is(err, domainerrors.ErrOfferExpired) {
		t.Fatalf("expected ErrOfferExpired, got %v", err)
	}
}

func TestAccept_UnknownOfferIsNotFound(t *testing.T) {
	svc, _, _, _, _ := newService(t)
	if _, err := svc.Accept(context.Background(), "bogus", "porter-1"); !errors.Is(err, domainerrors.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound, got %v", err)
	}
}

func TestExpireDue_SweepsPastDeadlineOffers(t *testing.T) {
	svc, store, _, clock, _ := newService(t)
	if _, err := svc.SendOffer(context.Background(), testOffer(clock.Now())); err != nil {
		t.Fatalf("SendOffer: %v", err)
	}
	clock.Advance(2 * time.Minute)

	n, err := svc.ExpireDue(context.Background(), 100)
	if err != nil {
		t.Fatalf("ExpireDue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 offer expired, got %d", n)
	}
	offer, ok, err := store.Get(context.Background(), "offer-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if offer.Status != entities.OfferExpired {
		t.Fatalf("expected EXPIRED, got %s", offer.Status)
	}
}
