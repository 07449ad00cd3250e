package location_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/adapters/memory"
	"porterdispatch/contexts/realtime/gateway-service/application/location"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
)

func newService(t *testing.T, sampleEveryN int64) (location.Service, *memory.Locations, *memory.FixedClock, *memory.Rooms) {
	t.Helper()
	locs := memory.NewLocations()
	clock := memory.NewFixedClock(time.Now())
	rooms := memory.NewRooms()
	svc := location.Service{
		Locations:     locs,
		RateLimiter:   memory.NewRateLimiter(),
		Rooms:         rooms,
		Publisher:     memory.NewPublisher(),
		Clock:         clock,
		IDGen:         &memory.SequentialIDGenerator{},
		RatePoints:    100,
		RateWindow:    time.Second,
		LocationTTL:   time.Minute,
		SampleEveryN:  sampleEveryN,
		SkewTolerance: time.Minute,
	}
	return svc, locs, clock, rooms
}

func validLocation(now time.Time) entities.PorterLocation {
	return entities.PorterLocation{
		PorterID:      "porter-1",
		Lat:           37.5,
		Lng:           -122.3,
		Accuracy:      5,
		Timestamp:     now,
		ActiveOrderID: "order-1",
	}
}

func TestUpdate_StoresAndFansOutToActiveOrder(t *testing.T) {
	svc, locs, clock, rooms := newService(t, 1)
	if err := svc.Update(context.Background(), validLocation(clock.Now())); err != nil {
		t.Fatalf("Update: %v", err)
	}
	stored, ok, err := locs.Get(context.Background(), "porter-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if stored.Lat != 37.5 {
		t.Fatalf("expected stored location to round-trip, got %+v", stored)
	}
	if len(rooms.Published) != 1 {
		t.Fatalf("expected one fan-out publish to the active order's room, got %d", len(rooms.Published))
	}
}

func TestUpdate_OutOfRangeLatIsInvalid(t *testing.T) {
	svc, _, clock, _ := newService(t, 1)
	loc := validLocation(clock.Now())
	loc.Lat = 95
	if err := svc.Update(context.Background(), loc); !errors.Is(err, domainerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestUpdate_TimestampOutsideSkewToleranceIsInvalid(t *testing.T) {
	svc, _, clock, _ := newService(t, 1)
	loc := validLocation(clock.Now().Add(-time.Hour))
	if err := svc.Update(context.Background(), loc); !errors.Is(err, domainerrors.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for stale timestamp, got %v", err)
	}
}

func TestUpdate_NoActiveOrderSkipsFanOut(t *testing.T) {
	svc, _, clock, rooms := newService(t, 1)
	loc := validLocation(clock.Now())
	loc.ActiveOrderID = ""
	if err := svc.Update(context.Background(), loc); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(rooms.Published) != 0 {
		t.Fatalf("expected no fan-out with no active order, got %d", len(rooms.Published))
	}
}

func TestUpdate_SamplesEveryNthUpdate(t *testing.T) {
	svc, _, clock, _ := newService(t, 3)
	pub := svc.Publisher.(*memory.Publisher)
	for i := 0; i < 2; i++ {
		if err := svc.Update(context.Background(), validLocation(clock.Now())); err != nil {
			t.Fatalf("Update %d: %v", i, err)
		}
	}
	if len(pub.Published) != 0 {
		t.Fatalf("expected no sampled event before the 3rd update, got %d", len(pub.Published))
	}
	// The third update reaches the sample boundary and emits one event.
	if err := svc.Update(context.Background(), validLocation(clock.Now())); err != nil {
		t.Fatalf("Update 3: %v", err)
	}
	if len(pub.Published) != 1 {
		t.Fatalf("expected one sampled event after the 3rd update, got %d", len(pub.Published))
	}
}

func TestUpdate_RateLimitExceededIsRejected(t *testing.T) {
	svc, _, clock, _ := newService(t, 1)
	svc.RatePoints = 1
	if err := svc.Update(context.Background(), validLocation(clock.Now())); err != nil {
		t.Fatalf("first Update: %v", err)
	}
	if err := svc.Update(context.Background(), validLocation(clock.Now())); !errors.Is(err, domainerrors.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}
