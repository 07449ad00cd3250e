package workers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/adapters/memory"
	"porterdispatch/contexts/dispatch/bidding-engine/application/commands"
	"porterdispatch/contexts/dispatch/bidding-engine/application/workers"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// TestE4_ExpiryReaper covers a window with no bids past
// its deadline closes with BidExpired(totalBids=0) then BidClosed(no_bids).
func TestE4_ExpiryReaper(t *testing.T) {
	store := memory.NewStore()
	store.SeedStrategy(entities.BidStrategy{StrategyID: "default", Active: true, Weights: entities.StrategyWeights{
		PriceWeight: 0.4, ETAWeight: 0.2, RatingWeight: 0.2, ReliabilityWeight: 0.1, DistanceWeight: 0.1,
	}})
	clock := memory.NewFixedClock(time.Now())
	uc := commands.BiddingUseCase{
		Windows: store, Strategies: store, Idempotency: store, Outbox: store,
		Locker: memory.NewLocker(), Eligibility: memory.AllowAllEligibility{},
		Cache: memory.NewCache(), Clock: clock, IDGen: memory.UUIDGenerator{},
	}
	res, err := uc.OpenWindow(context.Background(), commands.OpenWindowCommand{
		OrderIDs: []string{"O1"}, DurationSec: 10, StrategyID: "default",
		MinimumBidCents: 0, CreatedBy: "admin", IdempotencyKey: "open-e4",
	})
	if err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}

	clock.Advance(11 * time.Second)
	reaper := workers.ExpiryReaper{Windows: store, Outbox: store, Clock: clock, IDGen: memory.UUIDGenerator{}}
	if err := reaper.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	closed, err := store.GetWindow(context.Background(), res.Window.WindowID)
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if closed.Status != entities.WindowClosed {
		t.Fatalf("expected CLOSED, got %s", closed.Status)
	}

	pending, err := store.ListPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	var sawExpired, sawClosedNoBids bool
	for _, rec := range pending {
		var env eventsv1.Envelope
		if err := json.Unmarshal(rec.Payload, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if rec.EventType == eventsv1.BidExpired {
			var payload eventsv1.BidExpiredPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				t.Fatalf("decode BidExpired payload: %v", err)
			}
			sawExpired = payload.TotalBids == 0
		}
		if rec.EventType == eventsv1.BidClosed {
			var payload eventsv1.BidClosedPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				t.Fatalf("decode BidClosed payload: %v", err)
			}
			sawClosedNoBids = payload.Outcome == eventsv1.OutcomeNoBids
		}
	}
	if !sawExpired || !sawClosedNoBids {
		t.Fatalf("expected BidExpired(totalBids=0) and BidClosed(no_bids) emitted, got %+v", pending)
	}
}

func TestDomainEventReactor_OrderCancelledIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	store.SeedStrategy(entities.BidStrategy{StrategyID: "default", Active: true})
	clock := memory.NewFixedClock(time.Now())
	uc := commands.BiddingUseCase{
		Windows: store, Strategies: store, Idempotency: store, Outbox: store,
		Locker: memory.NewLocker(), Eligibility: memory.AllowAllEligibility{},
		Cache: memory.NewCache(), Clock: clock, IDGen: memory.UUIDGenerator{},
	}
	res, err := uc.OpenWindow(context.Background(), commands.OpenWindowCommand{
		OrderIDs: []string{"O1"}, DurationSec: 300, StrategyID: "default",
		CreatedBy: "admin", IdempotencyKey: "open-reactor",
	})
	if err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}

	reactor := workers.DomainEventReactor{Windows: store, Outbox: store, Dedup: store, Clock: clock, IDGen: memory.UUIDGenerator{}}
	envelope, err := eventsv1.New("evt-1", eventsv1.OrderCancelled, "corr-1", "dispatcher", "O1", clock.Now(), eventsv1.OrderLifecyclePayload{OrderID: "O1"})
	if err != nil {
		t.Fatalf("New envelope: %v", err)
	}

	if err := reactor.HandleOrderCancelled(context.Background(), envelope); err != nil {
		t.Fatalf("first HandleOrderCancelled: %v", err)
	}
	closed, err := store.GetWindow(context.Background(), res.Window.WindowID)
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if closed.Status != entities.WindowCancelled {
		t.Fatalf("expected CANCELLED, got %s", closed.Status)
	}

	// Redelivery of the same event must be a no-op, not a second transition.
	if err := reactor.HandleOrderCancelled(context.Background(), envelope); err != nil {
		t.Fatalf("second HandleOrderCancelled: %v", err)
	}
}
