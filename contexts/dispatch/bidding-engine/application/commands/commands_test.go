package commands_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/adapters/memory"
	"porterdispatch/contexts/dispatch/bidding-engine/application/commands"
	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
	domainerrors "porterdispatch/contexts/dispatch/bidding-engine/domain/errors"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

func newUseCase(t *testing.T) (commands.BiddingUseCase, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SeedStrategy(entities.BidStrategy{
		StrategyID: "default",
		Active:     true,
		Weights: entities.StrategyWeights{
			PriceWeight: 0.4, ETAWeight: 0.2, RatingWeight: 0.2, ReliabilityWeight: 0.1, DistanceWeight: 0.1,
		},
	})
	uc := commands.BiddingUseCase{
		Windows:     store,
		Strategies:  store,
		Idempotency: store,
		Outbox:      store,
		Locker:      memory.NewLocker(),
		Eligibility: memory.AllowAllEligibility{},
		Cache:       memory.NewCache(),
		Clock:       memory.NewFixedClock(time.Now()),
		IDGen:       memory.UUIDGenerator{},
	}
	return uc, store
}

func openTestWindow(t *testing.T, uc commands.BiddingUseCase) entities.BiddingWindow {
	t.Helper()
	res, err := uc.OpenWindow(context.Background(), commands.OpenWindowCommand{
		OrderIDs:        []string{"O1"},
		DurationSec:     300,
		StrategyID:      "default",
		MinimumBidCents: 5000,
		CreatedBy:       "admin-1",
		CorrelationID:   "corr-1",
		IdempotencyKey:  "open-1",
	})
	if err != nil {
		t.Fatalf("OpenWindow: %v", err)
	}
	return res.Window
}

// TestE1_HappyPath covers the full open/bid/accept happy path.
func TestE1_HappyPath(t *testing.T) {
	uc, store := newUseCase(t)
	window := openTestWindow(t, uc)

	p1, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P1", AmountCents: 10000, ETAMinutes: 30, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("PlaceBid P1: %v", err)
	}
	p2, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P2", AmountCents: 12000, ETAMinutes: 25, IdempotencyKey: "k2",
	})
	if err != nil {
		t.Fatalf("PlaceBid P2: %v", err)
	}

	accepted, err := uc.AcceptBid(context.Background(), commands.AcceptBidCommand{
		WindowID: window.WindowID, BidID: p1.Bid.BidID, AcceptedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}
	if accepted.Status != entities.BidAcceptedStatus {
		t.Fatalf("expected accepted bid ACCEPTED, got %s", accepted.Status)
	}

	loserBid, err := store.GetBid(context.Background(), p2.Bid.BidID)
	if err != nil {
		t.Fatalf("GetBid loser: %v", err)
	}
	if loserBid.Status != entities.BidExpiredStatus {
		t.Fatalf("expected loser EXPIRED, got %s", loserBid.Status)
	}

	closedWindow, err := store.GetWindow(context.Background(), window.WindowID)
	if err != nil {
		t.Fatalf("GetWindow: %v", err)
	}
	if closedWindow.Status != entities.WindowClosed {
		t.Fatalf("expected window CLOSED, got %s", closedWindow.Status)
	}

	pending, err := store.ListPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	winnerSelectedCount := 0
	for _, rec := range pending {
		if rec.EventType == "BidWinnerSelected" {
			winnerSelectedCount++
		}
	}
	if winnerSelectedCount != 1 {
		t.Fatalf("expected exactly one BidWinnerSelected, got %d", winnerSelectedCount)
	}
}

// TestE2_IdempotentBid covers a replayed PlaceBid with the same idempotency key.
func TestE2_IdempotentBid(t *testing.T) {
	uc, _ := newUseCase(t)
	window := openTestWindow(t, uc)

	first, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P1", AmountCents: 10000, ETAMinutes: 30, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("first PlaceBid: %v", err)
	}
	second, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P1", AmountCents: 10000, ETAMinutes: 30, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("second PlaceBid: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected second call marked replayed")
	}
	if first.Bid.BidID != second.Bid.BidID {
		t.Fatalf("expected same bid id on replay, got %s vs %s", first.Bid.BidID, second.Bid.BidID)
	}
}

// TestE3_MinimumBid covers a bid below the window's minimum.
func TestE3_MinimumBid(t *testing.T) {
	uc, _ := newUseCase(t)
	window := openTestWindow(t, uc)
	_, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P1", AmountCents: 4000, ETAMinutes: 30, IdempotencyKey: "k1",
	})
	if err != domainerrors.ErrBidTooLow {
		t.Fatalf("expected ErrBidTooLow, got %v", err)
	}
}

// TestE5_ConcurrentAccept covers exactly one of two
// concurrent acceptBid calls on distinct bids succeeds.
func TestE5_ConcurrentAccept(t *testing.T) {
	uc, _ := newUseCase(t)
	window := openTestWindow(t, uc)

	b1, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P1", AmountCents: 10000, ETAMinutes: 30, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("PlaceBid b1: %v", err)
	}
	b2, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P2", AmountCents: 12000, ETAMinutes: 25, IdempotencyKey: "k2",
	})
	if err != nil {
		t.Fatalf("PlaceBid b2: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := uc.AcceptBid(context.Background(), commands.AcceptBidCommand{WindowID: window.WindowID, BidID: b1.Bid.BidID, AcceptedBy: "admin-1"})
		results[0] = err
	}()
	go func() {
		defer wg.Done()
		_, err := uc.AcceptBid(context.Background(), commands.AcceptBidCommand{WindowID: window.WindowID, BidID: b2.Bid.BidID, AcceptedBy: "admin-1"})
		results[1] = err
	}()
	wg.Wait()

	successCount := 0
	for _, err := range results {
		if err == nil {
			successCount++
		} else if err != domainerrors.ErrConcurrentAccept && err != domainerrors.ErrWindowNotOpen && err != domainerrors.ErrBidNotPlaced {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successCount != 1 {
		t.Fatalf("expected exactly one winner, got %d", successCount)
	}
}

func TestCancelBid_OnlyFromPlaced(t *testing.T) {
	uc, _ := newUseCase(t)
	window := openTestWindow(t, uc)
	b1, err := uc.PlaceBid(context.Background(), commands.PlaceBidCommand{
		WindowID: window.WindowID, PorterID: "P1", AmountCents: 10000, ETAMinutes: 30, IdempotencyKey: "k1",
	})
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if err := uc.CancelBid(context.Background(), commands.CancelBidCommand{BidID: b1.Bid.BidID, PorterID: "P1", Reason: "changed mind"}); err != nil {
		t.Fatalf("CancelBid: %v", err)
	}
	if err := uc.CancelBid(context.Background(), commands.CancelBidCommand{BidID: b1.Bid.BidID, PorterID: "P1", Reason: "again"}); err != domainerrors.ErrBidTerminal {
		t.Fatalf("expected ErrBidTerminal on second cancel, got %v", err)
	}
}

func TestCloseWindow_NoBidsOutcome(t *testing.T) {
	uc, store := newUseCase(t)
	window := openTestWindow(t, uc)
	if err := uc.CloseWindow(context.Background(), commands.CloseWindowCommand{WindowID: window.WindowID, Actor: "admin-1"}); err != nil {
		t.Fatalf("CloseWindow: %v", err)
	}
	closed, err := store.GetWindow(context.Background(), window.WindowID)
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
	var outcome eventsv1.BidClosedOutcome
	for _, rec := range pending {
		if rec.EventType != eventsv1.BidClosed {
			continue
		}
		var env eventsv1.Envelope
		var payload eventsv1.BidClosedPayload
		if err := json.Unmarshal(rec.Payload, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			t.Fatalf("decode BidClosed payload: %v", err)
		}
		outcome = payload.Outcome
	}
	if outcome != eventsv1.OutcomeNoBids {
		t.Fatalf("expected BidClosed outcome %q, got %q", eventsv1.OutcomeNoBids, outcome)
	}
}
