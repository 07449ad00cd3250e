package strategy

import (
	"testing"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
)

func equalWeights() entities.StrategyWeights {
	return entities.StrategyWeights{PriceWeight: 0.4, ETAWeight: 0.2, RatingWeight: 0.2, ReliabilityWeight: 0.1, DistanceWeight: 0.1}
}

func TestEvaluate_E1_CheaperBidWins(t *testing.T) {
	now := time.Now()
	bids := []entities.Bid{
		{BidID: "b1", PorterID: "p1", AmountCents: 10000, ETAMinutes: 30, PlacedAt: now},
		{BidID: "b2", PorterID: "p2", AmountCents: 12000, ETAMinutes: 25, PlacedAt: now.Add(time.Second)},
	}
	ranked := Evaluate(bids, nil, equalWeights())
	if len(ranked) != 2 {
		t.Fatalf("expected 2 scores, got %d", len(ranked))
	}
	if ranked[0].Rank != 1 || ranked[0].BidID != "b1" {
		t.Fatalf("expected b1 ranked first, got %+v", ranked[0])
	}
}

func TestEvaluate_SingleBidGetsMaxPriceAndETAScore(t *testing.T) {
	bids := []entities.Bid{{BidID: "b1", PorterID: "p1", AmountCents: 10000, ETAMinutes: 30, PlacedAt: time.Now()}}
	ranked := Evaluate(bids, nil, equalWeights())
	if ranked[0].PriceScore != 100 || ranked[0].ETAScore != 100 {
		t.Fatalf("expected single bid to score 100 on price/eta, got %+v", ranked[0])
	}
}

func TestEvaluate_MissingMetadataFallsBackTo50(t *testing.T) {
	bids := []entities.Bid{{BidID: "b1", PorterID: "p1", AmountCents: 10000, ETAMinutes: 30, PlacedAt: time.Now()}}
	ranked := Evaluate(bids, map[string]entities.PorterMetadata{}, equalWeights())
	if ranked[0].RatingScore != 50 || ranked[0].ReliabilityScore != 50 || ranked[0].DistanceScore != 50 {
		t.Fatalf("expected fallback scores of 50, got %+v", ranked[0])
	}
}

func TestEvaluate_TieBrokenByPriceThenETAThenTimeThenID(t *testing.T) {
	now := time.Now()
	bids := []entities.Bid{
		{BidID: "zzz", PorterID: "p1", AmountCents: 10000, ETAMinutes: 30, PlacedAt: now},
		{BidID: "aaa", PorterID: "p2", AmountCents: 10000, ETAMinutes: 30, PlacedAt: now},
	}
	ranked := Evaluate(bids, nil, equalWeights())
	if ranked[0].BidID != "aaa" {
		t.Fatalf("expected lexicographically smaller id to win full tie, got %+v", ranked[0])
	}
}

func TestNormalizeWeights_RenormalizesOutOfTolerance(t *testing.T) {
	bids := []entities.Bid{
		{BidID: "b1", PorterID: "p1", AmountCents: 10000, ETAMinutes: 30, PlacedAt: time.Now()},
	}
	skewed := entities.StrategyWeights{PriceWeight: 1, ETAWeight: 1, RatingWeight: 1, ReliabilityWeight: 1, DistanceWeight: 1}
	ranked := Evaluate(bids, nil, skewed)
	if ranked[0].Composite != 70 {
		t.Fatalf("expected renormalized weights (0.2 each) to score 70 for a lone bid with no metadata, got %+v", ranked[0])
	}
}

func TestPreview_DoesNotMutateExisting(t *testing.T) {
	now := time.Now()
	existing := []entities.Bid{
		{BidID: "b1", PorterID: "p1", AmountCents: 10000, ETAMinutes: 30, PlacedAt: now},
	}
	hypothetical := entities.Bid{BidID: "hyp", PorterID: "p2", AmountCents: 5000, ETAMinutes: 10, PlacedAt: now.Add(time.Second)}
	result := Preview(existing, nil, equalWeights(), hypothetical)
	if result.BidID != "hyp" {
		t.Fatalf("expected preview breakdown for hypothetical bid, got %+v", result)
	}
	if len(existing) != 1 {
		t.Fatalf("expected existing slice untouched, got len %d", len(existing))
	}
}
