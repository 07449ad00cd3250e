// Package strategy implements the bid strategy evaluator: a pure
// function from a bid set and a weight vector to ranked, per-criterion
// scores. It performs no I/O and holds no state, mirroring the
// price-ordered ranking shape of a matching-engine order book generalized
// to a weighted multi-criteria composite.
package strategy

import (
	"math"
	"sort"

	"porterdispatch/contexts/dispatch/bidding-engine/domain/entities"
)

// ScoreBreakdown is the per-criterion score for one bid plus its composite.
type ScoreBreakdown struct {
	BidID string
	PriceScore float64
	ETAScore float64
	RatingScore float64
	ReliabilityScore float64
	DistanceScore float64
	Composite float64
	Rank int
}

// weightTolerance matches the ±0.01 invariant on BidStrategy.Weights.
const weightTolerance = 0.01

// normalizeWeights renormalizes a weight vector whose sum drifted outside
// tolerance: clamp defensively rather than reject at evaluation time.
func normalizeWeights(w entities.StrategyWeights) entities.StrategyWeights {
	sum := w.Sum()
	if sum == 0 {
		return entities.StrategyWeights{PriceWeight: 0.2, ETAWeight: 0.2, RatingWeight: 0.2, ReliabilityWeight: 0.2, DistanceWeight: 0.2}
	}
	if math.Abs(sum-1) <= weightTolerance {
		return w
	}
	return entities.StrategyWeights{
		PriceWeight: w.PriceWeight / sum,
		ETAWeight: w.ETAWeight / sum,
		RatingWeight: w.RatingWeight / sum,
		ReliabilityWeight: w.ReliabilityWeight / sum,
		DistanceWeight: w.DistanceWeight / sum,
	}
}

func linearInverseScore(value, min, max float64) float64 {
	if min == max {
		return 100
	}
	return 100 * (max - value) / (max - min)
}

func ratingScore(m entities.PorterMetadata) float64 {
	if m.Rating == nil {
		return 50
	}
	return (*m.Rating / 5) * 100
}

func reliabilityScore(m entities.PorterMetadata) float64 {
	if m.Reliability == nil {
		return 50
	}
	return *m.Reliability
}

func distanceScore(m entities.PorterMetadata) float64 {
	if m.DistanceMeter == nil {
		return 50
	}
	return math.Max(0, 100-*m.DistanceMeter/100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// candidate pairs a bid with its metadata for scoring; the caller supplies
// metadata since it may come from an external porter profile lookup.
type candidate struct {
	bid entities.Bid
	metadata entities.PorterMetadata
}

// Evaluate scores and ranks bids against a strategy, returning one
// ScoreBreakdown per bid sorted by rank ascending (rank 1 = best).
func Evaluate(bids []entities.Bid, metadata map[string]entities.PorterMetadata, weights entities.StrategyWeights) []ScoreBreakdown {
	if len(bids) == 0 {
		return nil
	}
	w := normalizeWeights(weights)

	cands := make([]candidate, len(bids))
	minAmt, maxAmt := bids[0].AmountCents, bids[0].AmountCents
	minETA, maxETA := bids[0].ETAMinutes, bids[0].ETAMinutes
	for i, b := range bids {
		cands[i] = candidate{bid: b, metadata: metadata[b.PorterID]}
		if b.AmountCents < minAmt {
			minAmt = b.AmountCents
		}
		if b.AmountCents > maxAmt {
			maxAmt = b.AmountCents
		}
		if b.ETAMinutes < minETA {
			minETA = b.ETAMinutes
		}
		if b.ETAMinutes > maxETA {
			maxETA = b.ETAMinutes
		}
	}

	out := make([]ScoreBreakdown, len(cands))
	for i, c := range cands {
		price := linearInverseScore(float64(c.bid.AmountCents), float64(minAmt), float64(maxAmt))
		eta := linearInverseScore(float64(c.bid.ETAMinutes), float64(minETA), float64(maxETA))
		rating := ratingScore(c.metadata)
		reliability := reliabilityScore(c.metadata)
		distance := distanceScore(c.metadata)
		composite := round2(w.PriceWeight*price + w.ETAWeight*eta + w.RatingWeight*rating +
			w.ReliabilityWeight*reliability + w.DistanceWeight*distance)
		out[i] = ScoreBreakdown{
			BidID: c.bid.BidID,
			PriceScore: round2(price),
			ETAScore: round2(eta),
			RatingScore: round2(rating),
			ReliabilityScore: round2(reliability),
			DistanceScore: round2(distance),
			Composite: composite,
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}
		bi, bj := cands[indexOf(cands, out[i].BidID)].bid, cands[indexOf(cands, out[j].BidID)].bid
		if bi.AmountCents != bj.AmountCents {
			return bi.AmountCents < bj.AmountCents
		}
		if bi.ETAMinutes != bj.ETAMinutes {
			return bi.ETAMinutes < bj.ETAMinutes
		}
		if !bi.PlacedAt.Equal(bj.PlacedAt) {
			return bi.PlacedAt.Before(bj.PlacedAt)
		}
		return bi.BidID < bj.BidID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func indexOf(cands []candidate, bidID string) int {
	for i, c := range cands {
		if c.bid.BidID == bidID {
			return i
		}
	}
	return -1
}

// Preview inserts a hypothetical bid into the current set and returns its
// own breakdown (rank, score) without mutating anything.
func Preview(existing []entities.Bid, metadata map[string]entities.PorterMetadata, weights entities.StrategyWeights, hypothetical entities.Bid) ScoreBreakdown {
	all := append(append([]entities.Bid{}, existing...), hypothetical)
	ranked := Evaluate(all, metadata, weights)
	for _, r := range ranked {
		if r.BidID == hypothetical.BidID {
			return r
		}
	}
	return ScoreBreakdown{BidID: hypothetical.BidID}
}
