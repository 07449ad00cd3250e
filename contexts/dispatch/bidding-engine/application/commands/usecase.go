// Package commands implements the Bidding Window Manager: the write
// operations openWindow/placeBid/acceptBid/cancelBid/closeWindow, each
// idempotency-keyed and outbox-backed, grounded on a vote command idiom.
package commands

import (
	"log/slog"
	"time"

	"porterdispatch/contexts/dispatch/bidding-engine/ports"
)

// BiddingUseCase orchestrates every bidding window command. One struct, like the
// teacher's VoteUseCase, threading the same set of ports through every
// method.
type BiddingUseCase struct {
	Windows ports.WindowRepository
	Strategies ports.StrategyRepository
	Idempotency ports.IdempotencyStore
	Outbox ports.OutboxWriter
	Locker ports.Locker
	Eligibility ports.EligibilityChecker
	Profiles ports.PorterProfileLookup
	Cache WindowCache
	Clock ports.Clock
	IDGen ports.IDGenerator
	IdempotencyTTL time.Duration
	LockTTL time.Duration
	SourceService string
	Logger *slog.Logger
}

// WindowCache is the ephemeral-store-backed cache seam (window:<id>, TTL =
// duration + grace) a bidding window's extended visibility requires.
type WindowCache interface {
	PutWindow(key string, ttl time.Duration, payload []byte) error
	GetWindow(key string) ([]byte, bool, error)
	DeleteWindow(key string) error
}

func (uc BiddingUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc BiddingUseCase) idempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc BiddingUseCase) lockTTL() time.Duration {
	if uc.LockTTL <= 0 {
		return 5 * time.Second
	}
	return uc.LockTTL
}

func (uc BiddingUseCase) source() string {
	if uc.SourceService == "" {
		return "bidding-engine"
	}
	return uc.SourceService
}
