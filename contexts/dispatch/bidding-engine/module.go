// Package biddingengine composes the bidding engine's dependency graph:
// application use cases over whatever adapters satisfy ports.*, exposed
// behind an HTTP handler, grounded on votingengine.Module's composition shape.
package biddingengine

import (
	"log/slog"
	"time"

	httpadapter "porterdispatch/contexts/dispatch/bidding-engine/adapters/http"
	"porterdispatch/contexts/dispatch/bidding-engine/adapters/memory"
	"porterdispatch/contexts/dispatch/bidding-engine/application/commands"
	"porterdispatch/contexts/dispatch/bidding-engine/application/queries"
	"porterdispatch/contexts/dispatch/bidding-engine/application/workers"
	"porterdispatch/contexts/dispatch/bidding-engine/ports"
)

// Module exposes the bidding engine's entrypoints needed by the platform
// httpserver and the standalone worker binary.
type Module struct {
	Handler httpadapter.Handler
	OutboxRelay workers.OutboxRelay
	ExpiryReaper workers.ExpiryReaper
	Reactor workers.DomainEventReactor
	Store *memory.Store
}

// Dependencies groups every infrastructure-facing port the bidding engine's
// application layer needs. The module is storage-agnostic as long as the
// supplied adapters satisfy these contracts.
type Dependencies struct {
	Windows ports.WindowRepository
	Strategies ports.StrategyRepository
	Idempotency ports.IdempotencyStore
	OutboxWriter ports.OutboxWriter
	OutboxReader ports.OutboxRepository
	Publisher ports.EventPublisher
	Dedup ports.EventDedupStore
	Locker ports.Locker
	Eligibility ports.EligibilityChecker
	Profiles ports.PorterProfileLookup
	Cache commands.WindowCache
	Clock ports.Clock
	IDGen ports.IDGenerator
	Stats queries.StatsRepository
	IdempotencyTTL time.Duration
	LockTTL time.Duration
	OutboxBatch int
	Logger *slog.Logger
}

// NewModule wires the bidding use cases, query service, and workers over
// the supplied dependencies.
func NewModule(deps Dependencies) Module {
	useCase := commands.BiddingUseCase{
		Windows: deps.Windows,
		Strategies: deps.Strategies,
		Idempotency: deps.Idempotency,
		Outbox: deps.OutboxWriter,
		Locker: deps.Locker,
		Eligibility: deps.Eligibility,
		Profiles: deps.Profiles,
		Cache: deps.Cache,
		Clock: deps.Clock,
		IDGen: deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		LockTTL: deps.LockTTL,
		Logger: deps.Logger,
	}
	queryService := queries.QueryService{
		Windows: deps.Windows,
		Strategies: deps.Strategies,
		Profiles: deps.Profiles,
		Logger: deps.Logger,
	}
	reactor := workers.DomainEventReactor{
		Windows: deps.Windows,
		Outbox: deps.OutboxWriter,
		Dedup: deps.Dedup,
		Clock: deps.Clock,
		IDGen: deps.IDGen,
		Logger: deps.Logger,
	}
	relay := workers.OutboxRelay{
		Outbox: deps.OutboxReader,
		Publisher: deps.Publisher,
		Clock: deps.Clock,
		BatchSize: deps.OutboxBatch,
		Logger: deps.Logger,
	}
	reaper := workers.ExpiryReaper{
		Windows: deps.Windows,
		Outbox: deps.OutboxWriter,
		Clock: deps.Clock,
		IDGen: deps.IDGen,
		Logger: deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			UseCase: useCase,
			Queries: queryService,
			Stats: deps.Stats,
			Logger: deps.Logger,
		},
		OutboxRelay: relay,
		ExpiryReaper: reaper,
		Reactor: reactor,
	}
}

// NewInMemoryModule provides a self-contained in-memory wiring used by
// tests and local bootstrap paths; it satisfies every dependency (including
// StatsRepository) from the single in-memory store.
func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Windows: store,
		Strategies: store,
		Idempotency: store,
		OutboxWriter: store,
		OutboxReader: store,
		Publisher: memory.NoopPublisher{},
		Dedup: store,
		Locker: memory.NewLocker(),
		Eligibility: memory.AllowAllEligibility{},
		Cache: memory.NewCache(),
		Clock: memory.NewFixedClock(time.Now()),
		IDGen: memory.UUIDGenerator{},
		Stats: store,
		IdempotencyTTL: 24 * time.Hour,
		LockTTL: 5 * time.Second,
		OutboxBatch: 100,
		Logger: logger,
	})
	module.Store = store
	return module
}
