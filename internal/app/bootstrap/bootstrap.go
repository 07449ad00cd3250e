// Package bootstrap is the composition root: it wires config, adapters,
// and the bidding engine's Module together, keeping cmd/ entrypoints thin.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	biddingengine "porterdispatch/contexts/dispatch/bidding-engine"
	ephstoreadapter "porterdispatch/contexts/dispatch/bidding-engine/adapters/ephstore"
	eventsadapter "porterdispatch/contexts/dispatch/bidding-engine/adapters/events"
	"porterdispatch/contexts/dispatch/bidding-engine/adapters/memory"
	postgresadapter "porterdispatch/contexts/dispatch/bidding-engine/adapters/postgres"
	"porterdispatch/contexts/dispatch/bidding-engine/application/workers"

	gatewayservice "porterdispatch/contexts/realtime/gateway-service"
	gatewaydevents "porterdispatch/contexts/realtime/gateway-service/adapters/events"
	gatewaystore "porterdispatch/contexts/realtime/gateway-service/adapters/store"
	gatewaysupport "porterdispatch/contexts/realtime/gateway-service/adapters/support"
	gatewaytokenauth "porterdispatch/contexts/realtime/gateway-service/adapters/tokenauth"
	gatewayhttp "porterdispatch/contexts/realtime/gateway-service/transport/httpserver"

	"porterdispatch/internal/platform/config"
	"porterdispatch/internal/platform/db"
	"porterdispatch/internal/platform/ephstore"
	"porterdispatch/internal/platform/eventlog"
	"porterdispatch/internal/platform/httpserver"

	"gorm.io/gorm"
)

// APIApp composes the bidding engine's HTTP surface and the outbound event
// publisher its request handlers write through the outbox.
type APIApp struct {
	Server    *httpserver.Server
	db        *gorm.DB
	publisher *eventlog.Publisher
	logger    *slog.Logger
}

func (a *APIApp) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (a *APIApp) Close() error {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return nil
}

// WorkerApp composes the bidding engine's background processes: the outbox
// relay, the expiry reaper, and the domain-event consumer.
type WorkerApp struct {
	relay     workers.OutboxRelay
	reaper    workers.ExpiryReaper
	consumer  *eventlog.Consumer
	publisher *eventlog.Publisher
	db        *gorm.DB
	logger    *slog.Logger
}

func (a *WorkerApp) Run(ctx context.Context) error {
	go a.relay.Run(ctx, 2*time.Second)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.reaper.Tick(ctx); err != nil {
					a.logger.Error("expiry reaper tick failed",
						"event", "bidding_worker_expiry_tick_failed",
						"module", "dispatch/bidding-engine",
						"layer", "worker",
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return a.consumer.Run(ctx)
}

func (a *WorkerApp) Close() error {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return nil
}

func buildLogger(serviceName string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})).With("service", serviceName)
}

// biddingInfra groups the long-lived handles bootstrap functions build once
// and either hand to the HTTP server's readiness checks or close on exit.
type biddingInfra struct {
	module    biddingengine.Module
	db        *gorm.DB
	publisher *eventlog.Publisher
	locker    ephstoreadapter.Locker
	store     *ephstore.Client
}

// buildBiddingInfra constructs the shared Postgres/ephstore/event-log
// wiring both the API and worker processes need.
func buildBiddingInfra(cfg config.Config, logger *slog.Logger) (biddingInfra, error) {
	if cfg.PostgresDSN == "" {
		return biddingInfra{}, fmt.Errorf("POSTGRES_DSN is required")
	}
	gormDB, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return biddingInfra{}, fmt.Errorf("connect postgres: %w", err)
	}
	repo := postgresadapter.NewRepository(gormDB, logger)

	redisClient := ephstore.NewRedisClient(cfg.StoreURL)
	storeClient := ephstore.New(redisClient, cfg.StoreKeyPrefix, logger)
	locker := ephstoreadapter.Locker{Client: storeClient}
	cache := ephstoreadapter.WindowCache{Client: storeClient}
	idempotency := ephstoreadapter.IdempotencyStore{Client: storeClient}
	dedup := ephstoreadapter.EventDedupStore{Client: storeClient}

	publisher, err := eventlog.NewPublisher(cfg.EventLogBrokers, cfg.EventLogClientID, logger)
	if err != nil {
		return biddingInfra{}, fmt.Errorf("connect event log: %w", err)
	}
	eventsPublisher := eventsadapter.NewPublisher(publisher, logger)

	module := biddingengine.NewModule(biddingengine.Dependencies{
		Windows:        repo,
		Strategies:     repo,
		Idempotency:    idempotency,
		OutboxWriter:   repo,
		OutboxReader:   repo,
		Publisher:      eventsPublisher,
		Dedup:          dedup,
		Locker:         locker,
		Eligibility:    memory.AllowAllEligibility{},
		Cache:          cache,
		Clock:          realClock{},
		IDGen:          memory.UUIDGenerator{},
		Stats:          repo,
		IdempotencyTTL: 24 * time.Hour,
		LockTTL:        time.Duration(cfg.BiddingLockTTLSec) * time.Second,
		OutboxBatch:    100,
		Logger:         logger,
	})
	return biddingInfra{module: module, db: gormDB, publisher: publisher, locker: locker, store: storeClient}, nil
}

// BuildBiddingAPI wires the bidding engine's HTTP surface: Postgres-backed
// repositories, ephstore-backed lock/cache/idempotency, and a sarama
// publisher for the outbox to write through.
func BuildBiddingAPI() (*APIApp, error) {
	cfg, err := config.Load("bidding-api")
	if err != nil {
		return nil, err
	}
	logger := buildLogger(cfg.ServiceName)
	infra, err := buildBiddingInfra(cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := []httpserver.Dependency{
		{Name: "postgres", Check: func(ctx context.Context) error {
			sqlDB, err := infra.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		{Name: "ephstore", Check: func(ctx context.Context) error {
			_, _, err := infra.store.Get(ctx, "readiness-probe")
			return err
		}},
	}

	server := httpserver.New(infra.module, deps, logger, ":"+cfg.HTTPPort)
	return &APIApp{Server: server, db: infra.db, publisher: infra.publisher, logger: logger}, nil
}

// BuildBiddingWorker wires the bidding engine's background processes: the
// outbox relay, the expiry reaper, and the domain-event consumer reacting
// to order/porter lifecycle events.
func BuildBiddingWorker() (*WorkerApp, error) {
	cfg, err := config.Load("bidding-worker")
	if err != nil {
		return nil, err
	}
	logger := buildLogger(cfg.ServiceName)
	infra, err := buildBiddingInfra(cfg, logger)
	if err != nil {
		return nil, err
	}

	lockTTL := time.Duration(cfg.BiddingLockTTLSec) * time.Second
	registry := eventlog.NewRegistry()
	eventsadapter.RegisterReactor(registry, infra.module.Reactor, infra.locker, lockTTL)
	consumer, err := eventlog.NewConsumer(
		cfg.EventLogBrokers,
		cfg.EventLogConsumerGroup,
		[]string{eventsadapter.TopicOrders, eventsadapter.TopicPorters},
		registry,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("connect event log consumer: %w", err)
	}

	return &WorkerApp{
		relay:     infra.module.OutboxRelay,
		reaper:    infra.module.ExpiryReaper,
		consumer:  consumer,
		publisher: infra.publisher,
		db:        infra.db,
		logger:    logger,
	}, nil
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// GatewayApp composes the realtime gateway's HTTP/WebSocket surface, its
// order-lifecycle event consumer, and its job-offer expiry sweep.
type GatewayApp struct {
	Server    *gatewayhttp.Server
	module    gatewayservice.Module
	consumer  *eventlog.Consumer
	publisher *eventlog.Publisher
	store     *ephstore.Client
	logger    *slog.Logger
}

func (a *GatewayApp) Run(ctx context.Context) error {
	go func() {
		if err := a.consumer.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("gateway event consumer stopped with error",
				"event", "gateway_event_consumer_failed",
				"module", "realtime/gateway-service",
				"layer", "worker",
				"error", err.Error(),
			)
		}
	}()
	go a.runExpirySweep(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (a *GatewayApp) runExpirySweep(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.module.Offers.ExpireDue(ctx, 100); err != nil {
				a.logger.Error("gateway offer expiry sweep failed",
					"event", "gateway_offer_expiry_sweep_failed",
					"module", "realtime/gateway-service",
					"layer", "worker",
					"error", err.Error(),
				)
			}
		}
	}
}

func (a *GatewayApp) Close() error {
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	return nil
}

// BuildGatewayAPI wires the gateway's WebSocket hub over ephstore-backed
// adapters, a token verifier checking both signing keys, and the
// order-lifecycle consumer that feeds the subscription fan-out.
func BuildGatewayAPI() (*GatewayApp, error) {
	cfg, err := config.Load("gateway-service")
	if err != nil {
		return nil, err
	}
	logger := buildLogger(cfg.ServiceName)

	redisClient := ephstore.NewRedisClient(cfg.StoreURL)
	storeClient := ephstore.New(redisClient, cfg.StoreKeyPrefix, logger)

	sessions := gatewaystore.SessionRegistry{Client: storeClient}
	subs := gatewaystore.SubscriptionRegistry{Client: storeClient}
	locations := gatewaystore.LocationStore{Client: storeClient}
	offerStore := gatewaystore.OfferStore{Client: storeClient}
	rateLimiter := gatewaystore.RateLimiter{Client: storeClient}
	rooms := gatewaystore.RoomBroadcaster{Client: storeClient}

	publisher, err := eventlog.NewPublisher(cfg.EventLogBrokers, cfg.EventLogClientID, logger)
	if err != nil {
		return nil, fmt.Errorf("connect event log: %w", err)
	}
	eventsPublisher := gatewaydevents.NewPublisher(publisher, logger)

	module := gatewayservice.NewModule(gatewayservice.Dependencies{
		Verifier: gatewaytokenauth.Verifier{
			AccessKey: []byte(cfg.TokenVerifierAccessKey),
			SocketKey: []byte(cfg.TokenVerifierSocketKey),
		},
		Sessions:                sessions,
		Subscriptions:           subs,
		Locations:               locations,
		Offers:                  offerStore,
		RateLimiter:             rateLimiter,
		Rooms:                   rooms,
		Publisher:               eventsPublisher,
		Authorizer:              gatewaysupport.AllowAllAuthorizer{},
		Clock:                   gatewaysupport.RealClock{},
		IDGen:                   gatewaysupport.UUIDGenerator{},
		Logger:                  logger,
		ReconnectTTL:            time.Duration(cfg.GatewayReconnectTTLSec) * time.Second,
		LocationTTL:             time.Duration(cfg.GatewayLocationTTLSec) * time.Second,
		LocationSampleEveryN:    int64(cfg.GatewayLocationSampleN),
		LocationSkewTolerance:   5 * time.Minute,
		RateLimitLocationPoints: cfg.RateLimitLocationPoints,
		RateLimitLocationWindow: cfg.RateLimitLocationWindow,
		RateLimitChatPoints:     cfg.RateLimitChatPoints,
		RateLimitChatWindow:     cfg.RateLimitChatWindow,
	})

	registry := eventlog.NewRegistry()
	gatewaydevents.RegisterSubscriptionRouter(registry, module.Subscriptions)
	consumer, err := eventlog.NewConsumer(
		cfg.EventLogBrokers,
		cfg.EventLogConsumerGroup,
		[]string{gatewaydevents.TopicOrders},
		registry,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("connect gateway event consumer: %w", err)
	}

	deps := []gatewayhttp.Dependency{
		{Name: "ephstore", Check: func(ctx context.Context) error {
			_, _, err := storeClient.Get(ctx, "readiness-probe")
			return err
		}},
	}

	server := gatewayhttp.New(module, deps, logger, ":"+cfg.HTTPPort)
	return &GatewayApp{
		Server:    server,
		module:    module,
		consumer:  consumer,
		publisher: publisher,
		store:     storeClient,
		logger:    logger,
	}, nil
}
