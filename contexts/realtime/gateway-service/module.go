// Package gatewayservice composes the realtime gateway's dependency
// graph: the application services wired over whatever adapters
// satisfy ports.*, exposed behind a WebSocket hub, grounded on the
// bidding engine's own module.go composition shape.
package gatewayservice

import (
	"log/slog"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/adapters/ws"
	"porterdispatch/contexts/realtime/gateway-service/application/auth"
	"porterdispatch/contexts/realtime/gateway-service/application/chat"
	"porterdispatch/contexts/realtime/gateway-service/application/location"
	"porterdispatch/contexts/realtime/gateway-service/application/offers"
	"porterdispatch/contexts/realtime/gateway-service/application/subscriptions"
	"porterdispatch/contexts/realtime/gateway-service/ports"
)

// Module exposes the gateway's entrypoints needed by its HTTP/WebSocket
// server and the standalone expiry-sweep loop.
type Module struct {
	Hub *ws.Hub
	Offers offers.Service
	Subscriptions subscriptions.Service
}

// Dependencies groups every infrastructure-facing port the gateway's
// application layer needs, plus the tuning knobs exposes as
// configuration.
type Dependencies struct {
	Verifier ports.TokenVerifier
	Sessions ports.SessionRegistry
	Subscriptions ports.SubscriptionRegistry
	Locations ports.LocationStore
	Offers ports.OfferStore
	RateLimiter ports.RateLimiter
	Rooms ports.RoomBroadcaster
	Publisher ports.EventPublisher
	Authorizer ports.OrderAuthorizer
	Clock ports.Clock
	IDGen ports.IDGenerator
	Logger *slog.Logger

	ReconnectTTL time.Duration

	LocationTTL time.Duration
	LocationSampleEveryN int64
	LocationSkewTolerance time.Duration

	RateLimitLocationPoints int64
	RateLimitLocationWindow time.Duration
	RateLimitChatPoints int64
	RateLimitChatWindow time.Duration
}

// NewModule wires the application services and the WebSocket hub
// that dispatches inbound frames onto them.
func NewModule(deps Dependencies) Module {
	authSvc := auth.Service{
		Verifier: deps.Verifier,
		Sessions: deps.Sessions,
		Rooms: deps.Rooms,
		Clock: deps.Clock,
		IDGen: deps.IDGen,
		Logger: deps.Logger,
		ReconnectTTL: deps.ReconnectTTL,
	}
	subsSvc := subscriptions.Service{
		Subscriptions: deps.Subscriptions,
		Rooms: deps.Rooms,
		Authorizer: deps.Authorizer,
		Logger: deps.Logger,
	}
	locSvc := location.Service{
		Locations: deps.Locations,
		RateLimiter: deps.RateLimiter,
		Rooms: deps.Rooms,
		Publisher: deps.Publisher,
		Clock: deps.Clock,
		IDGen: deps.IDGen,
		Logger: deps.Logger,
		RatePoints: deps.RateLimitLocationPoints,
		RateWindow: deps.RateLimitLocationWindow,
		LocationTTL: deps.LocationTTL,
		SampleEveryN: deps.LocationSampleEveryN,
		SkewTolerance: deps.LocationSkewTolerance,
	}
	offersSvc := offers.Service{
		Offers: deps.Offers,
		Sessions: deps.Sessions,
		Rooms: deps.Rooms,
		Publisher: deps.Publisher,
		Clock: deps.Clock,
		IDGen: deps.IDGen,
		Logger: deps.Logger,
	}
	chatSvc := chat.Service{
		Subscriptions: deps.Subscriptions,
		Rooms: deps.Rooms,
		RateLimiter: deps.RateLimiter,
		Publisher: deps.Publisher,
		Clock: deps.Clock,
		IDGen: deps.IDGen,
		Logger: deps.Logger,
		RatePoints: deps.RateLimitChatPoints,
		RateWindow: deps.RateLimitChatWindow,
	}

	hub := ws.NewHub(authSvc, subsSvc, locSvc, offersSvc, chatSvc, deps.Rooms, deps.IDGen, deps.Clock, deps.Logger)
	return Module{Hub: hub, Offers: offersSvc, Subscriptions: subsSvc}
}
