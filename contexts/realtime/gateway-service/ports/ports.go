// Package ports is the gateway's seam between application logic
// and its two adapter families: the ephemeral store (sessions,
// subscriptions, locations, offers, rate limits, rooms) and the event log
// (inbound domain events, outbound gateway-originated events).
package ports

import (
	"context"
	"errors"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID() string
}

// TokenClaims is what the token verifier extracts from a bearer
// token, regardless of which signing key validated it.
type TokenClaims struct {
	UserID string
	Role entities.Role
}

// TokenVerifier checks a connection's bearer token under the access-token
// key first, then the long-lived socket-token key.
type TokenVerifier interface {
	Verify(token string) (TokenClaims, error)
}

// SessionRegistry maintains the socket↔user mapping any gateway instance
// can query, backed by the ephemeral store's set + KV primitives.
type SessionRegistry interface {
	AddSession(ctx context.Context, sess entities.SocketSession) error
	RemoveSession(ctx context.Context, socketID string) (entities.SocketSession, bool, error)
	SocketsForUser(ctx context.Context, userID string) ([]string, error)
	Touch(ctx context.Context, socketID string, at time.Time) error
	PutReconnectToken(ctx context.Context, tok entities.ReconnectToken) error
	TakeReconnectToken(ctx context.Context, token string) (entities.ReconnectToken, bool, error)
}

// SubscriptionRegistry tracks which users are subscribed to which order's
// broadcast room.
type SubscriptionRegistry interface {
	Subscribe(ctx context.Context, orderID, userID string) error
	Unsubscribe(ctx context.Context, orderID, userID string) error
	Subscribers(ctx context.Context, orderID string) ([]string, error)
	IsSubscribed(ctx context.Context, orderID, userID string) (bool, error)
}

// RoomBroadcaster fans a message to every socket subscribed to a room,
// across every gateway instance, via the ephemeral store's pub/sub.
type RoomBroadcaster interface {
	Publish(ctx context.Context, room string, message []byte) error
	Subscribe(ctx context.Context, room string) (RoomSubscription, error)
}

// RoomSubscription streams messages published to a single room.
type RoomSubscription interface {
	Messages() <-chan []byte
	Close() error
}

// LocationStore holds each porter's latest position with a TTL and the
// per-porter update counter the location hub uses to sample every Nth update to the
// event log.
type LocationStore interface {
	Put(ctx context.Context, loc entities.PorterLocation, ttl time.Duration) error
	Get(ctx context.Context, porterID string) (entities.PorterLocation, bool, error)
	IncrementUpdateCount(ctx context.Context, porterID string) (int64, error)
}

// RateLimiter gates porter-location and chat ingress by a per-key budget
// of points per window; Allow reports whether the caller still has
// budget and consumes a point if so.
type RateLimiter interface {
	Allow(ctx context.Context, key string, points int64, window time.Duration) (bool, error)
}

// OfferStore persists JobOffer records and guarantees exactly one terminal
// compare-and-set transition per offer.
type OfferStore interface {
	Create(ctx context.Context, offer entities.JobOffer, ttl time.Duration) error
	Get(ctx context.Context, offerID string) (entities.JobOffer, bool, error)
	// TransitionTerminal atomically moves the offer from pending to the
	// given terminal status; ok is false if it was no longer pending.
	TransitionTerminal(ctx context.Context, offerID string, to entities.OfferStatus, now time.Time) (entities.JobOffer, bool, error)
	DueForExpiry(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

// EventPublisher ships a gateway-originated event (JobOfferAccepted,
// PorterLocationUpdated, ChatMessageSent,...) to the event log, using the
// canonical envelope every producer/consumer in the repository shares.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, envelope eventsv1.Envelope) error
}

// ErrLockHeld is returned by Locker.WithLock on contention.
var ErrLockHeld = errors.New("gateway: lock held by another caller")

// Locker provides the critical sections offer acceptance needs on
// top of OfferStore's compare-and-set (belt-and-braces: the CAS alone is
// sufficient, the lock guards multi-step flows like expiry sweeps).
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// UserRoom is the per-user pub/sub room a porter's sockets (possibly
// spread across gateway instances) all subscribe to, used to deliver
// direct-to-user pushes like JOB_OFFER_RECEIVED.
func UserRoom(userID string) string { return "user:" + userID }

// OrderAuthorizer answers "is this user the customer, assigned porter, or
// an admin for this order" — an opaque external call,
// analogous to the bidding engine's EligibilityChecker seam.
type OrderAuthorizer interface {
	IsAuthorizedForOrder(ctx context.Context, userID string, role entities.Role, orderID string) (bool, error)
}
