// Package memory provides single-process, in-memory stands-ins for every
// gateway port, sufficient for unit tests that exercise one process --
// mirroring the bidding engine's own adapters/memory test-support package.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	"porterdispatch/contexts/realtime/gateway-service/ports"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// FixedClock lets tests control "now" deterministically.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock { return &FixedClock{now: now} }

func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SequentialIDGenerator issues predictable ids for assertions.
type SequentialIDGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *SequentialIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%d", g.next)
}

// Verifier maps bearer tokens to claims for tests, instead of decoding JWTs.
type Verifier struct {
	Tokens map[string]ports.TokenClaims
}

func (v Verifier) Verify(token string) (ports.TokenClaims, error) {
	claims, ok := v.Tokens[token]
	if !ok {
		return ports.TokenClaims{}, fmt.Errorf("unknown token")
	}
	return claims, nil
}

// Authorizer is a configurable stand-in for ports.OrderAuthorizer.
type Authorizer struct {
	Allow bool
}

func (a Authorizer) IsAuthorizedForOrder(ctx context.Context, userID string, role entities.Role, orderID string) (bool, error) {
	return a.Allow, nil
}

// Sessions is an in-memory ports.SessionRegistry.
type Sessions struct {
	mu          sync.Mutex
	bySocket    map[string]entities.SocketSession
	byUser      map[string]map[string]bool
	reconnects  map[string]entities.ReconnectToken
}

func NewSessions() *Sessions {
	return &Sessions{
		bySocket:   make(map[string]entities.SocketSession),
		byUser:     make(map[string]map[string]bool),
		reconnects: make(map[string]entities.ReconnectToken),
	}
}

func (s *Sessions) AddSession(ctx context.Context, sess entities.SocketSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySocket[sess.SocketID] = sess
	if s.byUser[sess.UserID] == nil {
		s.byUser[sess.UserID] = make(map[string]bool)
	}
	s.byUser[sess.UserID][sess.SocketID] = true
	return nil
}

func (s *Sessions) RemoveSession(ctx context.Context, socketID string) (entities.SocketSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.bySocket[socketID]
	if !ok {
		return entities.SocketSession{}, false, nil
	}
	delete(s.bySocket, socketID)
	delete(s.byUser[sess.UserID], socketID)
	return sess, true, nil
}

func (s *Sessions) SocketsForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		out = append(out, id)
	}
	return out, nil
}

func (s *Sessions) Touch(ctx context.Context, socketID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.bySocket[socketID]
	if !ok {
		return nil
	}
	sess.LastActivityAt = at
	s.bySocket[socketID] = sess
	return nil
}

func (s *Sessions) PutReconnectToken(ctx context.Context, tok entities.ReconnectToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects[tok.Token] = tok
	return nil
}

func (s *Sessions) TakeReconnectToken(ctx context.Context, token string) (entities.ReconnectToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.reconnects[token]
	if !ok {
		return entities.ReconnectToken{}, false, nil
	}
	delete(s.reconnects, token)
	return tok, true, nil
}

// Subscriptions is an in-memory ports.SubscriptionRegistry.
type Subscriptions struct {
	mu      sync.Mutex
	members map[string]map[string]bool
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{members: make(map[string]map[string]bool)}
}

func (s *Subscriptions) Subscribe(ctx context.Context, orderID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[orderID] == nil {
		s.members[orderID] = make(map[string]bool)
	}
	s.members[orderID][userID] = true
	return nil
}

func (s *Subscriptions) Unsubscribe(ctx context.Context, orderID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[orderID], userID)
	return nil
}

func (s *Subscriptions) Subscribers(ctx context.Context, orderID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.members[orderID]))
	for u := range s.members[orderID] {
		out = append(out, u)
	}
	return out, nil
}

func (s *Subscriptions) IsSubscribed(ctx context.Context, orderID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[orderID][userID], nil
}

// Locations is an in-memory ports.LocationStore.
type Locations struct {
	mu     sync.Mutex
	latest map[string]entities.PorterLocation
	counts map[string]int64
}

func NewLocations() *Locations {
	return &Locations{latest: make(map[string]entities.PorterLocation), counts: make(map[string]int64)}
}

func (l *Locations) Put(ctx context.Context, loc entities.PorterLocation, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest[loc.PorterID] = loc
	return nil
}

func (l *Locations) Get(ctx context.Context, porterID string) (entities.PorterLocation, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	loc, ok := l.latest[porterID]
	return loc, ok, nil
}

func (l *Locations) IncrementUpdateCount(ctx context.Context, porterID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[porterID]++
	return l.counts[porterID], nil
}

// RateLimiter is an in-memory ports.RateLimiter with fixed-window semantics
// matching the ephstore-backed adapter (no real window expiry since tests
// control the clock explicitly rather than waiting on a TTL).
type RateLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewRateLimiter() *RateLimiter { return &RateLimiter{counts: make(map[string]int64)} }

func (r *RateLimiter) Allow(ctx context.Context, key string, points int64, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts[key] >= points {
		return false, nil
	}
	r.counts[key]++
	return true, nil
}

// Offers is an in-memory ports.OfferStore.
type Offers struct {
	mu       sync.Mutex
	byID     map[string]entities.JobOffer
	deadline map[string]time.Time
}

func NewOffers() *Offers {
	return &Offers{byID: make(map[string]entities.JobOffer), deadline: make(map[string]time.Time)}
}

func (o *Offers) Create(ctx context.Context, offer entities.JobOffer, ttl time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byID[offer.OfferID] = offer
	o.deadline[offer.OfferID] = offer.ExpiresAt
	return nil
}

func (o *Offers) Get(ctx context.Context, offerID string) (entities.JobOffer, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	offer, ok := o.byID[offerID]
	return offer, ok, nil
}

func (o *Offers) TransitionTerminal(ctx context.Context, offerID string, to entities.OfferStatus, now time.Time) (entities.JobOffer, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	offer, ok := o.byID[offerID]
	if !ok || offer.Status != entities.OfferPending {
		return entities.JobOffer{}, false, nil
	}
	offer.Status = to
	o.byID[offerID] = offer
	delete(o.deadline, offerID)
	return offer, true, nil
}

func (o *Offers) DueForExpiry(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0)
	for id, dl := range o.deadline {
		if !dl.After(now) {
			out = append(out, id)
			if int64(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Rooms is an in-memory ports.RoomBroadcaster that records every publish
// for assertions; no subscriber fan-out is simulated since application-layer
// tests only need to observe what was published, not consume it back.
type Rooms struct {
	mu        sync.Mutex
	Published []PublishedMessage
}

type PublishedMessage struct {
	Room    string
	Message []byte
}

func NewRooms() *Rooms { return &Rooms{} }

func (r *Rooms) Publish(ctx context.Context, room string, message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Published = append(r.Published, PublishedMessage{Room: room, Message: append([]byte(nil), message...)})
	return nil
}

func (r *Rooms) Subscribe(ctx context.Context, room string) (ports.RoomSubscription, error) {
	return nil, fmt.Errorf("memory.Rooms does not support Subscribe")
}

// Publisher is an in-memory ports.EventPublisher that records every
// envelope for assertions.
type Publisher struct {
	mu        sync.Mutex
	Published []eventsv1.Envelope
}

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) Publish(ctx context.Context, topic string, envelope eventsv1.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, envelope)
	return nil
}
