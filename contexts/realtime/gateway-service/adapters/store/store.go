// Package store adapts the platform ephemeral-store client to the
// gateway's SessionRegistry, SubscriptionRegistry, LocationStore,
// OfferStore, RateLimiter, and RoomBroadcaster ports — every piece of
// gateway state is ephemeral, with no durable store behind it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	platform "porterdispatch/internal/platform/ephstore"

	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	"porterdispatch/contexts/realtime/gateway-service/ports"
)

// SessionRegistry adapts platform.Client to the auth service's socket↔user mapping.
type SessionRegistry struct {
	Client *platform.Client
}

func socketKey(socketID string) string { return "socket:" + socketID }
func userSocketsKey(userID string) string { return "user_sockets:" + userID }
func reconnectKey(token string) string { return "reconnect:" + token }

func (r SessionRegistry) AddSession(ctx context.Context, sess entities.SocketSession) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := r.Client.Set(ctx, socketKey(sess.SocketID), string(raw)); err != nil {
		return err
	}
	return r.Client.SAdd(ctx, userSocketsKey(sess.UserID), sess.SocketID)
}

func (r SessionRegistry) RemoveSession(ctx context.Context, socketID string) (entities.SocketSession, bool, error) {
	raw, found, err := r.Client.Get(ctx, socketKey(socketID))
	if err != nil {
		return entities.SocketSession{}, false, err
	}
	if !found {
		return entities.SocketSession{}, false, nil
	}
	var sess entities.SocketSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return entities.SocketSession{}, false, err
	}
	if err := r.Client.Del(ctx, socketKey(socketID)); err != nil {
		return entities.SocketSession{}, false, err
	}
	if err := r.Client.SRem(ctx, userSocketsKey(sess.UserID), socketID); err != nil {
		return entities.SocketSession{}, false, err
	}
	return sess, true, nil
}

func (r SessionRegistry) SocketsForUser(ctx context.Context, userID string) ([]string, error) {
	return r.Client.SMembers(ctx, userSocketsKey(userID))
}

func (r SessionRegistry) Touch(ctx context.Context, socketID string, at time.Time) error {
	raw, found, err := r.Client.Get(ctx, socketKey(socketID))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var sess entities.SocketSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return err
	}
	sess.LastActivityAt = at
	updated, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, socketKey(socketID), string(updated))
}

func (r SessionRegistry) PutReconnectToken(ctx context.Context, tok entities.ReconnectToken) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.Client.SetEx(ctx, reconnectKey(tok.Token), string(raw), ttl)
}

func (r SessionRegistry) TakeReconnectToken(ctx context.Context, token string) (entities.ReconnectToken, bool, error) {
	raw, found, err := r.Client.Get(ctx, reconnectKey(token))
	if err != nil {
		return entities.ReconnectToken{}, false, err
	}
	if !found {
		return entities.ReconnectToken{}, false, nil
	}
	if err := r.Client.Del(ctx, reconnectKey(token)); err != nil {
		return entities.ReconnectToken{}, false, err
	}
	var tok entities.ReconnectToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return entities.ReconnectToken{}, false, err
	}
	return tok, true, nil
}

// SubscriptionRegistry adapts platform.Client to the subscription router's order↔user set.
type SubscriptionRegistry struct {
	Client *platform.Client
}

func subscribersKey(orderID string) string { return "order_subs:" + orderID }

func (r SubscriptionRegistry) Subscribe(ctx context.Context, orderID, userID string) error {
	return r.Client.SAdd(ctx, subscribersKey(orderID), userID)
}

func (r SubscriptionRegistry) Unsubscribe(ctx context.Context, orderID, userID string) error {
	return r.Client.SRem(ctx, subscribersKey(orderID), userID)
}

func (r SubscriptionRegistry) Subscribers(ctx context.Context, orderID string) ([]string, error) {
	return r.Client.SMembers(ctx, subscribersKey(orderID))
}

func (r SubscriptionRegistry) IsSubscribed(ctx context.Context, orderID, userID string) (bool, error) {
	members, err := r.Client.SMembers(ctx, subscribersKey(orderID))
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

// LocationStore adapts platform.Client to the location hub's latest-position cache and
// per-porter sample counter.
type LocationStore struct {
	Client *platform.Client
}

func locationKey(porterID string) string { return "location:" + porterID }
func locationCountKey(porterID string) string { return "location_count:" + porterID }

func (l LocationStore) Put(ctx context.Context, loc entities.PorterLocation, ttl time.Duration) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return l.Client.SetEx(ctx, locationKey(loc.PorterID), string(raw), ttl)
}

func (l LocationStore) Get(ctx context.Context, porterID string) (entities.PorterLocation, bool, error) {
	raw, found, err := l.Client.Get(ctx, locationKey(porterID))
	if err != nil {
		return entities.PorterLocation{}, false, err
	}
	if !found {
		return entities.PorterLocation{}, false, nil
	}
	var loc entities.PorterLocation
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		return entities.PorterLocation{}, false, err
	}
	return loc, true, nil
}

// IncrementUpdateCount is a GET/SET read-increment-write; the sample
// decision that consumes it tolerates the rare race under concurrent
// updates from the same porter (at most a skipped or doubled sample).
func (l LocationStore) IncrementUpdateCount(ctx context.Context, porterID string) (int64, error) {
	raw, found, err := l.Client.Get(ctx, locationCountKey(porterID))
	if err != nil {
		return 0, err
	}
	var count int64
	if found {
		count, _ = strconv.ParseInt(raw, 10, 64)
	}
	count++
	if err := l.Client.SetEx(ctx, locationCountKey(porterID), strconv.FormatInt(count, 10), time.Hour); err != nil {
		return 0, err
	}
	return count, nil
}

// OfferStore adapts platform.Client to the offer broker's JobOffer records, using the
// lock primitive's SET-NX-then-compare-and-delete shape to guarantee
// exactly one terminal transition per offer.
type OfferStore struct {
	Client *platform.Client
}

func offerKey(offerID string) string { return "offer:" + offerID }

var errOfferNotPending = errors.New("gateway store: offer not pending")

func (o OfferStore) Create(ctx context.Context, offer entities.JobOffer, ttl time.Duration) error {
	raw, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	if err := o.Client.SetEx(ctx, offerKey(offer.OfferID), string(raw), ttl); err != nil {
		return err
	}
	return o.Client.ZAdd(ctx, "offer_deadlines", float64(offer.ExpiresAt.Unix()), offer.OfferID)
}

func (o OfferStore) Get(ctx context.Context, offerID string) (entities.JobOffer, bool, error) {
	raw, found, err := o.Client.Get(ctx, offerKey(offerID))
	if err != nil {
		return entities.JobOffer{}, false, err
	}
	if !found {
		return entities.JobOffer{}, false, nil
	}
	var offer entities.JobOffer
	if err := json.Unmarshal([]byte(raw), &offer); err != nil {
		return entities.JobOffer{}, false, err
	}
	return offer, true, nil
}

// TransitionTerminal guards the pending→terminal move with the offer's
// own lock key: only the caller that acquires it may read-modify-write
// the record, which is what makes "exactly one terminal transition"
// hold even under two concurrent accept/reject/expire calls.
func (o OfferStore) TransitionTerminal(ctx context.Context, offerID string, to entities.OfferStatus, now time.Time) (entities.JobOffer, bool, error) {
	var result entities.JobOffer
	transitioned := false
	err := o.Client.WithLock(ctx, "offer_lock:"+offerID, 5*time.Second, func(ctx context.Context) error {
		offer, found, err := o.Get(ctx, offerID)
		if err != nil {
			return err
		}
		if !found || offer.Status != entities.OfferPending {
			return errOfferNotPending
		}
		offer.Status = to
		raw, err := json.Marshal(offer)
		if err != nil {
			return err
		}
		if err := o.Client.SetEx(ctx, offerKey(offerID), string(raw), time.Hour); err != nil {
			return err
		}
		if err := o.Client.ZRem(ctx, "offer_deadlines", offerID); err != nil {
			return err
		}
		result = offer
		transitioned = true
		return nil
	})
	if errors.Is(err, errOfferNotPending) {
		return entities.JobOffer{}, false, nil
	}
	if errors.Is(err, platform.ErrLockHeld) {
		return entities.JobOffer{}, false, nil
	}
	if err != nil {
		return entities.JobOffer{}, false, fmt.Errorf("transition offer %s: %w", offerID, err)
	}
	return result, transitioned, nil
}

func (o OfferStore) DueForExpiry(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	return o.Client.ZRangeByScoreUpTo(ctx, "offer_deadlines", float64(now.Unix()), limit)
}

// RateLimiter adapts platform.Client to a per-key point counter: a GET
// followed by a SETEX of the incremented count, which resets the key's TTL
// to window on every allowed call. Once points is reached, calls are refused
// until the key expires, window after the last allowed call. The GET and the
// SETEX are two separate round trips, not one atomic step.
type RateLimiter struct {
	Client *platform.Client
}

func (r RateLimiter) Allow(ctx context.Context, key string, points int64, window time.Duration) (bool, error) {
	countKey := "ratelimit:" + key
	raw, found, err := r.Client.Get(ctx, countKey)
	if err != nil {
		return false, err
	}
	var count int64
	if found {
		count, _ = strconv.ParseInt(raw, 10, 64)
	}
	if count >= points {
		return false, nil
	}
	count++
	if err := r.Client.SetEx(ctx, countKey, strconv.FormatInt(count, 10), window); err != nil {
		return false, err
	}
	return true, nil
}

// RoomBroadcaster adapts platform.Client's pub/sub to cross-instance room
// fan-out.
type RoomBroadcaster struct {
	Client *platform.Client
}

func (b RoomBroadcaster) Publish(ctx context.Context, room string, message []byte) error {
	return b.Client.Publish(ctx, "room:"+room, string(message))
}

func (b RoomBroadcaster) Subscribe(ctx context.Context, room string) (ports.RoomSubscription, error) {
	sub, err := b.Client.Subscribe(ctx, "room:"+room)
	if err != nil {
		return nil, err
	}
	return roomSubscription{sub: sub}, nil
}

type roomSubscription struct {
	sub platform.Subscriber
}

func (s roomSubscription) Messages() <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range s.sub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()
	return out
}

func (s roomSubscription) Close() error {
	return s.sub.Close()
}
