// Package offers implements the job offer broker: time-bounded
// dispatch offers, exactly-one-terminal-transition accept/reject, and
// expiry sweeping.
package offers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/application"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
	"porterdispatch/contexts/realtime/gateway-service/ports"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// TopicJobOffers is the event-log topic accept/reject/expire outcomes
// publish to.
const TopicJobOffers = "job-offers"

// ExpiryGrace extends a JobOffer record's TTL past its deadline so the
// record still exists when the next expiry sweep runs.
const ExpiryGrace = 30 * time.Second

type Service struct {
	Offers ports.OfferStore
	Sessions ports.SessionRegistry
	Rooms ports.RoomBroadcaster
	Publisher ports.EventPublisher
	Clock ports.Clock
	IDGen ports.IDGenerator
	Logger *slog.Logger
}

func (s Service) logger() *slog.Logger { return application.ResolveLogger(s.Logger) }

// SendResult reports whether the offer was actually delivered to a live
// socket, so the caller can decide whether to also log a delivery_failure.
type SendResult struct {
	Delivered bool
}

// SendOffer persists a pending JobOffer and pushes JOB_OFFER_RECEIVED to
// every socket of the target porter. If the porter has
// no live socket the offer remains valid for later delivery on reconnect.
func (s Service) SendOffer(ctx context.Context, offer entities.JobOffer) (SendResult, error) {
	ttl := offer.ExpiresAt.Sub(s.Clock.Now()) + ExpiryGrace
	if ttl <= 0 {
		ttl = ExpiryGrace
	}
	offer.Status = entities.OfferPending
	offer.CreatedAt = s.Clock.Now()
	if err := s.Offers.Create(ctx, offer, ttl); err != nil {
		return SendResult{}, fmt.Errorf("create offer: %w", err)
	}

	sockets, err := s.Sessions.SocketsForUser(ctx, offer.PorterID)
	if err != nil {
		return SendResult{}, fmt.Errorf("look up porter sockets: %w", err)
	}
	if len(sockets) == 0 {
		s.logger().Info("job offer delivery_failure: porter has no live socket",
			"event", "gateway_job_offer_delivery_failure",
			"module", "realtime/gateway-service",
			"layer", "application",
			"offer_id", offer.OfferID,
			"porter_id", offer.PorterID,
		)
		return SendResult{Delivered: false}, nil
	}

	payload, err := json.Marshal(ports.JobOfferReceivedMessage{
		Type: "JOB_OFFER_RECEIVED",
		OfferID: offer.OfferID,
		OrderID: offer.OrderID,
		ExpiresAt: offer.ExpiresAt.Format(timeLayout),
	})
	if err != nil {
		return SendResult{}, err
	}
	if err := s.Rooms.Publish(ctx, ports.UserRoom(offer.PorterID), payload); err != nil {
		return SendResult{}, fmt.Errorf("publish offer to porter room: %w", err)
	}
	return SendResult{Delivered: true}, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Accept transitions offerID to accepted on behalf of porterID.
func (s Service) Accept(ctx context.Context, offerID, porterID string) (entities.JobOffer, error) {
	return s.resolve(ctx, offerID, porterID, entities.OfferAccepted, eventsv1.JobOfferAccepted)
}

// Reject transitions offerID to rejected on behalf of porterID.
func (s Service) Reject(ctx context.Context, offerID, porterID string) (entities.JobOffer, error) {
	return s.resolve(ctx, offerID, porterID, entities.OfferRejected, eventsv1.JobOfferRejected)
}

func (s Service) resolve(ctx context.Context, offerID, porterID string, to entities.OfferStatus, eventType string) (entities.JobOffer, error) {
	offer, ok, err := s.Offers.Get(ctx, offerID)
	if err != nil {
		return entities.JobOffer{}, fmt.Errorf("load offer: %w", err)
	}
	if !ok {
		return entities.JobOffer{}, domainerrors.ErrOfferNotFound
	}
	if offer.PorterID != porterID {
		return entities.JobOffer{}, domainerrors.ErrForbidden
	}
	now := s.Clock.Now()
	if now.After(offer.ExpiresAt) {
		_, _, _ = s.Offers.TransitionTerminal(ctx, offerID, entities.OfferExpired, now)
		return entities.JobOffer{}, domainerrors.ErrOfferExpired
	}

	updated, ok, err := s.Offers.TransitionTerminal(ctx, offerID, to, now)
	if err != nil {
		return entities.JobOffer{}, fmt.Errorf("transition offer: %w", err)
	}
	if !ok {
		return entities.JobOffer{}, domainerrors.ErrOfferAlreadyProcessed
	}

	s.publishOutcome(ctx, updated, eventType)
	return updated, nil
}

// ExpireDue sweeps offers whose expiry has passed and are still pending,
// transitioning each to expired and emitting JobOfferExpired. The periodic
// sweep tick is its only caller; SendOffer schedules no per-offer timer, so
// a pending offer is expired at the first sweep after its deadline, or
// earlier if Accept or Reject is called after the deadline.
func (s Service) ExpireDue(ctx context.Context, limit int64) (int, error) {
	now := s.Clock.Now()
	ids, err := s.Offers.DueForExpiry(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list due offers: %w", err)
	}
	expired := 0
	for _, id := range ids {
		updated, ok, err := s.Offers.TransitionTerminal(ctx, id, entities.OfferExpired, now)
		if err != nil {
			s.logger().Error("job offer expiry transition failed",
				"event", "gateway_job_offer_expiry_failed",
				"module", "realtime/gateway-service",
				"layer", "application",
				"offer_id", id,
				"error", err.Error(),
			)
			continue
		}
		if !ok {
			continue
		}
		s.publishOutcome(ctx, updated, eventsv1.JobOfferExpired)
		expired++
	}
	return expired, nil
}

func (s Service) publishOutcome(ctx context.Context, offer entities.JobOffer, eventType string) {
	now := s.Clock.Now()
	envelope, err := eventsv1.New(
		s.IDGen.NewID(),
		eventType,
		offer.OfferID,
		"gateway-service",
		offer.OrderID,
		now,
		eventsv1.JobOfferOutcomePayload{
			OfferID: offer.OfferID,
			OrderID: offer.OrderID,
			PorterID: offer.PorterID,
			Timestamp: now,
		},
	)
	if err != nil {
		return
	}
	if err := s.Publisher.Publish(ctx, TopicJobOffers, envelope); err != nil {
		s.logger().Error("job offer outcome publish failed",
			"event", "gateway_job_offer_outcome_publish_failed",
			"module", "realtime/gateway-service",
			"layer", "application",
			"offer_id", offer.OfferID,
			"error", err.Error(),
		)
	}
}
