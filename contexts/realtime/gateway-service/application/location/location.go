// Package location implements the porter location hub: rate-limited
// ingress, payload validation, latest-position storage, sampled event-log
// emission, and fan-out to the porter's active order.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"porterdispatch/contexts/realtime/gateway-service/application"
	"porterdispatch/contexts/realtime/gateway-service/application/subscriptions"
	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
	domainerrors "porterdispatch/contexts/realtime/gateway-service/domain/errors"
	"porterdispatch/contexts/realtime/gateway-service/ports"
	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// TopicPorterLocationUpdated is the event-log topic the location hub samples position
// updates onto.
const TopicPorterLocationUpdated = "porter-locations"

type Service struct {
	Locations ports.LocationStore
	RateLimiter ports.RateLimiter
	Rooms ports.RoomBroadcaster
	Publisher ports.EventPublisher
	Clock ports.Clock
	IDGen ports.IDGenerator
	Logger *slog.Logger
	RateLimitKey func(porterID string) string
	RatePoints int64
	RateWindow time.Duration
	LocationTTL time.Duration
	SampleEveryN int64
	SkewTolerance time.Duration
}

func (s Service) logger() *slog.Logger { return application.ResolveLogger(s.Logger) }

// Update is this layer's sequence: rate-limit, validate, store, sample,
// fan to the active order's subscribers.
func (s Service) Update(ctx context.Context, loc entities.PorterLocation) error {
	rlKey := loc.PorterID
	if s.RateLimitKey != nil {
		rlKey = s.RateLimitKey(loc.PorterID)
	}
	allowed, err := s.RateLimiter.Allow(ctx, rlKey, s.RatePoints, s.RateWindow)
	if err != nil {
		return fmt.Errorf("check rate limit: %w", err)
	}
	if !allowed {
		return domainerrors.ErrRateLimitExceeded
	}

	if err := s.validate(loc); err != nil {
		return err
	}

	if err := s.Locations.Put(ctx, loc, s.LocationTTL); err != nil {
		return fmt.Errorf("store location: %w", err)
	}

	n := s.SampleEveryN
	if n < 1 {
		n = 1
	}
	count, err := s.Locations.IncrementUpdateCount(ctx, loc.PorterID)
	if err != nil {
		s.logger().Error("location sample counter failed",
			"event", "gateway_location_sample_counter_failed",
			"module", "realtime/gateway-service",
			"layer", "application",
			"porter_id", loc.PorterID,
			"error", err.Error(),
		)
	} else if count%n == 0 {
		s.emitSample(ctx, loc)
	}

	if loc.ActiveOrderID != "" {
		payload, err := json.Marshal(ports.LocationUpdatedMessage{
			Type: "LOCATION_UPDATED",
			PorterID: loc.PorterID,
			Lat: loc.Lat,
			Lng: loc.Lng,
			Timestamp: loc.Timestamp.Format(timeLayout),
		})
		if err == nil {
			if err := s.Rooms.Publish(ctx, subscriptions.Room(loc.ActiveOrderID), payload); err != nil {
				s.logger().Error("location fan-out failed",
					"event", "gateway_location_fanout_failed",
					"module", "realtime/gateway-service",
					"layer", "application",
					"porter_id", loc.PorterID,
					"error", err.Error(),
				)
			}
		}
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func (s Service) validate(loc entities.PorterLocation) error {
	if loc.Lat < -90 || loc.Lat > 90 {
		return fmt.Errorf("%w: lat out of range", domainerrors.ErrInvalidPayload)
	}
	if loc.Lng < -180 || loc.Lng > 180 {
		return fmt.Errorf("%w: lng out of range", domainerrors.ErrInvalidPayload)
	}
	if loc.Accuracy < 0 {
		return fmt.Errorf("%w: accuracy must be non-negative", domainerrors.ErrInvalidPayload)
	}
	skew := loc.Timestamp.Sub(s.Clock.Now())
	if skew > s.SkewTolerance || skew < -s.SkewTolerance {
		return fmt.Errorf("%w: timestamp outside skew tolerance", domainerrors.ErrInvalidPayload)
	}
	return nil
}

func (s Service) emitSample(ctx context.Context, loc entities.PorterLocation) {
	now := s.Clock.Now()
	envelope, err := eventsv1.New(
		s.IDGen.NewID(),
		eventsv1.PorterLocationUpdated,
		loc.PorterID,
		"gateway-service",
		loc.PorterID,
		now,
		eventsv1.PorterLocationUpdatedPayload{
			PorterID: loc.PorterID,
			Lat: loc.Lat,
			Lng: loc.Lng,
			Timestamp: loc.Timestamp,
		},
	)
	if err != nil {
		return
	}
	if err := s.Publisher.Publish(ctx, TopicPorterLocationUpdated, envelope); err != nil {
		s.logger().Error("location sample publish failed",
			"event", "gateway_location_sample_publish_failed",
			"module", "realtime/gateway-service",
			"layer", "application",
			"porter_id", loc.PorterID,
			"error", err.Error(),
		)
	}
}
