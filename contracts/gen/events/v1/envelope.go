// Package v1 is the canonical, versioned event envelope shared by every
// producer and consumer in the repository. It is generated-contract-only
// and must stay backward compatible.
package v1

import (
	"encoding/json"
	"time"
)

// Event type constants for every topic a producer in the repository emits.
const (
	BidWindowOpened = "BidWindowOpened"
	BidPlaced = "BidPlaced"
	BidAccepted = "BidAccepted"
	BidWinnerSelected = "BidWinnerSelected"
	BidCancelled = "BidCancelled"
	BidExpired = "BidExpired"
	BidClosed = "BidClosed"

	JobOfferCreated = "JobOfferCreated"
	JobOfferAccepted = "JobOfferAccepted"
	JobOfferRejected = "JobOfferRejected"
	JobOfferExpired = "JobOfferExpired"

	OrderCreated = "OrderCreated"
	OrderConfirmed = "OrderConfirmed"
	OrderAssigned = "OrderAssigned"
	OrderStarted = "OrderStarted"
	OrderCompleted = "OrderCompleted"
	OrderCancelled = "OrderCancelled"
	OrderStatusChanged = "OrderStatusChanged"
	OrderTimelineUpdate = "OrderTimelineUpdated"

	PorterSuspended = "PorterSuspended"
	PorterLocationUpdated = "PorterLocationUpdated"

	ChatMessageSent = "ChatMessageSent"
)

// Envelope is the canonical event shape: {type, timestamp, correlationId,
// payload} plus routing metadata the event log client needs.
type Envelope struct {
	EventID string `json:"event_id"`
	EventType string `json:"type"`
	OccurredAt time.Time `json:"timestamp"`
	SourceService string `json:"source_service"`
	CorrelationID string `json:"correlationId"`
	SchemaVersion int `json:"schema_version"`
	PartitionKey string `json:"partition_key"`
	Data json.RawMessage `json:"payload"`
}

// New builds an envelope with the payload marshaled into Data.
func New(eventID, eventType, correlationID, sourceService, partitionKey string, occurredAt time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID: eventID,
		EventType: eventType,
		OccurredAt: occurredAt,
		SourceService: sourceService,
		CorrelationID: correlationID,
		SchemaVersion: 1,
		PartitionKey: partitionKey,
		Data: data,
	}, nil
}
