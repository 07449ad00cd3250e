package application

import (
	"encoding/json"
	"time"

	eventsv1 "porterdispatch/contracts/gen/events/v1"
)

// BuildEnvelopePayload marshals a typed payload and wraps it in an Envelope,
// mirroring an outbox row shape (payload stored pre-marshaled so
// the relay never re-derives it).
func BuildEnvelopePayload(eventID, eventType, correlationID, sourceService, partitionKey string, occurredAt time.Time, payload any) ([]byte, error) {
	envelope, err := eventsv1.New(eventID, eventType, correlationID, sourceService, partitionKey, occurredAt, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope)
}
