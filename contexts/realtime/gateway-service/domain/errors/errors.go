// Package errors collects the gateway's sentinel domain errors. Adapters
// translate these into the socket error codes clients see
// (UNAUTHENTICATED, FORBIDDEN, RATE_LIMIT_EXCEEDED, etc).
package errors

import "errors"

var (
	ErrUnauthenticated = errors.New("gateway: unauthenticated")
	ErrForbidden = errors.New("gateway: forbidden")
	ErrRateLimitExceeded = errors.New("gateway: rate limit exceeded")
	ErrInvalidPayload = errors.New("gateway: invalid payload")
	ErrReconnectTokenUsed = errors.New("gateway: reconnect token already used or expired")
	ErrOfferNotFound = errors.New("gateway: offer not found")
	ErrOfferAlreadyProcessed = errors.New("gateway: offer already processed")
	ErrOfferExpired = errors.New("gateway: offer expired")
	ErrNotSubscribed = errors.New("gateway: caller is not subscribed to this order")
)
