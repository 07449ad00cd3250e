// Package errors collects the bidding engine's sentinel domain errors.
// Application and transport layers translate these into caller-facing
// error codes.
package errors

import "errors"

var (
	ErrStrategyInactive = errors.New("bidding: strategy inactive")
	ErrStrategyNotFound = errors.New("bidding: strategy not found")
	ErrWindowNotFound = errors.New("bidding: window not found")
	ErrWindowNotOpen = errors.New("bidding: window not open")
	ErrWindowExpired = errors.New("bidding: window expired")
	ErrWindowAlreadyOpen = errors.New("bidding: orders already covered by an open window")
	ErrBidTooLow = errors.New("bidding: amount below minimum bid")
	ErrPorterLimit = errors.New("bidding: porter has reached max bids for window")
	ErrPorterIneligible = errors.New("bidding: porter not eligible for this window")
	ErrConcurrentAccept = errors.New("bidding: window is already being accepted")
	ErrBidNotFound = errors.New("bidding: bid not found")
	ErrBidWrongWindow = errors.New("bidding: bid does not belong to window")
	ErrBidNotPlaced = errors.New("bidding: bid is not in PLACED status")
	ErrBidTerminal = errors.New("bidding: bid already in a terminal status")
	ErrNotBidOwner = errors.New("bidding: caller does not own this bid")
	ErrIdempotencyConflict = errors.New("bidding: idempotency key reused with a different payload")
	ErrInvalidInput = errors.New("bidding: invalid input")
)
