// Package support holds small in-process stand-ins for the gateway's
// remaining infrastructure seams, mirroring the bidding engine's
// adapters/memory support types (UUIDGenerator, AllowAllEligibility).
package support

import (
	"context"
	"time"

	"github.com/google/uuid"

	"porterdispatch/contexts/realtime/gateway-service/domain/entities"
)

// UUIDGenerator issues google/uuid-backed identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// RealClock reports wall-clock time in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// AllowAllAuthorizer treats every caller as authorized for every order; an
// opaque stand-in for the order service's real membership check, analogous
// to the bidding engine's EligibilityChecker seam.
type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) IsAuthorizedForOrder(ctx context.Context, userID string, role entities.Role, orderID string) (bool, error) {
	if role == entities.RoleAdmin {
		return true, nil
	}
	return userID != "" && orderID != "", nil
}
