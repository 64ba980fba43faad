package models

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/google/uuid"
)

// RideOffer is one broadcast offer of a Ride to one Driver, scoped to a
// single Phase. The (RideID, DriverID) pair is unique across all offers,
// whatever their status — createOffersSkipDuplicates enforces this so a
// driver is never offered the same ride twice, in any phase.
type RideOffer struct {
	ID       uuid.UUID
	RideID   uuid.UUID
	DriverID uuid.UUID
	Phase    types.Phase
	Status   types.OfferStatus

	DistanceToPickupKm float64

	SentAt    time.Time
	ExpiresAt time.Time

	ResolvedAt *time.Time
}
