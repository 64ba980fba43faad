package models

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/google/uuid"
)

// Ride is a ride request tracked through the Ride State Machine (the
// spec's RideRequest). Phase/PhaseExpiresAt drive the Phase Controller;
// AssignedDriverID is set exactly once, by acceptOfferAtomic.
//
// Pickup/Destination coordinates are optional: a passenger may submit
// only free-text. A ride with a nil Pickup makes every ONLINE driver a
// candidate in every phase, since there is no point to measure distance
// from (§4.5 candidate selection, §4.3).
type Ride struct {
	ID              uuid.UUID
	PassengerID     uuid.UUID
	PickupText      string
	Pickup          *Location
	DestinationText string
	Destination     *Location

	Status types.RideStatus
	Phase  types.Phase

	// PhaseExpiresAt is when the current phase's broadcast TTL elapses;
	// a process restart reconciles outstanding rides against this field
	// instead of any in-memory timer state.
	PhaseExpiresAt *time.Time

	AssignedDriverID *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Ride) IsTerminal() bool { return r.Status.Terminal() }
