package dto

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/google/uuid"
)

// CreateRideRequest is the passenger-submitted ride request body.
// Coordinates are optional on both legs: a passenger may submit only
// free text, leaving candidate selection to fall back to every ONLINE
// driver regardless of distance (§4.3).
type CreateRideRequest struct {
	PickupText      string           `json:"pickup_text"`
	Pickup          *models.Location `json:"pickup,omitempty"`
	DestinationText string           `json:"destination_text"`
	Destination     *models.Location `json:"destination,omitempty"`
}

// AdvanceRideRequest carries the next status a driver is pushing a ride
// into (ACCEPTED -> ARRIVING -> IN_PROGRESS -> COMPLETED).
type AdvanceRideRequest struct {
	Status types.RideStatus `json:"status"`
}

// RideResponse is the wire shape of a models.Ride.
type RideResponse struct {
	ID               uuid.UUID        `json:"id"`
	PassengerID      uuid.UUID        `json:"passenger_id"`
	PickupText       string           `json:"pickup_text"`
	Pickup           *models.Location `json:"pickup,omitempty"`
	DestinationText  string           `json:"destination_text"`
	Destination      *models.Location `json:"destination,omitempty"`
	Status           types.RideStatus `json:"status"`
	Phase            types.Phase      `json:"phase"`
	PhaseExpiresAt   *time.Time       `json:"phase_expires_at,omitempty"`
	AssignedDriverID *uuid.UUID       `json:"assigned_driver_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func RideFromModel(r *models.Ride) RideResponse {
	return RideResponse{
		ID:               r.ID,
		PassengerID:      r.PassengerID,
		PickupText:       r.PickupText,
		Pickup:           r.Pickup,
		DestinationText:  r.DestinationText,
		Destination:      r.Destination,
		Status:           r.Status,
		Phase:            r.Phase,
		PhaseExpiresAt:   r.PhaseExpiresAt,
		AssignedDriverID: r.AssignedDriverID,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func RidesFromModel(rides []*models.Ride) []RideResponse {
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, RideFromModel(r))
	}
	return out
}

// OfferResponse is the wire shape of a models.RideOffer.
type OfferResponse struct {
	ID                 uuid.UUID         `json:"id"`
	RideID             uuid.UUID         `json:"ride_id"`
	DriverID           uuid.UUID         `json:"driver_id"`
	Phase              types.Phase       `json:"phase"`
	Status             types.OfferStatus `json:"status"`
	DistanceToPickupKm float64           `json:"distance_to_pickup_km"`
	SentAt             time.Time         `json:"sent_at"`
	ExpiresAt          time.Time         `json:"expires_at"`
	ResolvedAt         *time.Time        `json:"resolved_at,omitempty"`
}

func OfferFromModel(o *models.RideOffer) OfferResponse {
	return OfferResponse{
		ID:                 o.ID,
		RideID:             o.RideID,
		DriverID:           o.DriverID,
		Phase:              o.Phase,
		Status:             o.Status,
		DistanceToPickupKm: o.DistanceToPickupKm,
		SentAt:             o.SentAt,
		ExpiresAt:          o.ExpiresAt,
		ResolvedAt:         o.ResolvedAt,
	}
}

func OffersFromModel(offers []*models.RideOffer) []OfferResponse {
	out := make([]OfferResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, OfferFromModel(o))
	}
	return out
}
