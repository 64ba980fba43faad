package models

import "github.com/google/uuid"

// Passenger is the requester of a Ride. The dispatch core only needs an
// identity to own a ride; profile fields are informational.
type Passenger struct {
	ID   uuid.UUID
	Name string
}
