package models

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/google/uuid"
)

// Driver is the Driver Registry's record. Availability and Location are
// the two fields the dispatch core writes on a driver's behalf; every
// other field is informational.
type Driver struct {
	ID           uuid.UUID
	Name         string
	Availability types.Availability
	Location     *Location
	LocationAt   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CandidateDriver is a Driver annotated with its distance to a pickup
// point, returned by Store.listCandidateDrivers.
type CandidateDriver struct {
	Driver
	DistanceKm float64
}
