package dto

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/google/uuid"
)

// UpdateLocationRequest is a driver's self-reported position.
type UpdateLocationRequest struct {
	Location models.Location `json:"location"`
}

// DriverResponse is the wire shape of a models.Driver.
type DriverResponse struct {
	ID           uuid.UUID           `json:"id"`
	Name         string              `json:"name"`
	Availability types.Availability  `json:"availability"`
	Location     *models.Location    `json:"location,omitempty"`
	LocationAt   *time.Time          `json:"location_at,omitempty"`
}

func DriverFromModel(d *models.Driver) DriverResponse {
	return DriverResponse{
		ID:           d.ID,
		Name:         d.Name,
		Availability: d.Availability,
		Location:     d.Location,
		LocationAt:   d.LocationAt,
	}
}
