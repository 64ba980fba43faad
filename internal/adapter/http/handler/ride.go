package handler

import (
	"context"
	"net/http"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/authgate"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/google/uuid"
)

// RideService is the Ride State Machine's contract from the HTTP edge's
// point of view.
type RideService interface {
	Create(ctx context.Context, passengerID uuid.UUID, pickupText string, pickup *models.Location, destinationText string, destination *models.Location) (*models.Ride, error)
	Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	ListForPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Ride, error)
	Cancel(ctx context.Context, callerDriverID *uuid.UUID, rideID uuid.UUID) error
}

type Ride struct {
	rides RideService
	l     logger.Logger
}

func NewRide(rides RideService, l logger.Logger) *Ride {
	return &Ride{rides: rides, l: l}
}

// CreateRide submits a new ride request on behalf of the caller.
func (h *Ride) CreateRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "create_ride")

	principal := authgate.FromContext(ctx)
	if principal == nil {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	req := &dto.CreateRideRequest{}
	if err := readJSON(w, r, req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	ride, err := h.rides.Create(ctx, principal.ID, req.PickupText, req.Pickup, req.DestinationText, req.Destination)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to create ride", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, envelope{"ride": dto.RideFromModel(ride)}, nil); err != nil {
		h.l.Error(ctx, "failed to write JSON response", err)
	}
}

// GetRide returns a single ride, visible to its passenger or its
// assigned driver only.
func (h *Ride) GetRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_ride")

	rideID, ok := pathUUID(w, r, "ride_id")
	if !ok {
		return
	}

	principal := authgate.FromContext(ctx)
	if principal == nil {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	ride, err := h.rides.Get(ctx, rideID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to get ride", err)
		serviceErrorResponse(w, err)
		return
	}

	if !ridePartyMatches(principal, ride) {
		errorResponse(w, http.StatusForbidden, "forbidden: not a party to this ride")
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": dto.RideFromModel(ride)}, nil); err != nil {
		h.l.Error(ctx, "failed to write JSON response", err)
	}
}

// ListMyRides returns the caller's own ride history.
func (h *Ride) ListMyRides(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "list_rides")

	principal := authgate.FromContext(ctx)
	if principal == nil {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	rides, err := h.rides.ListForPassenger(ctx, principal.ID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list rides", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"rides": dto.RidesFromModel(rides)}, nil); err != nil {
		h.l.Error(ctx, "failed to write JSON response", err)
	}
}

// CancelRide cancels a ride on behalf of its passenger.
func (h *Ride) CancelRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "cancel_ride")

	rideID, ok := pathUUID(w, r, "ride_id")
	if !ok {
		return
	}

	principal := authgate.FromContext(ctx)
	if principal == nil {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return
	}

	ride, err := h.rides.Get(ctx, rideID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to look up ride to cancel", err)
		serviceErrorResponse(w, err)
		return
	}
	if ride.PassengerID != principal.ID {
		errorResponse(w, http.StatusForbidden, "forbidden: not this ride's passenger")
		return
	}

	if err := h.rides.Cancel(ctx, nil, rideID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to cancel ride", err)
		serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func ridePartyMatches(p *authgate.Principal, ride *models.Ride) bool {
	if ride.PassengerID == p.ID {
		return true
	}
	if ride.AssignedDriverID != nil && *ride.AssignedDriverID == p.ID {
		return true
	}
	return p.Role == types.RoleAdmin
}
