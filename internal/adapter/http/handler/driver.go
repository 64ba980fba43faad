package handler

import (
	"context"
	"net/http"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/authgate"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/google/uuid"
)

// DriverService is the Driver Registry's contract from the HTTP edge's
// point of view.
type DriverService interface {
	GoOnline(ctx context.Context, driverID uuid.UUID) error
	GoOffline(ctx context.Context, driverID uuid.UUID) error
	UpdateLocation(ctx context.Context, driverID uuid.UUID, loc models.Location) error
	Get(ctx context.Context, driverID uuid.UUID) (*models.Driver, error)
}

// OfferService is the Offer Lifecycle's contract from the HTTP edge's
// point of view.
type OfferService interface {
	ListForDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]*models.RideOffer, error)
	Accept(ctx context.Context, offerID, driverID uuid.UUID) (*models.Ride, error)
}

// RideAdvancer is the subset of the Ride State Machine a driver can
// push a ride through.
type RideAdvancer interface {
	AdvanceByDriver(ctx context.Context, driverID, rideID uuid.UUID, newStatus types.RideStatus) error
	Cancel(ctx context.Context, callerDriverID *uuid.UUID, rideID uuid.UUID) error
	ListForDriver(ctx context.Context, driverID uuid.UUID) ([]*models.Ride, error)
}

// WSHub serves a driver's live offer-push connection.
type WSHub interface {
	Serve(w http.ResponseWriter, r *http.Request, driverID uuid.UUID) error
}

type Driver struct {
	drivers DriverService
	offers  OfferService
	rides   RideAdvancer
	ws      WSHub
	cfg     config.OffersConfig
	l       logger.Logger
}

func NewDriver(drivers DriverService, offers OfferService, rides RideAdvancer, ws WSHub, cfg config.OffersConfig, l logger.Logger) *Driver {
	return &Driver{drivers: drivers, offers: offers, rides: rides, ws: ws, cfg: cfg, l: l}
}

func (h *Driver) driverIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	driverID, ok := pathUUID(w, r, "driver_id")
	if !ok {
		return uuid.UUID{}, false
	}
	principal := authgate.FromContext(r.Context())
	if principal == nil {
		errorResponse(w, http.StatusUnauthorized, "authorization required")
		return uuid.UUID{}, false
	}
	if principal.ID != driverID && principal.Role != types.RoleAdmin {
		errorResponse(w, http.StatusForbidden, "forbidden: not this driver")
		return uuid.UUID{}, false
	}
	return driverID, true
}

// GoOnline flips the caller to ONLINE.
func (h *Driver) GoOnline(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_go_online")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.drivers.GoOnline(ctx, driverID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to go online", err)
		serviceErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GoOffline flips the caller to OFFLINE.
func (h *Driver) GoOffline(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_go_offline")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.drivers.GoOffline(ctx, driverID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to go offline", err)
		serviceErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateLocation records the caller's current position.
func (h *Driver) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_update_location")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}

	req := &dto.UpdateLocationRequest{}
	if err := readJSON(w, r, req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if err := h.drivers.UpdateLocation(ctx, driverID, req.Location); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to update location", err)
		serviceErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOffers returns the caller's currently live offers.
func (h *Driver) ListOffers(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "list_driver_offers")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}

	offers, err := h.offers.ListForDriver(ctx, driverID, h.cfg.ActiveReadLimit)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list offers", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"offers": dto.OffersFromModel(offers)}, nil); err != nil {
		h.l.Error(ctx, "failed to write JSON response", err)
	}
}

// AcceptOffer is the caller's attempt to win a ride. Exactly one driver
// among everyone racing the same offer gets a 200; the rest get the
// atomic transaction's conflict.
func (h *Driver) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "accept_offer")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}
	offerID, ok := pathUUID(w, r, "offer_id")
	if !ok {
		return
	}

	ride, err := h.offers.Accept(ctx, offerID, driverID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to accept offer", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride": dto.RideFromModel(ride)}, nil); err != nil {
		h.l.Error(ctx, "failed to write JSON response", err)
	}
}

// ListRides returns the caller's assigned ride history.
func (h *Driver) ListRides(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "list_driver_rides")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}

	rides, err := h.rides.ListForDriver(ctx, driverID)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list rides", err)
		serviceErrorResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"rides": dto.RidesFromModel(rides)}, nil); err != nil {
		h.l.Error(ctx, "failed to write JSON response", err)
	}
}

// AdvanceRide pushes an assigned ride to its next status.
func (h *Driver) AdvanceRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "advance_ride")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}
	rideID, ok := pathUUID(w, r, "ride_id")
	if !ok {
		return
	}

	req := &dto.AdvanceRideRequest{}
	if err := readJSON(w, r, req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	if err := h.rides.AdvanceByDriver(ctx, driverID, rideID, req.Status); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to advance ride", err)
		serviceErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelRide cancels a ride the caller is currently assigned to.
func (h *Driver) CancelRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_cancel_ride")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}
	rideID, ok := pathUUID(w, r, "ride_id")
	if !ok {
		return
	}

	if err := h.rides.Cancel(ctx, &driverID, rideID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to cancel ride", err)
		serviceErrorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWS upgrades the caller's connection to receive live offer
// pushes for as long as it stays open.
func (h *Driver) HandleWS(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "driver_ws_connect")

	driverID, ok := h.driverIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.ws.Serve(w, r, driverID); err != nil {
		h.l.Error(ctx, "websocket connection ended", err)
	}
}
