// Package ridesvc is the Ride State Machine: creating ride requests,
// handing each one to the Phase Controller, and gating every
// subsequent status transition against the legal-transition table in
// §4.6 — only the assigned driver may advance a ride past ACCEPTED,
// and nothing escapes a terminal status.
package ridesvc

import (
	"context"
	"fmt"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/notify"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/geo"
	"github.com/Temutjin2k/dispatch-core/internal/service/store"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/trm"
	"github.com/google/uuid"
)

// Dispatcher is the Phase Controller's contract from the Ride Service's
// point of view: start the broadcast loop for a freshly created ride.
// It is invoked after the ride is committed and never blocks the
// passenger's response on a driver's answer.
type Dispatcher interface {
	Start(ctx context.Context, rideID uuid.UUID)
}

// EventPublisher is the fire-and-forget broker sink ride requests and
// cancellations are announced through.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type Service struct {
	rides      store.RideStore
	dispatcher Dispatcher
	trm        trm.TxManager
	cfg        config.RidesConfig
	l          logger.Logger
	publisher  EventPublisher
}

func New(rides store.RideStore, dispatcher Dispatcher, txm trm.TxManager, cfg config.RidesConfig, l logger.Logger) *Service {
	return &Service{rides: rides, dispatcher: dispatcher, trm: txm, cfg: cfg, l: l}
}

// WithPublisher attaches a best-effort event publisher for ride requests
// and cancellations.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// Create persists a new ride request in SEARCHING/phase 1 and starts
// the matcher's broadcast loop. The matcher's Start runs in line, so
// Create returns once the first phase that finds candidates has sent its
// offers (or the ride has failed); it never waits on a driver's answer,
// and later phases run off the matcher's timers.
//
// pickup and destination are optional: a passenger may submit only
// free text for either leg. A nil pickup skips the radius cut entirely
// during candidate selection (§4.3).
func (s *Service) Create(ctx context.Context, passengerID uuid.UUID, pickupText string, pickup *models.Location, destinationText string, destination *models.Location) (*models.Ride, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:      types.ActionCreateRide,
		PassengerID: passengerID.String(),
	})

	if pickupText == "" {
		return nil, types.Invalidf("pickup text is required")
	}
	if pickup != nil && !geo.Valid(*pickup) {
		return nil, types.Invalidf("invalid pickup: lat=%f lon=%f", pickup.Latitude, pickup.Longitude)
	}
	if destination != nil && !geo.Valid(*destination) {
		return nil, types.Invalidf("invalid destination: lat=%f lon=%f", destination.Latitude, destination.Longitude)
	}

	ride := &models.Ride{
		ID:              uuid.New(),
		PassengerID:     passengerID,
		PickupText:      pickupText,
		Pickup:          pickup,
		DestinationText: destinationText,
		Destination:     destination,
		Status:          types.RideSearching,
		Phase:           types.Phase1,
	}

	if err := s.trm.Do(ctx, func(ctx context.Context) error {
		return s.rides.CreateRide(ctx, ride)
	}); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("create ride: %w", err))
	}

	ctx = wrap.WithRideID(ctx, ride.ID.String())
	s.l.Info(ctx, "ride created", "ride_id", ride.ID, "passenger_id", passengerID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notify.RideRequested, ride); err != nil {
			s.l.Warn(ctx, "failed to publish ride requested event", "ride_id", ride.ID, "err", err.Error())
		}
	}

	s.dispatcher.Start(ctx, ride.ID)

	return ride, nil
}

func (s *Service) Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return ride, nil
}

func (s *Service) ListForPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Ride, error) {
	out, err := s.rides.ListRidesByPassenger(ctx, passengerID, s.cfg.HistoryReadLimit)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return out, nil
}

func (s *Service) ListForDriver(ctx context.Context, driverID uuid.UUID) ([]*models.Ride, error) {
	out, err := s.rides.ListRidesByDriver(ctx, driverID, s.cfg.HistoryReadLimit)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return out, nil
}

// AdvanceByDriver moves a ride through ACCEPTED -> ARRIVING -> IN_PROGRESS
// -> COMPLETED. Only the assigned driver may call this; any other caller,
// or an illegal transition, is rejected.
func (s *Service) AdvanceByDriver(ctx context.Context, driverID, rideID uuid.UUID, newStatus types.RideStatus) error {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		RideID:   rideID.String(),
		DriverID: driverID.String(),
	})

	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return wrap.Error(ctx, err)
	}
	if !driverTransitionAllowed(ride.Status, newStatus) {
		return types.Conflict(fmt.Sprintf("illegal ride transition %s -> %s", ride.Status, newStatus))
	}

	if err := s.rides.UpdateRideStatusIfOwner(ctx, rideID, &driverID, newStatus); err != nil {
		return wrap.Error(ctx, err)
	}
	s.l.Info(ctx, "ride status advanced by driver", "ride_id", rideID, "status", newStatus)
	return nil
}

// Cancel moves a non-terminal ride to CANCELED. callerDriverID is nil
// for a passenger-initiated cancellation; otherwise it must match the
// ride's assigned driver.
func (s *Service) Cancel(ctx context.Context, callerDriverID *uuid.UUID, rideID uuid.UUID) error {
	ctx = wrap.WithRideID(ctx, rideID.String())

	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		return wrap.Error(ctx, err)
	}
	if ride.IsTerminal() {
		return types.ErrRideTerminal
	}

	owner := ride.AssignedDriverID
	if callerDriverID != nil {
		owner = callerDriverID
	}
	if err := s.rides.UpdateRideStatusIfOwner(ctx, rideID, owner, types.RideCanceled); err != nil {
		return wrap.Error(ctx, err)
	}
	s.l.Info(ctx, "ride canceled", "ride_id", rideID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notify.RideCanceled, ride); err != nil {
			s.l.Warn(ctx, "failed to publish ride canceled event", "ride_id", rideID, "err", err.Error())
		}
	}

	return nil
}

// driverTransitionAllowed implements §4.6's driver-triggered legal
// transitions. A passenger's own create-time transition and the
// matcher's SEARCHING->ACCEPTED/FAILED transitions happen elsewhere;
// this only governs what a driver may push a ride through next.
func driverTransitionAllowed(from, to types.RideStatus) bool {
	switch from {
	case types.RideAccepted:
		return to == types.RideArriving
	case types.RideArriving:
		return to == types.RideInProgress
	case types.RideInProgress:
		return to == types.RideCompleted
	default:
		return false
	}
}
