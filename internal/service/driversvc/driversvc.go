// Package driversvc is the Driver Registry: self-service availability
// toggling and location reporting for drivers. Going BUSY or back to
// ONLINE from BUSY is not exposed here — only the matcher's offer
// acceptance transaction may do that.
package driversvc

import (
	"context"
	"fmt"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/clock"
	"github.com/Temutjin2k/dispatch-core/internal/service/geo"
	"github.com/Temutjin2k/dispatch-core/internal/service/store"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/trm"
	"github.com/google/uuid"
)

type Service struct {
	drivers store.DriverStore
	trm     trm.TxManager
	clock   clock.Clock
	l       logger.Logger
}

func New(drivers store.DriverStore, txm trm.TxManager, clk clock.Clock, l logger.Logger) *Service {
	return &Service{drivers: drivers, trm: txm, clock: clk, l: l}
}

// GoOnline flips a driver from OFFLINE to ONLINE. It refuses to move a
// BUSY driver — that transition belongs to offer acceptance and ride
// completion, never to the driver's own request.
func (s *Service) GoOnline(ctx context.Context, driverID uuid.UUID) error {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:   types.ActionSetAvailability,
		DriverID: driverID.String(),
	})

	fn := func(ctx context.Context) error {
		d, err := s.drivers.GetDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if d.Availability == types.AvailabilityBusy {
			return types.Conflict("driver is on a ride, cannot go online")
		}
		return s.drivers.SetDriverAvailability(ctx, driverID, types.AvailabilityOnline)
	}

	if err := s.trm.Do(ctx, fn); err != nil {
		return wrap.Error(ctx, err)
	}
	s.l.Info(ctx, "driver went online")
	return nil
}

// GoOffline flips a driver from ONLINE to OFFLINE. A BUSY driver cannot
// go offline mid-ride.
func (s *Service) GoOffline(ctx context.Context, driverID uuid.UUID) error {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:   types.ActionSetAvailability,
		DriverID: driverID.String(),
	})

	fn := func(ctx context.Context) error {
		d, err := s.drivers.GetDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if d.Availability == types.AvailabilityBusy {
			return types.Conflict("driver is on a ride, cannot go offline")
		}
		return s.drivers.SetDriverAvailability(ctx, driverID, types.AvailabilityOffline)
	}

	if err := s.trm.Do(ctx, fn); err != nil {
		return wrap.Error(ctx, err)
	}
	s.l.Info(ctx, "driver went offline")
	return nil
}

// UpdateLocation records a driver's current position. It is accepted
// regardless of availability — a BUSY driver still reports location so
// the passenger-facing tracking view stays live.
func (s *Service) UpdateLocation(ctx context.Context, driverID uuid.UUID, loc models.Location) error {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:   types.ActionSetLocation,
		DriverID: driverID.String(),
	})

	if !geo.Valid(loc) {
		return types.Invalidf("invalid location: lat=%f lon=%f", loc.Latitude, loc.Longitude)
	}

	now := s.clock.Now()
	if err := s.drivers.SetDriverLocation(ctx, driverID, loc, now); err != nil {
		return wrap.Error(ctx, fmt.Errorf("update location: %w", err))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, driverID uuid.UUID) (*models.Driver, error) {
	d, err := s.drivers.GetDriver(ctx, driverID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return d, nil
}
