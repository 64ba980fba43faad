// Package matcher is the Phase Controller: the per-ride broadcast loop
// that runs phases 1 through 3, advances immediately through empty
// phases, schedules a phase-end callback when it gets at least one
// offer out, and fails a ride once phase 3 yields nothing. Its
// in-memory timer handles are a cache; RecoverStartup reconstructs the
// same state purely from the store after a restart.
package matcher

import (
	"context"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/notify"
	"github.com/Temutjin2k/dispatch-core/internal/service/clock"
	"github.com/Temutjin2k/dispatch-core/internal/service/offersvc"
	"github.com/Temutjin2k/dispatch-core/internal/service/store"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/metrics"
	"github.com/google/uuid"
)

// EventPublisher is the fire-and-forget event sink the matcher reports
// a ride's terminal FAILED outcome to. A nil publisher is fine; nothing
// here depends on the publish succeeding.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type phaseSpec struct {
	phase    types.Phase
	radiusKm float64
	ttl      time.Duration
}

type Service struct {
	rides   store.RideStore
	drivers store.DriverStore
	offers  *offersvc.Service
	timers  clock.TimerService
	cfgD    config.DispatchConfig
	l       logger.Logger

	phases    []phaseSpec
	publisher EventPublisher
}

func New(rides store.RideStore, drivers store.DriverStore, offers *offersvc.Service, timers clock.TimerService, phasesCfg config.PhasesConfig, dispatchCfg config.DispatchConfig, l logger.Logger) *Service {
	return &Service{
		rides:   rides,
		drivers: drivers,
		offers:  offers,
		timers:  timers,
		cfgD:    dispatchCfg,
		l:       l,
		phases: []phaseSpec{
			{types.Phase1, phasesCfg.Phase1RadiusKm, phasesCfg.Phase1TTL},
			{types.Phase2, phasesCfg.Phase2RadiusKm, phasesCfg.Phase2TTL},
			{types.Phase3, phasesCfg.Phase3RadiusKm, phasesCfg.Phase3TTL},
		},
	}
}

// WithPublisher attaches a best-effort event publisher. Left unset, a
// ride still fails correctly, it's just not announced to the broker.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// Start kicks off phase 1 for a freshly created ride. It is called
// synchronously from ride creation and returns as soon as phase 1's
// offers are out (or the ride has already failed with zero candidates
// in all three phases) — the passenger response never waits on a
// driver's answer.
func (s *Service) Start(ctx context.Context, rideID uuid.UUID) {
	s.runPhase(ctx, rideID, 0)
}

// runPhase implements one iteration of §4.5 steps 1-8, recursing
// in-process through empty phases and arming a timer for phase-end
// when at least one offer goes out.
func (s *Service) runPhase(ctx context.Context, rideID uuid.UUID, phaseIdx int) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action: types.ActionPhaseAdvance,
		RideID: rideID.String(),
	})

	if _, err := s.offers.ExpireDue(ctx, rideID); err != nil {
		s.l.Error(ctx, "expire sweep failed", err)
	}

	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		s.l.Error(ctx, "reload ride failed", err)
		return
	}
	if ride.IsTerminal() || ride.AssignedDriverID != nil {
		return
	}

	if phaseIdx >= len(s.phases) {
		s.fail(ctx, ride)
		return
	}
	spec := s.phases[phaseIdx]
	ctx = wrap.WithPhase(ctx, fmt.Sprintf("%d", spec.phase))
	metrics.RecordPhaseAdvance(fmt.Sprintf("%d", spec.phase))

	expiresAt := s.timers.Now().Add(spec.ttl)
	if err := s.rides.UpdateRidePhase(ctx, rideID, spec.phase, &expiresAt); err != nil {
		s.l.Error(ctx, "persist phase failed", err)
		return
	}

	candidates, err := s.selectCandidates(ctx, ride, spec.radiusKm)
	if err != nil {
		s.l.Error(ctx, "candidate selection failed", err)
		return
	}

	created, err := s.offers.Send(ctx, rideID, spec.phase, candidates, spec.ttl)
	if err != nil {
		s.l.Error(ctx, "send offers failed", err)
		return
	}

	if len(created) == 0 {
		s.advanceOrFail(ctx, rideID, phaseIdx)
		return
	}

	s.l.Info(ctx, "phase offers sent", "ride_id", rideID, "phase", spec.phase, "count", len(created))

	nextIdx := phaseIdx + 1
	s.timers.AfterFunc(spec.ttl, func() {
		bg := context.Background()
		s.runPhase(bg, rideID, nextIdx)
	})
}

// advanceOrFail is the zero-offer branch of step 6: a phase before the
// last advances in-process with no sleep; phase 3 re-checks candidates
// once, conservatively, before declaring the ride FAILED — this guards
// against a driver coming ONLINE in the narrow window between
// candidate selection and the zero-offer decision (§9 open question).
func (s *Service) advanceOrFail(ctx context.Context, rideID uuid.UUID, phaseIdx int) {
	if phaseIdx+1 < len(s.phases) {
		s.runPhase(ctx, rideID, phaseIdx+1)
		return
	}

	ride, err := s.rides.GetRide(ctx, rideID)
	if err != nil {
		s.l.Error(ctx, "reload before final recheck failed", err)
		return
	}
	if ride.IsTerminal() || ride.AssignedDriverID != nil {
		return
	}

	lastSpec := s.phases[len(s.phases)-1]
	candidates, err := s.selectCandidates(ctx, ride, lastSpec.radiusKm)
	if err == nil && len(candidates) > 0 {
		created, sendErr := s.offers.Send(ctx, rideID, lastSpec.phase, candidates, lastSpec.ttl)
		if sendErr == nil && len(created) > 0 {
			idx := len(s.phases) - 1
			s.timers.AfterFunc(lastSpec.ttl, func() {
				s.runPhase(context.Background(), rideID, idx+1)
			})
			return
		}
	}

	s.fail(ctx, ride)
}

func (s *Service) fail(ctx context.Context, ride *models.Ride) {
	if err := s.rides.UpdateRidePhase(ctx, ride.ID, types.PhaseNone, nil); err != nil {
		s.l.Error(ctx, "clear phase on fail failed", err)
	}
	if err := s.rides.UpdateRideStatusIfOwner(ctx, ride.ID, nil, types.RideFailed); err != nil {
		s.l.Error(ctx, "mark ride failed transition failed", err)
		return
	}
	s.l.Info(ctx, "ride failed, no driver found", "ride_id", ride.ID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notify.RideFailed, ride); err != nil {
			s.l.Warn(ctx, "failed to publish ride failed event", "ride_id", ride.ID, "err", err.Error())
		}
	}
}

// selectCandidates fetches ONLINE drivers within radiusKm of the
// ride's pickup point, capped at dispatch.candidateFetchCap, nearest
// first. The store applies an exact haversine cut; the cap merely
// bounds how many offers a single phase can emit. A ride with no
// pickup coordinates has no distance to cut by, so every ONLINE
// driver is a candidate regardless of radius (§4.3, §4.5 step 4).
func (s *Service) selectCandidates(ctx context.Context, ride *models.Ride, radiusKm float64) ([]models.CandidateDriver, error) {
	return s.drivers.ListCandidateDrivers(ctx, ride.Pickup, radiusKm, s.cfgD.CandidateFetchCap)
}

// RecoverStartup scans for non-terminal rides with an outstanding phase
// deadline. A ride whose deadline has already elapsed is resumed as if
// its phase-end callback had just fired; one whose deadline is still
// ahead gets a fresh timer armed for the remaining interval instead, so
// it is never left in SEARCHING with no callback to advance it (§4.5
// crash recovery, §7).
func (s *Service) RecoverStartup(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionCrashRecovery)
	rides, err := s.rides.ListRecoverableRides(ctx)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("list recoverable rides: %w", err))
	}
	now := s.timers.Now()
	for _, ride := range rides {
		idx := phaseIndex(ride.Phase)
		nextIdx := idx + 1

		remaining := ride.PhaseExpiresAt.Sub(now)
		if remaining <= 0 {
			s.l.Info(ctx, "recovering ride past its phase deadline", "ride_id", ride.ID, "phase", ride.Phase)
			s.runPhase(ctx, ride.ID, nextIdx)
			continue
		}

		s.l.Info(ctx, "re-arming phase timer for ride", "ride_id", ride.ID, "phase", ride.Phase, "remaining", remaining)
		rideID := ride.ID
		s.timers.AfterFunc(remaining, func() {
			s.runPhase(context.Background(), rideID, nextIdx)
		})
	}
	return nil
}

func phaseIndex(p types.Phase) int {
	switch p {
	case types.Phase1:
		return 0
	case types.Phase2:
		return 1
	case types.Phase3:
		return 2
	default:
		return -1
	}
}
