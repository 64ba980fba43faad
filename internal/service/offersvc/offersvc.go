// Package offersvc is the Offer Lifecycle: creating broadcast offers for
// a phase, listing a driver's or ride's live offers, sweeping expired
// ones, and accepting one — the single place the atomic single-winner
// transaction is invoked from.
package offersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/notify"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/clock"
	"github.com/Temutjin2k/dispatch-core/internal/service/store"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/metrics"
	"github.com/google/uuid"
)

// Notifier pushes a freshly created offer to a driver's live connection.
// It is best-effort: a failed or absent push never blocks dispatch, the
// phase TTL still governs when the offer lapses.
type Notifier interface {
	PushOffer(ctx context.Context, driverID uuid.UUID, offer *models.RideOffer) error
}

// EventPublisher is the fire-and-forget broker sink offer acceptance is
// announced through.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type Service struct {
	offers    store.OfferStore
	clock     clock.Clock
	l         logger.Logger
	notifier  Notifier
	publisher EventPublisher
}

func New(offers store.OfferStore, clk clock.Clock, l logger.Logger) *Service {
	return &Service{offers: offers, clock: clk, l: l}
}

// WithNotifier attaches a best-effort websocket push notifier. Tests and
// recovery paths that don't need live pushes can leave this unset.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithPublisher attaches a best-effort event publisher for accepted offers.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// Send creates one SENT offer per candidate, expiring after ttl.
// Drivers that already hold an offer for this ride, in any status, are
// silently skipped by the store.
func (s *Service) Send(ctx context.Context, rideID uuid.UUID, phase types.Phase, candidates []models.CandidateDriver, ttl time.Duration) ([]*models.RideOffer, error) {
	now := s.clock.Now()
	expiresAt := now.Add(ttl)

	offers := make([]*models.RideOffer, 0, len(candidates))
	for _, c := range candidates {
		offers = append(offers, &models.RideOffer{
			ID:                 uuid.New(),
			RideID:             rideID,
			DriverID:           c.ID,
			Phase:              phase,
			Status:             types.OfferSent,
			DistanceToPickupKm: c.DistanceKm,
			SentAt:             now,
			ExpiresAt:          expiresAt,
		})
	}

	created, err := s.offers.CreateOffersSkipDuplicates(ctx, offers)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("send offers: %w", err))
	}
	metrics.RecordOffersSent(fmt.Sprintf("%d", phase), len(created))

	if s.notifier != nil {
		for _, o := range created {
			if err := s.notifier.PushOffer(ctx, o.DriverID, o); err != nil {
				s.l.Warn(ctx, "failed to push offer over websocket", "offer_id", o.ID, "driver_id", o.DriverID, "err", err.Error())
			}
		}
	}

	return created, nil
}

func (s *Service) ListForRide(ctx context.Context, rideID uuid.UUID) ([]*models.RideOffer, error) {
	out, err := s.offers.ListActiveOffersByRide(ctx, rideID)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return out, nil
}

// ListForDriver sweeps the caller's own SENT offers for expiry before
// listing, so a driver polling their offer list never sees one whose
// TTL has already lapsed, independent of whether the ride-scoped sweep
// in the Phase Controller has run yet.
func (s *Service) ListForDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]*models.RideOffer, error) {
	if _, err := s.ExpireDueForDriver(ctx, driverID); err != nil {
		s.l.Warn(ctx, "driver offer expire sweep failed", "driver_id", driverID, "err", err.Error())
	}

	out, err := s.offers.ListActiveOffersByDriver(ctx, driverID, limit)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return out, nil
}

// ExpireDueForDriver marks every SENT offer held by driverID whose TTL
// has already elapsed as EXPIRED, returning the ones it expired.
func (s *Service) ExpireDueForDriver(ctx context.Context, driverID uuid.UUID) ([]*models.RideOffer, error) {
	ctx = wrap.WithAction(ctx, types.ActionOfferExpireSweep)
	expired, err := s.offers.ExpireSentOffersForDriver(ctx, driverID, s.clock.Now())
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if len(expired) > 0 {
		s.l.Info(ctx, "expired sent offers for driver", "driver_id", driverID, "count", len(expired))
	}
	for _, o := range expired {
		metrics.RecordOfferResolved(fmt.Sprintf("%d", o.Phase), "expired")
	}
	return expired, nil
}

// ExpireDue marks every SENT offer for rideID whose TTL has already
// elapsed as EXPIRED, returning the ones it expired.
func (s *Service) ExpireDue(ctx context.Context, rideID uuid.UUID) ([]*models.RideOffer, error) {
	ctx = wrap.WithAction(ctx, types.ActionOfferExpireSweep)
	expired, err := s.offers.ExpireSentOffers(ctx, rideID, s.clock.Now())
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	if len(expired) > 0 {
		s.l.Info(ctx, "expired sent offers", "ride_id", rideID, "count", len(expired))
	}
	for _, o := range expired {
		metrics.RecordOfferResolved(fmt.Sprintf("%d", o.Phase), "expired")
	}
	return expired, nil
}

// Accept is the only path to a driver winning a ride. It delegates to
// the store's atomic transaction and never re-checks preconditions
// itself — the store is the sole place those are enforced.
func (s *Service) Accept(ctx context.Context, offerID, driverID uuid.UUID) (*models.Ride, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action:   types.ActionOfferAccept,
		OfferID:  offerID.String(),
		DriverID: driverID.String(),
	})

	ride, err := s.offers.AcceptOfferAtomic(ctx, offerID, driverID, s.clock.Now())
	if err != nil {
		if types.KindOf(err) == types.KindConflict {
			metrics.RecordAcceptConflict()
		}
		return nil, wrap.Error(ctx, err)
	}
	s.l.Info(ctx, "offer accepted", "ride_id", ride.ID)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, notify.RideAssigned, ride); err != nil {
			s.l.Warn(ctx, "failed to publish ride assigned event", "ride_id", ride.ID, "err", err.Error())
		}
	}

	return ride, nil
}
