// Package store declares the Store contract: the single source of truth
// for rides, drivers and offers. Every method here is atomic with
// respect to concurrent callers; implementations live in
// internal/adapter/postgres (production) and internal/adapter/memstore
// (tests).
package store

import (
	"context"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/google/uuid"
)

// Store is the full contract. Service packages depend on the narrower
// interfaces below; Store exists so a single adapter can implement all
// of them at once.
type Store interface {
	RideStore
	DriverStore
	OfferStore
}

type RideStore interface {
	CreateRide(ctx context.Context, ride *models.Ride) error
	GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	ListRidesByPassenger(ctx context.Context, passengerID uuid.UUID, limit int) ([]*models.Ride, error)
	ListRidesByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]*models.Ride, error)

	// UpdateRidePhase advances a ride's phase and phase deadline. It is a
	// no-op (returning ErrRideTerminal) if the ride has already reached a
	// terminal status.
	UpdateRidePhase(ctx context.Context, rideID uuid.UUID, phase types.Phase, phaseExpiresAt *time.Time) error

	// UpdateRideStatusIfOwner transitions a ride's status, but only if
	// ownerDriverID matches (or matches the ride having no assigned
	// driver, when ownerDriverID is nil). Returns ErrNotRideOwner if not.
	UpdateRideStatusIfOwner(ctx context.Context, rideID uuid.UUID, ownerDriverID *uuid.UUID, newStatus types.RideStatus) error

	// ListRecoverableRides returns every non-terminal ride with a phase
	// deadline set, whether already elapsed or still pending, for
	// crash-recovery reconciliation: the caller resumes past-due rides
	// immediately and re-arms a timer for the remaining interval on the
	// rest.
	ListRecoverableRides(ctx context.Context) ([]*models.Ride, error)
}

type DriverStore interface {
	GetDriver(ctx context.Context, driverID uuid.UUID) (*models.Driver, error)

	// ListCandidateDrivers returns ONLINE drivers within radiusKm of
	// center, nearest first, up to limit. A nil center means the ride
	// has no pickup coordinates: every ONLINE driver is a candidate,
	// including one with no location of its own, and DistanceKm is
	// meaningless (left zero).
	ListCandidateDrivers(ctx context.Context, center *models.Location, radiusKm float64, limit int) ([]models.CandidateDriver, error)

	SetDriverAvailability(ctx context.Context, driverID uuid.UUID, availability types.Availability) error
	SetDriverLocation(ctx context.Context, driverID uuid.UUID, loc models.Location, at time.Time) error
}

type OfferStore interface {
	// CreateOffersSkipDuplicates inserts a SENT offer for each driver,
	// silently skipping any driver that already has an offer for this
	// ride from any phase (I2: at most one RideOffer ever exists per
	// ride/driver pair), and returns only the offers actually created.
	CreateOffersSkipDuplicates(ctx context.Context, offers []*models.RideOffer) ([]*models.RideOffer, error)

	ListActiveOffersByRide(ctx context.Context, rideID uuid.UUID) ([]*models.RideOffer, error)
	ListActiveOffersByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]*models.RideOffer, error)

	// ExpireSentOffers marks every SENT offer with ExpiresAt <= asOf as
	// EXPIRED and returns the ones it expired.
	ExpireSentOffers(ctx context.Context, rideID uuid.UUID, asOf time.Time) ([]*models.RideOffer, error)

	// ExpireSentOffersForDriver is ExpireSentOffers scoped by driver
	// instead of ride, run implicitly before a driver's live-offer list
	// is returned (§6.1) so an already-lapsed SENT offer is never shown.
	ExpireSentOffersForDriver(ctx context.Context, driverID uuid.UUID, asOf time.Time) ([]*models.RideOffer, error)

	// AcceptOfferAtomic performs the single-winner acceptance
	// transaction: it succeeds only if the offer is still SENT and not
	// past its expiresAt as of now, the ride is still unassigned and
	// non-terminal, and the driver is still ONLINE; on success it marks
	// the offer ACCEPTED, expires every other SENT offer for the ride,
	// assigns the driver to the ride, advances the ride to ACCEPTED and
	// marks the driver BUSY — all atomically. An offer found SENT but
	// already past expiresAt is itself transitioned to EXPIRED and
	// ErrOfferExpired is returned, independent of the phase sweep timing.
	AcceptOfferAtomic(ctx context.Context, offerID, driverID uuid.UUID, now time.Time) (*models.Ride, error)
}
