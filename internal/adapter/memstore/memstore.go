// Package memstore is an in-memory Store implementation used by unit
// tests, so the matcher/offer/ride service suites never need a live
// Postgres instance. Every map access is guarded by one mutex; each
// exported method performs its own read-modify-write under that lock,
// mirroring the atomic-under-lock pattern of a single-process reference
// dispatch store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/geo"
	"github.com/google/uuid"
)

type Store struct {
	mu      sync.Mutex
	rides   map[uuid.UUID]*models.Ride
	drivers map[uuid.UUID]*models.Driver
	offers  map[uuid.UUID]*models.RideOffer
}

func New() *Store {
	return &Store{
		rides:   make(map[uuid.UUID]*models.Ride),
		drivers: make(map[uuid.UUID]*models.Driver),
		offers:  make(map[uuid.UUID]*models.RideOffer),
	}
}

// SeedDriver is a test helper; production code never writes a Driver
// wholesale.
func (s *Store) SeedDriver(d *models.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.drivers[d.ID] = &cp
}

func (s *Store) CreateRide(_ context.Context, ride *models.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ride
	s.rides[ride.ID] = &cp
	return nil
}

func (s *Store) GetRide(_ context.Context, rideID uuid.UUID) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return nil, types.ErrRideNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListRidesByPassenger(_ context.Context, passengerID uuid.UUID, limit int) ([]*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ride
	for _, r := range s.rides {
		if r.PassengerID == passengerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func (s *Store) ListRidesByDriver(_ context.Context, driverID uuid.UUID, limit int) ([]*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ride
	for _, r := range s.rides {
		if r.AssignedDriverID != nil && *r.AssignedDriverID == driverID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return truncate(out, limit), nil
}

func truncate(rides []*models.Ride, limit int) []*models.Ride {
	if limit > 0 && len(rides) > limit {
		return rides[:limit]
	}
	return rides
}

func (s *Store) UpdateRidePhase(_ context.Context, rideID uuid.UUID, phase types.Phase, phaseExpiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return types.ErrRideNotFound
	}
	if r.IsTerminal() {
		return types.ErrRideTerminal
	}
	r.Phase = phase
	r.PhaseExpiresAt = phaseExpiresAt
	r.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateRideStatusIfOwner(_ context.Context, rideID uuid.UUID, ownerDriverID *uuid.UUID, newStatus types.RideStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[rideID]
	if !ok {
		return types.ErrRideNotFound
	}
	if r.IsTerminal() {
		return types.ErrRideTerminal
	}
	if !sameOwner(r.AssignedDriverID, ownerDriverID) {
		return types.ErrNotRideOwner
	}
	r.Status = newStatus
	r.UpdatedAt = time.Now()
	return nil
}

func sameOwner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Store) ListRecoverableRides(_ context.Context) ([]*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Ride
	for _, r := range s.rides {
		if r.IsTerminal() {
			continue
		}
		if r.PhaseExpiresAt != nil {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetDriver(_ context.Context, driverID uuid.UUID) (*models.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[driverID]
	if !ok {
		return nil, types.ErrDriverNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListCandidateDrivers(_ context.Context, center *models.Location, radiusKm float64, limit int) ([]models.CandidateDriver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.CandidateDriver
	if center == nil {
		for _, d := range s.drivers {
			if d.Availability != types.AvailabilityOnline {
				continue
			}
			cp := *d
			out = append(out, models.CandidateDriver{Driver: cp})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	for _, d := range s.drivers {
		if d.Availability != types.AvailabilityOnline || d.Location == nil {
			continue
		}
		dist := geo.HaversineDistanceKm(*center, *d.Location)
		if dist > radiusKm {
			continue
		}
		cp := *d
		out = append(out, models.CandidateDriver{Driver: cp, DistanceKm: dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetDriverAvailability(_ context.Context, driverID uuid.UUID, availability types.Availability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[driverID]
	if !ok {
		return types.ErrDriverNotFound
	}
	d.Availability = availability
	d.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetDriverLocation(_ context.Context, driverID uuid.UUID, loc models.Location, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[driverID]
	if !ok {
		return types.ErrDriverNotFound
	}
	d.Location = &loc
	d.LocationAt = &at
	d.UpdatedAt = time.Now()
	return nil
}

func (s *Store) CreateOffersSkipDuplicates(_ context.Context, offers []*models.RideOffer) ([]*models.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created []*models.RideOffer
	for _, o := range offers {
		if s.hasAnyOffer(o.RideID, o.DriverID) {
			continue // duplicate: this pair already has an offer, live or resolved
		}
		cp := *o
		s.offers[o.ID] = &cp
		created = append(created, &cp)
	}
	return created, nil
}

// hasAnyOffer enforces I2: at most one RideOffer ever exists per
// (rideId, driverId) pair, regardless of status — a driver who was
// offered and let it expire in phase 1 is not re-offered in phase 2.
func (s *Store) hasAnyOffer(rideID, driverID uuid.UUID) bool {
	for _, o := range s.offers {
		if o.RideID == rideID && o.DriverID == driverID {
			return true
		}
	}
	return false
}

func (s *Store) ListActiveOffersByRide(_ context.Context, rideID uuid.UUID) ([]*models.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RideOffer
	for _, o := range s.offers {
		if o.RideID == rideID && o.Status == types.OfferSent {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListActiveOffersByDriver(_ context.Context, driverID uuid.UUID, limit int) ([]*models.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []*models.RideOffer
	for _, o := range s.offers {
		if o.DriverID == driverID && o.Status == types.OfferSent && o.ExpiresAt.After(now) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return truncateOffers(out, limit), nil
}

// ExpireSentOffersForDriver mirrors ExpireSentOffers but scoped by
// driver instead of ride, for the driver-facing offer list's implicit
// sweep (§6.1).
func (s *Store) ExpireSentOffersForDriver(_ context.Context, driverID uuid.UUID, asOf time.Time) ([]*models.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*models.RideOffer
	for _, o := range s.offers {
		if o.DriverID != driverID || o.Status != types.OfferSent {
			continue
		}
		if o.ExpiresAt.After(asOf) {
			continue
		}
		o.Status = types.OfferExpired
		now := asOf
		o.ResolvedAt = &now
		cp := *o
		expired = append(expired, &cp)
	}
	return expired, nil
}

func truncateOffers(offers []*models.RideOffer, limit int) []*models.RideOffer {
	if limit > 0 && len(offers) > limit {
		return offers[:limit]
	}
	return offers
}

func (s *Store) ExpireSentOffers(_ context.Context, rideID uuid.UUID, asOf time.Time) ([]*models.RideOffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*models.RideOffer
	for _, o := range s.offers {
		if o.RideID != rideID || o.Status != types.OfferSent {
			continue
		}
		if o.ExpiresAt.After(asOf) {
			continue
		}
		o.Status = types.OfferExpired
		now := asOf
		o.ResolvedAt = &now
		cp := *o
		expired = append(expired, &cp)
	}
	return expired, nil
}

func (s *Store) AcceptOfferAtomic(_ context.Context, offerID, driverID uuid.UUID, now time.Time) (*models.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, ok := s.offers[offerID]
	if !ok {
		return nil, types.ErrOfferNotFound
	}
	if offer.DriverID != driverID {
		return nil, types.ErrNotOfferedDriver
	}
	if offer.Status != types.OfferSent {
		return nil, types.ErrOfferAlreadyResolved
	}
	if !offer.ExpiresAt.After(now) {
		offer.Status = types.OfferExpired
		resolvedAt := now
		offer.ResolvedAt = &resolvedAt
		return nil, types.ErrOfferExpired
	}

	ride, ok := s.rides[offer.RideID]
	if !ok {
		return nil, types.ErrRideNotFound
	}
	if ride.IsTerminal() || ride.AssignedDriverID != nil {
		return nil, types.ErrRideAlreadyAssigned
	}

	driver, ok := s.drivers[driverID]
	if !ok {
		return nil, types.ErrDriverNotFound
	}
	if driver.Availability != types.AvailabilityOnline {
		return nil, types.ErrDriverNotAvailable
	}

	offer.Status = types.OfferAccepted
	offer.ResolvedAt = &now

	for _, o := range s.offers {
		if o.RideID == ride.ID && o.ID != offer.ID && o.Status == types.OfferSent {
			o.Status = types.OfferExpired
			o.ResolvedAt = &now
		}
	}

	ride.AssignedDriverID = &driverID
	ride.Status = types.RideAccepted
	ride.Phase = types.PhaseNone
	ride.PhaseExpiresAt = nil
	ride.UpdatedAt = now

	driver.Availability = types.AvailabilityBusy
	driver.UpdatedAt = now

	cp := *ride
	return &cp, nil
}
