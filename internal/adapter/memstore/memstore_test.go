package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/google/uuid"
)

func newRideAndDrivers(t *testing.T, s *Store, n int) (*models.Ride, []uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	ride := &models.Ride{
		ID:          uuid.New(),
		PassengerID: uuid.New(),
		Status:      types.RideSearching,
		Phase:       types.Phase1,
		CreatedAt:   time.Now(),
	}
	if err := s.CreateRide(ctx, ride); err != nil {
		t.Fatalf("CreateRide: %v", err)
	}

	var driverIDs []uuid.UUID
	for i := 0; i < n; i++ {
		d := &models.Driver{ID: uuid.New(), Availability: types.AvailabilityOnline}
		s.SeedDriver(d)
		driverIDs = append(driverIDs, d.ID)
	}
	return ride, driverIDs
}

func TestAcceptOfferAtomic_SingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()
	ride, driverIDs := newRideAndDrivers(t, s, 3)

	var offers []*models.RideOffer
	for _, id := range driverIDs {
		offers = append(offers, &models.RideOffer{
			ID: uuid.New(), RideID: ride.ID, DriverID: id,
			Phase: types.Phase1, Status: types.OfferSent,
			SentAt: time.Now(), ExpiresAt: time.Now().Add(15 * time.Second),
		})
	}
	created, err := s.CreateOffersSkipDuplicates(ctx, offers)
	if err != nil || len(created) != 3 {
		t.Fatalf("CreateOffersSkipDuplicates: %v, got %d", err, len(created))
	}

	var wg sync.WaitGroup
	results := make([]error, len(created))
	for i, o := range created {
		wg.Add(1)
		go func(i int, offerID, driverID uuid.UUID) {
			defer wg.Done()
			_, err := s.AcceptOfferAtomic(ctx, offerID, driverID, time.Now())
			results[i] = err
		}(i, o.ID, o.DriverID)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes)
	}

	got, err := s.GetRide(ctx, ride.ID)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	if got.Status != types.RideAccepted || got.AssignedDriverID == nil {
		t.Fatalf("expected ride assigned, got status=%s driver=%v", got.Status, got.AssignedDriverID)
	}

	active, err := s.ListActiveOffersByRide(ctx, ride.ID)
	if err != nil {
		t.Fatalf("ListActiveOffersByRide: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected all other offers voided/resolved, got %d still active", len(active))
	}

	winnerDriver, err := s.GetDriver(ctx, *got.AssignedDriverID)
	if err != nil {
		t.Fatalf("GetDriver: %v", err)
	}
	if winnerDriver.Availability != types.AvailabilityBusy {
		t.Fatalf("expected winning driver BUSY, got %s", winnerDriver.Availability)
	}
}

func TestCreateOffersSkipDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()
	ride, driverIDs := newRideAndDrivers(t, s, 1)

	first := &models.RideOffer{
		ID: uuid.New(), RideID: ride.ID, DriverID: driverIDs[0],
		Status: types.OfferSent, SentAt: time.Now(), ExpiresAt: time.Now().Add(time.Minute),
	}
	dup := &models.RideOffer{
		ID: uuid.New(), RideID: ride.ID, DriverID: driverIDs[0],
		Status: types.OfferSent, SentAt: time.Now(), ExpiresAt: time.Now().Add(time.Minute),
	}

	created, err := s.CreateOffersSkipDuplicates(ctx, []*models.RideOffer{first})
	if err != nil || len(created) != 1 {
		t.Fatalf("first insert: err=%v created=%d", err, len(created))
	}

	created, err = s.CreateOffersSkipDuplicates(ctx, []*models.RideOffer{dup})
	if err != nil {
		t.Fatalf("dup insert: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected duplicate to be skipped, got %d created", len(created))
	}
}

func TestExpireSentOffers(t *testing.T) {
	s := New()
	ctx := context.Background()
	ride, driverIDs := newRideAndDrivers(t, s, 1)

	past := time.Now().Add(-time.Second)
	o := &models.RideOffer{
		ID: uuid.New(), RideID: ride.ID, DriverID: driverIDs[0],
		Status: types.OfferSent, SentAt: past.Add(-time.Minute), ExpiresAt: past,
	}
	if _, err := s.CreateOffersSkipDuplicates(ctx, []*models.RideOffer{o}); err != nil {
		t.Fatalf("create: %v", err)
	}

	expired, err := s.ExpireSentOffers(ctx, ride.ID, time.Now())
	if err != nil {
		t.Fatalf("ExpireSentOffers: %v", err)
	}
	if len(expired) != 1 || expired[0].Status != types.OfferExpired {
		t.Fatalf("expected one expired offer, got %+v", expired)
	}
}

func TestListCandidateDrivers_FiltersOfflineAndFar(t *testing.T) {
	s := New()
	ctx := context.Background()

	center := models.Location{Latitude: 51.1694, Longitude: 71.4491}
	near := models.Location{Latitude: 51.1700, Longitude: 71.4500}
	far := models.Location{Latitude: 43.2220, Longitude: 76.8512}

	onlineNear := &models.Driver{ID: uuid.New(), Availability: types.AvailabilityOnline, Location: &near}
	onlineFar := &models.Driver{ID: uuid.New(), Availability: types.AvailabilityOnline, Location: &far}
	offlineNear := &models.Driver{ID: uuid.New(), Availability: types.AvailabilityOffline, Location: &near}
	s.SeedDriver(onlineNear)
	s.SeedDriver(onlineFar)
	s.SeedDriver(offlineNear)

	got, err := s.ListCandidateDrivers(ctx, &center, 5, 10)
	if err != nil {
		t.Fatalf("ListCandidateDrivers: %v", err)
	}
	if len(got) != 1 || got[0].ID != onlineNear.ID {
		t.Fatalf("expected only the online near driver, got %+v", got)
	}
}
