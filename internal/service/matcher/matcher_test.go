package matcher

import (
	"context"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/memstore"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/clock"
	"github.com/Temutjin2k/dispatch-core/internal/service/offersvc"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/google/uuid"
)

func testPhasesConfig() config.PhasesConfig {
	return config.PhasesConfig{
		Phase1RadiusKm: 5,
		Phase1TTL:      15 * time.Second,
		Phase2RadiusKm: 5,
		Phase2TTL:      7 * time.Second,
		Phase3RadiusKm: 10,
		Phase3TTL:      12 * time.Second,
	}
}

func setup() (*Service, *memstore.Store, *clock.Fake) {
	ms := memstore.New()
	fc := clock.NewFake(time.Now())
	l := logger.InitLogger("dispatch-core-test", "error")
	off := offersvc.New(ms, fc, l)
	m := New(ms, ms, off, fc, testPhasesConfig(), config.DispatchConfig{CandidateFetchCap: 50}, l)
	return m, ms, fc
}

func seedRide(ms *memstore.Store, pickup models.Location) uuid.UUID {
	id := uuid.New()
	_ = ms.CreateRide(context.Background(), &models.Ride{ID: id, Pickup: &pickup, Status: types.RideSearching})
	return id
}

func seedDriver(ms *memstore.Store, loc models.Location) uuid.UUID {
	id := uuid.New()
	ms.SeedDriver(&models.Driver{ID: id, Availability: types.AvailabilityOnline, Location: &loc})
	return id
}

// S1: a driver within phase-1 radius gets offered and accepts.
func TestHappyPath(t *testing.T) {
	m, ms, _ := setup()
	ctx := context.Background()
	pickup := models.Location{Latitude: 41.02, Longitude: 28.99}
	rideID := seedRide(ms, pickup)
	driverID := seedDriver(ms, models.Location{Latitude: 41.01, Longitude: 28.98})

	m.Start(ctx, rideID)

	offers, err := ms.ListActiveOffersByRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}

	ride, err := m.offers.Accept(ctx, offers[0].ID, driverID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ride.Status != types.RideAccepted {
		t.Fatalf("got status %s, want ACCEPTED", ride.Status)
	}

	d, err := ms.GetDriver(ctx, driverID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Availability != types.AvailabilityBusy {
		t.Fatalf("driver availability = %s, want BUSY", d.Availability)
	}
}

// S3: a driver only within phase-3 radius gets offered at phase 3 only.
func TestRadiusExpansion(t *testing.T) {
	m, ms, _ := setup()
	ctx := context.Background()
	pickup := models.Location{Latitude: 0, Longitude: 0}
	rideID := seedRide(ms, pickup)
	// ~7.5km south: 1 degree lat ~ 111km, so 0.0676 degrees ~ 7.5km.
	seedDriver(ms, models.Location{Latitude: -0.0676, Longitude: 0})

	m.Start(ctx, rideID)

	offers, err := ms.ListActiveOffersByRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer after phase-3 expansion, got %d", len(offers))
	}
	if offers[0].Phase != types.Phase3 {
		t.Fatalf("offer created in phase %d, want phase 3", offers[0].Phase)
	}

	ride, err := ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Phase != types.Phase3 {
		t.Fatalf("ride phase = %d, want 3", ride.Phase)
	}
}

// S4: no online drivers at all — ride fails immediately, with no sleep
// since every phase emits zero offers and advances synchronously.
func TestNoOnlineDrivers(t *testing.T) {
	m, ms, _ := setup()
	ctx := context.Background()
	rideID := seedRide(ms, models.Location{Latitude: 10, Longitude: 10})

	m.Start(ctx, rideID)

	ride, err := ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != types.RideFailed {
		t.Fatalf("got status %s, want FAILED", ride.Status)
	}
}

// A driver who lets a phase-1 offer expire is never re-offered the
// same ride in a later phase (I2): once the sole candidate's offer
// lapses, the ride runs out of drivers to offer and fails, instead of
// reusing the same driver in phase 2/3.
func TestExpiredOfferIsNotReofferedLater(t *testing.T) {
	m, ms, fc := setup()
	ctx := context.Background()
	pickup := models.Location{Latitude: 41.02, Longitude: 28.99}
	rideID := seedRide(ms, pickup)
	driverID := seedDriver(ms, models.Location{Latitude: 41.01, Longitude: 28.98})

	m.Start(ctx, rideID)

	offersBefore, _ := ms.ListActiveOffersByRide(ctx, rideID)
	if len(offersBefore) != 1 {
		t.Fatalf("expected phase-1 offer, got %d", len(offersBefore))
	}

	fc.Advance(16 * time.Second)

	ride, err := ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != types.RideFailed {
		t.Fatalf("got status %s, want FAILED: the only candidate already holds a resolved offer", ride.Status)
	}

	offers, err := ms.ListActiveOffersByDriver(ctx, driverID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 0 {
		t.Fatalf("expected no further live offers for the driver, got %d", len(offers))
	}
}

// S6: crash recovery resumes a ride stuck with an already-elapsed
// phaseExpiresAt instead of leaving it in SEARCHING forever.
func TestRecoverStartupAdvancesElapsedRide(t *testing.T) {
	m, ms, fc := setup()
	ctx := context.Background()

	rideID := uuid.New()
	past := fc.Now().Add(-1 * time.Second)
	if err := ms.CreateRide(ctx, &models.Ride{
		ID:             rideID,
		Pickup:         &models.Location{Latitude: 10, Longitude: 10},
		Status:         types.RideSearching,
		Phase:          types.Phase2,
		PhaseExpiresAt: &past,
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.RecoverStartup(ctx); err != nil {
		t.Fatalf("RecoverStartup: %v", err)
	}

	ride, err := ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != types.RideFailed {
		t.Fatalf("got status %s, want FAILED (no online drivers to recover into)", ride.Status)
	}
}

// S6: a ride whose phase deadline has not yet elapsed at startup must
// get a fresh timer re-armed for the remaining interval, not be left
// stuck in SEARCHING with no callback to advance it.
func TestRecoverStartupRearmsFutureDeadline(t *testing.T) {
	m, ms, fc := setup()
	ctx := context.Background()

	rideID := uuid.New()
	future := fc.Now().Add(3 * time.Second)
	if err := ms.CreateRide(ctx, &models.Ride{
		ID:             rideID,
		Pickup:         &models.Location{Latitude: 41.02, Longitude: 28.99},
		Status:         types.RideSearching,
		Phase:          types.Phase2,
		PhaseExpiresAt: &future,
	}); err != nil {
		t.Fatal(err)
	}
	seedDriver(ms, models.Location{Latitude: 41.01, Longitude: 28.98})

	if err := m.RecoverStartup(ctx); err != nil {
		t.Fatalf("RecoverStartup: %v", err)
	}

	ride, err := ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != types.RideSearching || ride.Phase != types.Phase2 {
		t.Fatalf("got status=%s phase=%d before deadline, want unchanged SEARCHING/2", ride.Status, ride.Phase)
	}

	fc.Advance(3 * time.Second)

	offers, err := ms.ListActiveOffersByRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected the re-armed timer to advance into phase 3 and offer the candidate, got %d offers", len(offers))
	}
	if offers[0].Phase != types.Phase3 {
		t.Fatalf("offer created in phase %d, want phase 3", offers[0].Phase)
	}

	ride, err = ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Phase != types.Phase3 {
		t.Fatalf("ride phase = %d, want 3", ride.Phase)
	}
}
