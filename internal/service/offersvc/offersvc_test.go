package offersvc

import (
	"context"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/memstore"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/clock"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/google/uuid"
)

func setup() (*Service, *memstore.Store, *clock.Fake) {
	ms := memstore.New()
	fc := clock.NewFake(time.Now())
	l := logger.InitLogger("dispatch-core-test", "error")
	return New(ms, fc, l), ms, fc
}

func seedOnlineDriver(ms *memstore.Store, loc models.Location) uuid.UUID {
	id := uuid.New()
	ms.SeedDriver(&models.Driver{ID: id, Name: "driver", Availability: types.AvailabilityOnline, Location: &loc})
	return id
}

func TestSend_SkipsDuplicateLiveOffer(t *testing.T) {
	svc, ms, _ := setup()
	ctx := context.Background()
	rideID := uuid.New()
	driverID := seedOnlineDriver(ms, models.Location{Latitude: 1, Longitude: 1})

	cands := []models.CandidateDriver{{Driver: models.Driver{ID: driverID}, DistanceKm: 1}}

	first, err := svc.Send(ctx, rideID, types.Phase1, cands, 15*time.Second)
	if err != nil || len(first) != 1 {
		t.Fatalf("first send: %v %d", err, len(first))
	}

	second, err := svc.Send(ctx, rideID, types.Phase1, cands, 15*time.Second)
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected duplicate offer to be skipped, got %d", len(second))
	}
}

func TestExpireDue(t *testing.T) {
	svc, ms, fc := setup()
	ctx := context.Background()
	rideID := uuid.New()
	driverID := seedOnlineDriver(ms, models.Location{Latitude: 1, Longitude: 1})

	cands := []models.CandidateDriver{{Driver: models.Driver{ID: driverID}, DistanceKm: 1}}
	if _, err := svc.Send(ctx, rideID, types.Phase1, cands, 5*time.Second); err != nil {
		t.Fatal(err)
	}

	fc.Advance(6 * time.Second)

	expired, err := svc.ExpireDue(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired offer, got %d", len(expired))
	}
}

// S5: accepting an offer past its expiresAt fails with Conflict even
// before the periodic sweep has run, and the offer itself flips to
// EXPIRED as a side effect of the attempt.
func TestAccept_RejectsOfferPastExpiry(t *testing.T) {
	svc, ms, fc := setup()
	ctx := context.Background()

	rideID := uuid.New()
	if err := ms.CreateRide(ctx, &models.Ride{ID: rideID, Status: types.RideSearching}); err != nil {
		t.Fatal(err)
	}
	driverID := seedOnlineDriver(ms, models.Location{Latitude: 1, Longitude: 1})
	cands := []models.CandidateDriver{{Driver: models.Driver{ID: driverID}, DistanceKm: 1}}

	offers, err := svc.Send(ctx, rideID, types.Phase1, cands, 7*time.Second)
	if err != nil || len(offers) != 1 {
		t.Fatalf("send: %v %d", err, len(offers))
	}

	fc.Advance(8 * time.Second)

	_, err = svc.Accept(ctx, offers[0].ID, driverID)
	if types.KindOf(err) != types.KindConflict {
		t.Fatalf("got err %v, want conflict", err)
	}

	live, err := ms.ListActiveOffersByDriver(ctx, driverID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 0 {
		t.Fatalf("expected the offer to no longer be live after the failed accept, got %d", len(live))
	}
}

func TestAccept_SingleWinner(t *testing.T) {
	svc, ms, _ := setup()
	ctx := context.Background()

	rideID := uuid.New()
	if err := ms.CreateRide(ctx, &models.Ride{ID: rideID, Status: types.RideSearching}); err != nil {
		t.Fatal(err)
	}
	d1 := seedOnlineDriver(ms, models.Location{Latitude: 1, Longitude: 1})
	d2 := seedOnlineDriver(ms, models.Location{Latitude: 1, Longitude: 1})

	cands := []models.CandidateDriver{
		{Driver: models.Driver{ID: d1}, DistanceKm: 1},
		{Driver: models.Driver{ID: d2}, DistanceKm: 2},
	}
	offers, err := svc.Send(ctx, rideID, types.Phase1, cands, 15*time.Second)
	if err != nil || len(offers) != 2 {
		t.Fatalf("send: %v %d", err, len(offers))
	}

	var winnerOffer, loserOffer *models.RideOffer
	for _, o := range offers {
		if o.DriverID == d1 {
			winnerOffer = o
		} else {
			loserOffer = o
		}
	}

	ride, err := svc.Accept(ctx, winnerOffer.ID, d1)
	if err != nil {
		t.Fatalf("winner accept: %v", err)
	}
	if ride.AssignedDriverID == nil || *ride.AssignedDriverID != d1 {
		t.Fatalf("ride not assigned to winner: %+v", ride.AssignedDriverID)
	}

	if _, err := svc.Accept(ctx, loserOffer.ID, d2); err == nil {
		t.Fatal("expected loser's accept to fail after winner took the ride")
	}

	remaining, err := svc.ListForRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected sibling offer to be voided, got %d still active", len(remaining))
	}
}
