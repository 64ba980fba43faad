package ridesvc

import (
	"context"
	"testing"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/memstore"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/google/uuid"
)

type noopTx struct{}

func (noopTx) Do(ctx context.Context, fn func(context.Context) error) error         { return fn(ctx) }
func (noopTx) DoReadOnly(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

type recordingDispatcher struct {
	started []uuid.UUID
}

func (d *recordingDispatcher) Start(_ context.Context, rideID uuid.UUID) {
	d.started = append(d.started, rideID)
}

func setup() (*Service, *memstore.Store, *recordingDispatcher) {
	ms := memstore.New()
	disp := &recordingDispatcher{}
	l := logger.InitLogger("dispatch-core-test", "error")
	svc := New(ms, disp, noopTx{}, config.RidesConfig{HistoryReadLimit: 50}, l)
	return svc, ms, disp
}

func TestCreate_StartsDispatch(t *testing.T) {
	svc, ms, disp := setup()
	ctx := context.Background()
	passengerID := uuid.New()

	pickup := models.Location{Latitude: 1, Longitude: 1}
	destination := models.Location{Latitude: 2, Longitude: 2}
	ride, err := svc.Create(ctx, passengerID, "123 Main St", &pickup, "456 Oak Ave", &destination)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ride.Status != types.RideSearching || ride.Phase != types.Phase1 {
		t.Fatalf("got status=%s phase=%d, want SEARCHING/1", ride.Status, ride.Phase)
	}
	if len(disp.started) != 1 || disp.started[0] != ride.ID {
		t.Fatalf("expected dispatcher.Start to be called with %s, got %v", ride.ID, disp.started)
	}

	stored, err := ms.GetRide(ctx, ride.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PassengerID != passengerID {
		t.Fatalf("stored ride has wrong passenger")
	}
}

func TestCreate_RejectsInvalidPickup(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	pickup := models.Location{Latitude: 999, Longitude: 1}
	destination := models.Location{Latitude: 2, Longitude: 2}
	_, err := svc.Create(ctx, uuid.New(), "123 Main St", &pickup, "456 Oak Ave", &destination)
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("got err %v, want invalid argument", err)
	}
}

func TestCreate_RejectsMissingPickupText(t *testing.T) {
	svc, _, _ := setup()
	ctx := context.Background()

	_, err := svc.Create(ctx, uuid.New(), "", nil, "", nil)
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("got err %v, want invalid argument", err)
	}
}

// S4.3: a ride with no pickup coordinates is still a legal request —
// only pickupText is required.
func TestCreate_AllowsMissingCoordinates(t *testing.T) {
	svc, ms, _ := setup()
	ctx := context.Background()

	ride, err := svc.Create(ctx, uuid.New(), "123 Main St", nil, "", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ride.Pickup != nil {
		t.Fatalf("expected nil pickup coordinates, got %+v", ride.Pickup)
	}

	stored, err := ms.GetRide(ctx, ride.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.PickupText != "123 Main St" {
		t.Fatalf("got pickup text %q, want %q", stored.PickupText, "123 Main St")
	}
}

func TestAdvanceByDriver_EnforcesOwnerAndOrder(t *testing.T) {
	svc, ms, _ := setup()
	ctx := context.Background()

	rideID := uuid.New()
	driverID := uuid.New()
	otherDriverID := uuid.New()
	if err := ms.CreateRide(ctx, &models.Ride{
		ID: rideID, Status: types.RideAccepted, AssignedDriverID: &driverID,
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.AdvanceByDriver(ctx, otherDriverID, rideID, types.RideArriving); err == nil {
		t.Fatal("expected non-owner driver to be rejected")
	}

	if err := svc.AdvanceByDriver(ctx, driverID, rideID, types.RideInProgress); err == nil {
		t.Fatal("expected ACCEPTED -> IN_PROGRESS (skipping ARRIVING) to be rejected")
	}

	if err := svc.AdvanceByDriver(ctx, driverID, rideID, types.RideArriving); err != nil {
		t.Fatalf("ACCEPTED -> ARRIVING: %v", err)
	}
	if err := svc.AdvanceByDriver(ctx, driverID, rideID, types.RideInProgress); err != nil {
		t.Fatalf("ARRIVING -> IN_PROGRESS: %v", err)
	}
	if err := svc.AdvanceByDriver(ctx, driverID, rideID, types.RideCompleted); err != nil {
		t.Fatalf("IN_PROGRESS -> COMPLETED: %v", err)
	}

	ride, err := ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != types.RideCompleted {
		t.Fatalf("got status %s, want COMPLETED", ride.Status)
	}

	if err := svc.AdvanceByDriver(ctx, driverID, rideID, types.RideArriving); err == nil {
		t.Fatal("expected transition from a terminal status to be rejected")
	}
}

func TestCancel_PassengerCanCancelAssignedRide(t *testing.T) {
	svc, ms, _ := setup()
	ctx := context.Background()

	rideID := uuid.New()
	driverID := uuid.New()
	if err := ms.CreateRide(ctx, &models.Ride{
		ID: rideID, Status: types.RideAccepted, AssignedDriverID: &driverID,
	}); err != nil {
		t.Fatal(err)
	}

	if err := svc.Cancel(ctx, nil, rideID); err != nil {
		t.Fatalf("passenger cancel: %v", err)
	}

	ride, err := ms.GetRide(ctx, rideID)
	if err != nil {
		t.Fatal(err)
	}
	if ride.Status != types.RideCanceled {
		t.Fatalf("got status %s, want CANCELED", ride.Status)
	}
}

func TestCancel_RejectsTerminalRide(t *testing.T) {
	svc, ms, _ := setup()
	ctx := context.Background()

	rideID := uuid.New()
	if err := ms.CreateRide(ctx, &models.Ride{ID: rideID, Status: types.RideCompleted}); err != nil {
		t.Fatal(err)
	}

	err := svc.Cancel(ctx, nil, rideID)
	if types.KindOf(err) != types.KindConflict {
		t.Fatalf("got err %v, want conflict", err)
	}
}
