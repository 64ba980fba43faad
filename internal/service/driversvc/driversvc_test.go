package driversvc

import (
	"context"
	"testing"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/memstore"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/clock"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/google/uuid"
)

type noopTx struct{}

func (noopTx) Do(ctx context.Context, fn func(context.Context) error) error         { return fn(ctx) }
func (noopTx) DoReadOnly(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

func setup() (*Service, *memstore.Store, uuid.UUID) {
	ms := memstore.New()
	driverID := uuid.New()
	ms.SeedDriver(&models.Driver{ID: driverID, Name: "ayan", Availability: types.AvailabilityOffline})
	l := logger.InitLogger("dispatch-core-test", "error")
	svc := New(ms, noopTx{}, clock.NewReal(), l)
	return svc, ms, driverID
}

func TestGoOnline(t *testing.T) {
	svc, ms, driverID := setup()
	ctx := context.Background()

	if err := svc.GoOnline(ctx, driverID); err != nil {
		t.Fatalf("GoOnline: %v", err)
	}
	d, err := ms.GetDriver(ctx, driverID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Availability != types.AvailabilityOnline {
		t.Fatalf("got availability %s, want ONLINE", d.Availability)
	}
}

func TestGoOnline_RefusesBusyDriver(t *testing.T) {
	svc, ms, driverID := setup()
	ctx := context.Background()

	if err := ms.SetDriverAvailability(ctx, driverID, types.AvailabilityBusy); err != nil {
		t.Fatal(err)
	}
	err := svc.GoOnline(ctx, driverID)
	if types.KindOf(err) != types.KindConflict {
		t.Fatalf("got err %v, want conflict", err)
	}
}

func TestGoOffline_RefusesBusyDriver(t *testing.T) {
	svc, ms, driverID := setup()
	ctx := context.Background()

	if err := ms.SetDriverAvailability(ctx, driverID, types.AvailabilityBusy); err != nil {
		t.Fatal(err)
	}
	err := svc.GoOffline(ctx, driverID)
	if types.KindOf(err) != types.KindConflict {
		t.Fatalf("got err %v, want conflict", err)
	}
}

func TestUpdateLocation_RejectsInvalid(t *testing.T) {
	svc, _, driverID := setup()
	ctx := context.Background()

	err := svc.UpdateLocation(ctx, driverID, models.Location{Latitude: 200, Longitude: 0})
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Fatalf("got err %v, want invalid argument", err)
	}
}

func TestUpdateLocation(t *testing.T) {
	svc, ms, driverID := setup()
	ctx := context.Background()

	loc := models.Location{Latitude: 51.1, Longitude: 71.4}
	if err := svc.UpdateLocation(ctx, driverID, loc); err != nil {
		t.Fatalf("UpdateLocation: %v", err)
	}
	d, err := ms.GetDriver(ctx, driverID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Location == nil || *d.Location != loc {
		t.Fatalf("location not recorded, got %+v", d.Location)
	}
}
