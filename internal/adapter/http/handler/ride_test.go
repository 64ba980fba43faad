package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/authgate"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/google/uuid"
)

type stubRideService struct {
	createFn func(ctx context.Context, passengerID uuid.UUID, pickupText string, pickup *models.Location, destinationText string, destination *models.Location) (*models.Ride, error)
	getFn    func(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
	listFn   func(ctx context.Context, passengerID uuid.UUID) ([]*models.Ride, error)
	cancelFn func(ctx context.Context, callerDriverID *uuid.UUID, rideID uuid.UUID) error
}

func (s *stubRideService) Create(ctx context.Context, passengerID uuid.UUID, pickupText string, pickup *models.Location, destinationText string, destination *models.Location) (*models.Ride, error) {
	return s.createFn(ctx, passengerID, pickupText, pickup, destinationText, destination)
}
func (s *stubRideService) Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	return s.getFn(ctx, rideID)
}
func (s *stubRideService) ListForPassenger(ctx context.Context, passengerID uuid.UUID) ([]*models.Ride, error) {
	return s.listFn(ctx, passengerID)
}
func (s *stubRideService) Cancel(ctx context.Context, callerDriverID *uuid.UUID, rideID uuid.UUID) error {
	return s.cancelFn(ctx, callerDriverID, rideID)
}

func withPrincipal(r *http.Request, p *authgate.Principal) *http.Request {
	return r.WithContext(authgate.WithPrincipal(r.Context(), p))
}

func TestCreateRide_Unauthorized(t *testing.T) {
	h := NewRide(&stubRideService{}, logger.InitLogger("test", logger.LevelError))

	req := httptest.NewRequest(http.MethodPost, "/rides", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	h.CreateRide(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateRide_Success(t *testing.T) {
	passengerID := uuid.New()
	rideID := uuid.New()
	svc := &stubRideService{
		createFn: func(_ context.Context, p uuid.UUID, pickupText string, pickup *models.Location, destinationText string, destination *models.Location) (*models.Ride, error) {
			if p != passengerID {
				t.Fatalf("unexpected passenger id: %v", p)
			}
			return &models.Ride{ID: rideID, PassengerID: p, PickupText: pickupText, Pickup: pickup, DestinationText: destinationText, Destination: destination, Status: types.RideSearching}, nil
		},
	}
	h := NewRide(svc, logger.InitLogger("test", logger.LevelError))

	body := `{"pickup_text":"123 Main St","pickup":{"latitude":1,"longitude":2},"destination_text":"456 Oak Ave","destination":{"latitude":3,"longitude":4}}`
	req := httptest.NewRequest(http.MethodPost, "/rides", bytes.NewBufferString(body))
	req = withPrincipal(req, &authgate.Principal{ID: passengerID, Role: types.RolePassenger})
	rec := httptest.NewRecorder()

	h.CreateRide(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := out["ride"]; !ok {
		t.Fatalf("expected a ride field in the response, got %s", rec.Body.String())
	}
}

func TestGetRide_ForbiddenForNonParty(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	rideID := uuid.New()

	svc := &stubRideService{
		getFn: func(_ context.Context, id uuid.UUID) (*models.Ride, error) {
			return &models.Ride{ID: id, PassengerID: owner}, nil
		},
	}
	h := NewRide(svc, logger.InitLogger("test", logger.LevelError))

	req := httptest.NewRequest(http.MethodGet, "/rides/"+rideID.String(), nil)
	req.SetPathValue("ride_id", rideID.String())
	req = withPrincipal(req, &authgate.Principal{ID: stranger, Role: types.RolePassenger})
	rec := httptest.NewRecorder()

	h.GetRide(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestGetRide_AllowsAssignedDriver(t *testing.T) {
	owner := uuid.New()
	driverID := uuid.New()
	rideID := uuid.New()

	svc := &stubRideService{
		getFn: func(_ context.Context, id uuid.UUID) (*models.Ride, error) {
			return &models.Ride{ID: id, PassengerID: owner, AssignedDriverID: &driverID}, nil
		},
	}
	h := NewRide(svc, logger.InitLogger("test", logger.LevelError))

	req := httptest.NewRequest(http.MethodGet, "/rides/"+rideID.String(), nil)
	req.SetPathValue("ride_id", rideID.String())
	req = withPrincipal(req, &authgate.Principal{ID: driverID, Role: types.RoleDriver})
	rec := httptest.NewRecorder()

	h.GetRide(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelRide_NotOwnerForbidden(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	rideID := uuid.New()

	svc := &stubRideService{
		getFn: func(_ context.Context, id uuid.UUID) (*models.Ride, error) {
			return &models.Ride{ID: id, PassengerID: owner}, nil
		},
	}
	h := NewRide(svc, logger.InitLogger("test", logger.LevelError))

	req := httptest.NewRequest(http.MethodPost, "/rides/"+rideID.String()+"/cancel", nil)
	req.SetPathValue("ride_id", rideID.String())
	req = withPrincipal(req, &authgate.Principal{ID: stranger, Role: types.RolePassenger})
	rec := httptest.NewRecorder()

	h.CancelRide(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCancelRide_ServiceErrorMapsToStatus(t *testing.T) {
	passengerID := uuid.New()
	rideID := uuid.New()

	svc := &stubRideService{
		getFn: func(_ context.Context, id uuid.UUID) (*models.Ride, error) {
			return &models.Ride{ID: id, PassengerID: passengerID}, nil
		},
		cancelFn: func(_ context.Context, _ *uuid.UUID, _ uuid.UUID) error {
			return types.ErrRideTerminal
		},
	}
	h := NewRide(svc, logger.InitLogger("test", logger.LevelError))

	req := httptest.NewRequest(http.MethodPost, "/rides/"+rideID.String()+"/cancel", nil)
	req.SetPathValue("ride_id", rideID.String())
	req = withPrincipal(req, &authgate.Principal{ID: passengerID, Role: types.RolePassenger})
	rec := httptest.NewRecorder()

	h.CancelRide(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}
