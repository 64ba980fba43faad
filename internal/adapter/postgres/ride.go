package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/google/uuid"
)

type RideStore struct {
	db *pgxpool.Pool
}

func NewRideStore(db *pgxpool.Pool) *RideStore {
	return &RideStore{db: db}
}

func (r *RideStore) CreateRide(ctx context.Context, ride *models.Ride) error {
	const op = "RideStore.CreateRide"
	query := `
		INSERT INTO rides (id, passenger_id, pickup_text, pickup_lat, pickup_lon, dest_text, dest_lat, dest_lon, status, phase)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at;`

	pickupLat, pickupLon := latLon(ride.Pickup)
	destLat, destLon := latLon(ride.Destination)

	if err := TxorDB(ctx, r.db).QueryRow(ctx, query,
		ride.ID, ride.PassengerID,
		ride.PickupText, pickupLat, pickupLon,
		ride.DestinationText, destLat, destLon,
		ride.Status, ride.Phase,
	).Scan(&ride.CreatedAt, &ride.UpdatedAt); err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// latLon splits an optional Location into nullable column values.
func latLon(loc *models.Location) (*float64, *float64) {
	if loc == nil {
		return nil, nil
	}
	return &loc.Latitude, &loc.Longitude
}

func scanRide(row interface {
	Scan(dest ...any) error
}, ride *models.Ride) error {
	var pickupLat, pickupLon, destLat, destLon *float64
	if err := row.Scan(
		&ride.ID, &ride.PassengerID,
		&ride.PickupText, &pickupLat, &pickupLon,
		&ride.DestinationText, &destLat, &destLon,
		&ride.Status, &ride.Phase, &ride.PhaseExpiresAt, &ride.AssignedDriverID,
		&ride.CreatedAt, &ride.UpdatedAt,
	); err != nil {
		return err
	}
	if pickupLat != nil && pickupLon != nil {
		ride.Pickup = &models.Location{Latitude: *pickupLat, Longitude: *pickupLon}
	}
	if destLat != nil && destLon != nil {
		ride.Destination = &models.Location{Latitude: *destLat, Longitude: *destLon}
	}
	return nil
}

func (r *RideStore) GetRide(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	const op = "RideStore.GetRide"
	query := `
		SELECT id, passenger_id, pickup_text, pickup_lat, pickup_lon, dest_text, dest_lat, dest_lon,
		       status, phase, phase_expires_at, assigned_driver_id, created_at, updated_at
		FROM rides WHERE id = $1;`

	ride := &models.Ride{}
	row := TxorDB(ctx, r.db).QueryRow(ctx, query, rideID)
	if err := scanRide(row, ride); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrRideNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return ride, nil
}

func (r *RideStore) ListRidesByPassenger(ctx context.Context, passengerID uuid.UUID, limit int) ([]*models.Ride, error) {
	return r.listBy(ctx, "passenger_id", passengerID, limit)
}

func (r *RideStore) ListRidesByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]*models.Ride, error) {
	return r.listBy(ctx, "assigned_driver_id", driverID, limit)
}

func (r *RideStore) listBy(ctx context.Context, column string, id uuid.UUID, limit int) ([]*models.Ride, error) {
	const op = "RideStore.listBy"
	query := fmt.Sprintf(`
		SELECT id, passenger_id, pickup_text, pickup_lat, pickup_lon, dest_text, dest_lat, dest_lon,
		       status, phase, phase_expires_at, assigned_driver_id, created_at, updated_at
		FROM rides WHERE %s = $1
		ORDER BY created_at DESC LIMIT $2;`, column)

	rows, err := TxorDB(ctx, r.db).Query(ctx, query, id, limit)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []*models.Ride
	for rows.Next() {
		ride := &models.Ride{}
		if err := scanRide(rows, ride); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		out = append(out, ride)
	}
	return out, rows.Err()
}

func (r *RideStore) UpdateRidePhase(ctx context.Context, rideID uuid.UUID, phase types.Phase, phaseExpiresAt *time.Time) error {
	const op = "RideStore.UpdateRidePhase"
	query := `
		WITH target AS (
			SELECT id FROM rides WHERE id = $1 AND status NOT IN ('COMPLETED','CANCELED','FAILED')
		)
		UPDATE rides
		SET phase = $2, phase_expires_at = $3, updated_at = now()
		FROM target WHERE rides.id = target.id
		RETURNING rides.id;`

	var id uuid.UUID
	err := TxorDB(ctx, r.db).QueryRow(ctx, query, rideID, phase, phaseExpiresAt).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := r.GetRide(ctx, rideID); getErr != nil {
				return getErr
			}
			return types.ErrRideTerminal
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (r *RideStore) UpdateRideStatusIfOwner(ctx context.Context, rideID uuid.UUID, ownerDriverID *uuid.UUID, newStatus types.RideStatus) error {
	const op = "RideStore.UpdateRideStatusIfOwner"
	query := `
		WITH target AS (
			SELECT id FROM rides
			WHERE id = $1 AND status NOT IN ('COMPLETED','CANCELED','FAILED')
			  AND assigned_driver_id IS NOT DISTINCT FROM $2
		)
		UPDATE rides
		SET status = $3, updated_at = now()
		FROM target WHERE rides.id = target.id
		RETURNING rides.id;`

	var id uuid.UUID
	err := TxorDB(ctx, r.db).QueryRow(ctx, query, rideID, ownerDriverID, newStatus).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.GetRide(ctx, rideID)
			if getErr != nil {
				return getErr
			}
			if existing.IsTerminal() {
				return types.ErrRideTerminal
			}
			return types.ErrNotRideOwner
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (r *RideStore) ListRecoverableRides(ctx context.Context) ([]*models.Ride, error) {
	const op = "RideStore.ListRecoverableRides"
	query := `
		SELECT id, passenger_id, pickup_text, pickup_lat, pickup_lon, dest_text, dest_lat, dest_lon,
		       status, phase, phase_expires_at, assigned_driver_id, created_at, updated_at
		FROM rides
		WHERE status NOT IN ('COMPLETED','CANCELED','FAILED')
		  AND phase_expires_at IS NOT NULL;`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []*models.Ride
	for rows.Next() {
		ride := &models.Ride{}
		if err := scanRide(rows, ride); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		out = append(out, ride)
	}
	return out, rows.Err()
}
