package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/geo"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/google/uuid"
)

type DriverStore struct {
	db *pgxpool.Pool
}

func NewDriverStore(db *pgxpool.Pool) *DriverStore {
	return &DriverStore{db: db}
}

func (r *DriverStore) GetDriver(ctx context.Context, driverID uuid.UUID) (*models.Driver, error) {
	const op = "DriverStore.GetDriver"
	query := `
		SELECT id, name, availability, location_lat, location_lon, location_at, created_at, updated_at
		FROM drivers WHERE id = $1;`

	d := &models.Driver{}
	var lat, lon *float64
	row := TxorDB(ctx, r.db).QueryRow(ctx, query, driverID)
	if err := row.Scan(&d.ID, &d.Name, &d.Availability, &lat, &lon, &d.LocationAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrDriverNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if lat != nil && lon != nil {
		d.Location = &models.Location{Latitude: *lat, Longitude: *lon}
	}
	return d, nil
}

// ListCandidateDrivers applies the optional bounding-box pre-filter in
// SQL (cheap index range scan) and the exact haversine cut via earth_distance-
// style math done here in Go, matching the Geo component's own formula
// rather than a PostGIS extension the teacher's stack does not carry. A
// nil center means the ride has no pickup coordinates: every ONLINE
// driver is a candidate, location or not, with no radius cut applied.
func (r *DriverStore) ListCandidateDrivers(ctx context.Context, center *models.Location, radiusKm float64, limit int) ([]models.CandidateDriver, error) {
	const op = "DriverStore.ListCandidateDrivers"

	if center == nil {
		return r.listAllOnline(ctx, limit)
	}

	box := geo.NewBoundingBox(*center, radiusKm)

	query := `
		SELECT id, name, availability, location_lat, location_lon, location_at, created_at, updated_at
		FROM drivers
		WHERE availability = $1
		  AND location_lat BETWEEN $2 AND $3
		  AND location_lon BETWEEN $4 AND $5;`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query,
		types.AvailabilityOnline,
		box.MinLat, box.MaxLat,
		box.MinLon, box.MaxLon,
	)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []models.CandidateDriver
	for rows.Next() {
		d := models.Driver{}
		var lat, lon *float64
		if err := rows.Scan(&d.ID, &d.Name, &d.Availability, &lat, &lon, &d.LocationAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		if lat == nil || lon == nil {
			continue
		}
		loc := models.Location{Latitude: *lat, Longitude: *lon}
		d.Location = &loc
		dist := geo.HaversineDistanceKm(*center, loc)
		if dist > radiusKm {
			continue
		}
		out = append(out, models.CandidateDriver{Driver: d, DistanceKm: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// listAllOnline is the no-pickup-coordinates candidate path: every
// ONLINE driver qualifies, whether or not it has a location of its own.
func (r *DriverStore) listAllOnline(ctx context.Context, limit int) ([]models.CandidateDriver, error) {
	const op = "DriverStore.listAllOnline"
	query := `
		SELECT id, name, availability, location_lat, location_lon, location_at, created_at, updated_at
		FROM drivers WHERE availability = $1 ORDER BY id;`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query, types.AvailabilityOnline)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []models.CandidateDriver
	for rows.Next() {
		d := models.Driver{}
		var lat, lon *float64
		if err := rows.Scan(&d.ID, &d.Name, &d.Availability, &lat, &lon, &d.LocationAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		if lat != nil && lon != nil {
			d.Location = &models.Location{Latitude: *lat, Longitude: *lon}
		}
		out = append(out, models.CandidateDriver{Driver: d})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return out, nil
}

func (r *DriverStore) SetDriverAvailability(ctx context.Context, driverID uuid.UUID, availability types.Availability) error {
	const op = "DriverStore.SetDriverAvailability"
	query := `UPDATE drivers SET availability = $2, updated_at = now() WHERE id = $1;`

	cmd, err := TxorDB(ctx, r.db).Exec(ctx, query, driverID, availability)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if cmd.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}

func (r *DriverStore) SetDriverLocation(ctx context.Context, driverID uuid.UUID, loc models.Location, at time.Time) error {
	const op = "DriverStore.SetDriverLocation"
	query := `
		UPDATE drivers
		SET location_lat = $2, location_lon = $3, location_at = $4, updated_at = now()
		WHERE id = $1;`

	cmd, err := TxorDB(ctx, r.db).Exec(ctx, query, driverID, loc.Latitude, loc.Longitude, at)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if cmd.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}
