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

type OfferStore struct {
	db *pgxpool.Pool
}

func NewOfferStore(db *pgxpool.Pool) *OfferStore {
	return &OfferStore{db: db}
}

// CreateOffersSkipDuplicates relies on a unique index on (ride_id,
// driver_id) to make the skip atomic under concurrent matcher phases,
// instead of a SELECT-then-INSERT race. The constraint is unscoped by
// status: once a driver has been offered a ride, in any phase, no
// later phase offers it again (I2).
func (r *OfferStore) CreateOffersSkipDuplicates(ctx context.Context, offers []*models.RideOffer) ([]*models.RideOffer, error) {
	const op = "OfferStore.CreateOffersSkipDuplicates"
	query := `
		INSERT INTO ride_offers (id, ride_id, driver_id, phase, status, distance_to_pickup_km, sent_at, expires_at)
		VALUES ($1, $2, $3, $4, 'SENT', $5, $6, $7)
		ON CONFLICT (ride_id, driver_id) DO NOTHING
		RETURNING id;`

	q := TxorDB(ctx, r.db)
	var created []*models.RideOffer
	for _, o := range offers {
		var id uuid.UUID
		err := q.QueryRow(ctx, query, o.ID, o.RideID, o.DriverID, o.Phase, o.DistanceToPickupKm, o.SentAt, o.ExpiresAt).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue // skipped: an offer for this ride/driver pair already exists
			}
			ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		created = append(created, o)
	}
	return created, nil
}

func (r *OfferStore) ListActiveOffersByRide(ctx context.Context, rideID uuid.UUID) ([]*models.RideOffer, error) {
	return r.listActive(ctx, "ride_id", rideID, 0)
}

func (r *OfferStore) ListActiveOffersByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]*models.RideOffer, error) {
	return r.listActive(ctx, "driver_id", driverID, limit)
}

func (r *OfferStore) listActive(ctx context.Context, column string, id uuid.UUID, limit int) ([]*models.RideOffer, error) {
	const op = "OfferStore.listActive"
	query := fmt.Sprintf(`
		SELECT id, ride_id, driver_id, phase, status, distance_to_pickup_km, sent_at, expires_at, resolved_at
		FROM ride_offers
		WHERE %s = $1 AND status = 'SENT' AND expires_at > now()
		ORDER BY sent_at ASC`, column)
	if limit > 0 {
		query += " LIMIT $2"
	}
	query += ";"

	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = TxorDB(ctx, r.db).Query(ctx, query, id, limit)
	} else {
		rows, err = TxorDB(ctx, r.db).Query(ctx, query, id)
	}
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []*models.RideOffer
	for rows.Next() {
		o := &models.RideOffer{}
		if err := rows.Scan(&o.ID, &o.RideID, &o.DriverID, &o.Phase, &o.Status, &o.DistanceToPickupKm, &o.SentAt, &o.ExpiresAt, &o.ResolvedAt); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OfferStore) ExpireSentOffers(ctx context.Context, rideID uuid.UUID, asOf time.Time) ([]*models.RideOffer, error) {
	return r.expireSentOffers(ctx, "ride_id", rideID, asOf)
}

// ExpireSentOffersForDriver is ExpireSentOffers scoped by driver instead
// of ride, run implicitly before a driver's live-offer list is returned
// (§6.1) so an already-lapsed SENT offer is never shown.
func (r *OfferStore) ExpireSentOffersForDriver(ctx context.Context, driverID uuid.UUID, asOf time.Time) ([]*models.RideOffer, error) {
	return r.expireSentOffers(ctx, "driver_id", driverID, asOf)
}

func (r *OfferStore) expireSentOffers(ctx context.Context, column string, id uuid.UUID, asOf time.Time) ([]*models.RideOffer, error) {
	const op = "OfferStore.expireSentOffers"
	query := fmt.Sprintf(`
		UPDATE ride_offers
		SET status = 'EXPIRED', resolved_at = $2
		WHERE %s = $1 AND status = 'SENT' AND expires_at <= $2
		RETURNING id, ride_id, driver_id, phase, status, distance_to_pickup_km, sent_at, expires_at, resolved_at;`, column)

	rows, err := TxorDB(ctx, r.db).Query(ctx, query, id, asOf)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var out []*models.RideOffer
	for rows.Next() {
		o := &models.RideOffer{}
		if err := rows.Scan(&o.ID, &o.RideID, &o.DriverID, &o.Phase, &o.Status, &o.DistanceToPickupKm, &o.SentAt, &o.ExpiresAt, &o.ResolvedAt); err != nil {
			return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AcceptOfferAtomic is the single-winner acceptance transaction (§4.4):
// it conditionally flips the offer to ACCEPTED, the ride to ACCEPTED and
// the driver to BUSY in one statement each, all inside one DB
// transaction, then expires every sibling SENT offer. Every UPDATE's
// WHERE clause re-checks the precondition it depends on, so a loser's
// concurrent attempt simply affects zero rows instead of corrupting
// state.
func (r *OfferStore) AcceptOfferAtomic(ctx context.Context, offerID, driverID uuid.UUID, now time.Time) (*models.Ride, error) {
	const op = "OfferStore.AcceptOfferAtomic"

	var ride *models.Ride
	err := func() error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback(ctx)

		var rideID uuid.UUID
		err = tx.QueryRow(ctx, `
			UPDATE ride_offers
			SET status = 'ACCEPTED', resolved_at = $3
			WHERE id = $1 AND driver_id = $2 AND status = 'SENT' AND expires_at > $3
			RETURNING ride_id;`, offerID, driverID, now).Scan(&rideID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return r.resolveNonAcceptance(ctx, tx, offerID, driverID, now)
			}
			return fmt.Errorf("accept offer: %w", err)
		}

		cmd, err := tx.Exec(ctx, `
			UPDATE drivers SET availability = 'BUSY', updated_at = now()
			WHERE id = $1 AND availability = 'ONLINE';`, driverID)
		if err != nil {
			return fmt.Errorf("mark driver busy: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return types.ErrDriverNotAvailable
		}

		ride = &models.Ride{}
		row := tx.QueryRow(ctx, `
			UPDATE rides
			SET status = 'ACCEPTED', assigned_driver_id = $2, phase = 0, phase_expires_at = NULL, updated_at = now()
			WHERE id = $1 AND assigned_driver_id IS NULL AND status NOT IN ('COMPLETED','CANCELED','FAILED')
			RETURNING id, passenger_id, pickup_text, pickup_lat, pickup_lon, dest_text, dest_lat, dest_lon,
			          status, phase, phase_expires_at, assigned_driver_id, created_at, updated_at;`,
			rideID, driverID,
		)
		if err := scanRide(row, ride); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return types.ErrRideAlreadyAssigned
			}
			return fmt.Errorf("assign ride: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			UPDATE ride_offers SET status = 'EXPIRED', resolved_at = now()
			WHERE ride_id = $1 AND id != $2 AND status = 'SENT';`, rideID, offerID); err != nil {
			return fmt.Errorf("expire siblings: %w", err)
		}

		return tx.Commit(ctx)
	}()
	if err != nil {
		var e *types.Error
		if errors.As(err, &e) {
			return nil, err
		}
		ctx = wrap.WithAction(ctx, types.ActionOfferAccept)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}

	return ride, nil
}

// resolveNonAcceptance runs when the accept UPDATE touched no row: the
// offer is either already resolved, or still SENT but past its
// expiresAt and the periodic sweep hasn't caught it yet. In the latter
// case it transitions the offer to EXPIRED itself, independent of
// sweep timing, and commits that change before returning.
func (r *OfferStore) resolveNonAcceptance(ctx context.Context, tx pgx.Tx, offerID, driverID uuid.UUID, now time.Time) error {
	var status string
	var expiresAt time.Time
	err := tx.QueryRow(ctx, `
		SELECT status, expires_at FROM ride_offers WHERE id = $1 AND driver_id = $2;`,
		offerID, driverID).Scan(&status, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.ErrOfferNotFound
		}
		return fmt.Errorf("lookup offer: %w", err)
	}

	if status != string(types.OfferSent) || expiresAt.After(now) {
		return types.ErrOfferAlreadyResolved
	}

	if _, err := tx.Exec(ctx, `
		UPDATE ride_offers SET status = 'EXPIRED', resolved_at = $2 WHERE id = $1;`,
		offerID, now); err != nil {
		return fmt.Errorf("expire stale offer: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit expiry: %w", err)
	}
	return types.ErrOfferExpired
}
