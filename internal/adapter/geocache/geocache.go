// Package geocache is the candidate pre-filter the Store applies before
// the Geo component's exact haversine cut: driver locations are indexed
// into H3 cells in Redis at write time, and a candidate search walks the
// k-ring of cells around the pickup point instead of scanning every
// driver row. It is a read-path accelerator only — Postgres remains the
// system of record, and a cold or unreachable cache falls back to the
// wrapped store's own (slower) exact scan.
package geocache

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/geo"
	"github.com/Temutjin2k/dispatch-core/internal/service/store"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uber/h3-go/v4"
)

// avgCellEdgeKm is H3's published average hexagon edge length per
// resolution (table III in Uber's H3 docs), used to pick how many
// rings of neighboring cells cover a requested search radius.
var avgCellEdgeKm = map[int]float64{
	6: 3.23,
	7: 1.22,
	8: 0.461,
	9: 0.174,
	10: 0.0659,
}

// Store decorates a store.DriverStore with an H3/Redis candidate
// pre-filter. Every method other than ListCandidateDrivers passes
// straight through; location writes and availability changes
// additionally update the Redis index, best-effort.
type Store struct {
	inner store.DriverStore
	rdb   *redis.Client
	res   int
	ttl   time.Duration
	l     logger.Logger
}

func New(inner store.DriverStore, rdb *redis.Client, cfg config.GeocacheConfig, l logger.Logger) *Store {
	res := cfg.H3Resolution
	if res == 0 {
		res = 8
	}
	ttl := cfg.LocationTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Store{inner: inner, rdb: rdb, res: res, ttl: ttl, l: l}
}

func (s *Store) GetDriver(ctx context.Context, driverID uuid.UUID) (*models.Driver, error) {
	return s.inner.GetDriver(ctx, driverID)
}

func (s *Store) SetDriverAvailability(ctx context.Context, driverID uuid.UUID, availability types.Availability) error {
	if err := s.inner.SetDriverAvailability(ctx, driverID, availability); err != nil {
		return err
	}
	if availability != types.AvailabilityOnline {
		if err := s.dropFromIndex(ctx, driverID); err != nil {
			s.l.Warn(ctx, "failed to drop driver from geocache index", "driver_id", driverID, "err", err.Error())
		}
	}
	return nil
}

func (s *Store) SetDriverLocation(ctx context.Context, driverID uuid.UUID, loc models.Location, at time.Time) error {
	if err := s.inner.SetDriverLocation(ctx, driverID, loc, at); err != nil {
		return err
	}
	if err := s.indexLocation(ctx, driverID, loc); err != nil {
		s.l.Warn(ctx, "failed to index driver location in geocache", "driver_id", driverID, "err", err.Error())
	}
	return nil
}

// ListCandidateDrivers walks the k-ring of H3 cells around center and
// fetches each member's current row to apply the exact availability and
// haversine cut. A cache miss (nothing indexed yet, or Redis itself
// unreachable) falls back to the wrapped store's own scan. A nil center
// (the ride has no pickup coordinates) has no H3 cell to walk, so it
// always goes straight to the wrapped store's own no-coordinates path.
func (s *Store) ListCandidateDrivers(ctx context.Context, center *models.Location, radiusKm float64, limit int) ([]models.CandidateDriver, error) {
	if center == nil {
		return s.inner.ListCandidateDrivers(ctx, nil, radiusKm, limit)
	}

	ids, err := s.candidateIDs(ctx, *center, radiusKm)
	if err != nil {
		s.l.Warn(ctx, "geocache lookup failed, falling back to full scan", "err", err.Error())
		return s.inner.ListCandidateDrivers(ctx, center, radiusKm, limit)
	}
	if len(ids) == 0 {
		return s.inner.ListCandidateDrivers(ctx, center, radiusKm, limit)
	}

	var out []models.CandidateDriver
	for _, id := range ids {
		d, err := s.inner.GetDriver(ctx, id)
		if err != nil {
			continue
		}
		if d.Availability != types.AvailabilityOnline || d.Location == nil {
			continue
		}
		dist := geo.HaversineDistanceKm(*center, *d.Location)
		if dist > radiusKm {
			continue
		}
		out = append(out, models.CandidateDriver{Driver: *d, DistanceKm: dist})
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) indexLocation(ctx context.Context, driverID uuid.UUID, loc models.Location) error {
	cell := h3.LatLngToCell(h3.LatLng{Lat: loc.Latitude, Lng: loc.Longitude}, s.res)
	key := cellKey(cell)

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, driverID.String())
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("index driver location: %w", err)
	}
	return nil
}

func (s *Store) dropFromIndex(ctx context.Context, driverID uuid.UUID) error {
	d, err := s.inner.GetDriver(ctx, driverID)
	if err != nil || d.Location == nil {
		return nil
	}
	cell := h3.LatLngToCell(h3.LatLng{Lat: d.Location.Latitude, Lng: d.Location.Longitude}, s.res)
	return s.rdb.SRem(ctx, cellKey(cell), driverID.String()).Err()
}

func (s *Store) candidateIDs(ctx context.Context, center models.Location, radiusKm float64) ([]uuid.UUID, error) {
	origin := h3.LatLngToCell(h3.LatLng{Lat: center.Latitude, Lng: center.Longitude}, s.res)
	k := ringSize(s.res, radiusKm)

	cells := h3.GridDisk(origin, k)
	keys := make([]string, 0, len(cells))
	for _, c := range cells {
		keys = append(keys, cellKey(c))
	}

	members, err := s.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("union h3 cell sets: %w", err)
	}

	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// ringSize returns how many rings of neighboring cells at resolution
// res are needed to cover radiusKm, rounded up and padded by one ring
// so a pickup point near a cell edge still sees every driver inside the
// radius from a neighboring cell's center.
func ringSize(res int, radiusKm float64) int {
	edge := avgCellEdgeKm[res]
	if edge == 0 {
		edge = avgCellEdgeKm[8]
	}
	k := int(math.Ceil(radiusKm/edge)) + 1
	if k < 1 {
		k = 1
	}
	return k
}

func cellKey(c h3.Cell) string {
	return fmt.Sprintf("geocache:h3:%s", c.String())
}
