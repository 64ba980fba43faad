// Package geo implements the Geo component: distance calculation and
// coordinate validation. It holds no state and talks to nothing else.
package geo

import (
	"math"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
)

const EarthRadiusKm = 6371.0

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

// HaversineDistanceKm returns the great-circle distance between two
// points in kilometers.
func HaversineDistanceKm(a, b models.Location) float64 {
	lat1 := degreesToRadians(a.Latitude)
	lon1 := degreesToRadians(a.Longitude)
	lat2 := degreesToRadians(b.Latitude)
	lon2 := degreesToRadians(b.Longitude)

	deltaLat := lat2 - lat1
	deltaLon := lon2 - lon1

	h := math.Pow(math.Sin(deltaLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(deltaLon/2), 2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// Within reports whether b is within radiusKm of a.
func Within(a, b models.Location, radiusKm float64) bool {
	return HaversineDistanceKm(a, b) <= radiusKm
}

// Valid reports whether loc carries well-formed WGS84 coordinates.
func Valid(loc models.Location) bool {
	return loc.Latitude >= -90 && loc.Latitude <= 90 &&
		loc.Longitude >= -180 && loc.Longitude <= 180
}

// BoundingBox returns a coarse lat/lon box that contains every point
// within radiusKm of center; Store implementations may use it as a cheap
// pre-filter before the exact haversine cut is applied.
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func NewBoundingBox(center models.Location, radiusKm float64) BoundingBox {
	latDelta := radiusKm / 111.0
	lonDelta := radiusKm / (111.0 * math.Max(0.01, math.Cos(degreesToRadians(center.Latitude))))
	return BoundingBox{
		MinLat: center.Latitude - latDelta,
		MaxLat: center.Latitude + latDelta,
		MinLon: center.Longitude - lonDelta,
		MaxLon: center.Longitude + lonDelta,
	}
}

func (b BoundingBox) Contains(loc models.Location) bool {
	return loc.Latitude >= b.MinLat && loc.Latitude <= b.MaxLat &&
		loc.Longitude >= b.MinLon && loc.Longitude <= b.MaxLon
}
