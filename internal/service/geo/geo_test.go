package geo

import (
	"testing"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
)

func TestHaversineDistanceKm_SamePoint(t *testing.T) {
	p := models.Location{Latitude: 51.1694, Longitude: 71.4491}
	if d := HaversineDistanceKm(p, p); d != 0 {
		t.Fatalf("expected 0 distance for identical points, got %f", d)
	}
}

func TestHaversineDistanceKm_KnownPair(t *testing.T) {
	// Astana to Almaty, roughly 970km apart.
	astana := models.Location{Latitude: 51.1694, Longitude: 71.4491}
	almaty := models.Location{Latitude: 43.2220, Longitude: 76.8512}

	d := HaversineDistanceKm(astana, almaty)
	if d < 900 || d > 1050 {
		t.Fatalf("expected distance in [900,1050]km, got %f", d)
	}
}

func TestWithin(t *testing.T) {
	center := models.Location{Latitude: 51.1694, Longitude: 71.4491}
	near := models.Location{Latitude: 51.1700, Longitude: 71.4500}
	far := models.Location{Latitude: 43.2220, Longitude: 76.8512}

	if !Within(center, near, 5) {
		t.Fatal("expected near point to be within 5km")
	}
	if Within(center, far, 5) {
		t.Fatal("expected far point to be outside 5km")
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		loc  models.Location
		want bool
	}{
		{models.Location{Latitude: 0, Longitude: 0}, true},
		{models.Location{Latitude: 90, Longitude: 180}, true},
		{models.Location{Latitude: -90, Longitude: -180}, true},
		{models.Location{Latitude: 91, Longitude: 0}, false},
		{models.Location{Latitude: 0, Longitude: 181}, false},
	}
	for _, c := range cases {
		if got := Valid(c.loc); got != c.want {
			t.Errorf("Valid(%+v) = %v, want %v", c.loc, got, c.want)
		}
	}
}

func TestBoundingBoxContains(t *testing.T) {
	center := models.Location{Latitude: 51.1694, Longitude: 71.4491}
	box := NewBoundingBox(center, 5)

	if !box.Contains(center) {
		t.Fatal("expected box to contain its own center")
	}
	far := models.Location{Latitude: 43.2220, Longitude: 76.8512}
	if box.Contains(far) {
		t.Fatal("expected box to exclude a point 900km+ away")
	}
}
