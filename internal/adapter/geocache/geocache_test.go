package geocache

import "testing"

func TestRingSize_GrowsWithRadius(t *testing.T) {
	small := ringSize(8, 1)
	large := ringSize(8, 10)
	if large <= small {
		t.Fatalf("expected ringSize to grow with radius, got small=%d large=%d", small, large)
	}
	if small < 1 {
		t.Fatalf("ringSize must be at least 1, got %d", small)
	}
}

func TestRingSize_UnknownResolutionFallsBack(t *testing.T) {
	k := ringSize(99, 5)
	if k < 1 {
		t.Fatalf("expected a sane fallback ring size, got %d", k)
	}
}
