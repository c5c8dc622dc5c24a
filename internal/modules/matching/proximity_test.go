package matching

import (
	"math"
	"testing"

	"hitch/internal/config"
	"hitch/internal/types"
)

var testProximity = config.ProximityConfig{
	MinThresholdKm: 0.5,
	MaxThresholdKm: 5.0,
	ScaleFactor:    10.0,
	SimilarityPct:  70,
}

func TestDynamicThreshold_AtOriginEqualsMin(t *testing.T) {
	if got := DynamicThreshold(testProximity, 0); got != 0.5 {
		t.Fatalf("threshold at origin = %v, want 0.5", got)
	}
}

func TestDynamicThreshold_MonotonicAndBounded(t *testing.T) {
	prev := 0.0
	for d := 0.0; d <= 500; d += 2.5 {
		got := DynamicThreshold(testProximity, d)
		if got < prev {
			t.Fatalf("threshold decreased at %v km: %v < %v", d, got, prev)
		}
		if got > testProximity.MaxThresholdKm {
			t.Fatalf("threshold exceeds cap at %v km: %v", d, got)
		}
		prev = got
	}
}

func TestDynamicThreshold_KnownValues(t *testing.T) {
	tests := []struct {
		distanceKm float64
		want       float64
	}{
		{10, 1.5},
		{40, 4.5},
		{45, 5.0},
		{100, 5.0}, // capped
	}
	for _, tt := range tests {
		if got := DynamicThreshold(testProximity, tt.distanceKm); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("threshold at %v km = %v, want %v", tt.distanceKm, got, tt.want)
		}
	}
}

func TestMinDistanceToRouteKm_EmptyRoute(t *testing.T) {
	got := MinDistanceToRouteKm(nil, types.Point{Lat: 25, Lng: 121})
	if !math.IsInf(got, 1) {
		t.Fatalf("empty route distance = %v, want +Inf", got)
	}
}

func TestMinDistanceToRouteKm_PicksNearestVertex(t *testing.T) {
	route := []types.Point{
		{Lat: 24.8, Lng: 121.0},
		{Lat: 24.9, Lng: 121.2},
		{Lat: 25.0, Lng: 121.4},
	}
	// Query point sits exactly on the middle vertex.
	got := MinDistanceToRouteKm(route, types.Point{Lat: 24.9, Lng: 121.2})
	if got > 0.001 {
		t.Fatalf("distance to own vertex = %v, want ~0", got)
	}

	// Slightly north of the middle vertex: ~1.11 km.
	got = MinDistanceToRouteKm(route, types.Point{Lat: 24.91, Lng: 121.2})
	if math.Abs(got-1.11) > 0.05 {
		t.Fatalf("distance = %v, want ~1.11", got)
	}
}

// The on-route acceptance scenario: 40 km from origin widens the corridor to
// 4.5 km, which admits a stop 1.2 km off the route.
func TestOnRouteScenario(t *testing.T) {
	threshold := DynamicThreshold(testProximity, 40)
	if math.Abs(threshold-4.5) > 1e-9 {
		t.Fatalf("threshold = %v, want 4.5", threshold)
	}
	if minDist := 1.2; minDist > threshold {
		t.Fatalf("%v km should fall inside a %v km corridor", minDist, threshold)
	}
}
