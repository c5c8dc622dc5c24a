// README: Pure proximity math: dynamic corridor threshold and point-to-route distance.
package matching

import (
	"math"

	"hitch/internal/config"
	"hitch/internal/types"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// DynamicThreshold computes the on-route corridor width for a point at the
// given distance from the trip's origin. Points near a busy origin must sit
// almost on the route to count; points far along a long trip get a looser
// corridor, capped at MaxThresholdKm.
func DynamicThreshold(cfg config.ProximityConfig, distanceFromOriginKm float64) float64 {
	return math.Min(cfg.MinThresholdKm+distanceFromOriginKm/cfg.ScaleFactor, cfg.MaxThresholdKm)
}

// MinDistanceToRouteKm returns the minimum great-circle distance from p to
// any vertex of the resampled route. O(n) in vertex count. An empty route
// yields +Inf so the caller's threshold comparison always fails.
func MinDistanceToRouteKm(points []types.Point, p types.Point) float64 {
	minKm := math.Inf(1)
	for _, v := range points {
		if d := haversineKm(v, p); d < minKm {
			minKm = d
		}
	}
	return minKm
}
