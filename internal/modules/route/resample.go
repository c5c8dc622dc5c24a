// README: Polyline resampling; bounds the cost of point-to-route distance checks.
package route

import (
	"math"

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

// Resample thins a polyline to roughly spacingKm between consecutive kept
// vertices. The first and last vertices are always kept so the route still
// spans origin to destination.
func Resample(points []types.Point, spacingKm float64) []types.Point {
	if len(points) <= 2 || spacingKm <= 0 {
		return points
	}
	out := make([]types.Point, 0, len(points))
	out = append(out, points[0])
	sinceLast := 0.0
	for i := 1; i < len(points)-1; i++ {
		sinceLast += haversineKm(points[i-1], points[i])
		if sinceLast >= spacingKm {
			out = append(out, points[i])
			sinceLast = 0
		}
	}
	return append(out, points[len(points)-1])
}
