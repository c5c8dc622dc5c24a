package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"hitch/internal/types"
)

// RouteService obtains drivable routes from the Google Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Route returns the overview polyline and driving distance in kilometres
// between two coordinates. It assumes driving mode.
func (s *RouteService) Route(ctx context.Context, origin, destination types.Point) ([]types.Point, float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", origin.Lat, origin.Lng),
		Destination: fmt.Sprintf("%f,%f", destination.Lat, destination.Lng),
		Mode:        maps.TravelModeDriving,
		Units:       maps.UnitsMetric,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, 0, fmt.Errorf("no route found")
	}

	meters := 0
	for _, leg := range routes[0].Legs {
		meters += leg.Distance.Meters
	}

	latlngs, err := routes[0].OverviewPolyline.Decode()
	if err != nil {
		return nil, 0, fmt.Errorf("decode polyline: %w", err)
	}
	points := make([]types.Point, len(latlngs))
	for i, ll := range latlngs {
		points[i] = types.Point{Lat: ll.Lat, Lng: ll.Lng}
	}
	return points, float64(meters) / 1000.0, nil
}
