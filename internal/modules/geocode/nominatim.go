// README: Free-tier geocoding fallback against a Nominatim endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"hitch/internal/types"
)

// NominatimClient performs name lookups against a Nominatim HTTP server.
// The public instance allows at most one request per second, so calls are
// serialized and paced.
type NominatimClient struct {
	Endpoint    string
	CountryCode string
	Client      *http.Client

	mu   sync.Mutex
	last time.Time
}

const nominatimMinInterval = time.Second

func NewNominatimClient(endpoint, countryCode string) *NominatimClient {
	return &NominatimClient{
		Endpoint:    endpoint,
		CountryCode: countryCode,
		Client:      &http.Client{Timeout: 5 * time.Second},
	}
}

// Geocode resolves a free-text place name to coordinates.
func (c *NominatimClient) Geocode(ctx context.Context, name string) (types.Point, error) {
	if err := c.pace(ctx); err != nil {
		return types.Point{}, err
	}

	q := url.Values{}
	q.Set("q", name)
	q.Set("format", "json")
	q.Set("limit", "1")
	if c.CountryCode != "" {
		q.Set("countrycodes", c.CountryCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/search?"+q.Encode(), nil)
	if err != nil {
		return types.Point{}, err
	}
	req.Header.Set("User-Agent", "hitch-carpool/1.0")

	resp, err := c.Client.Do(req)
	if err != nil {
		return types.Point{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.Point{}, fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var out []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return types.Point{}, err
	}
	if len(out) == 0 {
		return types.Point{}, fmt.Errorf("nominatim: no result for %q", name)
	}
	lat, err := strconv.ParseFloat(out[0].Lat, 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("nominatim: bad latitude %q", out[0].Lat)
	}
	lng, err := strconv.ParseFloat(out[0].Lon, 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("nominatim: bad longitude %q", out[0].Lon)
	}
	return types.Point{Lat: lat, Lng: lng}, nil
}

// pace enforces the provider's one-request-per-second limit.
func (c *NominatimClient) pace(ctx context.Context) error {
	c.mu.Lock()
	wait := nominatimMinInterval - time.Since(c.last)
	c.last = time.Now().Add(max(wait, 0))
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
