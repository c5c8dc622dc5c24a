// README: Tiered geocoder: gazetteer, then paid provider, then free fallback, with LRU memoization.
package geocode

import (
	"context"
	"errors"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"hitch/internal/config"
	"hitch/internal/types"
)

// ErrNotFound is returned when every tier failed to resolve a name.
// Callers treat it as a skip condition, never a fatal error.
var ErrNotFound = errors.New("location not found")

// Provider is a single online geocoding tier.
type Provider interface {
	Geocode(ctx context.Context, name string) (types.Point, error)
}

// Service resolves place names through a tiered provider chain.
// Successful resolutions are memoized; failures are not, so a transient
// provider outage cannot poison future lookups.
type Service struct {
	gaz       *Gazetteer
	providers []Provider
	cache     *lru.Cache[string, types.Point]
	log       *slog.Logger
}

// NewService builds the resolver chain. providers are tried in order after
// the gazetteer misses; a nil entry is skipped, so the paid tier can simply
// be absent when no API key is configured.
func NewService(cfg config.GeocodeConfig, gaz *Gazetteer, log *slog.Logger, providers ...Provider) (*Service, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 200
	}
	cache, err := lru.New[string, types.Point](size)
	if err != nil {
		return nil, err
	}
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			chain = append(chain, p)
		}
	}
	return &Service{gaz: gaz, providers: chain, cache: cache, log: log}, nil
}

// Resolve maps a place name to coordinates. First hit wins: cache, gazetteer,
// then each provider in order. Provider errors degrade to ErrNotFound.
func (s *Service) Resolve(ctx context.Context, name string) (types.Point, error) {
	key := Normalize(name)
	if key == "" {
		return types.Point{}, ErrNotFound
	}

	if p, ok := s.cache.Get(key); ok {
		return p, nil
	}
	if p, ok := s.gaz.Lookup(key); ok {
		s.cache.Add(key, p)
		return p, nil
	}

	for _, provider := range s.providers {
		p, err := provider.Geocode(ctx, name)
		if err != nil {
			s.log.Debug("geocode tier failed", "name", name, "err", err)
			continue
		}
		s.cache.Add(key, p)
		return p, nil
	}
	return types.Point{}, ErrNotFound
}
