// README: Route provider: synchronous fetch plus a cancelable, retrying background worker per offer.
package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hitch/internal/config"
	"hitch/internal/modules/trip"
	"hitch/internal/types"
)

// ErrUnavailable is returned when the routing engine produced no usable route.
var ErrUnavailable = errors.New("route unavailable")

// Route is a resampled drivable route.
type Route struct {
	Points   []types.Point
	LengthKm float64
}

// Router is the external routing engine contract.
type Router interface {
	Route(ctx context.Context, origin, destination types.Point) ([]types.Point, float64, error)
}

// Geocoder resolves the offer's place names inside the background worker.
type Geocoder interface {
	Resolve(ctx context.Context, name string) (types.Point, error)
}

// CacheSaver persists a finished route cache through the record store.
type CacheSaver interface {
	SaveRouteCache(ctx context.Context, offerID types.ID, cache trip.RouteCache) error
}

// task is the registry entry for one in-flight background computation.
// Comparing entry pointers lets a finished task deregister only itself,
// never a newer task that replaced it.
type task struct {
	cancel context.CancelFunc
}

// Service owns the per-offer background task registry. At most one
// non-cancelled computation is in flight per offer; scheduling a new one
// cancels its predecessor first.
type Service struct {
	router   Router
	geocoder Geocoder
	saver    CacheSaver
	cfg      config.RouteConfig
	log      *slog.Logger

	mu    sync.Mutex
	tasks map[types.ID]*task
	wg    sync.WaitGroup
}

func NewService(router Router, geocoder Geocoder, saver CacheSaver, cfg config.RouteConfig, log *slog.Logger) *Service {
	return &Service{
		router:   router,
		geocoder: geocoder,
		saver:    saver,
		cfg:      cfg,
		log:      log,
		tasks:    make(map[types.ID]*task),
	}
}

// Fetch obtains and resamples a route synchronously. Used for lazy loading
// at match time when the background computation has not finished.
func (s *Service) Fetch(ctx context.Context, origin, destination types.Point) (Route, error) {
	points, lengthKm, err := s.router.Route(ctx, origin, destination)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Route{Points: Resample(points, s.cfg.ResampleKm), LengthKm: lengthKm}, nil
}

// ScheduleBackground starts route computation for the offer, cancelling any
// computation already registered under the same ID. Fire-and-forget.
func (s *Service) ScheduleBackground(offerID types.ID, origin, destination string) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.tasks[offerID]; ok {
		prev.cancel()
	}
	s.tasks[offerID] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.deregister(offerID, t)
		s.run(ctx, offerID, origin, destination)
	}()
}

// Shutdown cancels every in-flight task and waits for the workers to exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	for _, t := range s.tasks {
		t.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context, offerID types.ID, origin, destination string) {
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		r, err := s.compute(ctx, origin, destination)
		if err == nil {
			// Re-check after the network round trip: a cancelled task must
			// not write partial data over a newer computation's result.
			if ctx.Err() != nil {
				return
			}
			cache := trip.RouteCache{Points: r.Points, LengthKm: r.LengthKm, Pending: false}
			if err := s.saver.SaveRouteCache(ctx, offerID, cache); err != nil {
				s.log.Error("route cache save failed", "offer", offerID, "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("route computation failed", "offer", offerID, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.RetryDelay):
		}
	}
	// Retries exhausted: the cache stays pending and a later match search
	// falls back to a one-shot lazy fetch.
	s.log.Warn("route computation gave up", "offer", offerID, "attempts", s.cfg.MaxAttempts)
}

func (s *Service) compute(ctx context.Context, origin, destination string) (Route, error) {
	from, err := s.geocoder.Resolve(ctx, origin)
	if err != nil {
		return Route{}, fmt.Errorf("resolve origin %q: %w", origin, err)
	}
	to, err := s.geocoder.Resolve(ctx, destination)
	if err != nil {
		return Route{}, fmt.Errorf("resolve destination %q: %w", destination, err)
	}
	return s.Fetch(ctx, from, to)
}

func (s *Service) deregister(offerID types.ID, t *task) {
	t.cancel()
	s.mu.Lock()
	if s.tasks[offerID] == t {
		delete(s.tasks, offerID)
	}
	s.mu.Unlock()
}
