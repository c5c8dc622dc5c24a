// README: Match search: destination, schedule, time, and approval filters over active records.
package matching

import (
	"context"
	"fmt"
	"log/slog"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"hitch/internal/config"
	"hitch/internal/modules/geocode"
	"hitch/internal/modules/route"
	"hitch/internal/modules/trip"
	"hitch/internal/types"
)

// Records is the slice of the record store the match search reads.
type Records interface {
	ActiveOffers(ctx context.Context, destination string) ([]trip.RideOffer, error)
	ActiveRequests(ctx context.Context, destination string) ([]trip.RideRequest, error)
	SaveRouteCache(ctx context.Context, offerID types.ID, cache trip.RouteCache) error
}

// Geocoder resolves place names; unresolvable names skip the candidate.
type Geocoder interface {
	Resolve(ctx context.Context, name string) (types.Point, error)
}

// Routes performs the one-shot lazy route fetch when an offer's cache is
// still pending at search time.
type Routes interface {
	Fetch(ctx context.Context, origin, destination types.Point) (route.Route, error)
}

type Service struct {
	store    Records
	geocoder Geocoder
	routes   Routes
	cfg      config.ProximityConfig
	log      *slog.Logger
}

func NewService(store Records, geocoder Geocoder, routes Routes, cfg config.ProximityConfig, log *slog.Logger) *Service {
	return &Service{store: store, geocoder: geocoder, routes: routes, cfg: cfg, log: log}
}

// MatchesForRequest finds active offers compatible with a new or edited
// request. Candidates are rejected in order: destination, schedule, time,
// then offers that do not auto-approve. Searches are re-run in full after
// any edit; nothing is cached between calls.
func (s *Service) MatchesForRequest(ctx context.Context, req trip.RideRequest) ([]Match, error) {
	offers, err := s.store.ActiveOffers(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load offers: %w", err)
	}

	tolerance := ToleranceMinutes(req.Flexibility, s.tripDistanceKm(ctx, req))

	var matches []Match
	for i := range offers {
		offer := &offers[i]
		if offer.UserID == req.UserID {
			continue
		}
		kind, distKm, ok := s.destinationCompatible(ctx, offer, req.Destination)
		if !ok {
			continue
		}
		if !offer.RunsOn(req.TravelDate) {
			continue
		}
		if !TimesWithin(offer.DepartTime, req.DepartTime, tolerance) {
			continue
		}
		if !offer.AutoApprove {
			continue
		}
		matches = append(matches, Match{Offer: *offer, Request: req, Kind: kind, DistanceKm: distKm})
	}
	return matches, nil
}

// MatchesForOffer is the symmetric search run when a driver posts or edits
// an offer. The tolerance still derives from each request's flexibility, so
// both search directions compute the same window for the same pair. Whether
// the results are announced immediately or held for confirmation is decided
// by the offer's auto-approve flag, outside this search.
func (s *Service) MatchesForOffer(ctx context.Context, offer trip.RideOffer) ([]Match, error) {
	requests, err := s.store.ActiveRequests(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	var matches []Match
	for i := range requests {
		req := &requests[i]
		if req.UserID == offer.UserID {
			continue
		}
		kind, distKm, ok := s.destinationCompatible(ctx, &offer, req.Destination)
		if !ok {
			continue
		}
		if !offer.RunsOn(req.TravelDate) {
			continue
		}
		tolerance := ToleranceMinutes(req.Flexibility, s.tripDistanceKm(ctx, *req))
		if !TimesWithin(offer.DepartTime, req.DepartTime, tolerance) {
			continue
		}
		matches = append(matches, Match{Offer: offer, Request: *req, Kind: kind, DistanceKm: distKm})
	}
	return matches, nil
}

// destinationCompatible applies the two-step destination test. Exact first:
// fuzzy name similarity at or above the cutoff. Otherwise on-route: the
// candidate destination must lie within the dynamic threshold of the
// offer's route. A pending cache triggers one lazy fetch; if that fails too,
// the offer degrades to exact-name matching only.
func (s *Service) destinationCompatible(ctx context.Context, offer *trip.RideOffer, candidate string) (MatchKind, float64, bool) {
	if fuzzy.Ratio(geocode.Normalize(offer.Destination), geocode.Normalize(candidate)) >= s.cfg.SimilarityPct {
		return KindExactDestination, 0, true
	}

	candPt, err := s.geocoder.Resolve(ctx, candidate)
	if err != nil {
		s.log.Debug("candidate destination unresolvable", "name", candidate)
		return "", 0, false
	}
	originPt, err := s.geocoder.Resolve(ctx, offer.Origin)
	if err != nil {
		s.log.Debug("offer origin unresolvable", "offer", offer.ID, "name", offer.Origin)
		return "", 0, false
	}

	points := offer.Route.Points
	if offer.Route.Pending && len(points) == 0 {
		points = s.lazyRoute(ctx, offer, originPt)
		if len(points) == 0 {
			// Indeterminate, not a failure: exact matching already had its chance.
			return "", 0, false
		}
	}

	threshold := DynamicThreshold(s.cfg, haversineKm(originPt, candPt))
	minDist := MinDistanceToRouteKm(points, candPt)
	if minDist <= threshold {
		return KindOnRoute, minDist, true
	}
	return "", 0, false
}

// lazyRoute performs the one-shot synchronous route fetch for an offer whose
// background computation has not finished, persisting the result for the
// next search.
func (s *Service) lazyRoute(ctx context.Context, offer *trip.RideOffer, originPt types.Point) []types.Point {
	destPt, err := s.geocoder.Resolve(ctx, offer.Destination)
	if err != nil {
		s.log.Debug("offer destination unresolvable", "offer", offer.ID, "name", offer.Destination)
		return nil
	}
	r, err := s.routes.Fetch(ctx, originPt, destPt)
	if err != nil {
		s.log.Warn("lazy route fetch failed", "offer", offer.ID, "err", err)
		return nil
	}
	cache := trip.RouteCache{Points: r.Points, LengthKm: r.LengthKm, Pending: false}
	if err := s.store.SaveRouteCache(ctx, offer.ID, cache); err != nil {
		s.log.Warn("lazy route cache save failed", "offer", offer.ID, "err", err)
	}
	offer.Route = cache
	return r.Points
}

// tripDistanceKm estimates the request's trip length for the tolerance
// formula. Unresolvable endpoints yield 0, which degrades to the base
// tolerance rather than rejecting the request.
func (s *Service) tripDistanceKm(ctx context.Context, req trip.RideRequest) float64 {
	from, err := s.geocoder.Resolve(ctx, req.Origin)
	if err != nil {
		return 0
	}
	to, err := s.geocoder.Resolve(ctx, req.Destination)
	if err != nil {
		return 0
	}
	return haversineKm(from, to)
}
