// README: Match results pairing offers with requests; produced fresh on every search, never persisted.
package matching

import (
	"hitch/internal/modules/trip"
)

type MatchKind string

const (
	// KindExactDestination: the two destination names are the same place
	// (fuzzy similarity above the cutoff).
	KindExactDestination MatchKind = "exact_destination"
	// KindOnRoute: the requested destination lies within the dynamic
	// threshold of the offer's route.
	KindOnRoute MatchKind = "on_route"
)

// Match pairs a ride offer with a ride request. DistanceKm is the distance
// from the request's destination to the offer's route and is only set for
// on-route matches.
type Match struct {
	Offer      trip.RideOffer
	Request    trip.RideRequest
	Kind       MatchKind
	DistanceKm float64
}
