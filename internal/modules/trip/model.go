// README: Ride records: driver offers, hitchhiker requests, and the cached route geometry.
package trip

import (
	"time"

	"hitch/internal/types"
)

type RecordKind string

const (
	KindOffer   RecordKind = "offer"
	KindRequest RecordKind = "request"
)

// Flexibility is a hitchhiker's declared tolerance for departure-time deviation.
type Flexibility string

const (
	FlexStrict       Flexibility = "strict"
	FlexFlexible     Flexibility = "flexible"
	FlexVeryFlexible Flexibility = "very_flexible"
)

// RouteCache holds the resampled route geometry owned by one RideOffer.
// It is created pending, filled by the background route worker, and flips
// back to pending whenever the offer's origin or destination changes.
type RouteCache struct {
	Points   []types.Point
	LengthKm float64
	Pending  bool
	UpdatedAt time.Time
}

// RideOffer is a driver's planned trip, recurring (Weekdays) or one-time
// (TravelDate). Exactly one of the two schedule forms is set.
type RideOffer struct {
	ID          types.ID
	UserID      types.ID
	Origin      string
	Destination string
	Weekdays    []time.Weekday
	TravelDate  *time.Time
	DepartTime  string // "HH:MM"
	AutoApprove bool
	Active      bool
	Route       RouteCache
	CreatedAt   time.Time
}

// RideRequest is a hitchhiker's desired trip, always one-time and dated.
type RideRequest struct {
	ID          types.ID
	UserID      types.ID
	Origin      string
	Destination string
	TravelDate  time.Time
	DepartTime  string // "HH:MM"
	Flexibility Flexibility
	Active      bool
	CreatedAt   time.Time
}

// UserRecords groups a single user's active records of both kinds.
type UserRecords struct {
	Offers   []RideOffer
	Requests []RideRequest
}

// Conflict describes an active record of the opposite kind that collides
// with the one being created. It carries everything the caller needs to ask
// the user whether the old record should be replaced.
type Conflict struct {
	Kind        RecordKind // kind of the record to delete
	RecordID    types.ID
	Destination string
	Date        *time.Time
	Time        string
}

// OfferFieldUpdate is a partial update of a ride offer. Nil fields are left
// untouched.
type OfferFieldUpdate struct {
	Origin      *string
	Destination *string
	Weekdays    *[]time.Weekday
	TravelDate  *time.Time
	DepartTime  *string
	AutoApprove *bool
}

// RequestFieldUpdate is a partial update of a ride request.
type RequestFieldUpdate struct {
	Origin      *string
	Destination *string
	TravelDate  *time.Time
	DepartTime  *string
	Flexibility *Flexibility
}

// SameDay reports whether two timestamps fall on the same calendar day (UTC).
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// RunsOn reports whether the offer travels on the given date: either the
// date's weekday is in the recurring set, or the one-time date matches.
func (o *RideOffer) RunsOn(date time.Time) bool {
	if len(o.Weekdays) > 0 {
		wd := date.UTC().Weekday()
		for _, d := range o.Weekdays {
			if d == wd {
				return true
			}
		}
		return false
	}
	return o.TravelDate != nil && SameDay(*o.TravelDate, date)
}
