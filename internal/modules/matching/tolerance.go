// README: Pure time-tolerance math mapping flexibility tier and trip distance to an allowed window.
package matching

import (
	"math"
	"time"

	"hitch/internal/modules/trip"
)

const (
	strictToleranceMin = 30.0
	// flexible tolerance starts at the strict base and grows with trip
	// distance: +30 minutes per 50 km, capped at 3 hours.
	flexibleGrowthPerKm  = 30.0 / 50.0
	flexibleToleranceCap = 180.0
	// very_flexible is for requesters who have not pinned down a time.
	veryFlexibleToleranceMin = 360.0
)

// ToleranceMinutes maps a flexibility tier and trip distance to the allowed
// departure-time difference. An unrecognized tier fails open to the maximal
// tolerance rather than rejecting a potentially valid request.
func ToleranceMinutes(flexibility trip.Flexibility, distanceKm float64) float64 {
	switch flexibility {
	case trip.FlexStrict:
		return strictToleranceMin
	case trip.FlexFlexible:
		return math.Min(strictToleranceMin+distanceKm*flexibleGrowthPerKm, flexibleToleranceCap)
	default:
		return veryFlexibleToleranceMin
	}
}

// TimesWithin reports whether two "HH:MM" departure times differ by at most
// toleranceMin minutes. Unparseable times never match.
func TimesWithin(a, b string, toleranceMin float64) bool {
	ta, err := time.Parse("15:04", a)
	if err != nil {
		return false
	}
	tb, err := time.Parse("15:04", b)
	if err != nil {
		return false
	}
	diff := math.Abs(ta.Sub(tb).Minutes())
	return diff <= toleranceMin
}
