// README: Base handler utilities (JSON helpers, error mapping, shared views).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hitch/internal/modules/matching"
	"hitch/internal/modules/trip"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeTripError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrDuplicate), errors.Is(err, trip.ErrSwapIncomplete):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

type conflictView struct {
	Kind        string  `json:"kind"`
	RecordID    string  `json:"record_id"`
	Destination string  `json:"destination"`
	Date        *string `json:"date,omitempty"`
	Time        string  `json:"time"`
}

func toConflictView(conf *trip.Conflict) conflictView {
	v := conflictView{
		Kind:        string(conf.Kind),
		RecordID:    string(conf.RecordID),
		Destination: conf.Destination,
		Time:        conf.Time,
	}
	if conf.Date != nil {
		d := conf.Date.Format("2006-01-02")
		v.Date = &d
	}
	return v
}

// replaceRef identifies the conflicting record the user agreed to replace.
type replaceRef struct {
	Kind     string `json:"kind"`
	RecordID string `json:"record_id"`
}

type matchView struct {
	OfferID     string  `json:"offer_id"`
	RequestID   string  `json:"request_id"`
	Kind        string  `json:"kind"`
	DistanceKm  float64 `json:"distance_km,omitempty"`
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	DepartTime  string  `json:"depart_time"`
	TravelDate  string  `json:"travel_date"`
}

func toMatchViews(matches []matching.Match) []matchView {
	views := make([]matchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, matchView{
			OfferID:     string(m.Offer.ID),
			RequestID:   string(m.Request.ID),
			Kind:        string(m.Kind),
			DistanceKm:  m.DistanceKm,
			Origin:      m.Offer.Origin,
			Destination: m.Offer.Destination,
			DepartTime:  m.Offer.DepartTime,
			TravelDate:  m.Request.TravelDate.Format("2006-01-02"),
		})
	}
	return views
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekdays(names []string) ([]time.Weekday, bool) {
	if len(names) == 0 {
		return nil, true
	}
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdayNames[n]
		if !ok {
			return nil, false
		}
		days = append(days, d)
	}
	return days, true
}

func parseDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, false
	}
	d = d.UTC()
	return &d, true
}
