// README: Ride offer handlers: create with conflict handling, edit, deactivate, matches.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hitch/internal/http/middleware"
	"hitch/internal/modules/matching"
	"hitch/internal/modules/trip"
	"hitch/internal/types"
)

type OfferHandler struct {
	trips     *trip.Service
	matches   *matching.Service
	announcer *matching.Announcer
}

func NewOfferHandler(trips *trip.Service, matches *matching.Service, announcer *matching.Announcer) *OfferHandler {
	return &OfferHandler{trips: trips, matches: matches, announcer: announcer}
}

type createOfferReq struct {
	Origin      string      `json:"origin"`
	Destination string      `json:"destination"`
	Weekdays    []string    `json:"weekdays,omitempty"`
	TravelDate  string      `json:"travel_date,omitempty"`
	DepartTime  string      `json:"depart_time"`
	AutoApprove bool        `json:"auto_approve"`
	Replace     *replaceRef `json:"replace,omitempty"`
}

// Create handles POST /api/offers. A cross-kind conflict comes back as 409
// with the conflicting record; resubmitting with "replace" set confirms the
// swap.
func (h *OfferHandler) Create(c *gin.Context) {
	var req createOfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	weekdays, ok := parseWeekdays(req.Weekdays)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid weekday")
		return
	}
	travelDate, ok := parseDate(req.TravelDate)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid travel_date")
		return
	}

	cmd := trip.CreateOfferCommand{
		UserID:      middleware.CallerUID(c),
		Origin:      req.Origin,
		Destination: req.Destination,
		Weekdays:    weekdays,
		TravelDate:  travelDate,
		DepartTime:  req.DepartTime,
		AutoApprove: req.AutoApprove,
	}

	if req.Replace != nil {
		conf := trip.Conflict{
			Kind:     trip.RecordKind(req.Replace.Kind),
			RecordID: types.ID(req.Replace.RecordID),
		}
		newID, err := h.trips.ResolveConflictWithOffer(c.Request.Context(), conf, cmd)
		if err != nil {
			writeTripError(c, err)
			return
		}
		h.respondCreated(c, newID, cmd)
		return
	}

	newID, conf, err := h.trips.CreateOffer(c.Request.Context(), cmd)
	if errors.Is(err, trip.ErrConflict) {
		writeJSON(c, http.StatusConflict, gin.H{
			"error":    err.Error(),
			"conflict": toConflictView(conf),
		})
		return
	}
	if err != nil {
		writeTripError(c, err)
		return
	}
	h.respondCreated(c, newID, cmd)
}

func (h *OfferHandler) respondCreated(c *gin.Context, id types.ID, cmd trip.CreateOfferCommand) {
	offer := trip.RideOffer{
		ID:          id,
		UserID:      cmd.UserID,
		Origin:      cmd.Origin,
		Destination: cmd.Destination,
		Weekdays:    cmd.Weekdays,
		TravelDate:  cmd.TravelDate,
		DepartTime:  cmd.DepartTime,
		AutoApprove: cmd.AutoApprove,
		Active:      true,
		Route:       trip.RouteCache{Pending: true},
	}
	found, err := h.matches.MatchesForOffer(c.Request.Context(), offer)
	if err != nil {
		// The record is saved; a failed first search is not fatal.
		found = nil
	}
	if offer.AutoApprove {
		h.announcer.Announce(c.Request.Context(), found)
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"offer_id": id,
		"matches":  toMatchViews(found),
	})
}

type updateOfferReq struct {
	Origin      *string  `json:"origin,omitempty"`
	Destination *string  `json:"destination,omitempty"`
	Weekdays    []string `json:"weekdays,omitempty"`
	TravelDate  *string  `json:"travel_date,omitempty"`
	DepartTime  *string  `json:"depart_time,omitempty"`
	AutoApprove *bool    `json:"auto_approve,omitempty"`
}

// Update handles PATCH /api/offers/:id and re-runs the match search on the
// edited record.
func (h *OfferHandler) Update(c *gin.Context) {
	var req updateOfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	update := trip.OfferFieldUpdate{
		Origin:      req.Origin,
		Destination: req.Destination,
		DepartTime:  req.DepartTime,
		AutoApprove: req.AutoApprove,
	}
	if req.Weekdays != nil {
		weekdays, ok := parseWeekdays(req.Weekdays)
		if !ok {
			writeError(c, http.StatusBadRequest, "invalid weekday")
			return
		}
		update.Weekdays = &weekdays
	}
	if req.TravelDate != nil {
		d, err := time.Parse("2006-01-02", *req.TravelDate)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid travel_date")
			return
		}
		d = d.UTC()
		update.TravelDate = &d
	}

	offer, err := h.trips.UpdateOffer(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id")), update)
	if err != nil {
		writeTripError(c, err)
		return
	}
	found, err := h.matches.MatchesForOffer(c.Request.Context(), *offer)
	if err != nil {
		found = nil
	}
	if offer.AutoApprove {
		h.announcer.Announce(c.Request.Context(), found)
	}
	writeJSON(c, http.StatusOK, gin.H{
		"offer_id": offer.ID,
		"matches":  toMatchViews(found),
	})
}

// Matches handles GET /api/offers/:id/matches.
func (h *OfferHandler) Matches(c *gin.Context) {
	offer, err := h.trips.Offer(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeTripError(c, err)
		return
	}
	if offer.UserID != middleware.CallerUID(c) {
		writeError(c, http.StatusNotFound, trip.ErrNotFound.Error())
		return
	}
	found, err := h.matches.MatchesForOffer(c.Request.Context(), *offer)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"matches": toMatchViews(found)})
}

// Deactivate handles DELETE /api/offers/:id.
func (h *OfferHandler) Deactivate(c *gin.Context) {
	err := h.trips.Deactivate(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id")), trip.KindOffer)
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
