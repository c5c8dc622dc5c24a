// README: Ride request handlers: create with conflict handling, edit, deactivate, matches.
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

type RequestHandler struct {
	trips     *trip.Service
	matches   *matching.Service
	announcer *matching.Announcer
}

func NewRequestHandler(trips *trip.Service, matches *matching.Service, announcer *matching.Announcer) *RequestHandler {
	return &RequestHandler{trips: trips, matches: matches, announcer: announcer}
}

type createRequestReq struct {
	Origin      string      `json:"origin"`
	Destination string      `json:"destination"`
	TravelDate  string      `json:"travel_date"`
	DepartTime  string      `json:"depart_time"`
	Flexibility string      `json:"flexibility,omitempty"`
	Replace     *replaceRef `json:"replace,omitempty"`
}

// Create handles POST /api/requests. Matching compatible offers are searched
// immediately and announced to both sides.
func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	travelDate, err := time.Parse("2006-01-02", req.TravelDate)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid travel_date")
		return
	}

	cmd := trip.CreateRequestCommand{
		UserID:      middleware.CallerUID(c),
		Origin:      req.Origin,
		Destination: req.Destination,
		TravelDate:  travelDate.UTC(),
		DepartTime:  req.DepartTime,
		Flexibility: trip.Flexibility(req.Flexibility),
	}

	if req.Replace != nil {
		conf := trip.Conflict{
			Kind:     trip.RecordKind(req.Replace.Kind),
			RecordID: types.ID(req.Replace.RecordID),
		}
		newID, err := h.trips.ResolveConflictWithRequest(c.Request.Context(), conf, cmd)
		if err != nil {
			writeTripError(c, err)
			return
		}
		h.respondCreated(c, newID, cmd)
		return
	}

	newID, conf, err := h.trips.CreateRequest(c.Request.Context(), cmd)
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

func (h *RequestHandler) respondCreated(c *gin.Context, id types.ID, cmd trip.CreateRequestCommand) {
	request := trip.RideRequest{
		ID:          id,
		UserID:      cmd.UserID,
		Origin:      cmd.Origin,
		Destination: cmd.Destination,
		TravelDate:  cmd.TravelDate,
		DepartTime:  cmd.DepartTime,
		Flexibility: cmd.Flexibility,
		Active:      true,
	}
	found, err := h.matches.MatchesForRequest(c.Request.Context(), request)
	if err != nil {
		found = nil
	}
	h.announcer.Announce(c.Request.Context(), found)
	writeJSON(c, http.StatusCreated, gin.H{
		"request_id": id,
		"matches":    toMatchViews(found),
	})
}

type updateRequestReq struct {
	Origin      *string `json:"origin,omitempty"`
	Destination *string `json:"destination,omitempty"`
	TravelDate  *string `json:"travel_date,omitempty"`
	DepartTime  *string `json:"depart_time,omitempty"`
	Flexibility *string `json:"flexibility,omitempty"`
}

// Update handles PATCH /api/requests/:id and re-runs the match search.
func (h *RequestHandler) Update(c *gin.Context) {
	var req updateRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	update := trip.RequestFieldUpdate{
		Origin:      req.Origin,
		Destination: req.Destination,
		DepartTime:  req.DepartTime,
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
	if req.Flexibility != nil {
		f := trip.Flexibility(*req.Flexibility)
		update.Flexibility = &f
	}

	request, err := h.trips.UpdateRequest(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id")), update)
	if err != nil {
		writeTripError(c, err)
		return
	}
	found, err := h.matches.MatchesForRequest(c.Request.Context(), *request)
	if err != nil {
		found = nil
	}
	h.announcer.Announce(c.Request.Context(), found)
	writeJSON(c, http.StatusOK, gin.H{
		"request_id": request.ID,
		"matches":    toMatchViews(found),
	})
}

// Matches handles GET /api/requests/:id/matches.
func (h *RequestHandler) Matches(c *gin.Context) {
	request, err := h.trips.Request(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeTripError(c, err)
		return
	}
	if request.UserID != middleware.CallerUID(c) {
		writeError(c, http.StatusNotFound, trip.ErrNotFound.Error())
		return
	}
	found, err := h.matches.MatchesForRequest(c.Request.Context(), *request)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"matches": toMatchViews(found)})
}

// Deactivate handles DELETE /api/requests/:id.
func (h *RequestHandler) Deactivate(c *gin.Context) {
	err := h.trips.Deactivate(c.Request.Context(), middleware.CallerUID(c), types.ID(c.Param("id")), trip.KindRequest)
	if err != nil {
		writeTripError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
