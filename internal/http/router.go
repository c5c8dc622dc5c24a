// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"hitch/internal/ai"
	"hitch/internal/http/handlers"
	"hitch/internal/http/middleware"
	"hitch/internal/modules/matching"
	"hitch/internal/modules/trip"
)

type RouterDeps struct {
	Trips     *trip.Service
	Matching  *matching.Service
	Announcer *matching.Announcer
	Intent    ai.IntentProvider
	AuthToken string
	Log       *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.AuthToken))

	offerHandler := handlers.NewOfferHandler(deps.Trips, deps.Matching, deps.Announcer)
	api.POST("/offers", offerHandler.Create)
	api.PATCH("/offers/:id", offerHandler.Update)
	api.DELETE("/offers/:id", offerHandler.Deactivate)
	api.GET("/offers/:id/matches", offerHandler.Matches)

	requestHandler := handlers.NewRequestHandler(deps.Trips, deps.Matching, deps.Announcer)
	api.POST("/requests", requestHandler.Create)
	api.PATCH("/requests/:id", requestHandler.Update)
	api.DELETE("/requests/:id", requestHandler.Deactivate)
	api.GET("/requests/:id/matches", requestHandler.Matches)

	intentHandler := handlers.NewIntentHandler(deps.Intent)
	api.POST("/intent", intentHandler.Parse)

	return r
}
