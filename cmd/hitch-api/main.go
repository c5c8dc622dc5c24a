// README: Entry point; loads config, wires services, starts HTTP server and background route workers.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"hitch/internal/ai"
	"hitch/internal/config"
	httptransport "hitch/internal/http"
	"hitch/internal/infra"
	"hitch/internal/logging"
	"hitch/internal/maps"
	"hitch/internal/modules/geocode"
	"hitch/internal/modules/matching"
	"hitch/internal/modules/route"
	"hitch/internal/modules/trip"
	"hitch/internal/notify"
	"hitch/internal/types"
)

// unroutable stands in for the Directions client when no maps key is
// configured. Offers stay pending and matching degrades to exact-name only.
type unroutable struct{}

func (unroutable) Route(context.Context, types.Point, types.Point) ([]types.Point, float64, error) {
	return nil, 0, route.ErrUnavailable
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	if cfg.Geocode.GoogleKey == "" {
		logger.Warn("HITCH_MAPS_KEY not set, running on gazetteer and Nominatim only")
	}

	var googleGeocoder geocode.Provider
	if cfg.Geocode.GoogleKey != "" {
		g, err := maps.NewGeocodeService(cfg.Geocode.GoogleKey, cfg.Geocode.CountryCode)
		if err != nil {
			log.Fatalf("maps geocoder init: %v", err)
		}
		googleGeocoder = g
	}
	nominatim := geocode.NewNominatimClient(cfg.Geocode.NominatimURL, cfg.Geocode.CountryCode)
	geocoder, err := geocode.NewService(cfg.Geocode, geocode.NewGazetteer(), logger, googleGeocoder, nominatim)
	if err != nil {
		log.Fatalf("geocoder init: %v", err)
	}

	tripStore := trip.NewStore(dbPool)

	var router route.Router
	if cfg.Geocode.GoogleKey != "" {
		r, err := maps.NewRouteService(cfg.Geocode.GoogleKey)
		if err != nil {
			log.Fatalf("maps router init: %v", err)
		}
		router = r
	} else {
		router = unroutable{}
	}
	routeSvc := route.NewService(router, geocoder, tripStore, cfg.Route, logger)
	defer routeSvc.Shutdown()

	tripSvc := trip.NewService(tripStore, routeSvc, logger)
	matchingSvc := matching.NewService(tripStore, geocoder, routeSvc, cfg.Proximity, logger)

	notifier := notify.NewRedisNotifier(redisClient)
	announcer := matching.NewAnnouncer(notifier, matching.NewAnnounceStore(redisClient), logger)

	var intent ai.IntentProvider
	if cfg.AI.GeminiKey != "" {
		provider, err := ai.NewGeminiProvider(ctx, cfg.AI.GeminiKey)
		if err != nil {
			log.Fatalf("gemini init: %v", err)
		}
		defer provider.Close()
		intent = provider
	}

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Trips:     tripSvc,
		Matching:  matchingSvc,
		Announcer: announcer,
		Intent:    intent,
		AuthToken: cfg.HTTP.AuthToken,
		Log:       logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
