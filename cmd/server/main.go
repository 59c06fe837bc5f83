package main

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"enroute_tracker/internal/cache"
	"enroute_tracker/internal/config"
	"enroute_tracker/internal/controllers"
	"enroute_tracker/internal/feeds"
	"enroute_tracker/internal/logger"
	"enroute_tracker/internal/middleware"
	"enroute_tracker/internal/routes"
	"enroute_tracker/internal/store"
)

type stores struct {
	spot         store.TrackStore
	trackLeaders store.TrackStore
	routes       store.RouteStore
}

func openStores(cfg *config.AppConfig) (stores, error) {
	switch cfg.StoreBackend {
	case "postgres":
		db, err := config.InitDB(cfg.DB)
		if err != nil {
			return stores{}, err
		}
		return stores{
			spot:         store.NewGormTrackStore(db, store.SpotTable),
			trackLeaders: store.NewGormTrackStore(db, store.TrackLeadersTable),
			routes:       store.NewGormRouteStore(db),
		}, nil
	case "mongo":
		db, err := config.ConnectMongoDB(context.Background(), cfg.Mongo)
		if err != nil {
			return stores{}, err
		}
		return stores{
			spot:         store.NewMongoTrackStore(db, store.SpotTable),
			trackLeaders: store.NewMongoTrackStore(db, store.TrackLeadersTable),
			routes:       store.NewMongoRouteStore(db),
		}, nil
	default:
		logrus.Warn("Using in-memory stores; tracks and routes are lost on restart")
		return stores{
			spot:         store.NewInMemoryTrackStore(),
			trackLeaders: store.NewInMemoryTrackStore(),
			routes:       store.NewInMemoryRouteStore(),
		}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		logrus.WithError(err).Fatal("Logger setup failed")
	}

	st, err := openStores(cfg)
	if err != nil {
		logrus.WithError(err).WithField("backend", cfg.StoreBackend).Fatal("Store setup failed")
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout + 5*time.Second}
	spot := feeds.NewSpotClient(cfg.Spot.URLTemplate, cfg.ProviderTimeout, httpClient)

	window := cache.WithPathWindow(cfg.PathWindow)
	var limiter cache.Limiter
	if cfg.Spot.PolitenessDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Spot.PolitenessDelay), 1)
	}
	devices := cache.NewDeviceCache(st.spot, spot, cfg.Spot.TTL, window, cache.WithLimiter(limiter))

	var batch controllers.TrackSource
	if cfg.TrackLeaders.URL != "" {
		tl := feeds.NewTrackLeadersClient(cfg.TrackLeaders.URL, cfg.ProviderTimeout, httpClient)
		batch = cache.NewBatchCache(st.trackLeaders, tl, feeds.TrackLeadersScope, cfg.TrackLeaders.TTL,
			window, cache.WithRefreshTimeout(2*cfg.ProviderTimeout))
	} else {
		logrus.Info("TRACKLEADERS_URL not set; aggregated provider disabled")
	}

	r := routes.SetupRouter(routes.Handlers{
		Feeds:  controllers.NewFeedController(devices, batch, spot),
		Routes: controllers.NewRouteController(st.routes, cfg.RouteCacheSize, cfg.MaxDeviationMeters),
	})

	handler := middleware.EnableCORS(r)

	logrus.WithFields(logrus.Fields{
		"addr":    cfg.HTTPAddr,
		"backend": cfg.StoreBackend,
	}).Info("Server running")
	if err := http.ListenAndServe(cfg.HTTPAddr, handler); err != nil {
		logrus.WithError(err).Fatal("Server stopped")
	}
}
