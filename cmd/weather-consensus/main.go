// Command weather-consensus queries up to three weather providers, merges
// their answers into a consensus reading and serves it over HTTP.
//
// Providers are the remote nodes listed in PROVIDER_ENDPOINTS. When none are
// listed, a single provider runs in-process.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/i474232898/weather-consensus/internal/api/http"
	"github.com/i474232898/weather-consensus/internal/cloud"
	"github.com/i474232898/weather-consensus/internal/common"
	"github.com/i474232898/weather-consensus/internal/config"
	"github.com/i474232898/weather-consensus/internal/credentials"
	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/geocode"
	"github.com/i474232898/weather-consensus/internal/scheduler"
	"github.com/i474232898/weather-consensus/internal/store"
	"github.com/i474232898/weather-consensus/internal/weather"
	"github.com/i474232898/weather-consensus/internal/weather/sources"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout).With("service", "weather-consensus")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, cfg.DatabaseURL, store.Retention{
		MaxHistory:   cfg.StoreMaxHistory,
		MaxAge:       cfg.StoreMaxAge,
		AggregateAge: cfg.AggregateMaxAge,
	}, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	geo, err := geocode.New(cfg.KnownLocations, cfg.GoogleGeocodingAPIKey)
	if err != nil {
		logger.Error("invalid KNOWN_LOCATIONS", "error", err)
		os.Exit(1)
	}

	writer := common.NewDetached(cfg.PersistTimeout, logger)

	var local *weather.Service
	var clients []crosscloud.ProviderClient
	if len(cfg.Endpoints) == 0 {
		local, err = localProvider(cfg, st, writer, logger)
		if err != nil {
			logger.Error("invalid SOURCES", "error", err)
			os.Exit(1)
		}
		clients = append(clients, cloud.NewLocalClient(local))
	} else {
		// The provider timeout is enforced per call through the context.
		httpClient := &http.Client{}
		for _, ep := range cfg.Endpoints {
			clients = append(clients, cloud.NewRemoteClient(ep.Name, ep.URL, httpClient))
		}
	}

	service := crosscloud.NewService(clients, geo, st, logger,
		crosscloud.WithProviderTimeout(cfg.ProviderTimeout),
		crosscloud.WithWriter(writer),
	)

	refs := make([]weather.LocationRef, 0, len(cfg.RefreshLocations))
	for _, name := range cfg.RefreshLocations {
		refs = append(refs, weather.ByName{Name: name})
	}
	sched := scheduler.New(refs, cfg.RefreshInterval, cfg.ProviderTimeout+5*time.Second, service, st, logger)
	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	app := httpapi.NewApp("weather-consensus", cfg.ProviderTimeout+10*time.Second, logger)
	httpapi.RegisterAggregateRoutes(app, service, st)

	go func() {
		logger.Info("listening", "port", cfg.Port, "providers", len(clients))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	// Both services share writer, so this drains provider and aggregate writes.
	service.Flush()
}

func localProvider(cfg *config.Config, sink weather.Sink, writer *common.Detached, logger *slog.Logger) (*weather.Service, error) {
	fetchers, err := sources.Build(cfg.Sources, &http.Client{Timeout: cfg.SourceTimeout})
	if err != nil {
		return nil, err
	}
	srcs := make([]weather.Source, 0, len(fetchers))
	for _, f := range fetchers {
		srcs = append(srcs, f.Source())
	}

	return weather.NewService(cfg.ProviderName, fetchers,
		credentials.NewEnv(credentials.RequiredFor(srcs)...),
		sink, logger,
		weather.WithSourceTimeout(cfg.SourceTimeout),
		weather.WithWriter(writer),
	), nil
}
