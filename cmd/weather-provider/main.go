// Command weather-provider serves one provider node: it queries the
// configured weather sources for a location and returns their aggregate.
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
	"github.com/i474232898/weather-consensus/internal/geocode"
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
	logger := cfg.NewLogger(os.Stdout).With("service", "weather-provider", "provider", cfg.ProviderName)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound source calls; each call is also bounded
	// by SOURCE_TIMEOUT through its context.
	httpClient := &http.Client{Timeout: cfg.SourceTimeout}

	fetchers, err := sources.Build(cfg.Sources, httpClient)
	if err != nil {
		logger.Error("invalid SOURCES", "error", err)
		os.Exit(1)
	}
	srcs := make([]weather.Source, 0, len(fetchers))
	for _, f := range fetchers {
		srcs = append(srcs, f.Source())
	}

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

	service := weather.NewService(cfg.ProviderName, fetchers,
		credentials.NewEnv(credentials.RequiredFor(srcs)...),
		st, logger,
		weather.WithSourceTimeout(cfg.SourceTimeout),
		weather.WithWriter(common.NewDetached(cfg.PersistTimeout, logger)),
	)

	app := httpapi.NewApp("weather-provider", cfg.SourceTimeout+10*time.Second, logger)
	httpapi.RegisterProviderRoutes(app, cloud.NewLocalClient(service), geo, st)

	go func() {
		logger.Info("listening", "port", cfg.Port, "sources", srcs)
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
	service.Flush()
}
