package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Endpoint is a remote provider node.
type Endpoint struct {
	Name string `validate:"required"`
	URL  string `validate:"required,http_url"`
}

type Config struct {
	AppMode  string `envconfig:"APP_MODE" default:"production" validate:"oneof=development production"`
	Port     string `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Provider node.
	ProviderName string   `envconfig:"PROVIDER_NAME" default:"local" validate:"required"`
	Sources      []string `envconfig:"SOURCES"` // empty means every known source

	// Timeouts.
	SourceTimeout   time.Duration `envconfig:"SOURCE_TIMEOUT" default:"10s" validate:"gte=1ms"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"30s" validate:"gte=1ms"`
	PersistTimeout  time.Duration `envconfig:"PERSIST_TIMEOUT" default:"5s" validate:"gte=1ms"`

	// Aggregator. Entries are name=url; order is kept.
	ProviderEndpoints []string   `envconfig:"PROVIDER_ENDPOINTS"`
	Endpoints         []Endpoint `ignored:"true" validate:"max=3,dive"`

	GoogleGeocodingAPIKey string   `envconfig:"GOOGLE_GEOCODING_API_KEY"`
	KnownLocations        []string `envconfig:"KNOWN_LOCATIONS"`

	// Persistence. Without DATABASE_URL records stay in memory.
	DatabaseURL     string        `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	StoreMaxHistory int           `envconfig:"STORE_MAX_HISTORY" default:"96" validate:"gte=0"` // roughly 24h at 15-minute intervals
	StoreMaxAge     time.Duration `envconfig:"STORE_MAX_AGE" default:"24h" validate:"gte=0"`
	AggregateMaxAge time.Duration `envconfig:"AGGREGATE_MAX_AGE" default:"6h" validate:"gte=0"`

	// Periodic refresh; disabled when no locations are listed.
	RefreshInterval  time.Duration `envconfig:"REFRESH_INTERVAL" default:"15m" validate:"gte=1m"`
	RefreshLocations []string      `envconfig:"REFRESH_LOCATIONS"`
}

// Load reads configuration from the environment, after loading .env when
// present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	endpoints, err := parseEndpoints(cfg.ProviderEndpoints)
	if err != nil {
		return nil, err
	}
	cfg.Endpoints = endpoints

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func parseEndpoints(entries []string) ([]Endpoint, error) {
	var out []Endpoint
	seen := make(map[string]bool)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, u, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid PROVIDER_ENDPOINTS entry %q, want name=url", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate provider %q in PROVIDER_ENDPOINTS", name)
		}
		seen[name] = true
		out = append(out, Endpoint{Name: name, URL: strings.TrimSpace(u)})
	}
	return out, nil
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.AppMode == "development" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
