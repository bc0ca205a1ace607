package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "local", cfg.ProviderName)
	assert.Equal(t, 10*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5*time.Second, cfg.PersistTimeout)
	assert.Equal(t, 24*time.Hour, cfg.StoreMaxAge)
	assert.Equal(t, 6*time.Hour, cfg.AggregateMaxAge)
	assert.Equal(t, 96, cfg.StoreMaxHistory)
	assert.Empty(t, cfg.Endpoints)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PROVIDER_NAME", "aws")
	t.Setenv("SOURCES", "openweathermap,openmeteo")
	t.Setenv("SOURCE_TIMEOUT", "2s")
	t.Setenv("PROVIDER_ENDPOINTS", "aws=http://aws.internal:8081, gcp=https://gcp.example.com")
	t.Setenv("REFRESH_LOCATIONS", "Paris,Berlin")
	t.Setenv("KNOWN_LOCATIONS", "Paris=48.8566/2.3522")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "aws", cfg.ProviderName)
	assert.Equal(t, []string{"openweathermap", "openmeteo"}, cfg.Sources)
	assert.Equal(t, 2*time.Second, cfg.SourceTimeout)
	assert.Equal(t, []Endpoint{
		{Name: "aws", URL: "http://aws.internal:8081"},
		{Name: "gcp", URL: "https://gcp.example.com"},
	}, cfg.Endpoints)
	assert.Equal(t, []string{"Paris", "Berlin"}, cfg.RefreshLocations)
	assert.Equal(t, []string{"Paris=48.8566/2.3522"}, cfg.KnownLocations)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"bad log level":      {"LOG_LEVEL", "verbose"},
		"bad duration":       {"SOURCE_TIMEOUT", "soon"},
		"endpoint no name":   {"PROVIDER_ENDPOINTS", "http://aws"},
		"endpoint bad url":   {"PROVIDER_ENDPOINTS", "aws=not-a-url"},
		"duplicate endpoint": {"PROVIDER_ENDPOINTS", "aws=http://a,aws=http://b"},
		"too many endpoints": {"PROVIDER_ENDPOINTS", "a=http://a,b=http://b,c=http://c,d=http://d"},
		"refresh too often":  {"REFRESH_INTERVAL", "5s"},
		"non numeric port":   {"PORT", "http"},
	}

	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{AppMode: "production", LogLevel: "warn"}
	logger := cfg.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "provider", "aws")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"provider":"aws"`)

	buf.Reset()
	cfg = &Config{AppMode: "development", LogLevel: "debug"}
	cfg.NewLogger(&buf).Debug("details")
	assert.Contains(t, buf.String(), "msg=details")
}
