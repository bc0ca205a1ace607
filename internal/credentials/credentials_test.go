package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-consensus/internal/weather"
)

func TestEnv_ReadsKeys(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", " owm-key ")
	t.Setenv("WEATHERAPI_API_KEY", "wa-key")
	t.Setenv("OPENMETEO_API_KEY", "")

	creds, err := NewEnv(weather.SourceOpenWeatherMap, weather.SourceWeatherAPI).GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owm-key", creds.OpenWeatherMapKey)
	assert.Equal(t, "wa-key", creds.WeatherAPIKey)
	assert.Empty(t, creds.OpenMeteoKey)
}

func TestEnv_MissingRequiredKey(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", "owm-key")
	t.Setenv("WEATHERAPI_API_KEY", "")

	_, err := NewEnv(weather.SourceOpenWeatherMap, weather.SourceWeatherAPI).GetCredentials(context.Background())
	assert.ErrorIs(t, err, weather.ErrCredentialsUnavailable)
	assert.ErrorContains(t, err, "weatherapi")
}

func TestEnv_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEnv().GetCredentials(ctx)
	assert.ErrorIs(t, err, weather.ErrCredentialsUnavailable)
}

func TestRequiredFor(t *testing.T) {
	got := RequiredFor(weather.KnownSources)
	assert.NotContains(t, got, weather.SourceOpenMeteo)
	assert.Len(t, got, len(weather.KnownSources)-1)
}

func TestStatic(t *testing.T) {
	creds := weather.Credentials{OpenWeatherMapKey: "k"}

	got, err := NewStatic(creds, weather.SourceOpenWeatherMap).GetCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	_, err = NewStatic(creds, weather.SourceWeatherAPI).GetCredentials(context.Background())
	assert.ErrorIs(t, err, weather.ErrCredentialsUnavailable)
}
