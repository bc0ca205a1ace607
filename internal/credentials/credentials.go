// Package credentials supplies the API keys of the keyed weather sources.
package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/i474232898/weather-consensus/internal/weather"
)

type envKeys struct {
	OpenWeatherMap string `envconfig:"OPENWEATHER_API_KEY"`
	WeatherAPI     string `envconfig:"WEATHERAPI_API_KEY"`
	OpenMeteo      string `envconfig:"OPENMETEO_API_KEY"`
}

// Env reads keys from the process environment on every call, so rotated
// keys are picked up without a restart.
type Env struct {
	required []weather.Source
}

// NewEnv creates an Env provider. A missing key for any of the required
// sources makes GetCredentials fail.
func NewEnv(required ...weather.Source) *Env {
	return &Env{required: required}
}

// RequiredFor returns the sources among srcs that cannot work without a key.
func RequiredFor(srcs []weather.Source) []weather.Source {
	var out []weather.Source
	for _, s := range srcs {
		if s != weather.SourceOpenMeteo {
			out = append(out, s)
		}
	}
	return out
}

func (e *Env) GetCredentials(ctx context.Context) (weather.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return weather.Credentials{}, fmt.Errorf("%w: %v", weather.ErrCredentialsUnavailable, err)
	}

	var keys envKeys
	if err := envconfig.Process("", &keys); err != nil {
		return weather.Credentials{}, fmt.Errorf("%w: %v", weather.ErrCredentialsUnavailable, err)
	}
	creds := weather.Credentials{
		OpenWeatherMapKey: strings.TrimSpace(keys.OpenWeatherMap),
		WeatherAPIKey:     strings.TrimSpace(keys.WeatherAPI),
		OpenMeteoKey:      strings.TrimSpace(keys.OpenMeteo),
	}
	return creds, check(creds, e.required)
}

// Static always returns the same bundle.
type Static struct {
	creds    weather.Credentials
	required []weather.Source
}

func NewStatic(creds weather.Credentials, required ...weather.Source) *Static {
	return &Static{creds: creds, required: required}
}

func (s *Static) GetCredentials(context.Context) (weather.Credentials, error) {
	return s.creds, check(s.creds, s.required)
}

func check(creds weather.Credentials, required []weather.Source) error {
	var missing []string
	for _, src := range required {
		if creds.KeyFor(src) == "" {
			missing = append(missing, string(src))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing api key for %s", weather.ErrCredentialsUnavailable, strings.Join(missing, ", "))
	}
	return nil
}
