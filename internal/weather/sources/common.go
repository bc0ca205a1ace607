// Package sources implements the SourceFetchers for the external weather APIs.
// Each fetcher normalizes its reply into canonical units (°C, %, hPa, m/s,
// meters) and reports every failure as a *weather.FetchError.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/i474232898/weather-consensus/internal/common"
	"github.com/i474232898/weather-consensus/internal/httpclient"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// Option configures a fetcher.
type Option func(*options)

type options struct {
	baseURL string
	backoff httpclient.BackoffConfig
}

// WithBaseURL points the fetcher at a different endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = u
	}
}

// WithBackoff overrides the retry policy.
func WithBackoff(b httpclient.BackoffConfig) Option {
	return func(o *options) {
		o.backoff = b
	}
}

func buildOptions(defaultURL string, opts []Option) options {
	o := options{baseURL: defaultURL, backoff: httpclient.DefaultBackoff()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// kphToMS converts km/h to m/s.
func kphToMS(kph float64) float64 {
	return kph / 3.6
}

// decode reads a JSON reply into v, mapping decode errors to malformed.
func decode(src weather.Source, body io.Reader, v any) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return weather.NewFetchError(src, weather.KindMalformed, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// requireAnyMetric rejects replies that carry no usable number at all.
func requireAnyMetric(src weather.Source, r weather.Reading) error {
	for _, m := range weather.AllMetrics {
		if r.Get(m) != nil {
			return nil
		}
	}
	return weather.NewFetchError(src, weather.KindMalformed, errors.New("response contains no weather values"))
}

// classify maps transport and status failures onto a FetchError kind.
func classify(src weather.Source, err error) error {
	var fe *weather.FetchError
	if errors.As(err, &fe) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return weather.NewFetchError(src, weather.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return weather.NewFetchError(src, weather.KindTimeout, err)
	}

	var se *httpclient.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return weather.NewFetchError(src, weather.KindAuth, err)
		case se.StatusCode == http.StatusNotFound:
			return weather.NewFetchError(src, weather.KindNotFound, err)
		// WeatherAPI answers 400 with {"error":{"code":1006,"message":"No matching
		// location found."}} for unknown places and code 2006 "API key is invalid."
		// for bad keys; OpenWeatherMap's 404 reads "city not found".
		case common.HasAny(se.Body, "not found", "no matching location"):
			return weather.NewFetchError(src, weather.KindNotFound, err)
		case common.HasAny(se.Body, "api key", "apikey", "invalid key"):
			return weather.NewFetchError(src, weather.KindAuth, err)
		default:
			return weather.NewFetchError(src, weather.KindMalformed, err)
		}
	}

	if errors.Is(err, httpclient.ErrRateLimited) ||
		errors.Is(err, httpclient.ErrServerError) ||
		errors.Is(err, httpclient.ErrCircuitOpen) {
		return weather.NewFetchError(src, weather.KindUpstream, err)
	}

	return weather.NewFetchError(src, weather.KindNetwork, err)
}

func missingKey(src weather.Source) error {
	return weather.NewFetchError(src, weather.KindAuth, fmt.Errorf("%s api key is not configured", src))
}
