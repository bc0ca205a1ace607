package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/i474232898/weather-consensus/internal/httpclient"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// OpenWeatherFetcher implements weather.SourceFetcher for OpenWeatherMap.
type OpenWeatherFetcher struct {
	baseURL string
	client  *httpclient.Client
}

func NewOpenWeatherFetcher(client *http.Client, opts ...Option) *OpenWeatherFetcher {
	o := buildOptions("https://api.openweathermap.org/data/2.5/weather", opts)
	return &OpenWeatherFetcher{
		baseURL: o.baseURL,
		client:  httpclient.New(client, string(weather.SourceOpenWeatherMap), o.backoff),
	}
}

func (p *OpenWeatherFetcher) Source() weather.Source {
	return weather.SourceOpenWeatherMap
}

func (p *OpenWeatherFetcher) Fetch(ctx context.Context, lat, lon float64, creds weather.Credentials) (weather.Reading, error) {
	src := p.Source()
	key := creds.KeyFor(src)
	if key == "" {
		return weather.Reading{}, missingKey(src)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", key)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", lat))
		values.Set("lon", fmt.Sprintf("%f", lon))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := p.client.Do(ctx, buildRequest)
	if err != nil {
		return weather.Reading{}, classify(src, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Dt   int64 `json:"dt"`
		Main *struct {
			Temp     *float64 `json:"temp"`
			Humidity *float64 `json:"humidity"`
			Pressure *float64 `json:"pressure"` // hPa
		} `json:"main"`
		Wind struct {
			Speed *float64 `json:"speed"` // m/s with units=metric
			Deg   *float64 `json:"deg"`
		} `json:"wind"`
		Clouds struct {
			All *float64 `json:"all"`
		} `json:"clouds"`
		Visibility *float64 `json:"visibility"` // meters
		Weather    []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}

	if err := decode(src, resp.Body, &payload); err != nil {
		return weather.Reading{}, err
	}
	if payload.Main == nil {
		return weather.Reading{}, weather.NewFetchError(src, weather.KindMalformed, fmt.Errorf("response has no main block"))
	}

	r := weather.Reading{
		Source:     src,
		ObservedAt: unixTime(payload.Dt),
	}
	r.Set(weather.MetricTemperature, payload.Main.Temp)
	r.Set(weather.MetricHumidity, payload.Main.Humidity)
	r.Set(weather.MetricPressure, payload.Main.Pressure)
	r.Set(weather.MetricWindSpeed, payload.Wind.Speed)
	r.Set(weather.MetricWindDirection, payload.Wind.Deg)
	r.Set(weather.MetricCloudiness, payload.Clouds.All)
	r.Set(weather.MetricVisibility, payload.Visibility)
	if len(payload.Weather) > 0 {
		r.Description = payload.Weather[0].Description
	}

	if err := requireAnyMetric(src, r); err != nil {
		return weather.Reading{}, err
	}
	return r, nil
}

// unixTime returns the zero time for a missing or non-positive timestamp.
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
