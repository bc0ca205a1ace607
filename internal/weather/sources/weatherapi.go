package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/weather-consensus/internal/httpclient"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// WeatherAPIFetcher implements weather.SourceFetcher for WeatherAPI.com.
type WeatherAPIFetcher struct {
	baseURL string
	client  *httpclient.Client
}

func NewWeatherAPIFetcher(client *http.Client, opts ...Option) *WeatherAPIFetcher {
	o := buildOptions("https://api.weatherapi.com/v1/current.json", opts)
	return &WeatherAPIFetcher{
		baseURL: o.baseURL,
		client:  httpclient.New(client, string(weather.SourceWeatherAPI), o.backoff),
	}
}

func (p *WeatherAPIFetcher) Source() weather.Source {
	return weather.SourceWeatherAPI
}

func (p *WeatherAPIFetcher) Fetch(ctx context.Context, lat, lon float64, creds weather.Credentials) (weather.Reading, error) {
	src := p.Source()
	key := creds.KeyFor(src)
	if key == "" {
		return weather.Reading{}, missingKey(src)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("key", key)
		// WeatherAPI uses "q" for location; it accepts "lat,lon".
		values.Set("q", fmt.Sprintf("%f,%f", lat, lon))
		values.Set("aqi", "no")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := p.client.Do(ctx, buildRequest)
	if err != nil {
		return weather.Reading{}, classify(src, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Current *struct {
			LastUpdatedEpoch int64    `json:"last_updated_epoch"`
			TempC            *float64 `json:"temp_c"`
			Humidity         *float64 `json:"humidity"`
			WindKph          *float64 `json:"wind_kph"`
			WindDegree       *float64 `json:"wind_degree"`
			PressureMb       *float64 `json:"pressure_mb"` // 1 mb == 1 hPa
			Cloud            *float64 `json:"cloud"`
			VisKm            *float64 `json:"vis_km"`
			UV               *float64 `json:"uv"`
			Condition        struct {
				Text string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}

	if err := decode(src, resp.Body, &payload); err != nil {
		return weather.Reading{}, err
	}
	if payload.Current == nil {
		return weather.Reading{}, weather.NewFetchError(src, weather.KindMalformed, fmt.Errorf("response has no current block"))
	}
	c := payload.Current

	r := weather.Reading{
		Source:      src,
		Description: c.Condition.Text,
		ObservedAt:  unixTime(c.LastUpdatedEpoch),
	}
	r.Set(weather.MetricTemperature, c.TempC)
	r.Set(weather.MetricHumidity, c.Humidity)
	r.Set(weather.MetricPressure, c.PressureMb)
	r.Set(weather.MetricWindDirection, c.WindDegree)
	r.Set(weather.MetricCloudiness, c.Cloud)
	r.Set(weather.MetricUVIndex, c.UV)
	if c.WindKph != nil {
		r.Set(weather.MetricWindSpeed, weather.Float(kphToMS(*c.WindKph)))
	}
	if c.VisKm != nil {
		r.Set(weather.MetricVisibility, weather.Float(*c.VisKm*1000))
	}

	if err := requireAnyMetric(src, r); err != nil {
		return weather.Reading{}, err
	}
	return r, nil
}
