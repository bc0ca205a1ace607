package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/i474232898/weather-consensus/internal/httpclient"
	"github.com/i474232898/weather-consensus/internal/weather"
)

const (
	openMeteoFreeURL       = "https://api.open-meteo.com/v1/forecast"
	openMeteoCommercialURL = "https://customer-api.open-meteo.com/v1/forecast"
)

// OpenMeteoFetcher implements weather.SourceFetcher for Open-Meteo. The free
// endpoint needs no key; with a key the commercial endpoint is used instead.
type OpenMeteoFetcher struct {
	baseURL    string
	overridden bool
	client     *httpclient.Client
}

func NewOpenMeteoFetcher(client *http.Client, opts ...Option) *OpenMeteoFetcher {
	o := buildOptions("", opts)
	f := &OpenMeteoFetcher{
		baseURL:    o.baseURL,
		overridden: o.baseURL != "",
		client:     httpclient.New(client, string(weather.SourceOpenMeteo), o.backoff),
	}
	if !f.overridden {
		f.baseURL = openMeteoFreeURL
	}
	return f
}

func (p *OpenMeteoFetcher) Source() weather.Source {
	return weather.SourceOpenMeteo
}

func (p *OpenMeteoFetcher) Fetch(ctx context.Context, lat, lon float64, creds weather.Credentials) (weather.Reading, error) {
	src := p.Source()
	key := creds.KeyFor(src)

	base := p.baseURL
	if key != "" && !p.overridden {
		base = openMeteoCommercialURL
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("current", "temperature_2m,relative_humidity_2m,pressure_msl,wind_speed_10m,wind_direction_10m,cloud_cover,visibility,uv_index,weather_code")
		values.Set("timeformat", "unixtime")
		values.Set("timezone", "UTC")
		if key != "" {
			values.Set("apikey", key)
		}

		u := fmt.Sprintf("%s?%s", base, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := p.client.Do(ctx, buildRequest)
	if err != nil {
		return weather.Reading{}, classify(src, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Current *struct {
			Time          int64    `json:"time"`
			Temperature   *float64 `json:"temperature_2m"`
			Humidity      *float64 `json:"relative_humidity_2m"`
			Pressure      *float64 `json:"pressure_msl"`   // hPa, sea level
			WindSpeed     *float64 `json:"wind_speed_10m"` // km/h by default
			WindDirection *float64 `json:"wind_direction_10m"`
			CloudCover    *float64 `json:"cloud_cover"`
			Visibility    *float64 `json:"visibility"` // meters
			UVIndex       *float64 `json:"uv_index"`
			WeatherCode   *int     `json:"weather_code"`
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
		Source:     src,
		ObservedAt: unixTime(c.Time),
	}
	r.Set(weather.MetricTemperature, c.Temperature)
	r.Set(weather.MetricHumidity, c.Humidity)
	r.Set(weather.MetricPressure, c.Pressure)
	r.Set(weather.MetricWindDirection, c.WindDirection)
	r.Set(weather.MetricCloudiness, c.CloudCover)
	r.Set(weather.MetricVisibility, c.Visibility)
	r.Set(weather.MetricUVIndex, c.UVIndex)
	if c.WindSpeed != nil {
		r.Set(weather.MetricWindSpeed, weather.Float(kphToMS(*c.WindSpeed)))
	}
	if c.WeatherCode != nil {
		r.Description = describeWMOCode(*c.WeatherCode)
	}

	if err := requireAnyMetric(src, r); err != nil {
		return weather.Reading{}, err
	}
	return r, nil
}

// describeWMOCode maps WMO weather interpretation codes to text.
func describeWMOCode(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code == 1:
		return "Mainly clear"
	case code == 2:
		return "Partly cloudy"
	case code == 3:
		return "Overcast"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code == 85 || code == 86:
		return "Snow showers"
	case code >= 95:
		return "Thunderstorm"
	default:
		return ""
	}
}
