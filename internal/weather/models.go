package weather

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source identifies one external weather data API.
type Source string

const (
	SourceOpenWeatherMap Source = "openweathermap"
	SourceWeatherAPI     Source = "weatherapi"
	SourceOpenMeteo      Source = "openmeteo"
)

// KnownSources lists every source in attempt order (primary, secondary, tertiary).
var KnownSources = []Source{SourceOpenWeatherMap, SourceWeatherAPI, SourceOpenMeteo}

// ParseSource maps a configured name onto a known Source.
func ParseSource(name string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range KnownSources {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown weather source %q", name)
}

// Location is a place resolved to coordinates.
type Location struct {
	ID   string  `json:"id" validate:"required"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat" validate:"latitude"`
	Lon  float64 `json:"lon" validate:"longitude"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return l.ID
}

// Metrics holds one value per weather metric. A nil field means the metric
// is absent and must not take part in averaging.
type Metrics struct {
	Temperature   *float64 `json:"temperature,omitempty"`   // °C
	Humidity      *float64 `json:"humidity,omitempty"`      // %
	Pressure      *float64 `json:"pressure,omitempty"`      // hPa
	WindSpeed     *float64 `json:"windSpeed,omitempty"`     // m/s
	WindDirection *float64 `json:"windDirection,omitempty"` // degrees
	Visibility    *float64 `json:"visibility,omitempty"`    // meters
	Cloudiness    *float64 `json:"cloudiness,omitempty"`    // %
	UVIndex       *float64 `json:"uvIndex,omitempty"`
}

// Reading is one source's normalized observation for one location.
type Reading struct {
	Source Source `json:"source"`
	Metrics
	Description string    `json:"description,omitempty"`
	ObservedAt  time.Time `json:"observedAt"`
}

// SourceFailure records why one attempted source contributed nothing.
type SourceFailure struct {
	Source Source    `json:"source"`
	Kind   ErrorKind `json:"kind"`
	Cause  string    `json:"cause"`
}

// LocationAggregate is the merged view of Readings for one location from one
// provider's sources.
type LocationAggregate struct {
	LocationID   string  `json:"locationId"`
	LocationName string  `json:"locationName"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Metrics
	Descriptions []string        `json:"descriptions"`
	Confidence   int             `json:"confidence"`
	Sources      []Source        `json:"sources"`
	Failures     []SourceFailure `json:"failures,omitempty"`
	ObservedAt   time.Time       `json:"observedAt"` // newest contributing observation, zero if none
	AggregatedAt time.Time       `json:"aggregatedAt"`

	// Raw holds the normalized per-source readings; callers strip it unless asked.
	Raw []Reading `json:"raw,omitempty"`
}

// WithoutRaw returns a copy of the aggregate with the per-source readings removed.
func (a LocationAggregate) WithoutRaw() LocationAggregate {
	a.Raw = nil
	return a
}

// Location returns the resolved location this aggregate describes.
func (a LocationAggregate) Location() Location {
	return Location{ID: a.LocationID, Name: a.LocationName, Lat: a.Latitude, Lon: a.Longitude}
}

// LocationRef names a location either by free text or by coordinates.
// It is resolved to a Location once, at the boundary, before entering the core.
type LocationRef interface {
	isLocationRef()
}

// ByName refers to a location by free text, e.g. "Paris" or "Paris,FR".
type ByName struct {
	Name string
}

// ByCoordinates refers to a location by coordinates. ID and Name are optional.
type ByCoordinates struct {
	Lat  float64
	Lon  float64
	ID   string
	Name string
}

func (ByName) isLocationRef()        {}
func (ByCoordinates) isLocationRef() {}

// Location converts the coordinates into a Location, deriving an ID and name
// from the coordinates when none were given.
func (c ByCoordinates) Location() Location {
	id := c.ID
	if id == "" {
		id = strconv.FormatFloat(c.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 4, 64)
	}
	name := c.Name
	if name == "" {
		name = id
	}
	return Location{ID: id, Name: name, Lat: c.Lat, Lon: c.Lon}
}

// LocationFailure reports a location whose pipeline produced no aggregate.
type LocationFailure struct {
	Location Location `json:"location"`
	Cause    string   `json:"cause"`
}

// BatchResult is the outcome of a multi-location fetch. Both slices follow the
// requested location order.
type BatchResult struct {
	Successes []LocationAggregate `json:"successes"`
	Failures  []LocationFailure   `json:"failures"`
}

// Credentials is the read-only key bundle for the keyed sources.
type Credentials struct {
	OpenWeatherMapKey string
	WeatherAPIKey     string
	OpenMeteoKey      string // optional; only the commercial Open-Meteo endpoint uses it
}

// KeyFor returns the key configured for src.
func (c Credentials) KeyFor(src Source) string {
	switch src {
	case SourceOpenWeatherMap:
		return c.OpenWeatherMapKey
	case SourceWeatherAPI:
		return c.WeatherAPIKey
	case SourceOpenMeteo:
		return c.OpenMeteoKey
	default:
		return ""
	}
}

// FetchOptions tunes what a provider returns.
type FetchOptions struct {
	// IncludeRaw keeps the normalized per-source readings in each aggregate.
	IncludeRaw bool
}
