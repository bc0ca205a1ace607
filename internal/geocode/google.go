package geocode

import (
	"context"
	"fmt"
	"strings"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-consensus/internal/common"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// Google resolves names with the Google Geocoding API.
type Google struct {
	lookup func(geocoder.Address) (geocoder.Location, error)
}

// NewGoogle configures the geocoding client with apiKey. The underlying
// client keeps the key globally, so only one key per process is supported.
func NewGoogle(apiKey string) *Google {
	geocoder.ApiKey = apiKey
	return &Google{lookup: geocoder.Geocoding}
}

// addressOf reads "City" or "City, Country"; anything between the first and
// last part is treated as the state.
func addressOf(name string) geocoder.Address {
	parts := strings.Split(name, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	addr := geocoder.Address{City: parts[0]}
	if len(parts) > 1 {
		addr.Country = parts[len(parts)-1]
	}
	if len(parts) > 2 {
		addr.State = strings.Join(parts[1:len(parts)-1], ", ")
	}
	return addr
}

func (g *Google) Resolve(ctx context.Context, name string) (weather.Location, error) {
	type result struct {
		loc geocoder.Location
		err error
	}
	done := make(chan result, 1)
	go func() {
		loc, err := g.lookup(addressOf(name))
		done <- result{loc, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return weather.Location{}, fmt.Errorf("geocode %q: %w", name, ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		if common.HasAny(res.err.Error(), "ZERO_RESULTS", "no results", "not found") {
			return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, name)
		}
		return weather.Location{}, fmt.Errorf("geocode %q: %w", name, res.err)
	}
	if res.loc.Latitude == 0 && res.loc.Longitude == 0 {
		return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, name)
	}

	return weather.Location{
		ID:   Slug(name),
		Name: strings.TrimSpace(name),
		Lat:  res.loc.Latitude,
		Lon:  res.loc.Longitude,
	}, nil
}
