package geocode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-consensus/internal/weather"
)

func TestSlug(t *testing.T) {
	assert.Equal(t, "new-york", Slug("New York"))
	assert.Equal(t, "paris-france", Slug(" Paris, France "))
}

func TestParseStatic(t *testing.T) {
	s, err := ParseStatic([]string{"Paris=48.8566/2.3522", " New York = 40.7128 / -74.006 ", ""})
	require.NoError(t, err)

	loc, err := s.Resolve(context.Background(), "new york")
	require.NoError(t, err)
	assert.Equal(t, weather.Location{ID: "new-york", Name: "New York", Lat: 40.7128, Lon: -74.006}, loc)

	_, err = s.Resolve(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)
}

func TestParseStatic_Invalid(t *testing.T) {
	for _, entry := range []string{"Paris", "Paris=48.8", "=1/2", "Paris=91/0", "Paris=0/181", "Paris=a/b"} {
		_, err := ParseStatic([]string{entry})
		assert.Error(t, err, entry)
	}
}

type stubGeocoder struct {
	loc weather.Location
	err error
}

func (s stubGeocoder) Resolve(context.Context, string) (weather.Location, error) {
	return s.loc, s.err
}

func TestChain(t *testing.T) {
	notFound := stubGeocoder{err: weather.ErrLocationNotFound}
	broken := stubGeocoder{err: errors.New("quota exceeded")}
	paris := stubGeocoder{loc: weather.Location{ID: "paris"}}

	loc, err := Chain{notFound, paris}.Resolve(context.Background(), "Paris")
	require.NoError(t, err)
	assert.Equal(t, "paris", loc.ID)

	_, err = Chain{notFound, notFound}.Resolve(context.Background(), "Paris")
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)

	_, err = Chain{broken, notFound}.Resolve(context.Background(), "Paris")
	assert.ErrorContains(t, err, "quota exceeded")

	_, err = Chain{}.Resolve(context.Background(), "Paris")
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)
}

func TestGoogle_Resolve(t *testing.T) {
	var got geocoder.Address
	g := &Google{lookup: func(a geocoder.Address) (geocoder.Location, error) {
		got = a
		return geocoder.Location{Latitude: 45.4642, Longitude: 9.19}, nil
	}}

	loc, err := g.Resolve(context.Background(), "Milan, Lombardy, Italy")
	require.NoError(t, err)
	assert.Equal(t, weather.Location{ID: "milan-lombardy-italy", Name: "Milan, Lombardy, Italy", Lat: 45.4642, Lon: 9.19}, loc)
	assert.Equal(t, "Milan", got.City)
	assert.Equal(t, "Lombardy", got.State)
	assert.Equal(t, "Italy", got.Country)
}

func TestGoogle_ZeroResults(t *testing.T) {
	g := &Google{lookup: func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	}}
	_, err := g.Resolve(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)
}

func TestGoogle_Error(t *testing.T) {
	g := &Google{lookup: func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("REQUEST_DENIED")
	}}
	_, err := g.Resolve(context.Background(), "Paris")
	require.Error(t, err)
	assert.NotErrorIs(t, err, weather.ErrLocationNotFound)
}

func TestGoogle_RespectsContext(t *testing.T) {
	g := &Google{lookup: func(geocoder.Address) (geocoder.Location, error) {
		time.Sleep(time.Second)
		return geocoder.Location{Latitude: 1, Longitude: 1}, nil
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Resolve(ctx, "Paris")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew(t *testing.T) {
	g, err := New(nil, "")
	require.NoError(t, err)
	assert.Nil(t, g)

	g, err = New([]string{"Paris=48.8566/2.3522"}, "")
	require.NoError(t, err)
	loc, err := g.Resolve(context.Background(), "PARIS")
	require.NoError(t, err)
	assert.Equal(t, "paris", loc.ID)

	_, err = New([]string{"Paris"}, "")
	assert.Error(t, err)
}
