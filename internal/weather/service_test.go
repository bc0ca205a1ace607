package weather

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	src   Source
	temp  float64
	delay time.Duration
	fail  func(lat, lon float64) error
}

func (f *fakeFetcher) Source() Source { return f.src }

func (f *fakeFetcher) Fetch(ctx context.Context, lat, lon float64, _ Credentials) (Reading, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Reading{}, NewFetchError(f.src, KindTimeout, ctx.Err())
		}
	}
	if f.fail != nil {
		if err := f.fail(lat, lon); err != nil {
			return Reading{}, err
		}
	}
	return reading(f.src, f.temp, string(f.src)), nil
}

type fakeSink struct {
	mu      sync.Mutex
	records []LocationAggregate
	err     error
}

func (s *fakeSink) StoreLocation(_ context.Context, _ string, agg LocationAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, agg)
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type staticCreds struct {
	err error
}

func (c staticCreds) GetCredentials(context.Context) (Credentials, error) {
	return Credentials{OpenWeatherMapKey: "a", WeatherAPIKey: "b"}, c.err
}

func threeFetchers() []SourceFetcher {
	return []SourceFetcher{
		&fakeFetcher{src: SourceOpenWeatherMap, temp: 22},
		&fakeFetcher{src: SourceWeatherAPI, temp: 24},
		&fakeFetcher{src: SourceOpenMeteo, temp: 23.5},
	}
}

func fixedClock() time.Time { return testNow }

func TestService_FetchLocation(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService("aws", threeFetchers(), staticCreds{}, sink, nil, WithClock(fixedClock))

	agg, err := svc.FetchLocation(context.Background(), paris)
	require.NoError(t, err)
	svc.Flush()

	assert.Equal(t, 23.2, *agg.Temperature)
	assert.Equal(t, 100, agg.Confidence)
	assert.Equal(t, []string{"openweathermap", "weatherapi", "openmeteo"}, agg.Descriptions)
	assert.Equal(t, 1, sink.count())
}

func TestService_FetchLocation_SourcesRunConcurrently(t *testing.T) {
	fetchers := []SourceFetcher{
		&fakeFetcher{src: SourceOpenWeatherMap, temp: 20, delay: 100 * time.Millisecond},
		&fakeFetcher{src: SourceWeatherAPI, temp: 20, delay: 100 * time.Millisecond},
		&fakeFetcher{src: SourceOpenMeteo, temp: 20, delay: 100 * time.Millisecond},
	}
	svc := NewService("aws", fetchers, staticCreds{}, nil, nil)

	start := time.Now()
	_, err := svc.FetchLocation(context.Background(), paris)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestService_FetchLocation_SlowSourceTimesOutAlone(t *testing.T) {
	fetchers := []SourceFetcher{
		&fakeFetcher{src: SourceOpenWeatherMap, temp: 20},
		&fakeFetcher{src: SourceWeatherAPI, temp: 22, delay: time.Second},
		&fakeFetcher{src: SourceOpenMeteo, temp: 24},
	}
	svc := NewService("aws", fetchers, staticCreds{}, nil, nil, WithSourceTimeout(50*time.Millisecond))

	agg, err := svc.FetchLocation(context.Background(), paris)
	require.NoError(t, err)

	assert.Equal(t, 67, agg.Confidence)
	assert.Equal(t, 22.0, *agg.Temperature)
	require.Len(t, agg.Failures, 1)
	assert.Equal(t, KindTimeout, agg.Failures[0].Kind)
}

func TestService_FetchLocation_AllSourcesFailed(t *testing.T) {
	boom := func(float64, float64) error { return NewFetchError(SourceOpenMeteo, KindNetwork, errors.New("down")) }
	fetchers := []SourceFetcher{
		&fakeFetcher{src: SourceOpenWeatherMap, fail: boom},
		&fakeFetcher{src: SourceWeatherAPI, fail: boom},
	}
	sink := &fakeSink{}
	svc := NewService("aws", fetchers, staticCreds{}, sink, nil)

	_, err := svc.FetchLocation(context.Background(), paris)
	svc.Flush()

	assert.ErrorIs(t, err, ErrNoDataAvailable)
	assert.Equal(t, 0, sink.count())
}

func TestService_FetchLocation_SinkFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{err: errors.New("table missing")}
	svc := NewService("aws", threeFetchers(), staticCreds{}, sink, nil)

	agg, err := svc.FetchLocation(context.Background(), paris)
	svc.Flush()

	require.NoError(t, err)
	assert.Equal(t, 100, agg.Confidence)
	assert.Equal(t, 1, sink.count())
}

func TestService_FetchLocation_CredentialsUnavailable(t *testing.T) {
	called := false
	fetchers := []SourceFetcher{
		&fakeFetcher{src: SourceOpenWeatherMap, fail: func(float64, float64) error { called = true; return nil }},
	}
	svc := NewService("aws", fetchers, staticCreds{err: errors.New("vault sealed")}, nil, nil)

	_, err := svc.FetchLocation(context.Background(), paris)
	assert.ErrorIs(t, err, ErrCredentialsUnavailable)
	assert.False(t, called)

	_, err = svc.FetchMany(context.Background(), []Location{paris})
	assert.ErrorIs(t, err, ErrCredentialsUnavailable)
}

func TestService_FetchMany_IsolatesFailures(t *testing.T) {
	// Every source fails for the third location only.
	badLat := 10.0
	failAt := func(lat, _ float64) error {
		if lat == badLat {
			return NewFetchError(SourceOpenMeteo, KindNotFound, errors.New("no data at this point"))
		}
		return nil
	}
	fetchers := []SourceFetcher{
		&fakeFetcher{src: SourceOpenWeatherMap, temp: 20, fail: failAt},
		&fakeFetcher{src: SourceWeatherAPI, temp: 21, fail: failAt},
		&fakeFetcher{src: SourceOpenMeteo, temp: 22, fail: failAt},
	}
	sink := &fakeSink{}
	svc := NewService("gcp", fetchers, staticCreds{}, sink, nil)

	locs := []Location{
		{ID: "a", Lat: 1, Lon: 1},
		{ID: "b", Lat: 2, Lon: 2},
		{ID: "c", Lat: badLat, Lon: 3},
		{ID: "d", Lat: 4, Lon: 4},
		{ID: "e", Lat: 5, Lon: 5},
	}
	res, err := svc.FetchMany(context.Background(), locs)
	require.NoError(t, err)
	svc.Flush()

	require.Len(t, res.Successes, 4)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "c", res.Failures[0].Location.ID)
	assert.Contains(t, res.Failures[0].Cause, ErrNoDataAvailable.Error())

	ids := make([]string, 0, len(res.Successes))
	for _, s := range res.Successes {
		ids = append(ids, s.LocationID)
	}
	assert.Equal(t, []string{"a", "b", "d", "e"}, ids)
	assert.Equal(t, 4, sink.count())
}

func TestService_NoFetchers(t *testing.T) {
	svc := NewService("empty", nil, nil, nil, nil)
	_, err := svc.FetchLocation(context.Background(), paris)
	assert.ErrorIs(t, err, ErrNoDataAvailable)
}
