package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-consensus/internal/cloud"
	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/store"
	"github.com/i474232898/weather-consensus/internal/weather"
)

type fakeProvider struct {
	err       error
	gotLoc    weather.Location
	gotOpts   weather.FetchOptions
	gotLocs   []weather.Location
	requestID string
}

func (p *fakeProvider) Name() string { return "aws" }

func (p *fakeProvider) FetchLocation(ctx context.Context, loc weather.Location, opts weather.FetchOptions) (weather.LocationAggregate, error) {
	p.gotLoc, p.gotOpts = loc, opts
	p.requestID = cloud.RequestID(ctx)
	if p.err != nil {
		return weather.LocationAggregate{}, p.err
	}
	return weather.LocationAggregate{
		LocationID: loc.ID,
		Metrics:    weather.Metrics{Temperature: weather.Float(21.3)},
		Confidence: 100,
	}, nil
}

func (p *fakeProvider) FetchMany(_ context.Context, locs []weather.Location, _ weather.FetchOptions) (weather.BatchResult, error) {
	p.gotLocs = locs
	res := weather.BatchResult{}
	for _, l := range locs {
		res.Successes = append(res.Successes, weather.LocationAggregate{LocationID: l.ID})
	}
	return res, p.err
}

type fakeAggregator struct {
	err error
	got crosscloud.Request
}

func (a *fakeAggregator) Aggregate(_ context.Context, req crosscloud.Request) (crosscloud.Response, error) {
	a.got = req
	if a.err != nil {
		return crosscloud.Response{}, a.err
	}
	return crosscloud.Response{
		CrossCloudAggregate: crosscloud.CrossCloudAggregate{ID: "agg-1", Providers: []string{"aws"}},
		Name:                req.Name,
	}, nil
}

type mapGeocoder map[string]weather.Location

func (g mapGeocoder) Resolve(_ context.Context, name string) (weather.Location, error) {
	if l, ok := g[name]; ok {
		return l, nil
	}
	return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, name)
}

var geo = mapGeocoder{"Paris": {ID: "paris", Name: "Paris", Lat: 48.85, Lon: 2.35}}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body cloud.ErrorBody
	require.NoError(t, json.Unmarshal(data, &body))
	assert.True(t, body.Error)
	return body.Code
}

func newProviderApp(p *fakeProvider, latest LocationReader) *fiber.App {
	app := NewApp("provider-test", 5*time.Second, nil)
	RegisterProviderRoutes(app, p, geo, latest)
	return app
}

func TestHealth(t *testing.T) {
	app := NewApp("weather-consensus", time.Second, nil)
	resp, data := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","service":"weather-consensus"}`, string(data))
}

func TestProviderWeather_ByCoordinates(t *testing.T) {
	p := &fakeProvider{}
	app := newProviderApp(p, nil)

	resp, data := do(t, app, http.MethodGet, "/api/v1/weather?lat=48.8566&lon=2.3522&id=paris&raw=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env cloud.LocationEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "aws", env.Provider)
	assert.Equal(t, "paris", env.Aggregate.LocationID)
	assert.Equal(t, 21.3, *env.Aggregate.Temperature)

	assert.Equal(t, weather.Location{ID: "paris", Name: "paris", Lat: 48.8566, Lon: 2.3522}, p.gotLoc)
	assert.True(t, p.gotOpts.IncludeRaw)
	assert.NotEmpty(t, p.requestID)
	assert.Equal(t, p.requestID, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestProviderWeather_ForwardsIncomingRequestID(t *testing.T) {
	p := &fakeProvider{}
	app := newProviderApp(p, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/weather?lat=1&lon=2", nil)
	req.Header.Set(cloud.RequestIDHeader, "upstream-id")
	_, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "upstream-id", p.requestID)
}

func TestProviderWeather_ByName(t *testing.T) {
	p := &fakeProvider{}
	app := newProviderApp(p, nil)

	resp, _ := do(t, app, http.MethodGet, "/api/v1/weather?q=Paris", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paris", p.gotLoc.ID)

	resp, data := do(t, app, http.MethodGet, "/api/v1/weather?q=Atlantis", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, cloud.CodeLocationNotFound, errorCode(t, data))
}

func TestProviderWeather_Validation(t *testing.T) {
	app := newProviderApp(&fakeProvider{}, nil)

	for _, target := range []string{
		"/api/v1/weather",
		"/api/v1/weather?lat=48.8",
		"/api/v1/weather?lat=91&lon=0",
		"/api/v1/weather?lat=0&lon=181",
		"/api/v1/weather?lat=abc&lon=0",
	} {
		resp, data := do(t, app, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		assert.Equal(t, cloud.CodeInvalidRequest, errorCode(t, data), target)
	}
}

func TestProviderWeather_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: paris", weather.ErrNoDataAvailable), http.StatusServiceUnavailable, cloud.CodeNoData},
		{fmt.Errorf("%w: vault sealed", weather.ErrCredentialsUnavailable), http.StatusInternalServerError, cloud.CodeCredentials},
		{fmt.Errorf("boom"), http.StatusInternalServerError, cloud.CodeInternal},
	}

	for _, tt := range tests {
		app := newProviderApp(&fakeProvider{err: tt.err}, nil)
		resp, data := do(t, app, http.MethodGet, "/api/v1/weather?lat=1&lon=1", "")
		assert.Equal(t, tt.status, resp.StatusCode, tt.code)
		assert.Equal(t, tt.code, errorCode(t, data))
	}
}

func TestProviderWeather_InternalErrorIsNotLeaked(t *testing.T) {
	app := newProviderApp(&fakeProvider{err: fmt.Errorf("dial tcp 10.0.0.5:5432")}, nil)
	_, data := do(t, app, http.MethodGet, "/api/v1/weather?lat=1&lon=1", "")
	assert.NotContains(t, string(data), "10.0.0.5")
}

func TestProviderBatch(t *testing.T) {
	p := &fakeProvider{}
	app := newProviderApp(p, nil)

	resp, data := do(t, app, http.MethodPost, "/api/v1/weather/batch",
		`{"locations":[{"id":"paris","lat":48.85,"lon":2.35},{"id":"berlin","lat":52.52,"lon":13.4}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env cloud.BatchEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "aws", env.Provider)
	assert.Len(t, env.Successes, 2)
	assert.Len(t, p.gotLocs, 2)
}

func TestProviderBatch_Validation(t *testing.T) {
	app := newProviderApp(&fakeProvider{}, nil)

	for _, body := range []string{
		`{"locations":[]}`,
		`{"locations":[{"lat":1,"lon":1}]}`,
		`{"locations":[{"id":"x","lat":95,"lon":1}]}`,
		`not json`,
	} {
		resp, _ := do(t, app, http.MethodPost, "/api/v1/weather/batch", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestProviderLatest(t *testing.T) {
	mem := store.NewMemoryStore(store.Retention{})
	app := newProviderApp(&fakeProvider{}, mem)

	resp, data := do(t, app, http.MethodGet, "/api/v1/weather/latest?id=paris", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, cloud.CodeNotFound, errorCode(t, data))

	require.NoError(t, mem.StoreLocation(context.Background(), "aws", weather.LocationAggregate{LocationID: "paris", Confidence: 67}))
	resp, data = do(t, app, http.MethodGet, "/api/v1/weather/latest?id=paris", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var agg weather.LocationAggregate
	require.NoError(t, json.Unmarshal(data, &agg))
	assert.Equal(t, 67, agg.Confidence)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/weather/latest", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func newAggregateApp(a *fakeAggregator, latest AggregateReader) *fiber.App {
	app := NewApp("aggregate-test", 5*time.Second, nil)
	RegisterAggregateRoutes(app, a, latest)
	return app
}

func TestAggregate_Single(t *testing.T) {
	a := &fakeAggregator{}
	app := newAggregateApp(a, nil)

	resp, data := do(t, app, http.MethodGet, "/api/v1/aggregate?q=Paris&raw=true", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out crosscloud.Response
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "agg-1", out.ID)

	require.Len(t, a.got.Locations, 1)
	assert.Equal(t, weather.ByName{Name: "Paris"}, a.got.Locations[0])
	assert.True(t, a.got.IncludeRaw)

	_, _ = do(t, app, http.MethodGet, "/api/v1/aggregate?lat=10&lon=20", "")
	assert.Equal(t, weather.ByCoordinates{Lat: 10, Lon: 20}, a.got.Locations[0])
}

func TestAggregate_Batch(t *testing.T) {
	a := &fakeAggregator{}
	app := newAggregateApp(a, nil)

	resp, data := do(t, app, http.MethodPost, "/api/v1/aggregate/batch",
		`{"name":"europe","includeRaw":true,"locations":[{"name":"Paris"},{"id":"berlin","lat":52.52,"lon":13.4}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out crosscloud.Response
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "europe", out.Name)

	assert.Equal(t, []weather.LocationRef{
		weather.ByName{Name: "Paris"},
		weather.ByCoordinates{Lat: 52.52, Lon: 13.4, ID: "berlin"},
	}, a.got.Locations)
	assert.True(t, a.got.IncludeRaw)
}

func TestAggregate_BatchValidation(t *testing.T) {
	app := newAggregateApp(&fakeAggregator{}, nil)

	for _, body := range []string{
		`{"locations":[]}`,
		`{"locations":[{}]}`,
		`{"locations":[{"lat":1}]}`,
		`{"locations":[{"lat":-91,"lon":0}]}`,
	} {
		resp, data := do(t, app, http.MethodPost, "/api/v1/aggregate/batch", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, cloud.CodeInvalidRequest, errorCode(t, data), body)
	}
}

func TestAggregate_NoProviderData(t *testing.T) {
	app := newAggregateApp(&fakeAggregator{err: fmt.Errorf("%w: aws: timeout", crosscloud.ErrNoProviderDataAvailable)}, nil)

	resp, data := do(t, app, http.MethodGet, "/api/v1/aggregate?lat=1&lon=1", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, cloud.CodeNoProviderData, errorCode(t, data))
}

func TestAggregate_Latest(t *testing.T) {
	mem := store.NewMemoryStore(store.Retention{})
	app := newAggregateApp(&fakeAggregator{}, mem)

	resp, _ := do(t, app, http.MethodGet, "/api/v1/aggregate/latest", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, mem.StoreAggregate(context.Background(), crosscloud.CrossCloudAggregate{ID: "a7"}))
	resp, data := do(t, app, http.MethodGet, "/api/v1/aggregate/latest", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var agg crosscloud.CrossCloudAggregate
	require.NoError(t, json.Unmarshal(data, &agg))
	assert.Equal(t, "a7", agg.ID)
}
