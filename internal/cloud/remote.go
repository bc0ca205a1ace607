package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/i474232898/weather-consensus/internal/httpclient"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// RemoteClient calls a provider node over HTTP.
type RemoteClient struct {
	name    string
	baseURL string
	client  *httpclient.Client
}

// NewRemoteClient creates a client for the provider node at baseURL. Provider
// calls are not retried; the node already retries its own sources.
func NewRemoteClient(name, baseURL string, client *http.Client) *RemoteClient {
	return &RemoteClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: httpclient.New(client, "provider-"+name, httpclient.BackoffConfig{
			MaxRetries:      0,
			InitialInterval: 100 * time.Millisecond,
		}).ExpectServerErrors(isNoData),
	}
}

// isNoData reports a node's per-location "no data" answer, which says nothing
// about the node's health.
func isNoData(se *httpclient.ServerError) bool {
	return errorCode(se.Body) == CodeNoData
}

func errorCode(raw string) string {
	var body ErrorBody
	_ = json.Unmarshal([]byte(raw), &body)
	return body.Code
}

func (c *RemoteClient) Name() string {
	return c.name
}

func (c *RemoteClient) FetchLocation(ctx context.Context, loc weather.Location, opts weather.FetchOptions) (weather.LocationAggregate, error) {
	values := url.Values{}
	values.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	values.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	values.Set("id", loc.ID)
	values.Set("name", loc.Name)
	if opts.IncludeRaw {
		values.Set("raw", "true")
	}
	u := fmt.Sprintf("%s/api/v1/weather?%s", c.baseURL, values.Encode())

	resp, err := c.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(RequestIDHeader, requestID(ctx))
		return req, nil
	})
	if err != nil {
		return weather.LocationAggregate{}, c.mapError(err)
	}
	defer resp.Body.Close()

	var env LocationEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return weather.LocationAggregate{}, fmt.Errorf("provider %s: decode response: %w", c.name, err)
	}
	return env.Aggregate, nil
}

func (c *RemoteClient) FetchMany(ctx context.Context, locs []weather.Location, opts weather.FetchOptions) (weather.BatchResult, error) {
	body, err := json.Marshal(BatchRequest{Locations: locs, IncludeRaw: opts.IncludeRaw})
	if err != nil {
		return weather.BatchResult{}, err
	}
	u := c.baseURL + "/api/v1/weather/batch"

	resp, err := c.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(RequestIDHeader, requestID(ctx))
		return req, nil
	})
	if err != nil {
		return weather.BatchResult{}, c.mapError(err)
	}
	defer resp.Body.Close()

	var env BatchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return weather.BatchResult{}, fmt.Errorf("provider %s: decode response: %w", c.name, err)
	}
	return env.BatchResult, nil
}

// mapError restores the core sentinel errors from a node's error reply.
func (c *RemoteClient) mapError(err error) error {
	var raw string
	var se *httpclient.StatusError
	var srv *httpclient.ServerError
	switch {
	case errors.As(err, &srv):
		raw = srv.Body
	case errors.As(err, &se):
		raw = se.Body
	default:
		return fmt.Errorf("provider %s: %w", c.name, err)
	}

	var body ErrorBody
	_ = json.Unmarshal([]byte(raw), &body)
	switch body.Code {
	case CodeNoData:
		return fmt.Errorf("provider %s: %w: %s", c.name, weather.ErrNoDataAvailable, body.Message)
	case CodeCredentials:
		return fmt.Errorf("provider %s: %w: %s", c.name, weather.ErrCredentialsUnavailable, body.Message)
	default:
		return fmt.Errorf("provider %s: %w", c.name, err)
	}
}

func requestID(ctx context.Context) string {
	if id := RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
