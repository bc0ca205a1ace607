package crosscloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-consensus/internal/common"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// DefaultProviderTimeout bounds a single provider call.
const DefaultProviderTimeout = 30 * time.Second

// ProviderClient calls one provider's weather endpoint, local or remote, and
// returns its already-aggregated readings.
type ProviderClient interface {
	Name() string
	FetchLocation(ctx context.Context, loc weather.Location, opts weather.FetchOptions) (weather.LocationAggregate, error)
	FetchMany(ctx context.Context, locs []weather.Location, opts weather.FetchOptions) (weather.BatchResult, error)
}

// Sink is the store-and-forget contract for finished cross-cloud aggregates.
type Sink interface {
	StoreAggregate(ctx context.Context, agg CrossCloudAggregate) error
}

// Request asks for a consensus reading of one or more locations.
type Request struct {
	Name       string
	Locations  []weather.LocationRef
	IncludeRaw bool
}

// ProviderReport carries per-provider metadata alongside the aggregate.
type ProviderReport struct {
	Provider  string                      `json:"provider"`
	LatencyMs int64                       `json:"latencyMs"`
	Healthy   bool                        `json:"healthy"`
	Error     string                      `json:"error,omitempty"`
	Failures  []weather.LocationFailure   `json:"failures,omitempty"`
	Raw       []weather.LocationAggregate `json:"raw,omitempty"`
}

// Response is the literal contract returned to callers.
type Response struct {
	CrossCloudAggregate
	Name            string           `json:"name,omitempty"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
	ProviderReports []ProviderReport `json:"providerReports"`
}

// Service fans a request out to every provider, waits for all of them to
// settle, aggregates and stores the result.
type Service struct {
	clients         []ProviderClient
	geocoder        weather.Geocoder
	sink            Sink
	writer          *common.Detached
	providerTimeout time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithProviderTimeout overrides the per-provider call timeout.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// WithClock overrides the clock used for timestamps and freshness.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithWriter overrides the detached writer used for sink writes.
func WithWriter(w *common.Detached) Option {
	return func(s *Service) {
		s.writer = w
	}
}

// NewService creates a cross-cloud Service. Clients are queried in the given
// order, which is also the order of providers in the output. sink may be nil.
func NewService(clients []ProviderClient, geocoder weather.Geocoder, sink Sink, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		clients:         clients,
		geocoder:        geocoder,
		sink:            sink,
		providerTimeout: DefaultProviderTimeout,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = common.NewDetached(0, logger)
	}
	return s
}

// Aggregate resolves the requested locations, queries every provider and
// merges their answers. It fails with ErrNoProviderDataAvailable when no
// provider contributed; it never substitutes placeholder values.
func (s *Service) Aggregate(ctx context.Context, req Request) (Response, error) {
	start := s.now()

	if len(req.Locations) == 0 {
		return Response{}, errors.New("at least one location is required")
	}
	if len(s.clients) == 0 {
		return Response{}, fmt.Errorf("%w: no providers configured", ErrNoProviderDataAvailable)
	}

	locs, err := weather.ResolveLocations(ctx, req.Locations, s.geocoder)
	if err != nil {
		return Response{}, err
	}

	opts := weather.FetchOptions{IncludeRaw: req.IncludeRaw}
	results := s.fanOut(ctx, locs, opts)

	agg, err := Aggregate(results, s.now())
	if err != nil {
		s.logger.Error("every provider failed", "locations", len(locs), "error", err)
		return Response{}, err
	}
	agg.ID = ulid.Make().String()

	if s.sink != nil {
		stored := agg
		s.writer.Go("store_aggregate", func(ctx context.Context) error {
			return s.sink.StoreAggregate(ctx, stored)
		}, "aggregate_id", agg.ID)
	}

	resp := Response{
		CrossCloudAggregate: agg,
		Name:                req.Name,
		ExecutionTimeMs:     s.now().Sub(start).Milliseconds(),
		ProviderReports:     reports(results, req.IncludeRaw),
	}

	s.logger.Info("cross-cloud aggregate built",
		"aggregate_id", agg.ID,
		"providers", len(agg.Providers),
		"failed_providers", len(agg.FailedProviders),
		"locations", len(agg.Locations),
		"reliability", agg.Reliability.Overall,
		"execution_ms", resp.ExecutionTimeMs,
	)
	return resp, nil
}

// Flush waits for in-flight sink writes.
func (s *Service) Flush() {
	s.writer.Wait()
}

// fanOut queries every provider concurrently and waits for all to settle.
// Branches never return errors, so one failure cancels nothing.
func (s *Service) fanOut(ctx context.Context, locs []weather.Location, opts weather.FetchOptions) []ProviderResult {
	results := make([]ProviderResult, len(s.clients))

	var g errgroup.Group
	for i, c := range s.clients {
		i, c := i, c
		g.Go(func() error {
			results[i] = s.callProvider(ctx, c, locs, opts)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *Service) callProvider(ctx context.Context, c ProviderClient, locs []weather.Location, opts weather.FetchOptions) ProviderResult {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	started := time.Now()
	res := ProviderResult{Provider: c.Name()}

	if len(locs) == 1 {
		agg, err := c.FetchLocation(callCtx, locs[0], opts)
		res.Latency = time.Since(started)
		if err != nil {
			res.Err = err
		} else {
			res.Aggregates = []weather.LocationAggregate{agg}
		}
	} else {
		batch, err := c.FetchMany(callCtx, locs, opts)
		res.Latency = time.Since(started)
		res.Err = err
		res.Aggregates = batch.Successes
		res.Failures = batch.Failures
		if err == nil && len(batch.Successes) == 0 {
			res.Err = fmt.Errorf("%w: every location failed", weather.ErrNoDataAvailable)
		}
	}

	if res.Err != nil {
		s.logger.Warn("provider failed",
			"provider", res.Provider,
			"latency_ms", res.Latency.Milliseconds(),
			"error", res.Err,
		)
	}
	return res
}

func reports(results []ProviderResult, includeRaw bool) []ProviderReport {
	out := make([]ProviderReport, 0, len(results))
	for _, r := range results {
		rep := ProviderReport{
			Provider:  r.Provider,
			LatencyMs: r.Latency.Milliseconds(),
			Failures:  r.Failures,
		}
		if r.Err != nil {
			rep.Error = r.Err.Error()
		}
		rep.Healthy = r.contributed() && len(r.Failures) == 0
		for _, a := range r.Aggregates {
			if len(a.Failures) > 0 {
				rep.Healthy = false
			}
			if includeRaw {
				rep.Raw = append(rep.Raw, a)
			}
		}
		out = append(out, rep)
	}
	return out
}
