package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/i474232898/weather-consensus/internal/common"
)

// DefaultSourceTimeout bounds a single source call.
const DefaultSourceTimeout = 10 * time.Second

// Service is one provider's pipeline: it fans out to its configured sources,
// aggregates the settled results and stores the aggregate.
type Service struct {
	name          string
	fetchers      []SourceFetcher
	credentials   CredentialsProvider
	sink          Sink
	writer        *common.Detached
	sourceTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSourceTimeout overrides the per-source call timeout.
func WithSourceTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.sourceTimeout = d
		}
	}
}

// WithClock overrides the clock used to stamp aggregates.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithWriter overrides the detached writer used for sink writes.
func WithWriter(w *common.Detached) ServiceOption {
	return func(s *Service) {
		s.writer = w
	}
}

// NewService creates a provider Service. fetchers are attempted in the given
// order; sink may be nil.
func NewService(name string, fetchers []SourceFetcher, creds CredentialsProvider, sink Sink, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		name:          name,
		fetchers:      fetchers,
		credentials:   creds,
		sink:          sink,
		sourceTimeout: DefaultSourceTimeout,
		now:           time.Now,
		logger:        logger.With("provider", name),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = common.NewDetached(0, s.logger)
	}
	return s
}

// Name returns the provider name.
func (s *Service) Name() string {
	return s.name
}

// FetchLocation fetches, aggregates and stores the weather for one location.
func (s *Service) FetchLocation(ctx context.Context, loc Location) (LocationAggregate, error) {
	creds, err := s.loadCredentials(ctx)
	if err != nil {
		return LocationAggregate{}, err
	}
	return s.fetchLocation(ctx, loc, creds)
}

// FetchMany runs every location's pipeline concurrently. A location whose
// sources all failed is reported in Failures and does not affect the others.
// Only missing credentials fail the whole batch.
func (s *Service) FetchMany(ctx context.Context, locs []Location) (BatchResult, error) {
	creds, err := s.loadCredentials(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	type outcome struct {
		agg LocationAggregate
		err error
	}
	outcomes := make([]outcome, len(locs))

	var wg sync.WaitGroup
	for i, loc := range locs {
		i, loc := i, loc
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg, err := s.fetchLocation(ctx, loc, creds)
			outcomes[i] = outcome{agg: agg, err: err}
		}()
	}
	wg.Wait()

	result := BatchResult{
		Successes: make([]LocationAggregate, 0, len(locs)),
		Failures:  make([]LocationFailure, 0),
	}
	for i, o := range outcomes {
		if o.err != nil {
			result.Failures = append(result.Failures, LocationFailure{Location: locs[i], Cause: o.err.Error()})
			continue
		}
		result.Successes = append(result.Successes, o.agg)
	}

	s.logger.Info("batch fetch completed",
		"locations", len(locs),
		"succeeded", len(result.Successes),
		"failed", len(result.Failures),
	)
	return result, nil
}

// Flush waits for in-flight sink writes.
func (s *Service) Flush() {
	s.writer.Wait()
}

func (s *Service) loadCredentials(ctx context.Context) (Credentials, error) {
	if s.credentials == nil {
		return Credentials{}, nil
	}
	creds, err := s.credentials.GetCredentials(ctx)
	if err != nil {
		if !errors.Is(err, ErrCredentialsUnavailable) {
			err = fmt.Errorf("%w: %v", ErrCredentialsUnavailable, err)
		}
		s.logger.Error("credentials unavailable; aborting before fetch", "error", err)
		return Credentials{}, err
	}
	return creds, nil
}

func (s *Service) fetchLocation(ctx context.Context, loc Location, creds Credentials) (LocationAggregate, error) {
	if len(s.fetchers) == 0 {
		return LocationAggregate{}, fmt.Errorf("%w: no weather sources configured", ErrNoDataAvailable)
	}

	results := s.fetchAll(ctx, loc, creds)

	agg, err := AggregateLocation(loc, results, s.now())
	if err != nil {
		s.logger.Warn("no source produced a reading", "location", loc.Key(), "error", err)
		return LocationAggregate{}, err
	}

	if s.sink != nil {
		stored := agg
		s.writer.Go("store_location", func(ctx context.Context) error {
			return s.sink.StoreLocation(ctx, s.name, stored)
		}, "location", loc.Key())
	}

	s.logger.Debug("location aggregated",
		"location", loc.Key(),
		"confidence", agg.Confidence,
		"sources", len(agg.Sources),
	)
	return agg, nil
}

// fetchAll calls every source concurrently and waits for all of them to
// settle. Results keep the configured source order.
func (s *Service) fetchAll(ctx context.Context, loc Location, creds Credentials) []SourceResult {
	results := make([]SourceResult, len(s.fetchers))

	var wg sync.WaitGroup
	for i, f := range s.fetchers {
		i, f := i, f
		wg.Add(1)
		go func() {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
			defer cancel()

			r, err := f.Fetch(callCtx, loc.Lat, loc.Lon, creds)
			if err != nil {
				s.logger.Warn("source fetch failed",
					"source", f.Source(),
					"location", loc.Key(),
					"error", err,
				)
				results[i] = SourceResult{Source: f.Source(), Err: err}
				return
			}
			r.Source = f.Source()
			results[i] = SourceResult{Source: f.Source(), Reading: r}
		}()
	}
	wg.Wait()

	return results
}
