package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// Aggregator builds cross-cloud aggregates.
type Aggregator interface {
	Aggregate(ctx context.Context, req crosscloud.Request) (crosscloud.Response, error)
}

// Pruner drops expired records.
type Pruner interface {
	Prune(ctx context.Context) error
}

// Scheduler periodically refreshes the consensus for configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Aggregator
	pruner    Pruner
	locations []weather.LocationRef
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. timeout bounds a single refresh run; pruner may
// be nil.
func New(locations []weather.LocationRef, interval, timeout time.Duration, service Aggregator, pruner Pruner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		service:   service,
		pruner:    pruner,
		locations: locations,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	if len(s.locations) == 0 {
		s.logger.Info("no refresh locations configured; refresh disabled")
	} else if _, err := s.scheduler.Every(interval).Do(s.refresh); err != nil {
		return err
	}

	if s.pruner != nil {
		if _, err := s.scheduler.Every(interval).Do(s.prune); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("running refresh job", "locations", len(s.locations))
	resp, err := s.service.Aggregate(ctx, crosscloud.Request{
		Name:      "scheduled-refresh",
		Locations: s.locations,
	})
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		return
	}
	s.logger.Info("refresh completed",
		"aggregate_id", resp.ID,
		"providers", len(resp.Providers),
		"reliability", resp.Reliability.Overall,
	)
}

func (s *Scheduler) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.pruner.Prune(ctx); err != nil {
		s.logger.Error("prune failed", "error", err)
	}
}
