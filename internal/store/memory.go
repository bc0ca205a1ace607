// Package store persists provider aggregates and cross-cloud aggregates.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/weather"
)

var (
	// ErrNotFound is returned when no unexpired record matches.
	ErrNotFound = errors.New("no stored weather data")
)

// Retention bounds how much history a store keeps. Zero values are unlimited.
type Retention struct {
	MaxHistory   int           // records per provider and location
	MaxAge       time.Duration // provider records
	AggregateAge time.Duration // cross-cloud aggregates, usually shorter
}

type locationRecord struct {
	storedAt time.Time
	agg      weather.LocationAggregate
}

type aggregateRecord struct {
	storedAt time.Time
	agg      crosscloud.CrossCloudAggregate
}

// MemoryStore is a concurrency-safe in-memory store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: provider + location key, value: oldest first
	locations  map[string][]locationRecord
	aggregates []aggregateRecord

	retention Retention
	now       func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given retention.
func NewMemoryStore(retention Retention) *MemoryStore {
	return &MemoryStore{
		locations: make(map[string][]locationRecord),
		retention: retention,
		now:       time.Now,
	}
}

func locationKey(provider, locationID string) string {
	return provider + "/" + locationID
}

// StoreLocation appends a provider aggregate and enforces retention.
func (s *MemoryStore) StoreLocation(ctx context.Context, provider string, agg weather.LocationAggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := locationKey(provider, agg.LocationID)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.locations[key], locationRecord{storedAt: now, agg: agg})

	if s.retention.MaxHistory > 0 && len(history) > s.retention.MaxHistory {
		history = history[len(history)-s.retention.MaxHistory:]
	}
	history = expire(history, now, s.retention.MaxAge, func(r locationRecord) time.Time { return r.storedAt })

	s.locations[key] = history
	return nil
}

// StoreAggregate appends a cross-cloud aggregate and enforces retention.
func (s *MemoryStore) StoreAggregate(ctx context.Context, agg crosscloud.CrossCloudAggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.aggregates = append(s.aggregates, aggregateRecord{storedAt: now, agg: agg})
	if s.retention.MaxHistory > 0 && len(s.aggregates) > s.retention.MaxHistory {
		s.aggregates = s.aggregates[len(s.aggregates)-s.retention.MaxHistory:]
	}
	s.aggregates = expire(s.aggregates, now, s.retention.AggregateAge, func(r aggregateRecord) time.Time { return r.storedAt })
	return nil
}

// LatestLocation returns the newest unexpired aggregate a provider stored
// for a location.
func (s *MemoryStore) LatestLocation(_ context.Context, provider, locationID string) (weather.LocationAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.locations[locationKey(provider, locationID)]
	if len(history) == 0 {
		return weather.LocationAggregate{}, ErrNotFound
	}
	last := history[len(history)-1]
	if expired(last.storedAt, s.now(), s.retention.MaxAge) {
		return weather.LocationAggregate{}, ErrNotFound
	}
	return last.agg, nil
}

// LatestAggregate returns the newest unexpired cross-cloud aggregate.
func (s *MemoryStore) LatestAggregate(_ context.Context) (crosscloud.CrossCloudAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.aggregates) == 0 {
		return crosscloud.CrossCloudAggregate{}, ErrNotFound
	}
	last := s.aggregates[len(s.aggregates)-1]
	if expired(last.storedAt, s.now(), s.retention.AggregateAge) {
		return crosscloud.CrossCloudAggregate{}, ErrNotFound
	}
	return last.agg, nil
}

// Prune drops every expired record.
func (s *MemoryStore) Prune(_ context.Context) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, history := range s.locations {
		history = expire(history, now, s.retention.MaxAge, func(r locationRecord) time.Time { return r.storedAt })
		if len(history) == 0 {
			delete(s.locations, key)
			continue
		}
		s.locations[key] = history
	}
	s.aggregates = expire(s.aggregates, now, s.retention.AggregateAge, func(r aggregateRecord) time.Time { return r.storedAt })
	return nil
}

func expired(storedAt, now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && storedAt.Before(now.Add(-maxAge))
}

// expire drops the leading records older than maxAge. Records are stored
// oldest first.
func expire[T any](records []T, now time.Time, maxAge time.Duration, storedAt func(T) time.Time) []T {
	if maxAge <= 0 {
		return records
	}
	i := 0
	for ; i < len(records); i++ {
		if !expired(storedAt(records[i]), now, maxAge) {
			break
		}
	}
	return records[i:]
}
