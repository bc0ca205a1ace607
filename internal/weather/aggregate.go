package weather

import (
	"fmt"
	"time"
)

// SourceResult is the settled outcome of one attempted source call.
// Exactly one of Reading and Err is meaningful.
type SourceResult struct {
	Source  Source
	Reading Reading
	Err     error
}

// AggregateLocation merges the settled results of every attempted source for
// one location. Each metric is the mean of the values present, rounded to one
// decimal for temperature and wind speed and to whole numbers otherwise.
//
// Confidence is round(100 * sources with a temperature / sources attempted).
// Temperature stands in for "this source answered usefully"; it is a
// heuristic, not a probability.
//
// When no source succeeded the result is ErrNoDataAvailable and the aggregate
// must be neither stored nor returned.
func AggregateLocation(loc Location, results []SourceResult, now time.Time) (LocationAggregate, error) {
	var (
		readings = make([]Reading, 0, len(results))
		sets     = make([]Metrics, 0, len(results))
		failures []SourceFailure
	)

	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, failureOf(r.Source, r.Err))
			continue
		}
		readings = append(readings, r.Reading)
		sets = append(sets, r.Reading.Metrics)
	}

	if len(readings) == 0 {
		return LocationAggregate{}, fmt.Errorf("%w for %s: %d of %d sources failed", ErrNoDataAvailable, loc.Key(), len(failures), len(results))
	}

	agg := LocationAggregate{
		LocationID:   loc.ID,
		LocationName: loc.Name,
		Latitude:     loc.Lat,
		Longitude:    loc.Lon,
		Descriptions: make([]string, 0, len(readings)),
		Sources:      make([]Source, 0, len(readings)),
		Failures:     failures,
		AggregatedAt: now.UTC(),
		Raw:          readings,
	}

	for _, metric := range AllMetrics {
		if mean, ok := Mean(Present(metric, sets)); ok {
			agg.Set(metric, Float(Round(mean, metric.Decimals())))
		}
	}

	withTemp := len(Present(MetricTemperature, sets))
	agg.Confidence = int(Round(100*float64(withTemp)/float64(len(results)), 0))

	for _, r := range readings {
		agg.Sources = append(agg.Sources, r.Source)
		if r.Description != "" {
			agg.Descriptions = append(agg.Descriptions, r.Description)
		}
		if r.ObservedAt.After(agg.ObservedAt) {
			agg.ObservedAt = r.ObservedAt.UTC()
		}
	}

	return agg, nil
}
