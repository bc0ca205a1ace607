// Package crosscloud merges provider-level aggregates into one consensus
// reading with variation, agreement, reliability and freshness.
package crosscloud

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/weather-consensus/internal/weather"
)

// ErrNoProviderDataAvailable is returned when no provider contributed any data.
var ErrNoProviderDataAvailable = errors.New("no provider data available")

// ProviderResult is one provider's settled answer for a request.
type ProviderResult struct {
	Provider   string
	Aggregates []weather.LocationAggregate
	Failures   []weather.LocationFailure
	Err        error
	Latency    time.Duration
}

func (r ProviderResult) contributed() bool {
	return r.Err == nil && len(r.Aggregates) > 0
}

// ProviderFailure names a provider that contributed nothing, and why.
type ProviderFailure struct {
	Provider string `json:"provider"`
	Cause    string `json:"cause"`
}

// Reliability blends data availability with temperature agreement.
type Reliability struct {
	DataAvailability int `json:"dataAvailability"`
	// TemperatureAgreement is absent when no location had two provider temperatures.
	TemperatureAgreement *int `json:"temperatureAgreement,omitempty"`
	Overall              int  `json:"overall"`
}

// LocationBreakdown is the cross-provider view of one location.
type LocationBreakdown struct {
	LocationID   string          `json:"locationId"`
	LocationName string          `json:"locationName"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Providers    []string        `json:"providers"`
	Consensus    weather.Metrics `json:"consensus"`
	Variation    weather.Metrics `json:"variation"`
	Agreement    int             `json:"agreement"`
	Descriptions []string        `json:"descriptions"`
}

// Summary condenses the aggregate for display.
type Summary struct {
	TotalLocations       int       `json:"totalLocations"`
	AverageTemperature   *float64  `json:"averageTemperature,omitempty"`
	TemperatureRange     *float64  `json:"temperatureRange,omitempty"`
	TemperatureVariation *float64  `json:"temperatureVariation,omitempty"`
	OverallReliability   int       `json:"overallReliability"`
	Freshness            Freshness `json:"freshness"`
}

// CrossCloudAggregate is the merged view of every provider's aggregates for
// one request. It is never mutated after creation.
type CrossCloudAggregate struct {
	ID              string              `json:"id,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
	Providers       []string            `json:"providers"`
	FailedProviders []ProviderFailure   `json:"failedProviders"`
	Consensus       weather.Metrics     `json:"consensus"`
	Variation       weather.Metrics     `json:"variation"`
	Reliability     Reliability         `json:"reliability"`
	Locations       []LocationBreakdown `json:"locations"`
	Summary         Summary             `json:"summary"`
}

// Aggregate merges provider results. It depends only on its inputs and now.
//
// Providers that failed, or answered with no location at all, are listed in
// FailedProviders and excluded from every statistic. The top-level Consensus
// and Variation pool every provider value of every location, so in a batch
// Variation also reflects how much the locations differ; the per-location
// breakdown isolates provider disagreement. A location reported by
// a single provider takes that provider's values verbatim with agreement 100.
// When fewer than two provider temperatures exist anywhere, the overall
// reliability treats temperature agreement as 100.
func Aggregate(results []ProviderResult, now time.Time) (CrossCloudAggregate, error) {
	out := CrossCloudAggregate{
		Timestamp:       now.UTC(),
		Providers:       make([]string, 0, len(results)),
		FailedProviders: make([]ProviderFailure, 0),
	}

	var (
		order    []string
		byLoc    = make(map[string][]contribution)
		allSets  []weather.Metrics
		observed []time.Time
	)

	for _, r := range results {
		if !r.contributed() {
			out.FailedProviders = append(out.FailedProviders, ProviderFailure{Provider: r.Provider, Cause: failureCause(r)})
			continue
		}
		out.Providers = append(out.Providers, r.Provider)

		seen := make(map[string]bool, len(r.Aggregates))
		for _, agg := range r.Aggregates {
			key := agg.LocationID
			if seen[key] {
				continue
			}
			seen[key] = true

			if _, ok := byLoc[key]; !ok {
				order = append(order, key)
			}
			byLoc[key] = append(byLoc[key], contribution{provider: r.Provider, agg: agg})
			allSets = append(allSets, agg.Metrics)
			observed = append(observed, agg.ObservedAt)
		}
	}

	if len(out.Providers) == 0 {
		return CrossCloudAggregate{}, fmt.Errorf("%w: %d of %d providers failed", ErrNoProviderDataAvailable, len(out.FailedProviders), len(results))
	}

	out.Consensus = consensusOf(allSets)
	out.Variation = variationOf(allSets)

	var agreements []float64
	out.Locations = make([]LocationBreakdown, 0, len(order))
	for _, key := range order {
		lb, measured := breakdown(byLoc[key])
		if measured {
			agreements = append(agreements, float64(lb.Agreement))
		}
		out.Locations = append(out.Locations, lb)
	}

	availability := 100 * float64(len(out.Providers)) / float64(len(results))
	agreementForOverall := 100.0
	out.Reliability.DataAvailability = int(weather.Round(availability, 0))
	if mean, ok := weather.Mean(agreements); ok {
		ta := int(weather.Round(mean, 0))
		out.Reliability.TemperatureAgreement = &ta
		agreementForOverall = float64(ta)
	}
	// Overall uses the unrounded availability so it is rounded once.
	out.Reliability.Overall = int(weather.Round((availability+agreementForOverall)/2, 0))

	out.Summary = summarize(out.Locations, out.Reliability.Overall, classifyFreshness(observed, now))
	return out, nil
}

type contribution struct {
	provider string
	agg      weather.LocationAggregate
}

// breakdown merges one location's provider values. measured reports whether
// the agreement came from at least two provider temperatures.
func breakdown(contribs []contribution) (LocationBreakdown, bool) {
	first := contribs[0].agg
	lb := LocationBreakdown{
		LocationID:   first.LocationID,
		LocationName: first.LocationName,
		Latitude:     first.Latitude,
		Longitude:    first.Longitude,
		Providers:    make([]string, 0, len(contribs)),
		Descriptions: make([]string, 0),
		Agreement:    100,
	}

	sets := make([]weather.Metrics, 0, len(contribs))
	for _, c := range contribs {
		lb.Providers = append(lb.Providers, c.provider)
		lb.Descriptions = append(lb.Descriptions, c.agg.Descriptions...)
		sets = append(sets, c.agg.Metrics)
	}

	if len(contribs) == 1 {
		lb.Consensus = first.Metrics.Clone()
		return lb, false
	}

	lb.Consensus = consensusOf(sets)
	lb.Variation = variationOf(sets)
	score, measured := agreementScore(weather.Present(weather.MetricTemperature, sets))
	if measured {
		lb.Agreement = score
	}
	return lb, measured
}

func summarize(locs []LocationBreakdown, overall int, freshness Freshness) Summary {
	s := Summary{
		TotalLocations:     len(locs),
		OverallReliability: overall,
		Freshness:          freshness,
	}

	temps := make([]float64, 0, len(locs))
	for _, l := range locs {
		if l.Consensus.Temperature != nil {
			temps = append(temps, *l.Consensus.Temperature)
		}
	}
	if mean, ok := weather.Mean(temps); ok {
		s.AverageTemperature = weather.Float(weather.Round(mean, 1))
	}
	if r, ok := spread(temps); ok {
		s.TemperatureRange = weather.Float(weather.Round(r, 1))
	}
	if sd, ok := populationStdDev(temps); ok {
		s.TemperatureVariation = weather.Float(weather.Round(sd, variationDecimals))
	}
	return s
}

func failureCause(r ProviderResult) string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if len(r.Failures) == 0 {
		return "provider returned no locations"
	}
	causes := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		causes = append(causes, f.Location.Key()+": "+f.Cause)
	}
	return strings.Join(causes, "; ")
}
