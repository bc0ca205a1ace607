package crosscloud

import (
	"math"
	"time"

	"github.com/i474232898/weather-consensus/internal/weather"
)

// Freshness buckets the average age of the contributing observations.
type Freshness string

const (
	FreshnessVeryFresh Freshness = "very-fresh"
	FreshnessFresh     Freshness = "fresh"
	FreshnessModerate  Freshness = "moderate"
	FreshnessStale     Freshness = "stale"
	FreshnessUnknown   Freshness = "unknown"
)

// variationDecimals is the precision of reported standard deviations.
const variationDecimals = 2

// populationStdDev divides by N, not N-1. ok is false for fewer than two values.
func populationStdDev(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	mean, _ := weather.Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(values))), true
}

// spread returns max-min. ok is false when values is empty.
func spread(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo, true
}

// agreementScore is a linear heuristic, not a probability: 100 at zero spread,
// minus 25 points per degree, floored at 0 from 4°C upward.
// ok is false for fewer than two values.
func agreementScore(temps []float64) (int, bool) {
	if len(temps) < 2 {
		return 0, false
	}
	s, _ := spread(temps)
	return int(math.Max(0, weather.Round(100-25*s, 0))), true
}

// classifyFreshness buckets the mean age of the given observation times.
// Zero timestamps are ignored; with none left the result is unknown.
func classifyFreshness(observed []time.Time, now time.Time) Freshness {
	ages := make([]float64, 0, len(observed))
	for _, ts := range observed {
		if ts.IsZero() {
			continue
		}
		ages = append(ages, now.Sub(ts).Minutes())
	}

	avg, ok := weather.Mean(ages)
	switch {
	case !ok:
		return FreshnessUnknown
	case avg < 5:
		return FreshnessVeryFresh
	case avg < 15:
		return FreshnessFresh
	case avg < 60:
		return FreshnessModerate
	default:
		return FreshnessStale
	}
}

// consensusOf averages every metric over the sets, rounding per metric.
func consensusOf(sets []weather.Metrics) weather.Metrics {
	var out weather.Metrics
	for _, m := range weather.AllMetrics {
		if mean, ok := weather.Mean(weather.Present(m, sets)); ok {
			out.Set(m, weather.Float(weather.Round(mean, m.Decimals())))
		}
	}
	return out
}

// variationOf computes the population standard deviation of every metric with
// at least two values; other metrics are left absent.
func variationOf(sets []weather.Metrics) weather.Metrics {
	var out weather.Metrics
	for _, m := range weather.AllMetrics {
		if sd, ok := populationStdDev(weather.Present(m, sets)); ok {
			out.Set(m, weather.Float(weather.Round(sd, variationDecimals)))
		}
	}
	return out
}
