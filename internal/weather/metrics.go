package weather

import "math"

// Metric names one numeric field of Metrics.
type Metric string

const (
	MetricTemperature   Metric = "temperature"
	MetricHumidity      Metric = "humidity"
	MetricPressure      Metric = "pressure"
	MetricWindSpeed     Metric = "windSpeed"
	MetricWindDirection Metric = "windDirection"
	MetricVisibility    Metric = "visibility"
	MetricCloudiness    Metric = "cloudiness"
	MetricUVIndex       Metric = "uvIndex"
)

// AllMetrics lists every metric in output order.
var AllMetrics = []Metric{
	MetricTemperature,
	MetricHumidity,
	MetricPressure,
	MetricWindSpeed,
	MetricWindDirection,
	MetricVisibility,
	MetricCloudiness,
	MetricUVIndex,
}

// Decimals is the rounding precision of consensus values for the metric:
// one decimal for temperature and wind speed, whole numbers otherwise.
func (m Metric) Decimals() int {
	switch m {
	case MetricTemperature, MetricWindSpeed:
		return 1
	default:
		return 0
	}
}

func (m *Metrics) field(metric Metric) **float64 {
	switch metric {
	case MetricTemperature:
		return &m.Temperature
	case MetricHumidity:
		return &m.Humidity
	case MetricPressure:
		return &m.Pressure
	case MetricWindSpeed:
		return &m.WindSpeed
	case MetricWindDirection:
		return &m.WindDirection
	case MetricVisibility:
		return &m.Visibility
	case MetricCloudiness:
		return &m.Cloudiness
	case MetricUVIndex:
		return &m.UVIndex
	default:
		return nil
	}
}

// Get returns the value of metric, or nil when absent.
func (m Metrics) Get(metric Metric) *float64 {
	f := m.field(metric)
	if f == nil {
		return nil
	}
	return *f
}

// Set stores v for metric. Non-finite values are stored as absent.
func (m *Metrics) Set(metric Metric, v *float64) {
	f := m.field(metric)
	if f == nil {
		return
	}
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		v = nil
	}
	*f = v
}

// Float returns a pointer to v, or nil if v is not finite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Round rounds half up to the given number of decimals, so 2.5 becomes 3
// and -2.5 becomes -2.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(v*p+0.5) / p
}

// Mean averages the present values. ok is false when none are present.
func Mean(values []float64) (mean float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// Present collects the non-nil values of metric across the given metric sets.
func Present(metric Metric, sets []Metrics) []float64 {
	values := make([]float64, 0, len(sets))
	for _, s := range sets {
		if v := s.Get(metric); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

// Clone returns a copy that shares no pointers with m.
func (m Metrics) Clone() Metrics {
	var out Metrics
	for _, metric := range AllMetrics {
		if v := m.Get(metric); v != nil {
			out.Set(metric, Float(*v))
		}
	}
	return out
}
