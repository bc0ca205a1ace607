package sources

import (
	"fmt"
	"net/http"

	"github.com/i474232898/weather-consensus/internal/weather"
)

// Build returns the fetchers for the named sources, in the given order.
// An empty list selects every known source.
func Build(names []string, client *http.Client, opts ...Option) ([]weather.SourceFetcher, error) {
	if len(names) == 0 {
		for _, s := range weather.KnownSources {
			names = append(names, string(s))
		}
	}

	seen := make(map[weather.Source]bool, len(names))
	fetchers := make([]weather.SourceFetcher, 0, len(names))
	for _, name := range names {
		src, err := weather.ParseSource(name)
		if err != nil {
			return nil, err
		}
		if seen[src] {
			return nil, fmt.Errorf("weather source %q configured twice", src)
		}
		seen[src] = true

		switch src {
		case weather.SourceOpenWeatherMap:
			fetchers = append(fetchers, NewOpenWeatherFetcher(client, opts...))
		case weather.SourceWeatherAPI:
			fetchers = append(fetchers, NewWeatherAPIFetcher(client, opts...))
		case weather.SourceOpenMeteo:
			fetchers = append(fetchers, NewOpenMeteoFetcher(client, opts...))
		}
	}
	return fetchers, nil
}
