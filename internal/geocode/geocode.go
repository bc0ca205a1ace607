// Package geocode resolves free-text location names to coordinates.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/i474232898/weather-consensus/internal/weather"
)

// Slug turns a location name into a stable location ID.
func Slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == ',' || r == '_' || r == '-'
	})
	return strings.Join(fields, "-")
}

// Static resolves names from a fixed table. Lookups ignore case.
type Static struct {
	table map[string]weather.Location
}

func NewStatic(locs ...weather.Location) *Static {
	s := &Static{table: make(map[string]weather.Location, len(locs))}
	for _, l := range locs {
		s.table[Slug(l.Name)] = l
	}
	return s
}

// ParseStatic builds a Static table from entries of the form
// "Name=lat/lon", for example "Paris=48.8566/2.3522".
func ParseStatic(entries []string) (*Static, error) {
	var locs []weather.Location
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, coords, ok := strings.Cut(entry, "=")
		latStr, lonStr, ok2 := strings.Cut(coords, "/")
		if !ok || !ok2 || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid location entry %q, want Name=lat/lon", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude in %q", entry)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude in %q", entry)
		}
		name = strings.TrimSpace(name)
		locs = append(locs, weather.Location{ID: Slug(name), Name: name, Lat: lat, Lon: lon})
	}
	return NewStatic(locs...), nil
}

func (s *Static) Resolve(_ context.Context, name string) (weather.Location, error) {
	if l, ok := s.table[Slug(name)]; ok {
		return l, nil
	}
	return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, name)
}

// Chain tries each geocoder in order and returns the first match.
type Chain []weather.Geocoder

func (c Chain) Resolve(ctx context.Context, name string) (weather.Location, error) {
	err := fmt.Errorf("%w: %s", weather.ErrLocationNotFound, name)
	var lastErr error
	for _, g := range c {
		loc, gerr := g.Resolve(ctx, name)
		if gerr == nil {
			return loc, nil
		}
		if !errors.Is(gerr, weather.ErrLocationNotFound) {
			lastErr = gerr
		}
	}
	if lastErr != nil {
		return weather.Location{}, lastErr
	}
	return weather.Location{}, err
}

// New builds the geocoder chain: the static table first, then Google when
// apiKey is set. It returns nil when neither is configured.
func New(known []string, apiKey string) (weather.Geocoder, error) {
	static, err := ParseStatic(known)
	if err != nil {
		return nil, err
	}
	chain := Chain{}
	if len(static.table) > 0 {
		chain = append(chain, static)
	}
	if apiKey != "" {
		chain = append(chain, NewGoogle(apiKey))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}
