package weather

import (
	"context"
	"fmt"
	"strings"
)

// ResolveLocation turns a LocationRef into coordinates. Names go through the
// geocoder; coordinates pass through unchanged.
func ResolveLocation(ctx context.Context, ref LocationRef, geo Geocoder) (Location, error) {
	switch r := ref.(type) {
	case ByCoordinates:
		return r.Location(), nil
	case ByName:
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return Location{}, fmt.Errorf("%w: empty location name", ErrLocationNotFound)
		}
		if geo == nil {
			return Location{}, fmt.Errorf("cannot resolve %q: no geocoder configured", name)
		}
		return geo.Resolve(ctx, name)
	default:
		return Location{}, fmt.Errorf("unsupported location reference %T", ref)
	}
}

// ResolveLocations resolves refs in order, stopping at the first failure.
func ResolveLocations(ctx context.Context, refs []LocationRef, geo Geocoder) ([]Location, error) {
	locs := make([]Location, 0, len(refs))
	for _, ref := range refs {
		loc, err := ResolveLocation(ctx, ref, geo)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}
