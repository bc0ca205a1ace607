// Package cloud implements provider clients: an in-process client around a
// provider Service and an HTTP client for remote provider nodes.
package cloud

import (
	"context"

	"github.com/i474232898/weather-consensus/internal/weather"
)

// LocalClient serves a provider from inside the current process.
type LocalClient struct {
	svc *weather.Service
}

func NewLocalClient(svc *weather.Service) *LocalClient {
	return &LocalClient{svc: svc}
}

func (c *LocalClient) Name() string {
	return c.svc.Name()
}

func (c *LocalClient) FetchLocation(ctx context.Context, loc weather.Location, opts weather.FetchOptions) (weather.LocationAggregate, error) {
	agg, err := c.svc.FetchLocation(ctx, loc)
	if err != nil {
		return weather.LocationAggregate{}, err
	}
	if !opts.IncludeRaw {
		agg = agg.WithoutRaw()
	}
	return agg, nil
}

func (c *LocalClient) FetchMany(ctx context.Context, locs []weather.Location, opts weather.FetchOptions) (weather.BatchResult, error) {
	res, err := c.svc.FetchMany(ctx, locs)
	if err != nil {
		return weather.BatchResult{}, err
	}
	if !opts.IncludeRaw {
		for i := range res.Successes {
			res.Successes[i] = res.Successes[i].WithoutRaw()
		}
	}
	return res, nil
}
