package httpapi

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-consensus/internal/cloud"
	"github.com/i474232898/weather-consensus/internal/crosscloud"
	"github.com/i474232898/weather-consensus/internal/weather"
)

// LocationReader returns the latest aggregate a provider stored for a location.
type LocationReader interface {
	LatestLocation(ctx context.Context, provider, locationID string) (weather.LocationAggregate, error)
}

// AggregateReader returns the latest stored cross-cloud aggregate.
type AggregateReader interface {
	LatestAggregate(ctx context.Context) (crosscloud.CrossCloudAggregate, error)
}

// Aggregator builds cross-cloud aggregates.
type Aggregator interface {
	Aggregate(ctx context.Context, req crosscloud.Request) (crosscloud.Response, error)
}

// RegisterProviderRoutes wires the provider node endpoints. geo and latest
// may be nil.
func RegisterProviderRoutes(app *fiber.App, provider crosscloud.ProviderClient, geo weather.Geocoder, latest LocationReader) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather", func(c *fiber.Ctx) error {
		var q locationQuery
		if err := q.bind(c); err != nil {
			return err
		}

		ctx := requestContext(c)
		loc, err := weather.ResolveLocation(ctx, q.ref(), geo)
		if err != nil {
			return err
		}

		start := time.Now()
		agg, err := provider.FetchLocation(ctx, loc, weather.FetchOptions{IncludeRaw: q.Raw})
		if err != nil {
			return err
		}

		return c.JSON(cloud.LocationEnvelope{
			Provider:  provider.Name(),
			LatencyMs: time.Since(start).Milliseconds(),
			Aggregate: agg,
		})
	})

	v1.Post("/weather/batch", func(c *fiber.Ctx) error {
		var req cloud.BatchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return err
		}

		start := time.Now()
		res, err := provider.FetchMany(requestContext(c), req.Locations, weather.FetchOptions{IncludeRaw: req.IncludeRaw})
		if err != nil {
			return err
		}

		return c.JSON(cloud.BatchEnvelope{
			Provider:    provider.Name(),
			LatencyMs:   time.Since(start).Milliseconds(),
			BatchResult: res,
		})
	})

	if latest != nil {
		v1.Get("/weather/latest", func(c *fiber.Ctx) error {
			id := strings.TrimSpace(c.Query("id"))
			if id == "" {
				return fiber.NewError(fiber.StatusBadRequest, "id query parameter is required")
			}
			agg, err := latest.LatestLocation(c.UserContext(), provider.Name(), id)
			if err != nil {
				return err
			}
			return c.JSON(agg)
		})
	}
}

// RegisterAggregateRoutes wires the user-facing consensus endpoints. latest
// may be nil.
func RegisterAggregateRoutes(app *fiber.App, svc Aggregator, latest AggregateReader) {
	v1 := app.Group("/api/v1")

	v1.Get("/aggregate", func(c *fiber.Ctx) error {
		var q locationQuery
		if err := q.bind(c); err != nil {
			return err
		}

		resp, err := svc.Aggregate(requestContext(c), crosscloud.Request{
			Locations:  []weather.LocationRef{q.ref()},
			IncludeRaw: q.Raw,
		})
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	v1.Post("/aggregate/batch", func(c *fiber.Ctx) error {
		var req batchAggregateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return err
		}

		refs := make([]weather.LocationRef, 0, len(req.Locations))
		for i, l := range req.Locations {
			ref, err := l.ref()
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "locations["+strconv.Itoa(i)+"]: "+err.Error())
			}
			refs = append(refs, ref)
		}

		resp, err := svc.Aggregate(requestContext(c), crosscloud.Request{
			Name:       req.Name,
			Locations:  refs,
			IncludeRaw: req.IncludeRaw,
		})
		if err != nil {
			return err
		}
		return c.JSON(resp)
	})

	if latest != nil {
		v1.Get("/aggregate/latest", func(c *fiber.Ctx) error {
			agg, err := latest.LatestAggregate(c.UserContext())
			if err != nil {
				return err
			}
			return c.JSON(agg)
		})
	}
}

// requestContext carries the request ID so provider calls can forward it.
func requestContext(c *fiber.Ctx) context.Context {
	return cloud.WithRequestID(c.UserContext(), c.GetRespHeader(fiber.HeaderXRequestID))
}

// locationQuery identifies a location either by coordinates or by name (q).
type locationQuery struct {
	Lat  string `query:"lat" validate:"required_without=Q,omitempty,latitude"`
	Lon  string `query:"lon" validate:"required_without=Q,omitempty,longitude"`
	Q    string `query:"q" validate:"required_without_all=Lat Lon,omitempty,max=200"`
	ID   string `query:"id" validate:"omitempty,max=100"`
	Name string `query:"name" validate:"omitempty,max=200"`
	Raw  bool   `query:"raw"`
}

func (q *locationQuery) bind(c *fiber.Ctx) error {
	if err := c.QueryParser(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")
	}
	q.Q = strings.TrimSpace(q.Q)
	return validate.Struct(q)
}

func (q locationQuery) ref() weather.LocationRef {
	if q.Lat == "" || q.Lon == "" {
		return weather.ByName{Name: q.Q}
	}
	// validated as numbers by bind
	lat, _ := strconv.ParseFloat(q.Lat, 64)
	lon, _ := strconv.ParseFloat(q.Lon, 64)
	return weather.ByCoordinates{Lat: lat, Lon: lon, ID: q.ID, Name: q.Name}
}

type batchAggregateRequest struct {
	Name       string          `json:"name" validate:"max=100"`
	Locations  []locationInput `json:"locations" validate:"required,min=1,max=50,dive"`
	IncludeRaw bool            `json:"includeRaw"`
}

type locationInput struct {
	ID   string   `json:"id" validate:"max=100"`
	Name string   `json:"name" validate:"max=200"`
	Lat  *float64 `json:"lat" validate:"required_with=Lon,omitempty,latitude"`
	Lon  *float64 `json:"lon" validate:"required_with=Lat,omitempty,longitude"`
}

func (l locationInput) ref() (weather.LocationRef, error) {
	if l.Lat != nil && l.Lon != nil {
		return weather.ByCoordinates{Lat: *l.Lat, Lon: *l.Lon, ID: l.ID, Name: l.Name}, nil
	}
	if strings.TrimSpace(l.Name) == "" {
		return nil, errors.New("either lat/lon or name is required")
	}
	return weather.ByName{Name: l.Name}, nil
}
