package cloud

import (
	"context"

	"github.com/i474232898/weather-consensus/internal/weather"
)

// Provider node wire format, shared by the node's routes and RemoteClient.

// LocationEnvelope is the reply of GET /api/v1/weather.
type LocationEnvelope struct {
	Provider  string                    `json:"provider"`
	LatencyMs int64                     `json:"latencyMs"`
	Aggregate weather.LocationAggregate `json:"aggregate"`
}

// BatchRequest is the body of POST /api/v1/weather/batch.
type BatchRequest struct {
	Locations  []weather.Location `json:"locations" validate:"required,min=1,max=50,dive"`
	IncludeRaw bool               `json:"includeRaw"`
}

// BatchEnvelope is the reply of POST /api/v1/weather/batch.
type BatchEnvelope struct {
	Provider  string `json:"provider"`
	LatencyMs int64  `json:"latencyMs"`
	weather.BatchResult
}

// ErrorBody is the JSON error shape of both HTTP surfaces.
type ErrorBody struct {
	Error   bool   `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Error codes carried in ErrorBody.Code.
const (
	CodeNoData           = "no_data_available"
	CodeNoProviderData   = "no_provider_data_available"
	CodeCredentials      = "credentials_unavailable"
	CodeLocationNotFound = "location_not_found"
	CodeNotFound         = "not_found"
	CodeInvalidRequest   = "invalid_request"
	CodeInternal         = "internal_error"
)

// RequestIDHeader carries the caller's request ID to provider nodes.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID attaches a request ID that RemoteClient forwards to provider nodes.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
