package weather

import (
	"context"
)

// SourceFetcher calls one external weather API and normalizes its reply.
// Every failure is returned as a *FetchError.
type SourceFetcher interface {
	Source() Source
	Fetch(ctx context.Context, lat, lon float64, creds Credentials) (Reading, error)
}

// CredentialsProvider supplies the key bundle for the keyed sources.
// A failure must wrap ErrCredentialsUnavailable.
type CredentialsProvider interface {
	GetCredentials(ctx context.Context) (Credentials, error)
}

// Geocoder resolves a free-text location name. Unknown names wrap ErrLocationNotFound.
type Geocoder interface {
	Resolve(ctx context.Context, name string) (Location, error)
}

// Sink is the store-and-forget contract for provider-level aggregates.
type Sink interface {
	StoreLocation(ctx context.Context, provider string, agg LocationAggregate) error
}
