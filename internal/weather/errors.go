package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed matches every FetchError.
	ErrFetchFailed = errors.New("weather source fetch failed")

	// ErrNoDataAvailable is returned when every source for a location failed.
	ErrNoDataAvailable = errors.New("no weather data available")

	// ErrCredentialsUnavailable aborts a request before any source is called.
	ErrCredentialsUnavailable = errors.New("weather source credentials unavailable")

	// ErrLocationNotFound is returned when a free-text location cannot be resolved.
	ErrLocationNotFound = errors.New("location not found")
)

// ErrorKind classifies a source failure for diagnostics. Callers treat every
// kind the same way.
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindTimeout   ErrorKind = "timeout"
	KindAuth      ErrorKind = "auth"
	KindNotFound  ErrorKind = "not_found"
	KindMalformed ErrorKind = "malformed"
	KindUpstream  ErrorKind = "upstream" // rate limited, 5xx or circuit open
)

// FetchError is the single failure type surfaced by a SourceFetcher.
type FetchError struct {
	Source Source
	Kind   ErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetchFailed) hold for any FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// Cause returns the human-readable failure cause.
func (e *FetchError) Cause() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// NewFetchError wraps err as a FetchError of the given kind.
func NewFetchError(src Source, kind ErrorKind, err error) *FetchError {
	return &FetchError{Source: src, Kind: kind, Err: err}
}

// failureOf converts any fetch error into a SourceFailure, keeping the cause.
func failureOf(src Source, err error) SourceFailure {
	var fe *FetchError
	if errors.As(err, &fe) {
		return SourceFailure{Source: src, Kind: fe.Kind, Cause: fe.Cause()}
	}
	return SourceFailure{Source: src, Kind: KindNetwork, Cause: err.Error()}
}
