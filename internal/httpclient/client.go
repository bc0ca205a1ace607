// Package httpclient executes outbound HTTP requests with retries,
// exponential backoff and a circuit breaker.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff retries twice, starting at 250ms.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      2,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

var (
	ErrRateLimited   = errors.New("rate limited")
	ErrServerError   = errors.New("server error")
	ErrCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// StatusError is returned for non-2xx replies that are not retried.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Body)
}

// ServerError is a 5xx reply. It matches ErrServerError with errors.Is.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%v: %d", ErrServerError, e.StatusCode)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServerError
}

// maxErrorBody caps how much of an error reply is kept for diagnostics.
const maxErrorBody = 512

// Client bundles an *http.Client, backoff settings and a circuit breaker.
// Build one per upstream so breakers do not trip each other.
type Client struct {
	http     *http.Client
	backoff  BackoffConfig
	circuit  *gobreaker.CircuitBreaker
	expected func(*ServerError) bool
}

// New creates a Client with a circuit breaker named name.
func New(client *http.Client, name string, backoff BackoffConfig) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		http:    client,
		backoff: backoff,
		circuit: cb,
	}
}

// ExpectServerErrors marks 5xx replies for which fn returns true as answers
// rather than upstream faults: they are returned without a retry and do not
// count towards tripping the circuit breaker.
func (c *Client) ExpectServerErrors(fn func(*ServerError) bool) *Client {
	c.expected = fn
	return c
}

// Do executes the request built by buildRequest, retrying network errors,
// 429 and 5xx replies. Other non-2xx replies return a *StatusError without
// retrying. On success the caller owns the response body.
func (c *Client) Do(ctx context.Context, buildRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.http == nil {
		return nil, errNoHTTPClient
	}
	if c.backoff.MaxRetries < 0 || c.backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			resp, execErr := c.http.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				drain(resp)
				return nil, ErrRateLimited
			}
			if resp.StatusCode >= 500 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				resp.Body.Close()
				se := &ServerError{StatusCode: resp.StatusCode, Body: string(body)}
				if c.expected != nil && c.expected(se) {
					return se, nil
				}
				return nil, se
			}

			// Client errors are the caller's problem, not the upstream's health.
			return resp, nil
		})

		if err == nil {
			if se, ok := result.(*ServerError); ok {
				return nil, se
			}
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
				resp.Body.Close()
				return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}

		if attempt >= c.backoff.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > c.backoff.MaxInterval && c.backoff.MaxInterval > 0 {
			delay = c.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
