package common

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Detached issues store-and-forget writes. Each write runs in its own
// goroutine with its own timeout; its outcome is only logged.
type Detached struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *slog.Logger
}

// NewDetached creates a Detached writer. A non-positive timeout defaults to 5s.
func NewDetached(timeout time.Duration, logger *slog.Logger) *Detached {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detached{timeout: timeout, logger: logger}
}

// Go starts write in the background and returns immediately. Errors and
// panics are logged and swallowed.
func (d *Detached) Go(op string, write func(ctx context.Context) error, attrs ...any) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("store write panicked", append([]any{"op", op, "panic", r}, attrs...)...)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := write(ctx); err != nil {
			d.logger.Error("store write failed", append([]any{"op", op, "error", err}, attrs...)...)
			return
		}
		d.logger.Debug("store write completed", append([]any{"op", op}, attrs...)...)
	}()
}

// Wait blocks until every write issued so far has finished.
func (d *Detached) Wait() {
	d.wg.Wait()
}
