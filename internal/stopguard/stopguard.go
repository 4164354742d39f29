// Package stopguard implements the cooperative kill switch. A designated
// marker file is the single global stop signal: its presence means every
// in-flight run must abort at the next safe suspension point.
package stopguard

import (
	"context"
	"errors"
	"os"
	"time"
)

// ErrStopped is returned when the stop marker is present. Callers map it to
// run status "aborted", never "failed"; cancellation is not an error.
var ErrStopped = errors.New("stopped by kill switch")

// pollInterval is how often bounded waits re-check the marker.
const pollInterval = 200 * time.Millisecond

// Guard checks for the stop marker on demand and feeds a cancellation token.
type Guard struct {
	markerPath string
}

// New creates a guard watching the given marker path.
func New(markerPath string) *Guard {
	return &Guard{markerPath: markerPath}
}

// MarkerPath returns the path of the watched marker file.
func (g *Guard) MarkerPath() string {
	return g.markerPath
}

// Check returns ErrStopped if the marker is present.
func (g *Guard) Check() error {
	if _, err := os.Stat(g.markerPath); err == nil {
		return ErrStopped
	}
	return nil
}

// WithCancel derives a context that is cancelled with cause ErrStopped as
// soon as the marker appears. The returned stop function releases the
// watcher goroutine and must always be called.
func (g *Guard) WithCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := g.Check(); err != nil {
					cancel(err)
					return
				}
			}
		}
	}()
	stop := func() {
		close(done)
		cancel(nil)
	}
	return ctx, stop
}

// Sleep waits for the given duration, re-checking the marker and the context
// every poll interval. It returns ErrStopped when the marker appears, the
// context cause when the context is cancelled, and nil when the full
// duration elapsed.
func (g *Guard) Sleep(ctx context.Context, d time.Duration) error {
	if err := g.Check(); err != nil {
		return err
	}
	deadline := time.Now().Add(d)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		wait := pollInterval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Cause(ctx)
		case <-timer.C:
		case <-ticker.C:
			timer.Stop()
		}
		if err := g.Check(); err != nil {
			return err
		}
	}
}

// Cause unwraps the cancellation cause of ctx, preferring ErrStopped over the
// generic context error so callers can tell a kill-switch abort from an
// expired timeout.
func Cause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}

// IsAbort reports whether err represents a cooperative cancellation: the stop
// marker or an expired run timeout. Both terminate a run as "aborted".
func IsAbort(err error) bool {
	return errors.Is(err, ErrStopped) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
