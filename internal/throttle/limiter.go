// Package throttle provides the two shared admission controls that
// protect the generation backend: a RateLimiter that spaces out call
// starts, and a Queue that bounds how many persona pipelines run at
// once. Both are process-wide within a run and injected as explicit
// dependencies so tests can substitute zero-delay instances.
package throttle

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter guarantees that the starts of consecutive scheduled
// tasks are separated by at least a minimum interval. Only the "go"
// signal is serialized; task execution itself runs in parallel.
// Waiters are admitted in FIFO order, and a failing task never blocks
// the permission of the next one.
type RateLimiter struct {
	lim *rate.Limiter
}

// NewRateLimiter creates a limiter with the given minimum interval
// between call starts. A non-positive interval disables pacing.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	if minInterval <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{lim: rate.NewLimiter(rate.Every(minInterval), 1)}
}

// Wait blocks until the caller is permitted to start, or the context
// is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l.lim == nil {
		return ctx.Err()
	}
	return l.lim.Wait(ctx)
}

// Schedule waits for permission and then runs the task. The task's
// own failure is returned to the caller untouched; it does not affect
// subsequent permissions.
func Schedule[T any](ctx context.Context, l *RateLimiter, task func(ctx context.Context) (T, error)) (T, error) {
	if err := l.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return task(ctx)
}
