package throttle

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Queue bounds the number of concurrently running tasks. Tasks beyond
// the bound wait in FIFO order; completion of a running task (success
// or failure) admits the next waiter. Independent of the RateLimiter:
// the limiter throttles raw call frequency, the queue caps how many
// multi-step persona pipelines are in flight.
type Queue struct {
	sem         *semaphore.Weighted
	concurrency int
}

// NewQueue creates a queue admitting at most concurrency tasks at
// once. A non-positive value falls back to 1.
func NewQueue(concurrency int) *Queue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Queue{
		sem:         semaphore.NewWeighted(int64(concurrency)),
		concurrency: concurrency,
	}
}

// Concurrency returns the configured bound.
func (q *Queue) Concurrency() int { return q.concurrency }

// Submit runs the task once a slot is free. A task's failure releases
// its slot and surfaces only to its own caller; siblings are
// unaffected.
func Submit[T any](ctx context.Context, q *Queue, task func(ctx context.Context) (T, error)) (T, error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	defer q.sem.Release(1)
	return task(ctx)
}
