package throttle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panelsim/panelsim/internal/throttle"
)

func TestRateLimiterSpacing(t *testing.T) {
	const interval = 30 * time.Millisecond
	const n = 5

	l := throttle.NewRateLimiter(interval)
	ctx := context.Background()

	var mu sync.Mutex
	var starts []time.Time

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = throttle.Schedule(ctx, l, func(ctx context.Context) (struct{}, error) {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				// Task duration must not affect spacing of starts.
				time.Sleep(5 * time.Millisecond)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if len(starts) != n {
		t.Fatalf("got %d starts, want %d", len(starts), n)
	}
	mu.Lock()
	defer mu.Unlock()
	sortTimes(starts)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		// Allow a small scheduling tolerance below the configured interval.
		if gap < interval-5*time.Millisecond {
			t.Errorf("start %d followed start %d after %v, want >= %v", i, i-1, gap, interval)
		}
	}
}

func TestRateLimiterFailingTaskDoesNotBlock(t *testing.T) {
	l := throttle.NewRateLimiter(5 * time.Millisecond)
	ctx := context.Background()

	boom := errors.New("boom")
	if _, err := throttle.Schedule(ctx, l, func(ctx context.Context) (int, error) {
		return 0, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Schedule() error = %v, want %v", err, boom)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if v, err := throttle.Schedule(ctx, l, func(ctx context.Context) (int, error) {
			return 42, nil
		}); err != nil || v != 42 {
			t.Errorf("Schedule() = (%d, %v), want (42, nil)", v, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second task never ran after first task failed")
	}
}

func TestRateLimiterContextCancel(t *testing.T) {
	l := throttle.NewRateLimiter(time.Hour)
	ctx := context.Background()

	// Consume the initial token.
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(cctx); err == nil {
		t.Fatal("Wait() with expired context returned nil error")
	}
}

func TestQueueConcurrencyBound(t *testing.T) {
	const bound = 3
	const tasks = 12

	q := throttle.NewQueue(bound)
	ctx := context.Background()

	var running, peak int64
	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = throttle.Submit(ctx, q, func(ctx context.Context) (struct{}, error) {
				cur := atomic.AddInt64(&running, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if cur <= p || atomic.CompareAndSwapInt64(&peak, p, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&running, -1)
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&peak); got > bound {
		t.Errorf("peak concurrency = %d, want <= %d", got, bound)
	}
}

func TestQueueFailureReleasesSlot(t *testing.T) {
	q := throttle.NewQueue(1)
	ctx := context.Background()

	boom := errors.New("task failed")
	if _, err := throttle.Submit(ctx, q, func(ctx context.Context) (int, error) {
		return 0, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Submit() error = %v, want %v", err, boom)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if v, _ := throttle.Submit(ctx, q, func(ctx context.Context) (int, error) {
			return 7, nil
		}); v != 7 {
			t.Errorf("Submit() = %d, want 7", v)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue slot was not released after a failing task")
	}
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
