// Package invoke wraps the Generation Service with pacing, per-call
// timeouts, and retry with exponential backoff. All agent calls go
// through one Invoker so that throttling and failure policy live in a
// single place.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/internal/throttle"
)

// Options control one invocation. Zero values fall back to the
// defaults below.
type Options struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt; it doubles
	// per subsequent attempt.
	BaseDelay time.Duration
	// Timeout bounds each individual call.
	Timeout time.Duration
	// RetryPenalty is added to the backoff after a rate-limit or
	// overload response (429/503).
	RetryPenalty time.Duration
	// Validator, when set, checks the response text. A validation
	// failure counts as a retryable attempt failure.
	Validator func(text string) error
}

const (
	DefaultMaxAttempts  = 5
	DefaultBaseDelay    = 10 * time.Second
	DefaultTimeout      = 90 * time.Second
	DefaultRetryPenalty = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryPenalty < 0 {
		o.RetryPenalty = DefaultRetryPenalty
	}
	return o
}

// FatalError marks a failure that retrying cannot fix, such as a
// malformed request rejected by the provider.
type FatalError struct {
	Context string
	Err     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: fatal: %v", e.Context, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExhaustedError reports that every attempt failed. It wraps the last
// attempt's cause.
type ExhaustedError struct {
	Context  string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: all %d attempts failed: %v", e.Context, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Invoker issues generation calls through the shared rate limiter.
type Invoker struct {
	client  genai.Client
	limiter *throttle.RateLimiter
}

// New creates an Invoker. The limiter may be nil, in which case calls
// are not paced.
func New(client genai.Client, limiter *throttle.RateLimiter) *Invoker {
	return &Invoker{client: client, limiter: limiter}
}

// Invoke runs one generation request under the retry policy.
// contextStr names the caller for logs and error wrapping.
//
// Retryable failures: transport errors, provider 429/500/503, empty
// response text, and validator rejections. A provider 400 aborts
// immediately as a *FatalError. When attempts run out the last cause
// is returned wrapped in *ExhaustedError.
func (inv *Invoker) Invoke(ctx context.Context, req *genai.Request, contextStr string, opts Options) (*genai.Response, error) {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := opts.BaseDelay << (attempt - 1)
			if status := genai.StatusOf(lastErr); status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
				delay += opts.RetryPenalty
			}
			log.Warn().
				Str("context", contextStr).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying generation call")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := inv.attempt(ctx, req, opts)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if genai.StatusOf(err) == http.StatusBadRequest {
			return nil, &FatalError{Context: contextStr, Err: err}
		}
		lastErr = err
	}

	log.Error().
		Str("context", contextStr).
		Int("attempts", opts.MaxAttempts).
		Err(lastErr).
		Msg("Generation call exhausted all attempts")
	return nil, &ExhaustedError{Context: contextStr, Attempts: opts.MaxAttempts, Err: lastErr}
}

func (inv *Invoker) attempt(ctx context.Context, req *genai.Request, opts Options) (*genai.Response, error) {
	if inv.limiter != nil {
		if err := inv.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	resp, err := inv.client.Generate(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("call timed out after %v: %w", opts.Timeout, err)
		}
		return nil, err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, errors.New("empty response text")
	}
	if opts.Validator != nil {
		if err := opts.Validator(resp.Text); err != nil {
			return nil, fmt.Errorf("response validation: %w", err)
		}
	}
	return resp, nil
}
