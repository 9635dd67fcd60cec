package invoke

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/panelsim/panelsim/internal/genai"
)

// scriptedClient returns its responses in order, then repeats the last.
type scriptedClient struct {
	calls     int
	responses []func() (*genai.Response, error)
}

func (c *scriptedClient) Generate(ctx context.Context, req *genai.Request) (*genai.Response, error) {
	i := c.calls
	c.calls++
	if i >= len(c.responses) {
		i = len(c.responses) - 1
	}
	return c.responses[i]()
}

func ok(text string) func() (*genai.Response, error) {
	return func() (*genai.Response, error) {
		return &genai.Response{Text: text}, nil
	}
}

func fail(status int) func() (*genai.Response, error) {
	return func() (*genai.Response, error) {
		return nil, &genai.APIError{Status: status, Message: "scripted failure"}
	}
}

// fastOpts keeps retries fast in tests.
func fastOpts() Options {
	return Options{
		MaxAttempts:  5,
		BaseDelay:    time.Millisecond,
		Timeout:      time.Second,
		RetryPenalty: time.Millisecond,
	}
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	c := &scriptedClient{responses: []func() (*genai.Response, error){ok("result")}}
	inv := New(c, nil)

	resp, err := inv.Invoke(context.Background(), &genai.Request{Model: "m"}, "test", fastOpts())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Text != "result" {
		t.Errorf("Text = %q, want %q", resp.Text, "result")
	}
	if c.calls != 1 {
		t.Errorf("calls = %d, want 1", c.calls)
	}
}

func TestInvokeBadRequestIsFatal(t *testing.T) {
	c := &scriptedClient{responses: []func() (*genai.Response, error){fail(http.StatusBadRequest)}}
	inv := New(c, nil)

	_, err := inv.Invoke(context.Background(), &genai.Request{Model: "m"}, "CastingAgent", fastOpts())
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T = %v, want *FatalError", err, err)
	}
	if fe.Context != "CastingAgent" {
		t.Errorf("FatalError.Context = %q", fe.Context)
	}
	if c.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry after 400)", c.calls)
	}
}

func TestInvokeRetriesRateLimitThenSucceeds(t *testing.T) {
	c := &scriptedClient{responses: []func() (*genai.Response, error){
		fail(http.StatusTooManyRequests),
		fail(http.StatusServiceUnavailable),
		ok("third time"),
	}}
	inv := New(c, nil)

	resp, err := inv.Invoke(context.Background(), &genai.Request{Model: "m"}, "test", fastOpts())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Text != "third time" {
		t.Errorf("Text = %q", resp.Text)
	}
	if c.calls != 3 {
		t.Errorf("calls = %d, want 3", c.calls)
	}
}

func TestInvokeValidatorFailureRetries(t *testing.T) {
	c := &scriptedClient{responses: []func() (*genai.Response, error){
		ok("not json"),
		ok(`{"valid": true}`),
	}}
	inv := New(c, nil)

	opts := fastOpts()
	opts.Validator = func(text string) error {
		if text == "not json" {
			return errors.New("unparseable")
		}
		return nil
	}

	resp, err := inv.Invoke(context.Background(), &genai.Request{Model: "m"}, "test", opts)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Text != `{"valid": true}` {
		t.Errorf("Text = %q", resp.Text)
	}
	if c.calls != 2 {
		t.Errorf("calls = %d, want 2", c.calls)
	}
}

func TestInvokeEmptyTextRetries(t *testing.T) {
	c := &scriptedClient{responses: []func() (*genai.Response, error){
		ok("   "),
		ok("content"),
	}}
	inv := New(c, nil)

	resp, err := inv.Invoke(context.Background(), &genai.Request{Model: "m"}, "test", fastOpts())
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if resp.Text != "content" {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestInvokeExhaustionWrapsLastCause(t *testing.T) {
	c := &scriptedClient{responses: []func() (*genai.Response, error){fail(http.StatusInternalServerError)}}
	inv := New(c, nil)

	opts := fastOpts()
	opts.MaxAttempts = 3

	_, err := inv.Invoke(context.Background(), &genai.Request{Model: "m"}, "test", opts)
	var ee *ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("error %T = %v, want *ExhaustedError", err, err)
	}
	if ee.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", ee.Attempts)
	}
	var ae *genai.APIError
	if !errors.As(err, &ae) || ae.Status != http.StatusInternalServerError {
		t.Errorf("exhausted error does not wrap the last APIError: %v", err)
	}
	if c.calls != 3 {
		t.Errorf("calls = %d, want 3", c.calls)
	}
}

func TestInvokeContextCancelStopsRetry(t *testing.T) {
	c := &scriptedClient{responses: []func() (*genai.Response, error){fail(http.StatusServiceUnavailable)}}
	inv := New(c, nil)

	opts := fastOpts()
	opts.BaseDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := inv.Invoke(ctx, &genai.Request{Model: "m"}, "test", opts)
	if err == nil {
		t.Fatal("Invoke() with canceled context returned nil error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context deadline", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Invoke() kept waiting after cancellation")
	}
}
