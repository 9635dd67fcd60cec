// Package genai defines the Generation Service contract the rest of
// the engine depends on, and ships the default Gemini REST client.
// The contract is deliberately narrow: one request in, one response
// out, errors tagged with an HTTP-like status so callers can decide
// fatal vs retryable without knowing the provider.
package genai

import (
	"context"
	"errors"
	"fmt"
)

// Tier identifies which generation tier served a call, for cost
// accounting. Organizer is the high-capability tier used for casting,
// research, and analysis; worker is the fast tier used for per-persona
// calls.
type Tier string

const (
	TierOrganizer Tier = "organizer"
	TierWorker    Tier = "worker"
)

// Blob is inline binary content (e.g. a product image).
type Blob struct {
	MIMEType string
	Data     string // base64, no data: prefix
}

// Part is one piece of request content.
type Part struct {
	Text       string
	InlineData *Blob
}

// Schema is a structured-output schema in the provider's JSON-schema
// dialect. Built once per agent and never mutated.
type Schema map[string]any

// Request is an immutable generation request.
type Request struct {
	Model          string
	Parts          []Part
	ResponseSchema Schema // implies JSON output when set
	JSONOutput     bool   // force JSON MIME type without a schema
	WebSearch      bool   // enable search grounding; excludes ResponseSchema
}

// Usage is the token accounting metadata of one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is what the Generation Service produced. Never mutated.
type Response struct {
	Text    string
	Usage   *Usage
	Sources []Source
}

// Source is one grounding citation from a search-augmented call.
type Source struct {
	Title string
	URI   string
}

// Client is the pluggable generation capability.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// APIError is a provider failure tagged with an HTTP-like status.
// 400 means the request itself is malformed and retrying cannot help;
// 429 and 503 indicate provider pressure and warrant a longer backoff.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation service error (status %d): %s", e.Status, e.Message)
}

// StatusOf returns the HTTP-like status of err if it is an APIError,
// or 0 otherwise.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}
