// Package jsonx recovers structured JSON from the loosely formatted
// text a generative model returns. Models wrap payloads in fenced
// code blocks, prepend prose, and occasionally emit trailing commas;
// this package is the boundary adapter that cleans all of that up
// before deserialization.
package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports a failed extraction, carrying the calling
// context so retry layers can attribute the failure.
type ParseError struct {
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Context, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	fenceRE         = regexp.MustCompile("(?is)```(?:json|js|css|html)?\\s*(.*?)\\s*```")
	trailingObjectRE = regexp.MustCompile(`,\s*}`)
	trailingArrayRE  = regexp.MustCompile(`,\s*]`)
)

// Extract locates the JSON payload inside raw text: strips an optional
// fenced code block, slices to the outermost brace/bracket span, and
// removes trailing comma artifacts. It does not validate that the
// result deserializes.
func Extract(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("empty response text")
	}

	clean := raw
	if m := fenceRE.FindStringSubmatch(raw); m != nil {
		clean = m[1]
	}

	firstCurly := strings.Index(clean, "{")
	firstSquare := strings.Index(clean, "[")

	start, end := -1, -1
	switch {
	case firstCurly != -1 && (firstSquare == -1 || firstCurly < firstSquare):
		start = firstCurly
		end = strings.LastIndex(clean, "}")
	case firstSquare != -1:
		start = firstSquare
		end = strings.LastIndex(clean, "]")
	}
	if start != -1 && end > start {
		clean = clean[start : end+1]
	}

	clean = trailingObjectRE.ReplaceAllString(clean, "}")
	clean = trailingArrayRE.ReplaceAllString(clean, "]")
	return clean, nil
}

// Unmarshal extracts the JSON payload from raw and decodes it into v.
// Failures are returned as a *ParseError carrying contextStr; callers
// treat them as retryable, since a regenerated response may parse.
func Unmarshal(raw, contextStr string, v any) error {
	clean, err := Extract(raw)
	if err != nil {
		return &ParseError{Context: contextStr, Err: err}
	}
	if err := json.Unmarshal([]byte(clean), v); err != nil {
		if !Balanced(clean) {
			err = fmt.Errorf("%w (unbalanced brackets, response likely truncated)", err)
		}
		return &ParseError{Context: contextStr, Err: err}
	}
	return nil
}

// Balanced reports whether curly braces and square brackets pair up in
// s. A cheap completeness check for truncated model output.
func Balanced(s string) bool {
	curly, square := 0, 0
	for _, c := range s {
		switch c {
		case '{':
			curly++
		case '}':
			curly--
		case '[':
			square++
		case ']':
			square--
		}
	}
	return curly == 0 && square == 0
}
