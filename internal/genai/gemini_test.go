package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateParsesTextAndUsage(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if !strings.Contains(r.URL.Path, "test-model:generateContent") {
			t.Errorf("path = %s, want model in path", r.URL.Path)
		}
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "hello "}, {"text": "world"}]}}],
			"usageMetadata": {"promptTokenCount": 10, "candidatesTokenCount": 5, "totalTokenCount": 15}
		}`))
	})

	g := NewGemini("test-key", WithBaseURL(srv.URL))
	resp, err := g.Generate(context.Background(), &Request{Model: "test-model", Parts: []Part{{Text: "hi"}}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if resp.Text != "hello world" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello world")
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 || resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestGenerateNon200BecomesAPIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	})

	g := NewGemini("test-key", WithBaseURL(srv.URL))
	_, err := g.Generate(context.Background(), &Request{Model: "m", Parts: []Part{{Text: "hi"}}})
	if err == nil {
		t.Fatal("Generate() on 429 returned nil error")
	}
	if got := StatusOf(err); got != http.StatusTooManyRequests {
		t.Errorf("StatusOf(err) = %d, want 429", got)
	}
}

func TestGenerateRequestBody(t *testing.T) {
	var got map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "{}"}]}}]}`))
	})

	g := NewGemini("test-key", WithBaseURL(srv.URL))
	req := &Request{
		Model: "m",
		Parts: []Part{
			{Text: "describe this"},
			{InlineData: &Blob{MIMEType: "image/png", Data: "aGVsbG8="}},
		},
		ResponseSchema: Schema{"type": "OBJECT"},
	}
	if _, err := g.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	cfg, ok := got["generationConfig"].(map[string]any)
	if !ok {
		t.Fatal("request body has no generationConfig")
	}
	if cfg["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v", cfg["responseMimeType"])
	}
	if _, ok := cfg["responseSchema"]; !ok {
		t.Error("responseSchema missing from generationConfig")
	}
	if _, ok := got["tools"]; ok {
		t.Error("tools present on a schema request")
	}

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(parts))
	}
	inline := parts[1].(map[string]any)["inlineData"].(map[string]any)
	if inline["mimeType"] != "image/png" {
		t.Errorf("inlineData.mimeType = %v", inline["mimeType"])
	}
}

func TestGenerateWebSearchEnablesTool(t *testing.T) {
	var got map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{
			"candidates": [{
				"content": {"parts": [{"text": "findings"}]},
				"groundingMetadata": {"groundingChunks": [
					{"web": {"uri": "https://example.com/a", "title": "A"}},
					{"web": null}
				]}
			}]
		}`))
	})

	g := NewGemini("test-key", WithBaseURL(srv.URL))
	resp, err := g.Generate(context.Background(), &Request{Model: "m", Parts: []Part{{Text: "research"}}, WebSearch: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, ok := got["tools"]; !ok {
		t.Error("tools missing from web search request")
	}
	if len(resp.Sources) != 1 || resp.Sources[0].URI != "https://example.com/a" {
		t.Errorf("Sources = %+v", resp.Sources)
	}
}

func TestGenerateEmptyCandidate(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates": []}`))
	})

	g := NewGemini("test-key", WithBaseURL(srv.URL))
	if _, err := g.Generate(context.Background(), &Request{Model: "m", Parts: []Part{{Text: "hi"}}}); err == nil {
		t.Fatal("Generate() with no candidates returned nil error")
	}
}

func TestGenerateWithoutKeyFailsFast(t *testing.T) {
	g := NewGemini("")
	_, err := g.Generate(context.Background(), &Request{Model: "m", Parts: []Part{{Text: "hi"}}})
	if err == nil {
		t.Fatal("Generate() without key returned nil error")
	}
	if got := StatusOf(err); got != http.StatusUnauthorized {
		t.Errorf("StatusOf(err) = %d, want 401", got)
	}
}
