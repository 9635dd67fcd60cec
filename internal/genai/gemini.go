package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

var tracer = otel.Tracer("panelsim-genai")

// Gemini is a Client backed by the Gemini generateContent REST API.
type Gemini struct {
	apiKey  string
	baseURL string
	httpc   *http.Client
}

// GeminiOption configures a Gemini client.
type GeminiOption func(*Gemini)

// WithBaseURL overrides the API endpoint. Used by tests to point the
// client at a local server.
func WithBaseURL(u string) GeminiOption {
	return func(g *Gemini) { g.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpc = c }
}

// NewGemini creates a Gemini client. The key is required; callers that
// may run without one should check HasKey before issuing requests.
func NewGemini(apiKey string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HasKey reports whether the client was configured with an API key.
func (g *Gemini) HasKey() bool { return g.apiKey != "" }

// Generate issues one generateContent call and maps the provider
// response to the neutral Response type. Non-200 statuses come back as
// *APIError so callers can branch on the status code.
func (g *Gemini) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "genai.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("genai.model", req.Model),
		attribute.Bool("genai.web_search", req.WebSearch),
	)

	if g.apiKey == "" {
		err := &APIError{Status: http.StatusUnauthorized, Message: "API key is not configured"}
		span.SetStatus(codes.Error, err.Message)
		return nil, err
	}

	body, err := json.Marshal(g.buildBody(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", g.baseURL, req.Model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(httpReq)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(raw)}
		span.SetStatus(codes.Error, apiErr.Error())
		span.SetAttributes(attribute.Int("genai.status_code", resp.StatusCode))
		return nil, apiErr
	}

	out, err := parseGenerateResponse(raw)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if out.Usage != nil {
		span.SetAttributes(attribute.Int("genai.total_tokens", out.Usage.TotalTokens))
	}
	return out, nil
}

func (g *Gemini) buildBody(req *Request) map[string]any {
	parts := make([]map[string]any, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.InlineData != nil {
			parts = append(parts, map[string]any{
				"inlineData": map[string]any{
					"mimeType": p.InlineData.MIMEType,
					"data":     p.InlineData.Data,
				},
			})
			continue
		}
		parts = append(parts, map[string]any{"text": p.Text})
	}

	body := map[string]any{
		"contents": []map[string]any{{"role": "user", "parts": parts}},
	}

	genCfg := map[string]any{}
	if req.ResponseSchema != nil {
		genCfg["responseMimeType"] = "application/json"
		genCfg["responseSchema"] = map[string]any(req.ResponseSchema)
	} else if req.JSONOutput {
		genCfg["responseMimeType"] = "application/json"
	}
	if len(genCfg) > 0 {
		body["generationConfig"] = genCfg
	}

	// Search grounding and structured output are mutually exclusive on
	// the API, so tools go on only when no schema is set.
	if req.WebSearch && req.ResponseSchema == nil {
		body["tools"] = []map[string]any{{"googleSearch": map[string]any{}}}
	}

	return body
}

func parseGenerateResponse(raw []byte) (*Response, error) {
	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty candidate in response")
	}

	cand := resp.Candidates[0]
	text := ""
	for _, p := range cand.Content.Parts {
		text += p.Text
	}

	out := &Response{Text: text}
	if resp.UsageMetadata != nil {
		out.Usage = &Usage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	if cand.GroundingMetadata != nil {
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			out.Sources = append(out.Sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return out, nil
}

// Gemini API response wire types.
type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
	GroundingMetadata *groundingMetadata `json:"groundingMetadata"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type groundingMetadata struct {
	GroundingChunks []struct {
		Web *struct {
			URI   string `json:"uri"`
			Title string `json:"title"`
		} `json:"web"`
	} `json:"groundingChunks"`
}
