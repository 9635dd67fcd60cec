// Package agents implements the role prompts of the simulation: the
// casting director, salesperson, market researcher, consumer personas,
// discussion moderator, analyst, and pivot strategist. Each agent is a
// stateless function over an invoke.Invoker; the sim engine owns all
// state transitions and pacing around these calls.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/internal/invoke"
	"github.com/panelsim/panelsim/internal/jsonx"
	"github.com/panelsim/panelsim/pkg/models"
)

// UsageFunc receives the token usage of each completed call, tagged
// with the tier that served it.
type UsageFunc func(u genai.Usage, tier genai.Tier)

// Agents bundles the invoker and model assignment shared by all roles.
type Agents struct {
	inv            *invoke.Invoker
	organizerModel string
	workerModel    string
	base           invoke.Options
	onUsage        UsageFunc
}

// New creates the agent set. base carries the shared retry policy;
// zero fields fall back to the invoke defaults. onUsage may be nil.
func New(inv *invoke.Invoker, organizerModel, workerModel string, base invoke.Options, onUsage UsageFunc) *Agents {
	return &Agents{
		inv:            inv,
		organizerModel: organizerModel,
		workerModel:    workerModel,
		base:           base,
		onUsage:        onUsage,
	}
}

func (a *Agents) recordUsage(resp *genai.Response, tier genai.Tier) {
	if a.onUsage == nil || resp == nil || resp.Usage == nil {
		return
	}
	a.onUsage(*resp.Usage, tier)
}

// safeProduct strips the inline image so prompt contexts stay within
// token limits; the image travels separately as an inline-data part.
func safeProduct(p models.ProductInput) models.ProductInput {
	p.ProductImage = ""
	p.ImageMIMEType = ""
	return p
}

// productParts builds the request parts for a prompt that should see
// the product image when one is attached.
func productParts(p models.ProductInput, prompt any) ([]genai.Part, error) {
	text, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}

	var parts []genai.Part
	if p.ProductImage != "" && p.ImageMIMEType != "" {
		parts = append(parts, genai.Part{InlineData: &genai.Blob{
			MIMEType: p.ImageMIMEType,
			Data:     p.ProductImage,
		}})
	}
	parts = append(parts, genai.Part{Text: string(text)})
	return parts, nil
}

// textParts builds the request parts for a text-only prompt.
func textParts(prompt any) ([]genai.Part, error) {
	text, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}
	return []genai.Part{{Text: string(text)}}, nil
}

// decodeValidator returns an Options validator that requires the
// response to decode into a fresh T and pass check.
func decodeValidator[T any](check func(v T) error) func(string) error {
	return func(text string) error {
		var v T
		if err := jsonx.Unmarshal(text, "validator", &v); err != nil {
			return err
		}
		return check(v)
	}
}

// call runs one paced, retried generation and decodes the JSON payload
// into out.
func (a *Agents) call(ctx context.Context, req *genai.Request, tier genai.Tier, contextStr string, opts invoke.Options, out any) error {
	resp, err := a.inv.Invoke(ctx, req, contextStr, opts)
	if err != nil {
		return err
	}
	a.recordUsage(resp, tier)
	return jsonx.Unmarshal(resp.Text, contextStr, out)
}
