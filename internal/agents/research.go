package agents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

// FallbackSummary is the market context used when competitor research
// fails; personas read it as "no competitor information".
const FallbackSummary = "（競合情報なし）"

// CompetitorResearch runs the market researcher with web search
// grounding. The response is free text, since the API rejects a
// response schema when search tools are enabled.
func (a *Agents) CompetitorResearch(ctx context.Context, input models.ProductInput) (*models.CompetitorData, error) {
	prompt := map[string]any{
		"role": "市場リサーチャー (Market Researcher)",
		"task": "ユーザーの製品アイデアに対する「実在する競合製品」や「代替ソリューション」をWeb検索して特定し、比較情報をまとめよ。",
		"inputContext": map[string]any{
			"productName":        input.Name,
			"productDescription": input.Description,
			"price":              input.Price,
			"target":             input.TargetHypothesis,
		},
		"instructions": []string{
			"Google検索を使用して、このアイデアに類似する既存の製品、サービス、または代替手段を探せ。",
			"もし直接的な競合が見つからない場合は、顧客が現在どのように課題を解決しているか（代替品）を探せ。",
			"見つかった競合について、以下の情報を簡潔にまとめよ：製品名、価格帯（分かれば）、主な特徴。",
			"ユーザーの製品と比較して、競合の優れている点や劣っている点があれば言及せよ。",
			"競合が全く見つからない場合は「直接的な競合は見当たりませんでした」と報告せよ。",
			"出力は箇条書きや短い段落を用い、ペルソナが判断材料として読みやすいテキスト形式にすること。",
		},
	}

	parts, err := textParts(prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	if opts.Timeout == 0 {
		// Search calls get a tighter bound than the plain-generation
		// default.
		opts.Timeout = 60 * time.Second
	}
	opts.Validator = func(text string) error {
		if len(strings.TrimSpace(text)) <= 10 {
			return errors.New("research summary too short")
		}
		return nil
	}

	req := &genai.Request{Model: a.organizerModel, Parts: parts, WebSearch: true}
	resp, err := a.inv.Invoke(ctx, req, "CompetitorResearcher", opts)
	if err != nil {
		return nil, err
	}
	a.recordUsage(resp, genai.TierOrganizer)

	data := &models.CompetitorData{Summary: resp.Text}
	for _, s := range resp.Sources {
		title := s.Title
		if title == "" {
			title = "Web Source"
		}
		data.Sources = append(data.Sources, models.Source{Title: title, URI: s.URI})
	}
	return data, nil
}
