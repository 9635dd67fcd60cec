package agents

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

var reportSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"markdown":            map[string]any{"type": "STRING", "description": "CPF/PSF/PMFのフレームワークに基づいた詳細な分析レポート全文 (Markdown)"},
		"topRejectionReasons": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		"killerPhrases":       map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}, "description": "刺さったキーワード"},
		"positioningMap": map[string]any{
			"type":        "OBJECT",
			"description": "競合と自社製品の立ち位置を示すポジショニングマップデータ",
			"properties": map[string]any{
				"axisX": map[string]any{"type": "STRING", "description": "X軸のラベル (例: '低価格 -> 高価格')"},
				"axisY": map[string]any{"type": "STRING", "description": "Y軸のラベル (例: '汎用 -> 特化')"},
				"points": map[string]any{
					"type": "ARRAY",
					"items": map[string]any{
						"type": "OBJECT",
						"properties": map[string]any{
							"name":        map[string]any{"type": "STRING", "description": "製品名または企業名"},
							"x":           map[string]any{"type": "NUMBER", "description": "X座標 (-10〜10)"},
							"y":           map[string]any{"type": "NUMBER", "description": "Y座標 (-10〜10)"},
							"isOurs":      map[string]any{"type": "BOOLEAN", "description": "自社製品かどうか"},
							"description": map[string]any{"type": "STRING", "description": "短い説明"},
						},
						"required": []string{"name", "x", "y", "isOurs"},
					},
				},
			},
			"required": []string{"axisX", "axisY", "points"},
		},
	},
	"required": []string{"markdown", "topRejectionReasons", "killerPhrases", "positioningMap"},
}

type reportPayload struct {
	Markdown            string   `json:"markdown"`
	TopRejectionReasons []string `json:"topRejectionReasons"`
	KillerPhrases       []string `json:"killerPhrases"`
	PositioningMap      *struct {
		AxisX  string `json:"axisX"`
		AxisY  string `json:"axisY"`
		Points []struct {
			Name        string  `json:"name"`
			X           float64 `json:"x"`
			Y           float64 `json:"y"`
			IsOurs      bool    `json:"isOurs"`
			Description string  `json:"description"`
		} `json:"points"`
	} `json:"positioningMap"`
}

// AcceptanceRate is the share of buy verdicts in percent, rounded.
func AcceptanceRate(results []models.ConsumerResult) int {
	if len(results) == 0 {
		return 0
	}
	buys := 0
	for _, r := range results {
		if r.FinalDecision == models.DecisionBuy {
			buys++
		}
	}
	return int(math.Round(float64(buys) / float64(len(results)) * 100))
}

// Analysis runs the senior analyst over the full simulation outcome.
// The acceptance rate and persona breakdown are computed locally; the
// model only writes the narrative report and the positioning map.
func (a *Agents) Analysis(ctx context.Context, product models.ProductInput, personas []models.PersonaProfile, results []models.ConsumerResult, pitch *models.SalesPitch, competitor *models.CompetitorData) (*models.AnalysisReport, error) {
	if len(results) == 0 {
		return nil, errors.New("no consumer results to analyze")
	}

	byID := make(map[string]models.PersonaProfile, len(personas))
	for _, p := range personas {
		byID[p.ID] = p
	}

	totalWTP := 0
	structured := make([]map[string]any, 0, len(results))
	for _, r := range results {
		totalWTP += r.WillingnessToPay
		p := byID[r.PersonaID]
		var review map[string]any
		if r.Review != nil {
			review = map[string]any{
				"rating": r.Review.Rating,
				"title":  r.Review.Title,
				"body":   r.Review.Body,
				"nps":    r.Review.NPS,
			}
		}
		structured = append(structured, map[string]any{
			"personaId": r.PersonaID,
			"personaProfile": map[string]any{
				"name":       p.Name,
				"age":        p.Age,
				"gender":     p.Gender,
				"occupation": p.Occupation,
				"traits":     p.Traits,
				"values":     p.Values,
			},
			"outcome": map[string]any{
				"decision":           r.FinalDecision,
				"reason":             r.DecisionReason,
				"willingnessToPay":   r.WillingnessToPay,
				"detailedScore":      r.DetailedScore,
				"keyInsight":         r.KeyInsight,
				"attributeReasoning": r.AttributeReasoning,
			},
			"reverseQuestion":    r.ReverseQuestion,
			"interactionHistory": r.QAHistory,
			"review":             review,
		})
	}
	avgWTP := int(math.Round(float64(totalWTP) / float64(len(results))))

	competitorInfo := FallbackSummary
	if competitor != nil && competitor.Summary != "" {
		competitorInfo = competitor.Summary
	}
	today := time.Now().Format("2006年1月2日")

	prompt := map[string]any{
		"role": "シニアマーケットアナリスト (Senior Market Analyst)",
		"task": "シミュレーション結果を集計し、CPF/PSF/PMFの3つのフィット検証フレームワークに基づいた包括的な分析レポートを作成せよ。特に「なぜフィットしなかったのか」のギャップ分析と競合ポジショニングに注力すること。",
		"inputContext": map[string]any{
			"product":                  safeProduct(product),
			"pitch":                    pitch,
			"competitorInfo":           competitorInfo,
			"simulationResults":        structured,
			"averageWillingnessToPay":  avgWTP,
			"reportDate":               today,
		},
		"instructions": []string{
			fmt.Sprintf("レポートの発行日は必ず「%s」と明記すること。", today),
			"レポートはMarkdown形式で出力し、以下の章構成を必ず守ること。見出しは全て日本語のみとすること。",
			"1. **エグゼクティブサマリー**: 結果の概要に加え、現在の企画が「顧客課題の検証」「解決策の検証」「市場適合性」のどのステージにあるか、あるいはどこで躓いているかを診断せよ。",
			"2. **価格受容性分析**: 各ペルソナの「支払意向額」と提示価格のギャップを分析せよ。",
			"   - **【必須】必ず以下のカラムを持つMarkdown表形式（Table）でデータを出力すること**:",
			"     | ペルソナ属性 | 支払意向額 | ギャップ | 考察 |",
			"   - 考察では、Under-priced / Ideal / Over-priced などの判定を日本語で行うこと。",
			"3. **競合との比較・ポジショニング分析**: 収集された競合情報に基づき、この商品の立ち位置や優位性、あるいは埋没するリスクについて分析する。",
			"4. **属性別反応分析**: 各ペルソナの「属性要因(Why)」に基づき、なぜ特定の属性（年収、性格、環境意識など）を持つ層が反応したのか、あるいは拒絶したのかの傾向を深く分析する。",
			"5. **開発者への問いかけと仮説**: ペルソナから寄せられた「逆質問」や「もしXXだったら」という仮定の話をまとめ、開発者が見落としている視点や潜在的なニーズを提示する。",
			"6. **ペルソナの声と評価**: 肯定的なレビューの代表例と、否定的なフィードバック（見送り理由）の代表例を抜粋・要約し、ユーザーの生の声として紹介する。",
			"7. **ギャップの分析と改善戦略**: シミュレーション結果から判明した課題を、以下の3つの観点で整理し、具体的な軌道修正案を提示せよ。ただしわかりやすくするため、CPFやPSF、PMFという文言は使用禁止。",
			"   - **CPF Gap (顧客・課題)**: ターゲット選定は正しいか？ 課題は深刻か？（ターゲット変更の必要性）",
			"   - **PSF Gap (解決策)**: 機能やUXは課題を解決できているか？（機能追加・削除の必要性）",
			"   - **PMF Gap (市場・価格)**: 価格設定やビジネスモデルは適正か？（プライシング・販路の見直し）",
			"8. **実装ロードマップ**: 提案された改善戦略を実行し、次のフィットステージに進むための具体的なステップ。",
			"【重要: ポジショニングマップ生成】",
			"競合情報(competitorInfo)と自社製品を比較し、市場を最もよく表す「2つの軸（X軸・Y軸）」を定義せよ（例: 低価格 vs 高価格、汎用 vs 特化）。",
			"その軸上に、自社製品と主要な競合（3〜5社程度）を配置するための座標データ(x, y)を作成せよ。座標は -10 から 10 の範囲で設定すること。",
		},
	}

	parts, err := textParts(prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(p reportPayload) error {
		if p.Markdown == "" {
			return errors.New("empty report markdown")
		}
		return nil
	})

	var payload reportPayload
	req := &genai.Request{Model: a.organizerModel, Parts: parts, ResponseSchema: reportSchema}
	if err := a.call(ctx, req, genai.TierOrganizer, "AnalystAgent", opts, &payload); err != nil {
		return nil, err
	}

	report := &models.AnalysisReport{
		Markdown:            payload.Markdown,
		AcceptanceRate:      AcceptanceRate(results),
		TopRejectionReasons: payload.TopRejectionReasons,
		KillerPhrases:       payload.KillerPhrases,
	}
	for _, r := range results {
		report.PersonaBreakdown = append(report.PersonaBreakdown, models.PersonaVerdict{
			ID:       r.PersonaID,
			Decision: r.FinalDecision,
		})
	}
	if payload.PositioningMap != nil {
		pm := &models.PositioningMap{
			AxisX: payload.PositioningMap.AxisX,
			AxisY: payload.PositioningMap.AxisY,
		}
		for _, pt := range payload.PositioningMap.Points {
			pm.Points = append(pm.Points, models.PositionPoint{
				Name:        pt.Name,
				X:           pt.X,
				Y:           pt.Y,
				IsOurs:      pt.IsOurs,
				Description: pt.Description,
			})
		}
		report.PositioningMap = pm
	}
	return report, nil
}
