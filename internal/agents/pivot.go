package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

var pivotSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"title":             map[string]any{"type": "STRING", "description": "CPF/PSF/PMF検証に基づき再定義された、勝てる新規プロダクト・サービス名"},
		"catchCopy":         map[string]any{"type": "STRING", "description": "ターゲットの課題（Pain）と解決策（Solution）のフィットを一言で表すキャッチコピー"},
		"executiveSummary":  map[string]any{"type": "STRING", "description": "1. エグゼクティブサマリー：CPF（顧客と課題）、PSF（解決策）、PMF（市場適合）の3つの観点から、なぜこの事業が成功するかを要約。"},
		"problemSolution":   map[string]any{"type": "STRING", "description": "2. 本サービスが解決する課題 (CPF & PSF検証)：\n- CPF: 具体的に「誰の(Customer)」「どんな深刻な課題(Problem)」なのか？（Nice to haveではなくMust haveな課題か）\n- PSF: なぜ既存の代替品ではダメで、この解決策(Solution)ならフィットするのか？"},
		"serviceAndPricing": map[string]any{"type": "STRING", "description": "3. 提供サービスと料金プラン：PMFを達成するための具体的な機能セットと、WTP(支払意向額)に基づくプライシング戦略。"},
		"dynamicSections": map[string]any{
			"type":        "ARRAY",
			"description": "4 & 5. PMF達成のための戦略的ピボット：\n市場調査データから、PMF（Product-Market Fit）を達成するために不可欠な要素や、埋めるべきギャップ（Gap）を2〜3個のセクションとして記述せよ。\n（例：「PMFに向けた機能ピボット」「CPFを深めるターゲット再定義」「スケーラビリティの検証」など）",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"title":   map[string]any{"type": "STRING", "description": "セクションタイトル（例：PMF達成へのロードマップ）"},
					"content": map[string]any{"type": "STRING", "description": "検証結果と具体的な戦略内容"},
				},
				"required": []string{"title", "content"},
			},
		},
		"simulation": map[string]any{"type": "STRING", "description": "6. 導入シミュレーション：PMF達成後の世界観。ターゲット顧客がどのように課題を解決し、LTV（生涯顧客価値）が高まるかを描く。"},
		"conclusion": map[string]any{"type": "STRING", "description": "7. 結論：3つのフィット（CPF, PSF, PMF）が証明された事業として、投資すべき理由。"},
	},
	"required": []string{"title", "catchCopy", "executiveSummary", "problemSolution", "serviceAndPricing", "dynamicSections", "simulation", "conclusion"},
}

type pivotPayload struct {
	Title             string               `json:"title"`
	CatchCopy         string               `json:"catchCopy"`
	ExecutiveSummary  string               `json:"executiveSummary"`
	ProblemSolution   string               `json:"problemSolution"`
	ServiceAndPricing string               `json:"serviceAndPricing"`
	DynamicSections   []models.PlanSection `json:"dynamicSections"`
	Simulation        string               `json:"simulation"`
	Conclusion        string               `json:"conclusion"`
}

// ImprovementPlan runs the lean-startup strategist over the research
// data of a completed run and writes a pivoted business plan.
func (a *Agents) ImprovementPlan(ctx context.Context, product models.ProductInput, personas []models.PersonaProfile, results []models.ConsumerResult, competitor *models.CompetitorData) (*models.ImprovementPlan, error) {
	byID := make(map[string]models.PersonaProfile, len(personas))
	for _, p := range personas {
		byID[p.ID] = p
	}

	var b strings.Builder
	for _, r := range results {
		p := byID[r.PersonaID]
		condition := r.TargetPriceCondition
		if condition == "" {
			condition = "なし"
		}
		fmt.Fprintf(&b, `
【調査対象者: %s (%d歳, %s)】
- 判定: %s
- 適正価格感(WTP): ¥%d
- 決断理由: %s
- 購入条件: %s
- インサイト: %s
`, p.Name, p.Age, p.Occupation, strings.ToUpper(string(r.FinalDecision)), r.WillingnessToPay, r.DecisionReason, condition, r.KeyInsight)
	}

	competitorInfo := "なし"
	if competitor != nil && competitor.Summary != "" {
		competitorInfo = competitor.Summary
	}

	prompt := map[string]any{
		"role": "リーンスタートアップ・ストラテジスト (Lean Startup Strategist)",
		"task": "実施された市場調査（N=ユーザーインタビュー）の結果を分析し、3つのフィット検証（CPF, PSF, PMF）に基づいた『新規事業企画書』を作成せよ。",
		"inputContext": map[string]any{
			"marketResearchData": b.String(),
			"originalIdeaContext": map[string]any{
				"name":        product.Name,
				"description": product.Description,
				"price":       product.Price,
				"target":      product.TargetHypothesis,
			},
			"competitorInfo": competitorInfo,
		},
		"instructions": []string{
			"【最重要コンセプト: フィット検証】",
			"本企画書は、以下の3つのフレームワークを用いて論理的に構成し、事業の確実性を証明すること。",
			"1. **CPF (Customer-Problem Fit)**: 顧客定義と課題の深刻さを検証。「本当にその課題にお金を払うほど困っているか？（Nice to have ではなく Must have か）」",
			"2. **PSF (Problem-Solution Fit)**: 解決策の適切性を検証。「提案するソリューションで本当に課題が解決するか？ 過剰機能や不足はないか？」",
			"3. **PMF (Product-Market Fit)**: 市場適合性を検証。「適正な価格設定で、持続的に売れ続けるビジネスモデルか？」",
			"",
			"【執筆方針】",
			"・文中の根拠は全て『市場調査（シミュレーション）の結果』を用い、各フィットが達成できているか、あるいは達成するためにどうピボット（軌道修正）したかを記述すること。",
			"・単なる機能羅列ではなく、「なぜその機能がPSFに必要なのか」「なぜその価格がPMFに適しているのか」という文脈で書くこと。ただしPMFやCPFといった言葉は絶対に使わないこと。",
			"・Pass（不採用）判定を出した顧客の意見は、「CPF/PSFのズレ」として扱い、それを解消するためのピボット案（ターゲット変更や機能変更）を提案に盛り込むこと。",
			"",
			"【企画書の構成（骨子）】",
			"1. エグゼクティブサマリー (3つのフィットの要約)",
			"2. 本サービスが解決する課題 (CPF & PSF検証)",
			"3. 提供サービスと料金プラン (PMF戦略)",
			"4. (市場調査から導き出したPMF達成のための重要項目)",
			"5. (市場調査から導き出したPMF達成のための重要項目)",
			"6. 導入シミュレーション",
			"7. 結論",
			"",
			"【注意事項】",
			"・『前回の提案では』『修正案として』といった過去の経緯を感じさせる文言は禁止。あくまで『検証結果に基づいた最適解』として新規に記述すること。",
			"・自信に満ちた、論理的かつ説得力のあるビジネス文書として仕上げること。",
		},
	}

	parts, err := textParts(prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(p pivotPayload) error {
		if p.Title == "" {
			return errors.New("empty plan title")
		}
		return nil
	})

	var payload pivotPayload
	req := &genai.Request{Model: a.organizerModel, Parts: parts, ResponseSchema: pivotSchema}
	if err := a.call(ctx, req, genai.TierOrganizer, "PivotPlanner", opts, &payload); err != nil {
		return nil, err
	}

	return &models.ImprovementPlan{
		Title:             payload.Title,
		CatchCopy:         payload.CatchCopy,
		ExecutiveSummary:  payload.ExecutiveSummary,
		ProblemSolution:   payload.ProblemSolution,
		ServiceAndPricing: payload.ServiceAndPricing,
		DynamicSections:   payload.DynamicSections,
		Simulation:        payload.Simulation,
		Conclusion:        payload.Conclusion,
	}, nil
}
