package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

var reactionSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"innerVoice":    map[string]any{"type": "STRING", "description": "心の声（タメ口で、本音をつぶやく）"},
		"interestLevel": map[string]any{"type": "INTEGER", "description": "興味関心度 (0-100)"},
		"question":      map[string]any{"type": "STRING", "description": "質問がある場合はその内容。ない場合はnull"},
	},
	"required": []string{"innerVoice", "interestLevel"},
}

var decisionSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"innerVoice":           map[string]any{"type": "STRING", "description": "最終決断に至る直前の心の声"},
		"decision":             map[string]any{"type": "STRING", "enum": []string{"buy", "pass"}},
		"reason":               map[string]any{"type": "STRING", "description": "その決断に至った決定的な理由"},
		"willingnessToPay":     map[string]any{"type": "INTEGER", "description": "提示価格に関わらず、この商品に自分が支払っても良いと考える最大金額（日本円）。購入する場合は提示額以上になることが多く、見送る場合は0円〜提示額未満になることが多い。正直な金銭感覚で査定せよ。"},
		"targetPriceCondition": map[string]any{"type": "STRING", "description": "もしwillingnessToPayが提示価格より低い場合、「具体的に何があれば（機能、保証、デザイン等）提示価格を出してもいいと思えるか」を記述せよ。提示価格以上ならnullでよい。"},
		"score_appeal":         map[string]any{"type": "INTEGER", "description": "直感魅力度 (1-5): パッと見で「欲しい」「良さそう」と思ったか？"},
		"score_novelty":        map[string]any{"type": "INTEGER", "description": "新規性・独自性 (1-5): 既存のものと違うと感じたか？「よくあるやつ」ではないか？"},
		"score_clarity":        map[string]any{"type": "INTEGER", "description": "理解度・明快さ (1-5): コンセプトは分かりやすかったか？"},
		"score_relevance":      map[string]any{"type": "INTEGER", "description": "自分事化・関連性 (1-5): 「これは自分のための商品だ」と感じたか？"},
		"score_value":          map[string]any{"type": "INTEGER", "description": "コスパ感 (1-5): 提示価格に対して、価値が見合っているか？"},
		"keyInsight":           map[string]any{"type": "STRING", "description": "「自分のような立場の人間にとって、この商品はXXだ」という独自の洞察・気づき"},
		"attributeReasoning":   map[string]any{"type": "STRING", "description": "自分の属性（年収、性格、価値観など）が、なぜこの決断につながったのかの自己分析 (例: 私は慎重派なので、実績がないサービスには手を出したくない)"},
		"reverseQuestion":      map[string]any{"type": "STRING", "description": "開発者への逆質問、または「もしXXだったら買ったかもしれない」という仮定の話。 (例: この回答はシミュレーションですが、もしXX機能があれば検討の余地がありました)"},
	},
	"required": []string{"innerVoice", "decision", "reason", "willingnessToPay", "targetPriceCondition", "score_appeal", "score_novelty", "score_clarity", "score_relevance", "score_value", "keyInsight", "attributeReasoning", "reverseQuestion"},
}

var reviewSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"rating": map[string]any{"type": "INTEGER", "description": "5段階評価 (1-5)"},
		"title":  map[string]any{"type": "STRING", "description": "レビューまたはフィードバックのタイトル"},
		"body":   map[string]any{"type": "STRING", "description": "レビュー本文（購入した場合）または見送り理由の詳細フィードバック（購入しなかった場合）"},
		"nps":    map[string]any{"type": "INTEGER", "description": "推奨度 (0-10)"},
	},
	"required": []string{"rating", "title", "body", "nps"},
}

var interviewSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"response": map[string]any{"type": "STRING", "description": "インタビューへの回答。ペルソナの口調で記述。"},
	},
	"required": []string{"response"},
}

// ReactionData is a persona's first impression of the pitch.
type ReactionData struct {
	InnerVoice    string `json:"innerVoice"`
	InterestLevel int    `json:"interestLevel"`
	Question      string `json:"question"`
}

// DecisionData is the persona's final verdict with the 5-axis score
// flattened the way the model emits it.
type DecisionData struct {
	InnerVoice           string          `json:"innerVoice"`
	Decision             models.Decision `json:"decision"`
	Reason               string          `json:"reason"`
	WillingnessToPay     int             `json:"willingnessToPay"`
	TargetPriceCondition string          `json:"targetPriceCondition"`
	ScoreAppeal          int             `json:"score_appeal"`
	ScoreNovelty         int             `json:"score_novelty"`
	ScoreClarity         int             `json:"score_clarity"`
	ScoreRelevance       int             `json:"score_relevance"`
	ScoreValue           int             `json:"score_value"`
	KeyInsight           string          `json:"keyInsight"`
	AttributeReasoning   string          `json:"attributeReasoning"`
	ReverseQuestion      string          `json:"reverseQuestion"`
}

// Score assembles the flattened axes into a DetailedScore.
func (d DecisionData) Score() models.DetailedScore {
	return models.DetailedScore{
		Appeal:    d.ScoreAppeal,
		Novelty:   d.ScoreNovelty,
		Clarity:   d.ScoreClarity,
		Relevance: d.ScoreRelevance,
		Value:     d.ScoreValue,
	}
}

// ReviewData is the written review (buy) or feedback (pass).
type ReviewData struct {
	Rating int    `json:"rating"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	NPS    int    `json:"nps"`
}

func marketContext(competitor *models.CompetitorData) string {
	if competitor == nil || competitor.Summary == "" {
		return "特になし"
	}
	return competitor.Summary
}

// Reaction asks one persona for their gut response to the pitch.
func (a *Agents) Reaction(ctx context.Context, product models.ProductInput, persona models.PersonaProfile, pitch *models.SalesPitch, competitor *models.CompetitorData) (*ReactionData, error) {
	prompt := map[string]any{
		"role":           "消費者ペルソナ (Consumer Persona)",
		"personaProfile": persona,
		"task":           "商品/サービス提案を聞いて、直感的な感想（心の声）と興味度を出力せよ。",
		"inputContext": map[string]any{
			"pitch":          pitch,
			"productDetails": safeProduct(product),
			"marketContext":  marketContext(competitor),
		},
		"instructions": []string{
			"あなたはAIではなく、感情と生活実態を持つ人間として振る舞え。",
			"提案された商品が、あなたの「現在の悩み」を本当に解決するか、あるいは「余計なもの」かを直感的に判断せよ。",
			"【忖度禁止】開発者に気を遣う必要はない。興味がなければ素直に低い興味度(0-30)を示し、辛辣な心の声を出力せよ。",
			"marketContextに競合情報がある場合、「XXの方が有名だし安心じゃない？」といった比較視点を持つこと。",
			"添付画像がある場合、そのデザインやUIが自分の好みやリテラシーに合っているか評価せよ。",
			"興味があれば、購入検討にあたって最も懸念している点について質問を作成せよ。",
		},
	}

	parts, err := productParts(product, prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(r ReactionData) error {
		if r.InnerVoice == "" {
			return errors.New("empty inner voice")
		}
		return nil
	})

	var reaction ReactionData
	req := &genai.Request{Model: a.workerModel, Parts: parts, ResponseSchema: reactionSchema}
	contextStr := fmt.Sprintf("Consumer_%s_Reaction", persona.Name)
	if err := a.call(ctx, req, genai.TierWorker, contextStr, opts, &reaction); err != nil {
		return nil, err
	}
	return &reaction, nil
}

// Decide asks one persona for their final buy/pass verdict, scored on
// five axes. discussionContext carries the group's mood when a
// discussion round ran; empty otherwise.
func (a *Agents) Decide(ctx context.Context, product models.ProductInput, persona models.PersonaProfile, pitch *models.SalesPitch, reaction *ReactionData, qaHistory []models.QA, discussionContext string, competitor *models.CompetitorData) (*DecisionData, error) {
	inputContext := map[string]any{
		"product": safeProduct(product),
		"pitch":   pitch,
		"previousReaction": map[string]any{
			"innerVoice":    reaction.InnerVoice,
			"interestLevel": reaction.InterestLevel,
		},
		"qaHistory":     qaHistory,
		"marketContext": marketContext(competitor),
	}
	if discussionContext != "" {
		inputContext["discussionContext"] = discussionContext
	}

	prompt := map[string]any{
		"role":           "消費者ペルソナ (Consumer Persona)",
		"personaProfile": persona,
		"task":           "商品/サービスの購入(利用)可否を最終決断し、5つの観点で商品を厳格に採点せよ。",
		"inputContext":   inputContext,
		"instructions": []string{
			"【最重要: 忖度禁止】あなたはシミュレーターの被験者ではなく、自分のお金と時間を使う一人の生活者である。開発者や企画者に一切気を遣う必要はない。",
			"【スコアリングの厳格化】5つのscore項目(appeal, novelty, clarity, relevance, value)は1〜5段階で評価せよ。「3」は普通。「5」は感動レベル。「1」は論外。安易に4や5をつけるな。",
			"【金銭感覚の厳格化】あなたの年収や生活状況を鑑みて、この価格は適正か？ 「機能は良いが高い」は、購入を見送る十分な理由になる。",
			"【現状維持バイアス】「今のままでも困っていない」「新しいことを覚えるのが面倒」という心理があれば、それを理由にPassせよ。",
			"【代替品の検討】「Google検索や無料ツールで代用できる」「既存の業務フローで十分」と感じたら、Passを選択せよ。",
			"【Buyの基準】Buyを選択するのは、「価格以上の価値が確実にある」かつ「今すぐ課題を解決したい」と強く感じた場合のみに限る。少しでも迷いがあればPassを選択せよ。",
			"【Willingness to Pay】提示価格に関わらず、あなたが本音で出せる金額を算出せよ。Passする場合は0円、もしくは「ワンコインなら試す」程度の金額になることが多い。",
		},
	}

	parts, err := productParts(product, prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(d DecisionData) error {
		if d.Decision == "" || d.Reason == "" {
			return errors.New("decision missing verdict or reason")
		}
		return nil
	})

	var decision DecisionData
	req := &genai.Request{Model: a.workerModel, Parts: parts, ResponseSchema: decisionSchema}
	contextStr := fmt.Sprintf("Consumer_%s_Decision", persona.Name)
	if err := a.call(ctx, req, genai.TierWorker, contextStr, opts, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// Review asks the persona to write a user review (after a buy) or
// detailed pass feedback.
func (a *Agents) Review(ctx context.Context, product models.ProductInput, persona models.PersonaProfile, decision models.Decision) (*ReviewData, error) {
	var task string
	var instructions []string
	if decision == models.DecisionBuy {
		task = "商品を購入し、1週間使用したと仮定して具体的な「ユーザーレビュー」を書け。"
		instructions = []string{
			"具体的な使用感と、NPS(0-10)を含めること。",
			"購入したとはいえ、不満点があれば正直に書くこと。",
		}
	} else {
		task = "商品を見送った理由と、どのような改善があれば購入したかを伝える「フィードバック」を書け。"
		instructions = []string{
			"なぜ買わなかったのか、どう改善すれば買うのかを具体的に書くこと。",
			"お世辞は不要。",
		}
	}

	prompt := map[string]any{
		"role":           "消費者ペルソナ (Consumer Persona)",
		"personaProfile": persona,
		"task":           "レビューまたはフィードバックの執筆",
		"decision":       decision,
		"inputContext": map[string]any{
			"product":     safeProduct(product),
			"instruction": task,
		},
		"instructions": instructions,
	}

	parts, err := textParts(prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(r ReviewData) error {
		if r.Title == "" {
			return errors.New("empty review title")
		}
		return nil
	})

	var review ReviewData
	req := &genai.Request{Model: a.workerModel, Parts: parts, ResponseSchema: reviewSchema}
	contextStr := fmt.Sprintf("Consumer_%s_Review", persona.Name)
	if err := a.call(ctx, req, genai.TierWorker, contextStr, opts, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// interviewLabel renders one history entry for the interview context.
func interviewLabel(t models.InteractionType) string {
	switch t {
	case models.InteractionThought:
		return "Your Inner Thought"
	case models.InteractionQuestion:
		return "You Asked"
	case models.InteractionAnswer:
		return "Sales Agent Answered"
	case models.InteractionDecision:
		return "Your Decision"
	case models.InteractionUserQuestion:
		return "Interviewer Asked"
	case models.InteractionPersonaAnswer:
		return "You Answered"
	case models.InteractionDiscussion:
		return "Group Discussion Summary"
	default:
		return "Unknown"
	}
}

// Interview answers a follow-up question as the persona, keeping
// consistency with everything the persona thought and decided during
// the run.
func (a *Agents) Interview(ctx context.Context, product models.ProductInput, persona models.PersonaProfile, history []models.InteractionItem, userQuestion string) (string, error) {
	var b strings.Builder
	for i, h := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(interviewLabel(h.Type))
		b.WriteString(": ")
		b.WriteString(h.Content)
	}

	prompt := map[string]any{
		"role":           "消費者ペルソナ (Consumer Persona)",
		"personaProfile": persona,
		"task":           "インタビューアー（分析者）からの深掘り質問に対し、ペルソナ本人として回答せよ。",
		"inputContext": map[string]any{
			"productDetails":      safeProduct(product),
			"conversationHistory": b.String(),
			"currentQuestion":     userQuestion,
		},
		"instructions": []string{
			"あなたはシミュレーションに参加したペルソナ本人である。",
			"過去の自分の思考（Inner Thought）や決断（Decision）と矛盾しないように答えること。",
			"口調はあなたの年齢、職業、性格（Traits）に合わせること。",
			"回答は具体的かつ正直に。必要であれば辛辣な意見も歓迎される。",
		},
	}

	parts, err := textParts(prompt)
	if err != nil {
		return "", err
	}

	var payload struct {
		Response string `json:"response"`
	}
	opts := a.base
	opts.Validator = decodeValidator(func(p struct {
		Response string `json:"response"`
	}) error {
		if p.Response == "" {
			return errors.New("empty interview response")
		}
		return nil
	})
	req := &genai.Request{Model: a.workerModel, Parts: parts, ResponseSchema: interviewSchema}
	contextStr := fmt.Sprintf("PersonaInterview_%s", persona.ID)
	if err := a.call(ctx, req, genai.TierWorker, contextStr, opts, &payload); err != nil {
		return "", err
	}
	return payload.Response, nil
}
