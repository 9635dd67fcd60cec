package agents

import (
	"context"
	"errors"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

var salesSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"catchCopy":   map[string]any{"type": "STRING"},
		"description": map[string]any{"type": "STRING", "description": "商品の魅力を伝える150文字程度のセールスピッチ"},
		"keyBenefits": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
	},
	"required": []string{"catchCopy", "description", "keyBenefits"},
}

var answerSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"answer": map[string]any{"type": "STRING"},
	},
	"required": []string{"answer"},
}

type pitchPayload struct {
	CatchCopy   string   `json:"catchCopy"`
	Description string   `json:"description"`
	KeyBenefits []string `json:"keyBenefits"`
}

// SalesPitch asks the salesperson role for the product presentation
// shown to every persona.
func (a *Agents) SalesPitch(ctx context.Context, input models.ProductInput) (*models.SalesPitch, error) {
	prompt := map[string]any{
		"role": "トップセールスパーソン (Top Salesperson)",
		"task": "企画・商品を顧客に提案するための魅力的なピッチを作成せよ。",
		"inputContext": map[string]any{
			"productName": input.Name,
			"description": input.Description,
			"target":      input.TargetHypothesis,
			"price":       input.Price,
		},
		"instructions": []string{
			"添付された画像がある場合は、その視覚的特徴（色、形、パッケージ、UIデザインなど）についても魅力として言及すること。",
			"顧客の心を掴む短いキャッチコピーを作ること。",
			"機能の説明だけでなく、ベネフィット（得られる未来）を強調すること。",
			"簡潔かつエモーショナルに伝えること。",
		},
	}

	parts, err := productParts(input, prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(p pitchPayload) error {
		if p.CatchCopy == "" || p.Description == "" {
			return errors.New("pitch is missing catch copy or description")
		}
		return nil
	})

	var payload pitchPayload
	req := &genai.Request{Model: a.organizerModel, Parts: parts, ResponseSchema: salesSchema}
	if err := a.call(ctx, req, genai.TierOrganizer, "SalesAgent", opts, &payload); err != nil {
		return nil, err
	}
	return &models.SalesPitch{
		CatchCopy:   payload.CatchCopy,
		Description: payload.Description,
		KeyBenefits: payload.KeyBenefits,
	}, nil
}

// SalesAnswer has the salesperson respond to a persona's question.
// The role is instructed not to invent specs absent from the product
// context.
func (a *Agents) SalesAnswer(ctx context.Context, input models.ProductInput, question string) (string, error) {
	prompt := map[string]any{
		"role": "セールス担当 (Salesperson)",
		"task": "顧客からの質問に対して回答せよ。",
		"inputContext": map[string]any{
			"userQuestion":   question,
			"productContext": safeProduct(input),
		},
		"instructions": []string{
			"【重要】入力データ(productContext)に含まれていない機能や仕様については、勝手に捏造して約束してはならない。",
			"情報がない場合は「現時点では未定ですが、貴重なご意見として承ります」や「一般的な業界標準では〜ですが、本製品の仕様は確認が必要です」のように誠実かつ慎重に回答すること。",
			"回答は短く、魅力的かつ簡潔にすること。",
		},
	}

	parts, err := textParts(prompt)
	if err != nil {
		return "", err
	}

	var payload struct {
		Answer string `json:"answer"`
	}
	opts := a.base
	opts.Validator = decodeValidator(func(p struct {
		Answer string `json:"answer"`
	}) error {
		if p.Answer == "" {
			return errors.New("empty answer")
		}
		return nil
	})
	req := &genai.Request{Model: a.workerModel, Parts: parts, ResponseSchema: answerSchema}
	if err := a.call(ctx, req, genai.TierWorker, "SalesAnswer", opts, &payload); err != nil {
		return "", err
	}
	return payload.Answer, nil
}
