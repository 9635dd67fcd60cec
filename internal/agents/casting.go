package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

// avatarColors is the fixed palette assigned round-robin to personas.
var avatarColors = []string{
	"#ef4444", "#f97316", "#f59e0b", "#84cc16", "#10b981",
	"#06b6d4", "#3b82f6", "#8b5cf6", "#d946ef", "#f43f5e",
}

var castingSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"personas": map[string]any{
			"type": "ARRAY",
			"items": map[string]any{
				"type": "OBJECT",
				"properties": map[string]any{
					"name":            map[string]any{"type": "STRING"},
					"age":             map[string]any{"type": "INTEGER"},
					"gender":          map[string]any{"type": "STRING"},
					"occupation":      map[string]any{"type": "STRING"},
					"incomeLevel":     map[string]any{"type": "STRING"},
					"familyStructure": map[string]any{"type": "STRING", "description": "例: 既婚（子なし）、独身（一人暮らし）、既婚（子2人）など"},
					"techLiteracy":    map[string]any{"type": "STRING", "description": "例: 高い、標準、低い、苦手など"},
					"infoSources":     map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}, "description": "情報収集源 (例: Instagram, 日経電子版, 友人)"},
					"hobbies":         map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
					"traits":          map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}, "description": "性格特性 (例: 慎重派、流行に敏感)"},
					"currentPainPoints": map[string]any{"type": "STRING", "description": "この商品カテゴリに関連する現在の悩み"},
					"values":            map[string]any{"type": "STRING", "description": "購買行動における価値観（例：価格重視、ブランド重視）"},
				},
				"required": []string{"name", "age", "gender", "occupation", "incomeLevel", "familyStructure", "techLiteracy", "infoSources", "hobbies", "traits", "currentPainPoints", "values"},
			},
		},
	},
	"required": []string{"personas"},
}

// personaPayload is the wire shape the model emits; field names match
// the response schema, not the domain model's JSON tags.
type personaPayload struct {
	Name            string   `json:"name"`
	Age             int      `json:"age"`
	Gender          string   `json:"gender"`
	Occupation      string   `json:"occupation"`
	IncomeLevel     string   `json:"incomeLevel"`
	FamilyStructure string   `json:"familyStructure"`
	TechLiteracy    string   `json:"techLiteracy"`
	InfoSources     []string `json:"infoSources"`
	Hobbies         []string `json:"hobbies"`
	Traits          []string `json:"traits"`
	CurrentPains    string   `json:"currentPainPoints"`
	Values          string   `json:"values"`
}

type castingPayload struct {
	Personas []personaPayload `json:"personas"`
}

// stanceInstruction biases the panel composition by the configured
// initial interest: low interest casts skeptics, high interest casts
// early adopters, the middle band gets a deliberate mix.
func stanceInstruction(initialInterest int) string {
	switch {
	case initialInterest < 30:
		return "【重要】今回のシミュレーションは「非常に厳しい・批判的」な視点で行います。現状に満足している、新しいものに懐疑的、財布の紐が固いなど、購入ハードルが高い「慎重派・保守派」のペルソナを中心に選出してください。"
	case initialInterest > 70:
		return "【重要】今回のシミュレーションは「好意的・ファン」な視点で行います。課題感が強い、新しいもの好き、投資を惜しまないなど、購入意欲が高い「イノベーター・アーリーアダプター」層のペルソナを中心に選出してください。"
	default:
		return "【重要】甘い評価は不要です。肯定派だけでなく、否定派、懐疑派、無関心層をバランスよくミックスし、多様でシビアな市場環境を再現してください。"
	}
}

// Casting asks the casting director for the persona panel. IDs and
// avatar colors are assigned here, not by the model.
func (a *Agents) Casting(ctx context.Context, input models.ProductInput) ([]models.PersonaProfile, error) {
	instructions := []string{}
	if input.CustomPersonaPrompt != "" {
		instructions = append(instructions, fmt.Sprintf("【最重要】ユーザーから以下のペルソナ指定がありました。生成するペルソナの少なくとも半数はこの条件を強く反映してください。\n「%s」", input.CustomPersonaPrompt))
	}
	instructions = append(instructions,
		stanceInstruction(input.InitialInterest),
		"AI的なステレオタイプ（全員が論理的で協力的）を排除すること。気難しい人、直感で動く人、偏見を持つ人、予算に余裕がない人など、人間味のある「ノイズ」を含めること。",
		"添付された画像がある場合は、そのデザインや雰囲気（高級感、ポップ、シンプルなど）に惹かれそうな層、または逆に違和感を持ちそうな層も考慮すること。",
		"年齢、性別、職業、年収、家族構成をバラけさせ、リアリティのある生活背景を設定すること。",
		"名前は日本人のフルネーム（漢字）にすること。",
	)

	prompt := map[string]any{
		"role": "キャスティングディレクター (Casting Director)",
		"task": "市場調査シミュレーションを行うために、多様かつリアリティのある見込み顧客（ペルソナ）を選出せよ。",
		"inputContext": map[string]any{
			"productName":        input.Name,
			"productDescription": input.Description,
			"targetHypothesis":   input.TargetHypothesis,
			"price":              input.Price,
			"requiredCount":      input.PersonaCount,
		},
		"instructions": instructions,
	}

	parts, err := productParts(input, prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(p castingPayload) error {
		if len(p.Personas) == 0 {
			return errors.New("no personas in response")
		}
		return nil
	})

	var payload castingPayload
	req := &genai.Request{Model: a.organizerModel, Parts: parts, ResponseSchema: castingSchema}
	if err := a.call(ctx, req, genai.TierOrganizer, "CastingAgent", opts, &payload); err != nil {
		return nil, err
	}

	personas := make([]models.PersonaProfile, 0, len(payload.Personas))
	for i, p := range payload.Personas {
		personas = append(personas, models.PersonaProfile{
			ID:              fmt.Sprintf("persona_%d", i),
			Name:            p.Name,
			Age:             p.Age,
			Gender:          p.Gender,
			Occupation:      p.Occupation,
			IncomeLevel:     p.IncomeLevel,
			Traits:          p.Traits,
			CurrentPains:    p.CurrentPains,
			Values:          p.Values,
			FamilyStructure: p.FamilyStructure,
			TechLiteracy:    p.TechLiteracy,
			InfoSources:     p.InfoSources,
			Hobbies:         p.Hobbies,
			AvatarColor:     avatarColors[i%len(avatarColors)],
		})
	}
	return personas, nil
}
