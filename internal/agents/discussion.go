package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

// DiscussionSummary is the moderator's digest of the group session.
// DiscussionContext is fed to each persona's final decision as the
// word-of-mouth of the room.
type DiscussionSummary struct {
	Summary           string   `json:"summary"`
	DominantOpinion   string   `json:"dominantOpinion"`
	KeyPhrases        []string `json:"keyPhrases"`
	DiscussionContext string   `json:"discussionContext"`
}

// DiscussionInput is one participant's initial reaction handed to the
// moderator.
type DiscussionInput struct {
	Persona       models.PersonaProfile
	InnerVoice    string
	InterestLevel int
	Question      string
}

var discussionSchema = genai.Schema{
	"type": "OBJECT",
	"properties": map[string]any{
		"summary":           map[string]any{"type": "STRING", "description": "議論全体の要約（誰がどんな意見を持っていたか）"},
		"dominantOpinion":   map[string]any{"type": "STRING", "description": "支配的な意見や空気感（例：価格への懸念が広がっている）"},
		"keyPhrases":        map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}, "description": "参加者の発言の中で特に影響力のあったフレーズ"},
		"discussionContext": map[string]any{"type": "STRING", "description": "各ペルソナの最終判断に影響を与えるための「会議のまとめ」テキスト"},
	},
	"required": []string{"summary", "dominantOpinion", "keyPhrases", "discussionContext"},
}

// GroupDiscussion has the moderator synthesize all initial reactions
// into the room's prevailing mood.
func (a *Agents) GroupDiscussion(ctx context.Context, reactions []DiscussionInput) (*DiscussionSummary, error) {
	var b strings.Builder
	for _, r := range reactions {
		question := r.Question
		if question == "" {
			question = "特になし"
		}
		fmt.Fprintf(&b, `
【参加者: %s (%d歳 / %s)】
- 性格: %s
- 初期反応(心の声): "%s"
- 興味度: %d%%
- 質問/懸念: %s
`, r.Persona.Name, r.Persona.Age, r.Persona.Occupation, strings.Join(r.Persona.Traits, ", "), r.InnerVoice, r.InterestLevel, question)
	}

	prompt := map[string]any{
		"role": "会議ファシリテーター (Discussion Moderator)",
		"task": "新商品に関するグループインタビューの司会進行役として、参加者全員の初期反応を分析し、議論の空気感（Buzz）を要約せよ。",
		"inputContext": map[string]any{
			"participantsData": b.String(),
		},
		"instructions": []string{
			"参加者全員の「心の声」と「興味度」を俯瞰し、この商品が市場でどのように受け止められそうか、グループダイナミクスを分析すること。",
			"肯定的な意見が優勢か、否定的な意見が優勢か、あるいは意見が二極化しているかを見極めること。",
			"「誰かの意見に他の人が流されそうか（バンドワゴン効果）」も考慮し、議論の結論となるテキスト（discussionContext）を作成すること。",
			"discussionContextは、この後各ペルソナが最終判断を下す際の「判断材料（他者の口コミ）」として使用される。",
		},
	}

	parts, err := textParts(prompt)
	if err != nil {
		return nil, err
	}

	opts := a.base
	opts.Validator = decodeValidator(func(d DiscussionSummary) error {
		if d.DiscussionContext == "" {
			return errors.New("empty discussion context")
		}
		return nil
	})

	var summary DiscussionSummary
	req := &genai.Request{Model: a.workerModel, Parts: parts, ResponseSchema: discussionSchema}
	if err := a.call(ctx, req, genai.TierWorker, "DiscussionAgent", opts, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
