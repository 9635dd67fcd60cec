package agents

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/internal/invoke"
	"github.com/panelsim/panelsim/pkg/models"
)

// cannedClient replies with a fixed body per prompt marker. The marker
// is matched against the concatenated text parts of the request.
type cannedClient struct {
	replies  map[string]string
	requests []*genai.Request
}

func (c *cannedClient) Generate(ctx context.Context, req *genai.Request) (*genai.Response, error) {
	c.requests = append(c.requests, req)
	var text strings.Builder
	for _, p := range req.Parts {
		text.WriteString(p.Text)
	}
	for marker, body := range c.replies {
		if strings.Contains(text.String(), marker) {
			return &genai.Response{Text: body, Usage: &genai.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}}, nil
		}
	}
	return &genai.Response{Text: `{}`, Usage: &genai.Usage{TotalTokens: 1}}, nil
}

func newTestAgents(t *testing.T, c genai.Client, onUsage UsageFunc) *Agents {
	t.Helper()
	base := invoke.Options{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: time.Second}
	return New(invoke.New(c, nil), "organizer-model", "worker-model", base, onUsage)
}

func testProduct() models.ProductInput {
	return models.ProductInput{
		Name:             "スマート水筒",
		Description:      "飲水量を記録するボトル",
		Price:            "4980円",
		TargetHypothesis: "健康意識の高い会社員",
		PersonaCount:     3,
		InitialInterest:  50,
	}
}

func TestCastingAssignsIDsAndColors(t *testing.T) {
	personas := []map[string]any{}
	for _, name := range []string{"田中太郎", "鈴木花子", "佐藤健"} {
		personas = append(personas, map[string]any{
			"name": name, "age": 30, "gender": "男性", "occupation": "会社員",
			"incomeLevel": "400万円", "familyStructure": "独身", "techLiteracy": "標準",
			"infoSources": []string{"X"}, "hobbies": []string{"読書"},
			"traits": []string{"慎重派"}, "currentPainPoints": "特になし", "values": "価格重視",
		})
	}
	body, _ := json.Marshal(map[string]any{"personas": personas})

	c := &cannedClient{replies: map[string]string{"キャスティングディレクター": string(body)}}
	var usageCalls int
	a := newTestAgents(t, c, func(u genai.Usage, tier genai.Tier) {
		usageCalls++
		if tier != genai.TierOrganizer {
			t.Errorf("tier = %s, want organizer", tier)
		}
	})

	got, err := a.Casting(context.Background(), testProduct())
	if err != nil {
		t.Fatalf("Casting() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d personas, want 3", len(got))
	}
	for i, p := range got {
		if p.ID == "" || !strings.HasPrefix(p.ID, "persona_") {
			t.Errorf("persona %d ID = %q", i, p.ID)
		}
		if p.AvatarColor == "" {
			t.Errorf("persona %d has no avatar color", i)
		}
	}
	if got[0].AvatarColor == got[1].AvatarColor {
		t.Error("adjacent personas share an avatar color")
	}
	if usageCalls != 1 {
		t.Errorf("usage callback ran %d times, want 1", usageCalls)
	}
}

func TestCastingStanceFollowsInitialInterest(t *testing.T) {
	cases := []struct {
		interest int
		marker   string
	}{
		{10, "慎重派・保守派"},
		{50, "バランスよくミックス"},
		{90, "イノベーター・アーリーアダプター"},
	}
	for _, tc := range cases {
		if got := stanceInstruction(tc.interest); !strings.Contains(got, tc.marker) {
			t.Errorf("stanceInstruction(%d) does not contain %q", tc.interest, tc.marker)
		}
	}
}

func TestSalesPitchMapsPayload(t *testing.T) {
	c := &cannedClient{replies: map[string]string{
		"トップセールスパーソン": `{"catchCopy": "毎日に潤いを", "description": "説明文", "keyBenefits": ["記録", "通知"]}`,
	}}
	a := newTestAgents(t, c, nil)

	pitch, err := a.SalesPitch(context.Background(), testProduct())
	if err != nil {
		t.Fatalf("SalesPitch() error = %v", err)
	}
	if pitch.CatchCopy != "毎日に潤いを" || len(pitch.KeyBenefits) != 2 {
		t.Errorf("pitch = %+v", pitch)
	}
}

func TestDecideMapsScores(t *testing.T) {
	c := &cannedClient{replies: map[string]string{
		"最終決断": `{
			"innerVoice": "うーん、高いな",
			"decision": "pass",
			"reason": "価格が見合わない",
			"willingnessToPay": 1000,
			"targetPriceCondition": "保証があれば",
			"score_appeal": 3, "score_novelty": 2, "score_clarity": 4,
			"score_relevance": 2, "score_value": 1,
			"keyInsight": "自分には過剰",
			"attributeReasoning": "倹約家なので",
			"reverseQuestion": "もし半額だったら？"
		}`,
	}}
	a := newTestAgents(t, c, nil)

	persona := models.PersonaProfile{ID: "persona_0", Name: "田中太郎"}
	reaction := &ReactionData{InnerVoice: "ふーん", InterestLevel: 40}
	d, err := a.Decide(context.Background(), testProduct(), persona, &models.SalesPitch{}, reaction, nil, "", nil)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Decision != models.DecisionPass {
		t.Errorf("Decision = %s, want pass", d.Decision)
	}
	score := d.Score()
	want := models.DetailedScore{Appeal: 3, Novelty: 2, Clarity: 4, Relevance: 2, Value: 1}
	if score != want {
		t.Errorf("Score() = %+v, want %+v", score, want)
	}
}

func TestReviewTaskDependsOnDecision(t *testing.T) {
	c := &cannedClient{replies: map[string]string{
		"レビューまたはフィードバック": `{"rating": 4, "title": "良い買い物", "body": "満足", "nps": 8}`,
	}}
	a := newTestAgents(t, c, nil)

	persona := models.PersonaProfile{ID: "persona_0", Name: "田中太郎"}
	if _, err := a.Review(context.Background(), testProduct(), persona, models.DecisionBuy); err != nil {
		t.Fatalf("Review(buy) error = %v", err)
	}
	buyReq := c.requests[len(c.requests)-1]
	if !strings.Contains(buyReq.Parts[0].Text, "ユーザーレビュー") {
		t.Error("buy review prompt does not ask for a user review")
	}

	if _, err := a.Review(context.Background(), testProduct(), persona, models.DecisionPass); err != nil {
		t.Fatalf("Review(pass) error = %v", err)
	}
	passReq := c.requests[len(c.requests)-1]
	if !strings.Contains(passReq.Parts[0].Text, "フィードバック」を書け") {
		t.Error("pass review prompt does not ask for feedback")
	}
}

func TestGroupDiscussionRunsOnWorkerTier(t *testing.T) {
	c := &cannedClient{replies: map[string]string{
		"会議ファシリテーター": `{
			"summary": "価格への懸念が中心だった。",
			"dominantOpinion": "値段次第では欲しい。",
			"keyPhrases": ["価格"],
			"discussionContext": "グループは価格に慎重な空気。"
		}`,
	}}
	var gotTier genai.Tier
	a := newTestAgents(t, c, func(u genai.Usage, tier genai.Tier) { gotTier = tier })

	inputs := []DiscussionInput{
		{Persona: models.PersonaProfile{Name: "田中太郎", Age: 30, Occupation: "会社員"}, InnerVoice: "高いな", InterestLevel: 40},
		{Persona: models.PersonaProfile{Name: "鈴木花子", Age: 28, Occupation: "看護師"}, InnerVoice: "便利そう", InterestLevel: 65, Question: "洗える？"},
	}
	summary, err := a.GroupDiscussion(context.Background(), inputs)
	if err != nil {
		t.Fatalf("GroupDiscussion() error = %v", err)
	}
	if summary.DiscussionContext == "" {
		t.Error("empty discussion context")
	}
	if gotTier != genai.TierWorker {
		t.Errorf("tier = %s, want worker", gotTier)
	}
	if got := c.requests[len(c.requests)-1].Model; got != "worker-model" {
		t.Errorf("model = %q, want worker-model", got)
	}
}

func TestCompetitorResearchUsesWebSearch(t *testing.T) {
	c := &researchClient{}
	a := newTestAgents(t, c, nil)

	data, err := a.CompetitorResearch(context.Background(), testProduct())
	if err != nil {
		t.Fatalf("CompetitorResearch() error = %v", err)
	}
	if !c.sawWebSearch {
		t.Error("research request did not enable web search")
	}
	if len(data.Sources) != 1 || data.Sources[0].Title != "Web Source" {
		t.Errorf("Sources = %+v, want untitled source defaulted", data.Sources)
	}
}

type researchClient struct {
	sawWebSearch bool
}

func (c *researchClient) Generate(ctx context.Context, req *genai.Request) (*genai.Response, error) {
	c.sawWebSearch = req.WebSearch
	return &genai.Response{
		Text:    "競合はA社のボトルです。価格は3000円前後。",
		Usage:   &genai.Usage{TotalTokens: 20},
		Sources: []genai.Source{{Title: "", URI: "https://example.com/bottle"}},
	}, nil
}

func TestAcceptanceRate(t *testing.T) {
	cases := []struct {
		buys, total, want int
	}{
		{0, 4, 0},
		{1, 3, 33},
		{2, 3, 67},
		{5, 5, 100},
	}
	for _, tc := range cases {
		results := make([]models.ConsumerResult, 0, tc.total)
		for i := 0; i < tc.total; i++ {
			d := models.DecisionPass
			if i < tc.buys {
				d = models.DecisionBuy
			}
			results = append(results, models.ConsumerResult{FinalDecision: d})
		}
		if got := AcceptanceRate(results); got != tc.want {
			t.Errorf("AcceptanceRate(%d/%d) = %d, want %d", tc.buys, tc.total, got, tc.want)
		}
	}
}

func TestAnalysisComputesBreakdownLocally(t *testing.T) {
	c := &cannedClient{replies: map[string]string{
		"シニアマーケットアナリスト": `{
			"markdown": "# レポート",
			"topRejectionReasons": ["価格"],
			"killerPhrases": ["手軽"],
			"positioningMap": {
				"axisX": "低価格 -> 高価格",
				"axisY": "汎用 -> 特化",
				"points": [{"name": "スマート水筒", "x": 2, "y": 5, "isOurs": true}]
			}
		}`,
	}}
	a := newTestAgents(t, c, nil)

	personas := []models.PersonaProfile{{ID: "persona_0", Name: "田中太郎"}, {ID: "persona_1", Name: "鈴木花子"}}
	results := []models.ConsumerResult{
		{PersonaID: "persona_0", FinalDecision: models.DecisionBuy, WillingnessToPay: 5000},
		{PersonaID: "persona_1", FinalDecision: models.DecisionPass, WillingnessToPay: 1000},
	}

	report, err := a.Analysis(context.Background(), testProduct(), personas, results, &models.SalesPitch{}, nil)
	if err != nil {
		t.Fatalf("Analysis() error = %v", err)
	}
	if report.AcceptanceRate != 50 {
		t.Errorf("AcceptanceRate = %d, want 50", report.AcceptanceRate)
	}
	if len(report.PersonaBreakdown) != 2 || report.PersonaBreakdown[0].Decision != models.DecisionBuy {
		t.Errorf("PersonaBreakdown = %+v", report.PersonaBreakdown)
	}
	if report.PositioningMap == nil || !report.PositioningMap.Points[0].IsOurs {
		t.Errorf("PositioningMap = %+v", report.PositioningMap)
	}
}

func TestInterviewBuildsConversationContext(t *testing.T) {
	c := &cannedClient{replies: map[string]string{
		"インタビューアー": `{"response": "正直、価格次第ですね。"}`,
	}}
	a := newTestAgents(t, c, nil)

	history := []models.InteractionItem{
		{Type: models.InteractionThought, Content: "高そう"},
		{Type: models.InteractionDecision, Content: "見送り決定"},
	}
	persona := models.PersonaProfile{ID: "persona_0", Name: "田中太郎"}
	answer, err := a.Interview(context.Background(), testProduct(), persona, history, "何が決め手でしたか？")
	if err != nil {
		t.Fatalf("Interview() error = %v", err)
	}
	if answer != "正直、価格次第ですね。" {
		t.Errorf("answer = %q", answer)
	}

	sent := c.requests[len(c.requests)-1].Parts[0].Text
	if !strings.Contains(sent, "Your Inner Thought: 高そう") || !strings.Contains(sent, "Your Decision: 見送り決定") {
		t.Error("conversation history labels missing from prompt")
	}
}
