// Package models defines the domain types shared across the PanelSim
// simulation engine, API handlers, and stores.
package models

import "time"

// ── Simulation lifecycle ─────────────────────────────────────

// SimulationStatus is the phase the orchestrator is currently in.
type SimulationStatus string

const (
	StatusIdle         SimulationStatus = "idle"
	StatusCasting      SimulationStatus = "casting"
	StatusPresentation SimulationStatus = "presentation"
	StatusRunning      SimulationStatus = "simulation_running"
	StatusDiscussion   SimulationStatus = "discussion"
	StatusAnalyzing    SimulationStatus = "analyzing"
	StatusCompleted    SimulationStatus = "completed"
	StatusError        SimulationStatus = "error"
)

// ProductInput describes the product pitch under test.
type ProductInput struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	Price                 string `json:"price,omitempty"`
	TargetHypothesis      string `json:"target_hypothesis"`
	PersonaCount          int    `json:"persona_count"`
	InitialInterest       int    `json:"initial_interest"` // 0-100, sets panel stance
	CustomPersonaPrompt   string `json:"custom_persona_prompt,omitempty"`
	ProductImage          string `json:"product_image,omitempty"` // base64, no data: prefix
	ImageMIMEType         string `json:"image_mime_type,omitempty"`
	EnableGroupDiscussion bool   `json:"enable_group_discussion"`
}

// ── Personas ─────────────────────────────────────────────────

// PersonaProfile is the immutable identity assigned at casting time.
type PersonaProfile struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Age             int      `json:"age"`
	Gender          string   `json:"gender"`
	Occupation      string   `json:"occupation"`
	IncomeLevel     string   `json:"income_level"`
	Traits          []string `json:"traits"`
	CurrentPains    string   `json:"current_pain_points"`
	Values          string   `json:"values"`
	FamilyStructure string   `json:"family_structure"`
	TechLiteracy    string   `json:"tech_literacy"`
	InfoSources     []string `json:"info_sources"`
	Hobbies         []string `json:"hobbies"`
	AvatarColor     string   `json:"avatar_color,omitempty"`
}

// ConsumerStatus is a persona's position in its own pipeline.
type ConsumerStatus string

const (
	ConsumerWaiting    ConsumerStatus = "waiting"
	ConsumerListening  ConsumerStatus = "listening"
	ConsumerThinking   ConsumerStatus = "thinking"
	ConsumerAsking     ConsumerStatus = "asking"
	ConsumerDiscussing ConsumerStatus = "discussing"
	ConsumerDecided    ConsumerStatus = "decided"
	ConsumerReviewing  ConsumerStatus = "reviewing"
)

// Decision is a persona's final verdict.
type Decision string

const (
	DecisionBuy  Decision = "buy"
	DecisionPass Decision = "pass"
)

// InteractionType tags entries in a persona's interaction history.
type InteractionType string

const (
	InteractionThought       InteractionType = "thought"
	InteractionQuestion      InteractionType = "question"
	InteractionAnswer        InteractionType = "answer"
	InteractionDecision      InteractionType = "decision"
	InteractionDiscussion    InteractionType = "discussion"
	InteractionUserQuestion  InteractionType = "user-question"
	InteractionPersonaAnswer InteractionType = "persona-answer"
)

// InteractionItem is one append-only entry in a persona's history.
type InteractionItem struct {
	Type          InteractionType `json:"type"`
	Content       string          `json:"content"`
	Timestamp     time.Time       `json:"timestamp"`
	InterestLevel int             `json:"interest_level"`
}

// DetailedScore is the 5-axis product rating a persona assigns at
// decision time. All axes are 1-5.
type DetailedScore struct {
	Appeal    int `json:"appeal"`
	Novelty   int `json:"novelty"`
	Clarity   int `json:"clarity"`
	Relevance int `json:"relevance"`
	Value     int `json:"value"`
}

// QA is one question/answer exchange between a persona and sales.
type QA struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ConsumerState is the mutable per-persona simulation state. Only the
// one task currently responsible for the persona's phase mutates it;
// the aggregate map is merged through Patch, never overwritten.
type ConsumerState struct {
	Profile              PersonaProfile    `json:"profile"`
	Status               ConsumerStatus    `json:"status"`
	InnerVoice           string            `json:"inner_voice,omitempty"`
	Decision             Decision          `json:"decision,omitempty"`
	DecisionReason       string            `json:"decision_reason,omitempty"`
	WillingnessToPay     int               `json:"willingness_to_pay"`
	TargetPriceCondition string            `json:"target_price_condition,omitempty"`
	DetailedScore        *DetailedScore    `json:"detailed_score,omitempty"`
	KeyInsight           string            `json:"key_insight,omitempty"`
	AttributeReasoning   string            `json:"attribute_reasoning,omitempty"`
	ReverseQuestion      string            `json:"reverse_question,omitempty"`
	InterestLevel        int               `json:"interest_level"`
	QuestionsAsked       int               `json:"questions_asked"`
	InteractionHistory   []InteractionItem `json:"interaction_history"`
}

// ── State patches ────────────────────────────────────────────

// ConsumerUpdate is a partial update to a ConsumerState. Nil fields
// are left unchanged; AppendHistory entries are appended in order.
type ConsumerUpdate struct {
	Status               *ConsumerStatus
	InnerVoice           *string
	Decision             *Decision
	DecisionReason       *string
	WillingnessToPay     *int
	TargetPriceCondition *string
	DetailedScore        *DetailedScore
	KeyInsight           *string
	AttributeReasoning   *string
	ReverseQuestion      *string
	InterestLevel        *int
	QuestionsAsked       *int
	AppendHistory        []InteractionItem
}

// Patch is a tagged update variant: either a direct partial update or
// a function of the previous state. The state store resolves it at
// apply time under its lock, so read-modify-write merges are atomic.
type Patch struct {
	direct *ConsumerUpdate
	fn     func(prev ConsumerState) ConsumerUpdate
}

// Direct wraps a partial update.
func Direct(u ConsumerUpdate) Patch { return Patch{direct: &u} }

// Functional wraps an update computed from the previous state.
func Functional(fn func(prev ConsumerState) ConsumerUpdate) Patch {
	return Patch{fn: fn}
}

// Resolve produces the concrete update for the given previous state.
func (p Patch) Resolve(prev ConsumerState) ConsumerUpdate {
	if p.fn != nil {
		return p.fn(prev)
	}
	if p.direct != nil {
		return *p.direct
	}
	return ConsumerUpdate{}
}

// Ptr is a convenience for building ConsumerUpdate fields.
func Ptr[T any](v T) *T { return &v }

// ── Logs ─────────────────────────────────────────────────────

// Reserved actor IDs for log entries not tied to one persona.
const (
	ActorSystem     = "SYSTEM"
	ActorSales      = "SALES"
	ActorAnalyst    = "ANALYST"
	ActorModerator  = "MODERATOR"
	ActorResearcher = "RESEARCHER"
)

// LogPhase names the pipeline stage a log entry belongs to.
type LogPhase string

const (
	PhaseCasting      LogPhase = "casting"
	PhasePresentation LogPhase = "presentation"
	PhaseInteraction  LogPhase = "interaction"
	PhaseDiscussion   LogPhase = "discussion"
	PhaseReview       LogPhase = "review"
	PhaseAnalysis     LogPhase = "analysis"
	PhaseError        LogPhase = "error"
)

// LogType classifies a log entry.
type LogType string

const (
	LogThought  LogType = "thought"
	LogAction   LogType = "action"
	LogDialogue LogType = "dialogue"
	LogInfo     LogType = "info"
)

// SimulationLog is one immutable, globally ordered run event.
type SimulationLog struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona_id"`
	Phase     LogPhase  `json:"phase"`
	Type      LogType   `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ── Results ──────────────────────────────────────────────────

// ReviewData is a persona's post-decision review (buy) or feedback (pass).
type ReviewData struct {
	PersonaID   string `json:"persona_id"`
	PersonaName string `json:"persona_name"`
	Rating      int    `json:"rating"` // 1-5
	Title       string `json:"title"`
	Body        string `json:"body"`
	NPS         int    `json:"nps"` // 0-10
}

// ConsumerResult is the finalized outcome of one persona's full run.
type ConsumerResult struct {
	PersonaID            string         `json:"persona_id"`
	FinalDecision        Decision       `json:"final_decision"`
	DecisionReason       string         `json:"decision_reason"`
	WillingnessToPay     int            `json:"willingness_to_pay"`
	TargetPriceCondition string         `json:"target_price_condition,omitempty"`
	DetailedScore        DetailedScore  `json:"detailed_score"`
	KeyInsight           string         `json:"key_insight"`
	Review               *ReviewData    `json:"review,omitempty"`
	Logs                 []string       `json:"logs"`
	QAHistory            []QA           `json:"qa_history,omitempty"`
	AttributeReasoning   string         `json:"attribute_reasoning,omitempty"`
	ReverseQuestion      string         `json:"reverse_question,omitempty"`
}

// PositionPoint is one product placed on the positioning map.
type PositionPoint struct {
	Name        string  `json:"name"`
	X           float64 `json:"x"` // -10..10
	Y           float64 `json:"y"` // -10..10
	IsOurs      bool    `json:"is_ours"`
	Description string  `json:"description,omitempty"`
}

// PositioningMap places the product against competitors on two axes.
type PositioningMap struct {
	AxisX  string          `json:"axis_x"`
	AxisY  string          `json:"axis_y"`
	Points []PositionPoint `json:"points"`
}

// PersonaVerdict is one row of the report's persona breakdown.
type PersonaVerdict struct {
	ID       string   `json:"id"`
	Decision Decision `json:"decision"`
}

// AnalysisReport is the aggregate market-acceptance report.
type AnalysisReport struct {
	Markdown            string           `json:"markdown"`
	AcceptanceRate      int              `json:"acceptance_rate"` // round(100*buy/total)
	TopRejectionReasons []string         `json:"top_rejection_reasons"`
	KillerPhrases       []string         `json:"killer_phrases"`
	PersonaBreakdown    []PersonaVerdict `json:"persona_breakdown"`
	PositioningMap      *PositioningMap  `json:"positioning_map,omitempty"`
}

// SalesPitch is the generated pitch copy shown to every persona.
type SalesPitch struct {
	CatchCopy   string   `json:"catch_copy"`
	Description string   `json:"description"`
	KeyBenefits []string `json:"key_benefits"`
}

// Source is one grounding citation from a search-augmented call.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// CompetitorData is the search-grounded market context summary.
type CompetitorData struct {
	Summary string   `json:"summary"`
	Sources []Source `json:"sources"`
}

// PlanSection is one flexible section of an improvement plan.
type PlanSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ImprovementPlan is the post-hoc pivot recommendation.
type ImprovementPlan struct {
	Title             string        `json:"title"`
	CatchCopy         string        `json:"catch_copy"`
	ExecutiveSummary  string        `json:"executive_summary"`
	ProblemSolution   string        `json:"problem_solution"`
	ServiceAndPricing string        `json:"service_and_pricing"`
	DynamicSections   []PlanSection `json:"dynamic_sections"`
	Simulation        string        `json:"simulation"`
	Conclusion        string        `json:"conclusion"`
}

// SimulationResult is the terminal aggregate of one run.
type SimulationResult struct {
	Product            ProductInput             `json:"product"`
	Personas           []PersonaProfile         `json:"personas"`
	Logs               []SimulationLog          `json:"logs"`
	Reviews            []ReviewData             `json:"reviews"`
	Report             AnalysisReport           `json:"report"`
	Pitch              SalesPitch               `json:"pitch"`
	CompetitorResearch *CompetitorData          `json:"competitor_research,omitempty"`
	ConsumerStates     map[string]ConsumerState `json:"consumer_states,omitempty"`
}

// ── Token accounting ─────────────────────────────────────────

// TokenUsage accumulates usage counters across one run, with a
// breakdown by generation tier for cost accounting. Counters are
// additive and never decremented; reset only at run start.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	APICalls     int `json:"api_calls"`

	OrganizerInputTokens  int `json:"organizer_input_tokens"`
	OrganizerOutputTokens int `json:"organizer_output_tokens"`
	WorkerInputTokens     int `json:"worker_input_tokens"`
	WorkerOutputTokens    int `json:"worker_output_tokens"`
}

// ── History ──────────────────────────────────────────────────

// HistoryItem is one persisted completed run.
type HistoryItem struct {
	ID             string           `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	ProductName    string           `json:"product_name"`
	AcceptanceRate int              `json:"acceptance_rate"`
	Result         SimulationResult `json:"result"`
}

// HistorySummary is the listing view of a persisted run.
type HistorySummary struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	ProductName    string    `json:"product_name"`
	AcceptanceRate int       `json:"acceptance_rate"`
}
