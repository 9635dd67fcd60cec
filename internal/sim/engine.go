package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/panelsim/panelsim/internal/agents"
	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/internal/invoke"
	"github.com/panelsim/panelsim/internal/store"
	"github.com/panelsim/panelsim/internal/throttle"
	"github.com/panelsim/panelsim/pkg/models"
)

// Config tunes one engine instance.
type Config struct {
	OrganizerModel string
	WorkerModel    string

	// Invoke is the base retry policy for all agent calls. Zero
	// fields fall back to the invoke defaults.
	Invoke invoke.Options

	// Pacing between pipeline steps. Zero disables a pause.
	StepPause   time.Duration // after a persona's initial reaction
	AnswerPause time.Duration // between a question and the sales answer
	ListenPause time.Duration // personas absorbing the discussion summary
	ReviewPause time.Duration // between decision and review writing

	// FeedCapacity bounds each run's event ring.
	FeedCapacity int

	// RetainRuns bounds finished runs kept in memory for polling and
	// follow-up interviews; the oldest terminal runs are evicted first.
	// Completed runs are already persisted to history by then.
	RetainRuns int
}

// DefaultConfig returns the production pacing for the given models.
func DefaultConfig(organizerModel, workerModel string) Config {
	return Config{
		OrganizerModel: organizerModel,
		WorkerModel:    workerModel,
		StepPause:      1500 * time.Millisecond,
		AnswerPause:    1000 * time.Millisecond,
		ListenPause:    1000 * time.Millisecond,
		ReviewPause:    500 * time.Millisecond,
		FeedCapacity:   2048,
		RetainRuns:     64,
	}
}

// Engine drives simulation runs end to end and tracks them by id.
type Engine struct {
	inv     *invoke.Invoker
	queue   *throttle.Queue
	history store.Store
	cfg     Config

	runsMu sync.RWMutex
	runs   map[string]*Run
}

// NewEngine creates an engine. client is the generation backend,
// limiter paces raw calls, queue bounds concurrent persona pipelines,
// history persists completed runs (may be nil).
func NewEngine(client genai.Client, limiter *throttle.RateLimiter, queue *throttle.Queue, history store.Store, cfg Config) *Engine {
	if cfg.FeedCapacity <= 0 {
		cfg.FeedCapacity = 2048
	}
	if cfg.RetainRuns <= 0 {
		cfg.RetainRuns = 64
	}
	return &Engine{
		inv:     invoke.New(client, limiter),
		queue:   queue,
		history: history,
		cfg:     cfg,
		runs:    make(map[string]*Run),
	}
}

// StartRun launches an async simulation and returns the run.
func (e *Engine) StartRun(input models.ProductInput) (*Run, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, errors.New("product name is required")
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, errors.New("product description is required")
	}
	if input.PersonaCount <= 0 {
		input.PersonaCount = 5
	}
	if input.PersonaCount > 10 {
		input.PersonaCount = 10
	}

	execCtx, cancel := context.WithCancel(context.Background())
	r := &Run{
		ID:        uuid.New().String(),
		Input:     input,
		StartedAt: time.Now().UTC(),
		States:    NewStateStore(),
		Meter:     NewMeter(),
		Feed:      NewFeed(e.cfg.FeedCapacity),
		status:    models.StatusIdle,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.ag = agents.New(e.inv, e.cfg.OrganizerModel, e.cfg.WorkerModel, e.cfg.Invoke, func(u genai.Usage, tier genai.Tier) {
		r.Meter.Add(u, tier)
		r.Feed.Publish(EventUsage, r.Meter.Total())
	})

	e.runsMu.Lock()
	e.runs[r.ID] = r
	e.runsMu.Unlock()

	log.Info().
		Str("run_id", r.ID).
		Str("product", input.Name).
		Int("personas", input.PersonaCount).
		Bool("discussion", input.EnableGroupDiscussion).
		Msg("Simulation run started")

	go e.execute(execCtx, r)
	return r, nil
}

// Run executes a simulation synchronously. Cancelling ctx aborts the
// run.
func (e *Engine) Run(ctx context.Context, input models.ProductInput) (*models.SimulationResult, error) {
	r, err := e.StartRun(input)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		r.cancel()
		<-r.Done()
		return nil, ctx.Err()
	case <-r.Done():
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return r.Result(), nil
}

// Get returns a run by id.
func (e *Engine) Get(runID string) (*Run, bool) {
	e.runsMu.RLock()
	defer e.runsMu.RUnlock()
	r, ok := e.runs[runID]
	return r, ok
}

// Cancel aborts a running simulation. It reports whether the run was
// found.
func (e *Engine) Cancel(runID string) bool {
	e.runsMu.RLock()
	r, ok := e.runs[runID]
	e.runsMu.RUnlock()
	if !ok {
		return false
	}
	r.cancel()
	return true
}

// Interview relays a follow-up question to one persona of a run,
// recording the exchange in the persona's history.
func (e *Engine) Interview(ctx context.Context, runID, personaID, question string) (string, error) {
	r, ok := e.Get(runID)
	if !ok {
		return "", &store.ErrNotFound{Entity: "run", Key: runID}
	}
	state, ok := r.States.Get(personaID)
	if !ok {
		return "", &store.ErrNotFound{Entity: "persona", Key: personaID}
	}

	answer, err := r.ag.Interview(ctx, r.Input, state.Profile, state.InteractionHistory, question)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	r.apply(personaID, models.Direct(models.ConsumerUpdate{
		AppendHistory: []models.InteractionItem{
			{Type: models.InteractionUserQuestion, Content: question, Timestamp: now, InterestLevel: state.InterestLevel},
			{Type: models.InteractionPersonaAnswer, Content: answer, Timestamp: time.Now().UTC(), InterestLevel: state.InterestLevel},
		},
	}))
	return answer, nil
}

// ImprovementPlan writes the pivoted business plan for a completed
// run.
func (e *Engine) ImprovementPlan(ctx context.Context, runID string) (*models.ImprovementPlan, error) {
	r, ok := e.Get(runID)
	if !ok {
		return nil, &store.ErrNotFound{Entity: "run", Key: runID}
	}

	r.mu.RLock()
	personas := r.personas
	results := r.results
	competitor := r.competitor
	r.mu.RUnlock()

	if len(results) == 0 {
		return nil, errors.New("run has no consumer results yet")
	}
	return r.ag.ImprovementPlan(ctx, r.Input, personas, results, competitor)
}

// ── Phase machine ────────────────────────────────────────────

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// settled carries one persona task outcome, preserving input order.
type settled[T any] struct {
	idx int
	val T
	err error
}

func (e *Engine) execute(ctx context.Context, r *Run) {
	defer close(r.done)
	defer r.Feed.Close()
	defer r.cancel()
	defer e.prune()

	err := e.run(ctx, r)
	if err == nil {
		return
	}

	if ctx.Err() != nil {
		err = fmt.Errorf("simulation canceled: %w", ctx.Err())
	}
	r.mu.Lock()
	r.runErr = err
	r.mu.Unlock()
	r.log(models.ActorSystem, models.PhaseError, models.LogInfo, "シミュレーションが中断されました: "+err.Error())
	r.setStatus(models.StatusError)
	log.Error().Str("run_id", r.ID).Err(err).Msg("Simulation run failed")
}

func (e *Engine) run(ctx context.Context, r *Run) error {
	input := r.Input

	// Phase 1: casting, pitch, and competitor research in parallel.
	r.setProgress(0)
	r.setStatus(models.StatusCasting)
	r.log(models.ActorSystem, models.PhaseCasting, models.LogInfo, "市場シミュレーションを開始します。")

	var (
		personas   []models.PersonaProfile
		pitch      *models.SalesPitch
		competitor *models.CompetitorData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		personas, err = r.ag.Casting(gctx, input)
		if err != nil {
			return fmt.Errorf("casting: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		pitch, err = r.ag.SalesPitch(gctx, input)
		if err != nil {
			return fmt.Errorf("sales pitch: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Research failures degrade to the fallback context instead of
		// aborting the run.
		cd, err := r.ag.CompetitorResearch(gctx, input)
		if err != nil {
			log.Warn().Str("run_id", r.ID).Err(err).Msg("Competitor research failed, using fallback")
			competitor = &models.CompetitorData{Summary: agents.FallbackSummary, Sources: []models.Source{}}
			return nil
		}
		competitor = cd
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	r.mu.Lock()
	r.personas = personas
	r.pitch = pitch
	r.competitor = competitor
	r.mu.Unlock()
	r.States.Seed(personas)

	r.log(models.ActorSystem, models.PhaseCasting, models.LogInfo,
		fmt.Sprintf("%d名のペルソナを招集しました。", len(personas)))
	r.log(models.ActorSales, models.PhasePresentation, models.LogDialogue,
		fmt.Sprintf("%s — %s", pitch.CatchCopy, pitch.Description))
	if competitor.Summary != agents.FallbackSummary {
		r.log(models.ActorResearcher, models.PhasePresentation, models.LogInfo,
			"競合調査が完了しました: "+competitor.Summary)
	}
	r.setProgress(30)

	// Phase 2: every persona hears the pitch.
	r.setStatus(models.StatusPresentation)
	for _, p := range personas {
		r.apply(p.ID, models.Direct(models.ConsumerUpdate{
			Status:        models.Ptr(models.ConsumerListening),
			InterestLevel: models.Ptr(input.InitialInterest),
		}))
	}

	// Phase 3: reactions fan out through the concurrency queue.
	r.setStatus(models.StatusRunning)
	reactions := e.reactionPhase(ctx, r, personas)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(reactions) == 0 {
		return errors.New("all personas dropped out during the reaction phase")
	}

	// Phase 4: optional group discussion.
	discussionContext := e.discussionPhase(ctx, r, reactions)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Phase 5: decisions and reviews fan out.
	results := e.decisionPhase(ctx, r, reactions, discussionContext)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(results) == 0 {
		return errors.New("all personas dropped out during the decision phase")
	}
	r.mu.Lock()
	r.results = results
	r.mu.Unlock()

	// Phase 6: analysis.
	r.setStatus(models.StatusAnalyzing)
	r.setProgress(80)
	r.log(models.ActorAnalyst, models.PhaseAnalysis, models.LogInfo, "結果を集計し、分析レポートを作成しています。")

	report, err := r.ag.Analysis(ctx, input, personas, results, r.pitchSnapshot(), competitor)
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	reviews := make([]models.ReviewData, 0, len(results))
	for _, res := range results {
		if res.Review != nil {
			reviews = append(reviews, *res.Review)
		}
	}

	r.mu.Lock()
	result := &models.SimulationResult{
		Product:            input,
		Personas:           personas,
		Logs:               append([]models.SimulationLog(nil), r.logs...),
		Reviews:            reviews,
		Report:             *report,
		Pitch:              *r.pitch,
		CompetitorResearch: competitor,
		ConsumerStates:     r.States.All(),
	}
	r.result = result
	r.mu.Unlock()

	r.setProgress(100)
	r.setStatus(models.StatusCompleted)
	r.Feed.Publish(EventResult, result)
	r.log(models.ActorSystem, models.PhaseAnalysis, models.LogInfo,
		fmt.Sprintf("シミュレーションが完了しました。（受容率: %d%%）", report.AcceptanceRate))

	e.persist(r, report.AcceptanceRate)
	return nil
}

func (r *Run) pitchSnapshot() *models.SalesPitch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pitch
}

// persist saves the completed run to history. Failures are logged,
// not fatal: the run already completed.
func (e *Engine) persist(r *Run, acceptanceRate int) {
	if e.history == nil {
		return
	}
	item := &models.HistoryItem{
		ID:             r.ID,
		Timestamp:      time.Now().UTC(),
		ProductName:    r.Input.Name,
		AcceptanceRate: acceptanceRate,
		Result:         *r.Result(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.history.SaveRun(ctx, item); err != nil {
		log.Error().Str("run_id", r.ID).Err(err).Msg("Failed to persist run history")
	}
}

// prune evicts the oldest terminal runs beyond the retention cap so
// the registry does not grow without bound. Live runs are never
// touched.
func (e *Engine) prune() {
	e.runsMu.Lock()
	defer e.runsMu.Unlock()

	type terminal struct {
		id        string
		startedAt time.Time
	}
	var finished []terminal
	for id, r := range e.runs {
		select {
		case <-r.Done():
			finished = append(finished, terminal{id: id, startedAt: r.StartedAt})
		default:
		}
	}
	excess := len(finished) - e.cfg.RetainRuns
	if excess <= 0 {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].startedAt.Before(finished[j].startedAt)
	})
	for _, t := range finished[:excess] {
		delete(e.runs, t.id)
	}
}

// ── Reaction phase ───────────────────────────────────────────

// reactionOutcome is one persona's state after the reaction step.
type reactionOutcome struct {
	persona  models.PersonaProfile
	reaction *agents.ReactionData
	qa       []models.QA
	logs     []string
}

func (e *Engine) reactionPhase(ctx context.Context, r *Run, personas []models.PersonaProfile) []*reactionOutcome {
	ch := make(chan settled[*reactionOutcome], len(personas))
	for i, p := range personas {
		go func(idx int, persona models.PersonaProfile) {
			out, err := throttle.Submit(ctx, e.queue, func(ctx context.Context) (*reactionOutcome, error) {
				return e.reactionStep(ctx, r, persona)
			})
			ch <- settled[*reactionOutcome]{idx: idx, val: out, err: err}
		}(i, p)
	}

	byIdx := make([]*reactionOutcome, len(personas))
	for range personas {
		s := <-ch
		if s.err != nil {
			pid := personas[s.idx].ID
			log.Warn().Str("run_id", r.ID).Str("persona", pid).Err(s.err).Msg("Persona dropped at reaction")
			r.log(pid, models.PhaseInteraction, models.LogInfo, "シミュレーション離脱 (Reaction Error): "+s.err.Error())
			continue
		}
		byIdx[s.idx] = s.val
	}

	survivors := make([]*reactionOutcome, 0, len(personas))
	for _, out := range byIdx {
		if out != nil {
			survivors = append(survivors, out)
		}
	}
	return survivors
}

func (e *Engine) reactionStep(ctx context.Context, r *Run, persona models.PersonaProfile) (*reactionOutcome, error) {
	r.apply(persona.ID, models.Direct(models.ConsumerUpdate{Status: models.Ptr(models.ConsumerThinking)}))

	reaction, err := r.ag.Reaction(ctx, r.Input, persona, r.pitchSnapshot(), r.competitorSnapshot())
	if err != nil {
		return nil, err
	}

	interest := reaction.InterestLevel
	now := time.Now().UTC()
	r.apply(persona.ID, models.Direct(models.ConsumerUpdate{
		InnerVoice:    models.Ptr(reaction.InnerVoice),
		InterestLevel: models.Ptr(interest),
		AppendHistory: []models.InteractionItem{
			{Type: models.InteractionThought, Content: reaction.InnerVoice, Timestamp: now, InterestLevel: interest},
		},
	}))
	r.log(persona.ID, models.PhaseInteraction, models.LogThought, reaction.InnerVoice)

	out := &reactionOutcome{
		persona:  persona,
		reaction: reaction,
		logs:     []string{"Thought: " + reaction.InnerVoice},
	}

	// Breather between the reaction and any Q&A burst.
	if err := pause(ctx, e.cfg.StepPause); err != nil {
		return nil, err
	}

	if reaction.InterestLevel > 30 && reaction.Question != "" {
		r.apply(persona.ID, models.Direct(models.ConsumerUpdate{
			Status:         models.Ptr(models.ConsumerAsking),
			QuestionsAsked: models.Ptr(1),
			AppendHistory: []models.InteractionItem{
				{Type: models.InteractionQuestion, Content: reaction.Question, Timestamp: time.Now().UTC(), InterestLevel: interest},
			},
		}))
		r.log(persona.ID, models.PhaseInteraction, models.LogDialogue, "質問: "+reaction.Question)
		out.logs = append(out.logs, "Question: "+reaction.Question)

		if err := pause(ctx, e.cfg.AnswerPause); err != nil {
			return nil, err
		}

		answer, err := r.ag.SalesAnswer(ctx, r.Input, reaction.Question)
		if err != nil {
			return nil, err
		}
		r.log(models.ActorSales, models.PhaseInteraction, models.LogDialogue, "回答: "+answer)
		r.apply(persona.ID, models.Direct(models.ConsumerUpdate{
			AppendHistory: []models.InteractionItem{
				{Type: models.InteractionAnswer, Content: answer, Timestamp: time.Now().UTC(), InterestLevel: interest},
			},
		}))
		out.logs = append(out.logs, "Answer: "+answer)
		out.qa = append(out.qa, models.QA{Question: reaction.Question, Answer: answer})
	}

	return out, nil
}

func (r *Run) competitorSnapshot() *models.CompetitorData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.competitor
}

// ── Discussion phase ─────────────────────────────────────────

// discussionPhase runs the optional moderator round. It returns the
// context string fed to decisions, or empty when the round was
// disabled, skipped, or failed.
func (e *Engine) discussionPhase(ctx context.Context, r *Run, reactions []*reactionOutcome) string {
	if !r.Input.EnableGroupDiscussion || len(reactions) < 2 {
		return ""
	}

	r.setStatus(models.StatusDiscussion)
	r.setProgress(50)
	for _, out := range reactions {
		r.apply(out.persona.ID, models.Direct(models.ConsumerUpdate{Status: models.Ptr(models.ConsumerDiscussing)}))
	}
	r.log(models.ActorModerator, models.PhaseDiscussion, models.LogInfo, "モデレーターが会議室に入室しました。グループ討議を開始します。")

	inputs := make([]agents.DiscussionInput, 0, len(reactions))
	for _, out := range reactions {
		inputs = append(inputs, agents.DiscussionInput{
			Persona:       out.persona,
			InnerVoice:    out.reaction.InnerVoice,
			InterestLevel: out.reaction.InterestLevel,
			Question:      out.reaction.Question,
		})
	}

	summary, err := r.ag.GroupDiscussion(ctx, inputs)
	if err != nil {
		// A failed discussion degrades to individual deliberation.
		log.Warn().Str("run_id", r.ID).Err(err).Msg("Group discussion failed")
		r.log(models.ActorSystem, models.PhaseDiscussion, models.LogInfo, "グループ討議の生成に失敗しました。個別の検討を継続します。")
		return ""
	}

	r.log(models.ActorModerator, models.PhaseDiscussion, models.LogDialogue, "議論まとめ: "+summary.Summary)
	r.log(models.ActorModerator, models.PhaseDiscussion, models.LogDialogue, "支配的意見: "+summary.DominantOpinion)

	now := time.Now().UTC()
	for _, out := range reactions {
		r.apply(out.persona.ID, models.Direct(models.ConsumerUpdate{
			AppendHistory: []models.InteractionItem{
				{Type: models.InteractionDiscussion, Content: summary.DominantOpinion, Timestamp: now, InterestLevel: out.reaction.InterestLevel},
			},
		}))
	}
	return summary.DiscussionContext
}

// ── Decision phase ───────────────────────────────────────────

func (e *Engine) decisionPhase(ctx context.Context, r *Run, reactions []*reactionOutcome, discussionContext string) []models.ConsumerResult {
	ch := make(chan settled[*models.ConsumerResult], len(reactions))
	for i, out := range reactions {
		go func(idx int, out *reactionOutcome) {
			res, err := throttle.Submit(ctx, e.queue, func(ctx context.Context) (*models.ConsumerResult, error) {
				return e.decisionStep(ctx, r, out, discussionContext)
			})
			ch <- settled[*models.ConsumerResult]{idx: idx, val: res, err: err}
		}(i, out)
	}

	byIdx := make([]*models.ConsumerResult, len(reactions))
	for range reactions {
		s := <-ch
		if s.err != nil {
			pid := reactions[s.idx].persona.ID
			log.Warn().Str("run_id", r.ID).Str("persona", pid).Err(s.err).Msg("Persona dropped at decision")
			r.log(pid, models.PhaseInteraction, models.LogInfo, "シミュレーション離脱 (Decision Error): "+s.err.Error())
			continue
		}
		byIdx[s.idx] = s.val
	}

	results := make([]models.ConsumerResult, 0, len(reactions))
	for _, res := range byIdx {
		if res != nil {
			results = append(results, *res)
		}
	}
	return results
}

func (e *Engine) decisionStep(ctx context.Context, r *Run, out *reactionOutcome, discussionContext string) (*models.ConsumerResult, error) {
	persona := out.persona

	if discussionContext != "" {
		r.apply(persona.ID, models.Functional(func(prev models.ConsumerState) models.ConsumerUpdate {
			return models.ConsumerUpdate{
				AppendHistory: []models.InteractionItem{
					{Type: models.InteractionDiscussion, Content: "（他の参加者の意見を聞いています...）", Timestamp: time.Now().UTC(), InterestLevel: prev.InterestLevel},
				},
			}
		}))
		if err := pause(ctx, e.cfg.ListenPause); err != nil {
			return nil, err
		}
	}

	r.apply(persona.ID, models.Direct(models.ConsumerUpdate{Status: models.Ptr(models.ConsumerThinking)}))

	decision, err := r.ag.Decide(ctx, r.Input, persona, r.pitchSnapshot(), out.reaction, out.qa, discussionContext, r.competitorSnapshot())
	if err != nil {
		return nil, err
	}

	// A verdict pins the interest band: buys land high, passes low.
	interest := out.reaction.InterestLevel
	if decision.Decision == models.DecisionBuy {
		if interest < 90 {
			interest = 90
		}
	} else if interest > 40 {
		interest = 40
	}

	score := decision.Score()
	now := time.Now().UTC()
	decisionLabel := "見送り決定"
	if decision.Decision == models.DecisionBuy {
		decisionLabel = "購入決定"
	}
	r.apply(persona.ID, models.Direct(models.ConsumerUpdate{
		Status:               models.Ptr(models.ConsumerDecided),
		InnerVoice:           models.Ptr(decision.InnerVoice),
		Decision:             models.Ptr(decision.Decision),
		DecisionReason:       models.Ptr(decision.Reason),
		WillingnessToPay:     models.Ptr(decision.WillingnessToPay),
		TargetPriceCondition: models.Ptr(decision.TargetPriceCondition),
		DetailedScore:        &score,
		KeyInsight:           models.Ptr(decision.KeyInsight),
		AttributeReasoning:   models.Ptr(decision.AttributeReasoning),
		ReverseQuestion:      models.Ptr(decision.ReverseQuestion),
		InterestLevel:        models.Ptr(interest),
		AppendHistory: []models.InteractionItem{
			{Type: models.InteractionThought, Content: decision.InnerVoice, Timestamp: now, InterestLevel: interest},
			{Type: models.InteractionDecision, Content: decisionLabel, Timestamp: now, InterestLevel: interest},
		},
	}))

	r.log(persona.ID, models.PhaseInteraction, models.LogThought, decision.InnerVoice)
	actionMsg := fmt.Sprintf("👋 見送ります (評価額: ¥%d)", decision.WillingnessToPay)
	if decision.Decision == models.DecisionBuy {
		actionMsg = fmt.Sprintf("🎉 採用/購入します (評価額: ¥%d)", decision.WillingnessToPay)
	}
	r.log(persona.ID, models.PhaseInteraction, models.LogAction, actionMsg)
	logs := append(out.logs, fmt.Sprintf("Decision: %s - %s (WTP: %d)",
		strings.ToUpper(string(decision.Decision)), decision.Reason, decision.WillingnessToPay))

	if err := pause(ctx, e.cfg.ReviewPause); err != nil {
		return nil, err
	}

	r.apply(persona.ID, models.Direct(models.ConsumerUpdate{Status: models.Ptr(models.ConsumerReviewing)}))
	review, err := r.ag.Review(ctx, r.Input, persona, decision.Decision)
	if err != nil {
		return nil, err
	}

	reviewData := &models.ReviewData{
		PersonaID:   persona.ID,
		PersonaName: persona.Name,
		Rating:      review.Rating,
		Title:       review.Title,
		Body:        review.Body,
		NPS:         review.NPS,
	}
	logLabel := "フィードバック送信"
	if decision.Decision == models.DecisionBuy {
		logLabel = "レビュー投稿"
	}
	r.log(persona.ID, models.PhaseReview, models.LogInfo,
		fmt.Sprintf("%s: %s %q", logLabel, strings.Repeat("★", review.Rating), review.Title))

	return &models.ConsumerResult{
		PersonaID:            persona.ID,
		FinalDecision:        decision.Decision,
		DecisionReason:       decision.Reason,
		WillingnessToPay:     decision.WillingnessToPay,
		TargetPriceCondition: decision.TargetPriceCondition,
		DetailedScore:        score,
		KeyInsight:           decision.KeyInsight,
		Review:               reviewData,
		Logs:                 logs,
		QAHistory:            out.qa,
		AttributeReasoning:   decision.AttributeReasoning,
		ReverseQuestion:      decision.ReverseQuestion,
	}, nil
}
