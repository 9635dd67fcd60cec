// Package sim contains the simulation engine: per-run consumer state,
// token metering, the live event feed, and the phase orchestrator that
// drives a product idea through casting, pitch, reaction, discussion,
// decision, and analysis.
package sim

import (
	"sync"

	"github.com/panelsim/panelsim/pkg/models"
)

// StateStore holds the consumer states of one run. Patches are
// resolved and merged under the store lock, so concurrent read-modify-
// write updates (history appends in particular) never lose entries.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]*models.ConsumerState
}

// NewStateStore returns an empty store. It is created with the run,
// before any persona exists, so readers always see a stable pointer.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]*models.ConsumerState)}
}

// Seed registers one waiting state per persona at casting time.
func (s *StateStore) Seed(personas []models.PersonaProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range personas {
		s.states[p.ID] = &models.ConsumerState{
			Profile:       p,
			Status:        models.ConsumerWaiting,
			InterestLevel: 0,
		}
	}
}

// Apply resolves the patch against the current state of id and merges
// it in. Unknown ids are ignored. It returns a snapshot of the merged
// state for broadcasting.
func (s *StateStore) Apply(id string, patch models.Patch) (models.ConsumerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[id]
	if !ok {
		return models.ConsumerState{}, false
	}

	u := patch.Resolve(*state)
	if u.Status != nil {
		state.Status = *u.Status
	}
	if u.InnerVoice != nil {
		state.InnerVoice = *u.InnerVoice
	}
	if u.Decision != nil {
		state.Decision = *u.Decision
	}
	if u.DecisionReason != nil {
		state.DecisionReason = *u.DecisionReason
	}
	if u.WillingnessToPay != nil {
		state.WillingnessToPay = *u.WillingnessToPay
	}
	if u.TargetPriceCondition != nil {
		state.TargetPriceCondition = *u.TargetPriceCondition
	}
	if u.DetailedScore != nil {
		score := *u.DetailedScore
		state.DetailedScore = &score
	}
	if u.KeyInsight != nil {
		state.KeyInsight = *u.KeyInsight
	}
	if u.AttributeReasoning != nil {
		state.AttributeReasoning = *u.AttributeReasoning
	}
	if u.ReverseQuestion != nil {
		state.ReverseQuestion = *u.ReverseQuestion
	}
	if u.InterestLevel != nil {
		state.InterestLevel = *u.InterestLevel
	}
	if u.QuestionsAsked != nil {
		state.QuestionsAsked = *u.QuestionsAsked
	}
	state.InteractionHistory = append(state.InteractionHistory, u.AppendHistory...)

	return snapshotState(state), true
}

// Get returns a snapshot of one persona's state.
func (s *StateStore) Get(id string) (models.ConsumerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[id]
	if !ok {
		return models.ConsumerState{}, false
	}
	return snapshotState(state), true
}

// All returns a snapshot of every persona's state keyed by id.
func (s *StateStore) All() map[string]models.ConsumerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.ConsumerState, len(s.states))
	for id, state := range s.states {
		out[id] = snapshotState(state)
	}
	return out
}

func snapshotState(state *models.ConsumerState) models.ConsumerState {
	snap := *state
	snap.InteractionHistory = make([]models.InteractionItem, len(state.InteractionHistory))
	copy(snap.InteractionHistory, state.InteractionHistory)
	if state.DetailedScore != nil {
		score := *state.DetailedScore
		snap.DetailedScore = &score
	}
	return snap
}
