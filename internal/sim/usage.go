package sim

import (
	"sync"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/pkg/models"
)

// Meter accumulates token usage across one run. Counters only grow;
// a run gets a fresh meter.
type Meter struct {
	mu    sync.Mutex
	total models.TokenUsage
}

// NewMeter returns an empty meter.
func NewMeter() *Meter {
	return &Meter{}
}

// Add folds one call's usage into the totals under the given tier.
func (m *Meter) Add(u genai.Usage, tier genai.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.InputTokens += u.InputTokens
	m.total.OutputTokens += u.OutputTokens
	m.total.TotalTokens += u.TotalTokens
	m.total.APICalls++

	switch tier {
	case genai.TierOrganizer:
		m.total.OrganizerInputTokens += u.InputTokens
		m.total.OrganizerOutputTokens += u.OutputTokens
	case genai.TierWorker:
		m.total.WorkerInputTokens += u.InputTokens
		m.total.WorkerOutputTokens += u.OutputTokens
	}
}

// Total returns a snapshot of the accumulated usage.
func (m *Meter) Total() models.TokenUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}
