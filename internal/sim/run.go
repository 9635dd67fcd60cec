package sim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/panelsim/panelsim/internal/agents"
	"github.com/panelsim/panelsim/pkg/models"
)

// Run is one simulation execution, live or finished. All mutation goes
// through the run's own methods so the feed sees every change.
type Run struct {
	ID        string
	Input     models.ProductInput
	StartedAt time.Time

	States *StateStore
	Meter  *Meter
	Feed   *Feed

	mu         sync.RWMutex
	status     models.SimulationStatus
	progress   int
	logs       []models.SimulationLog
	personas   []models.PersonaProfile
	pitch      *models.SalesPitch
	competitor *models.CompetitorData
	results    []models.ConsumerResult
	result     *models.SimulationResult
	runErr     error

	cancel context.CancelFunc
	done   chan struct{}

	ag *agents.Agents
}

// Snapshot is a read-only view of a run for API consumers.
type Snapshot struct {
	ID        string                          `json:"id"`
	Status    models.SimulationStatus         `json:"status"`
	Progress  int                             `json:"progress"`
	StartedAt time.Time                       `json:"started_at"`
	Usage     models.TokenUsage               `json:"usage"`
	States    map[string]models.ConsumerState `json:"states,omitempty"`
	Logs      []models.SimulationLog          `json:"logs"`
	Result    *models.SimulationResult        `json:"result,omitempty"`
	Error     string                          `json:"error,omitempty"`
}

// Done is closed when the run finishes, in any terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Err returns the terminal error, if the run failed.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runErr
}

// Result returns the terminal result, if the run completed.
func (r *Run) Result() *models.SimulationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

// Status returns the current phase.
func (r *Run) Status() models.SimulationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Snapshot captures the run's current state.
func (r *Run) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &Snapshot{
		ID:        r.ID,
		Status:    r.status,
		Progress:  r.progress,
		StartedAt: r.StartedAt,
		Usage:     r.Meter.Total(),
		Logs:      append([]models.SimulationLog(nil), r.logs...),
		Result:    r.result,
	}
	if states := r.States.All(); len(states) > 0 {
		snap.States = states
	}
	if r.runErr != nil {
		snap.Error = r.runErr.Error()
	}
	return snap
}

func (r *Run) setStatus(s models.SimulationStatus) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
	r.Feed.Publish(EventStatus, s)
}

func (r *Run) setProgress(p int) {
	r.mu.Lock()
	r.progress = p
	r.mu.Unlock()
	r.Feed.Publish(EventProgress, p)
}

// log appends one ordered run event and broadcasts it.
func (r *Run) log(personaID string, phase models.LogPhase, typ models.LogType, content string) {
	entry := models.SimulationLog{
		ID:        uuid.New().String(),
		PersonaID: personaID,
		Phase:     phase,
		Type:      typ,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	r.mu.Lock()
	r.logs = append(r.logs, entry)
	r.mu.Unlock()
	r.Feed.Publish(EventLog, entry)
}

// apply merges a state patch and broadcasts the merged snapshot.
func (r *Run) apply(personaID string, patch models.Patch) {
	if snap, ok := r.States.Apply(personaID, patch); ok {
		r.Feed.Publish(EventState, snap)
	}
}
