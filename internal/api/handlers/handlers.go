// Package handlers implements the HTTP handlers for the PanelSim API.
// Simulation runs live in the sim engine; completed runs are read from
// the history store.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/panelsim/panelsim/internal/invoke"
	"github.com/panelsim/panelsim/internal/sim"
	"github.com/panelsim/panelsim/internal/store"
	"github.com/panelsim/panelsim/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine  *sim.Engine
	History store.Store
}

// New creates a new Handlers instance.
func New(engine *sim.Engine, history store.Store) *Handlers {
	return &Handlers{Engine: engine, History: history}
}

// ── Simulation Handlers ──────────────────────────────────────

// StartSimulation launches an async run and returns its id.
func (h *Handlers) StartSimulation(w http.ResponseWriter, r *http.Request) {
	var input models.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	run, err := h.Engine.StartRun(input)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"run_id": run.ID,
		"status": run.Status(),
	})
}

// GetSimulation returns the current snapshot of a run.
func (h *Handlers) GetSimulation(w http.ResponseWriter, r *http.Request) {
	run, ok := h.Engine.Get(chi.URLParam(r, "runID"))
	if !ok {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, run.Snapshot())
}

// CancelSimulation aborts a running simulation.
func (h *Handlers) CancelSimulation(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !h.Engine.Cancel(runID) {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	log.Info().Str("run_id", runID).Msg("Simulation cancel requested")
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "canceling"})
}

// StreamEvents streams a run's feed as server-sent events. Buffered
// events are replayed first, then live events until the run finishes
// or the client disconnects.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := h.Engine.Get(chi.URLParam(r, "runID"))
	if !ok {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Subscribe before replay so no event falls in the gap. Duplicates
	// across the boundary are possible and harmless for this feed.
	ch := run.Feed.Subscribe()
	defer run.Feed.Unsubscribe(ch)

	for _, evt := range run.Feed.Recent(0) {
		writeEvent(w, evt)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-ch:
			if !open {
				// Run finished; send the terminal snapshot and stop.
				writeEvent(w, sim.Event{Kind: "done", Data: run.Snapshot()})
				flusher.Flush()
				return
			}
			writeEvent(w, evt)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, evt sim.Event) {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + string(evt.Kind) + "\n"))
	w.Write([]byte("data: " + string(data) + "\n\n"))
}

// interviewRequest is the follow-up question payload.
type interviewRequest struct {
	PersonaID string `json:"persona_id"`
	Question  string `json:"question"`
}

// Interview relays a follow-up question to one persona.
func (h *Handlers) Interview(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var req interviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PersonaID == "" || req.Question == "" {
		respondError(w, http.StatusBadRequest, "persona_id and question are required")
		return
	}

	answer, err := h.Engine.Interview(r.Context(), runID, req.PersonaID, req.Question)
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

// ImprovementPlan generates the pivoted business plan for a finished run.
func (h *Handlers) ImprovementPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.Engine.ImprovementPlan(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondAgentError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// ── History Handlers ─────────────────────────────────────────

// ListHistory returns persisted run summaries, newest first.
func (h *Handlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := h.History.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []models.HistorySummary{}
	}
	respondJSON(w, http.StatusOK, items)
}

// GetHistory returns one persisted run in full.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	item, err := h.History.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// DeleteHistory removes one persisted run.
func (h *Handlers) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.History.DeleteRun(r.Context(), chi.URLParam(r, "runID")); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondStoreError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// respondAgentError maps engine/generation failures onto HTTP codes.
func respondAgentError(w http.ResponseWriter, err error) {
	var nf *store.ErrNotFound
	if errors.As(err, &nf) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	var fatal *invoke.FatalError
	if errors.As(err, &fatal) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var exhausted *invoke.ExhaustedError
	if errors.As(err, &exhausted) {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}
