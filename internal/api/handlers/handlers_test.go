package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/panelsim/panelsim/internal/genai"
	"github.com/panelsim/panelsim/internal/invoke"
	"github.com/panelsim/panelsim/internal/sim"
	"github.com/panelsim/panelsim/internal/store"
	"github.com/panelsim/panelsim/internal/throttle"
	"github.com/panelsim/panelsim/pkg/models"
)

type stubClient struct{}

func (stubClient) Generate(ctx context.Context, req *genai.Request) (*genai.Response, error) {
	return nil, &genai.APIError{Status: 400, Message: "no backend in tests"}
}

func testRouter(t *testing.T, history store.Store) http.Handler {
	t.Helper()
	cfg := sim.Config{
		OrganizerModel: "organizer-model",
		WorkerModel:    "worker-model",
		Invoke:         invoke.Options{MaxAttempts: 1, BaseDelay: time.Millisecond, Timeout: time.Second},
	}
	engine := sim.NewEngine(stubClient{}, nil, throttle.NewQueue(2), history, cfg)
	h := New(engine, history)

	r := chi.NewRouter()
	r.Post("/simulations", h.StartSimulation)
	r.Get("/simulations/{runID}", h.GetSimulation)
	r.Delete("/simulations/{runID}", h.CancelSimulation)
	r.Get("/history", h.ListHistory)
	r.Get("/history/{runID}", h.GetHistory)
	r.Delete("/history/{runID}", h.DeleteHistory)
	return r
}

func TestStartSimulationValidatesBody(t *testing.T) {
	router := testRouter(t, store.NewMemoryStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/simulations", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/simulations", strings.NewReader(`{"name": "x"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing description: status = %d, want 400", rec.Code)
	}
}

func TestStartSimulationReturnsRunID(t *testing.T) {
	router := testRouter(t, store.NewMemoryStore())

	body := `{"name": "スマート水筒", "description": "飲水量を記録", "persona_count": 1}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/simulations", strings.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	runID := resp["run_id"]
	if runID == "" {
		t.Fatal("no run_id in response")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/simulations/"+runID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get run: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/simulations/"+runID, nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("cancel run: status = %d, want 202", rec.Code)
	}
}

func TestSimulationNotFound(t *testing.T) {
	router := testRouter(t, store.NewMemoryStore())

	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/simulations/missing", nil),
		httptest.NewRequest("DELETE", "/simulations/missing", nil),
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", req.Method, req.URL.Path, rec.Code)
		}
	}
}

func TestHistoryEndpoints(t *testing.T) {
	history := store.NewMemoryStore()
	item := &models.HistoryItem{
		ID:             "run-1",
		Timestamp:      time.Now().UTC(),
		ProductName:    "スマート水筒",
		AcceptanceRate: 60,
	}
	if err := history.SaveRun(context.Background(), item); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	router := testRouter(t, history)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var summaries []models.HistorySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].AcceptanceRate != 60 {
		t.Errorf("summaries = %+v", summaries)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/history/run-1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("DELETE", "/history/run-1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("delete: status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/history/run-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}
