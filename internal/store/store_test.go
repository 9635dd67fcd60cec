package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/panelsim/panelsim/pkg/models"
)

func testItem(id, name string, ts time.Time) *models.HistoryItem {
	return &models.HistoryItem{
		ID:             id,
		Timestamp:      ts,
		ProductName:    name,
		AcceptanceRate: 40,
		Result: models.SimulationResult{
			Product: models.ProductInput{Name: name},
			Report:  models.AnalysisReport{AcceptanceRate: 40, Markdown: "# report"},
		},
	}
}

// storeUnderTest runs the same contract against both implementations.
func storeUnderTest(t *testing.T, name string) Store {
	t.Helper()
	switch name {
	case "memory":
		return NewMemoryStore()
	case "sqlite":
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
		if err != nil {
			t.Fatalf("NewSQLiteStore() error = %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	default:
		t.Fatalf("unknown store %q", name)
		return nil
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for _, impl := range []string{"memory", "sqlite"} {
		t.Run(impl, func(t *testing.T) {
			s := storeUnderTest(t, impl)
			ctx := context.Background()

			item := testItem("run-1", "スマート水筒", time.Now().UTC().Truncate(time.Second))
			if err := s.SaveRun(ctx, item); err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}

			got, err := s.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetRun() error = %v", err)
			}
			if got.ProductName != "スマート水筒" || got.AcceptanceRate != 40 {
				t.Errorf("GetRun() = %+v", got)
			}
			if got.Result.Report.Markdown != "# report" {
				t.Errorf("result payload lost: %+v", got.Result.Report)
			}
		})
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	for _, impl := range []string{"memory", "sqlite"} {
		t.Run(impl, func(t *testing.T) {
			s := storeUnderTest(t, impl)
			ctx := context.Background()

			base := time.Now().UTC().Truncate(time.Second)
			for i, id := range []string{"run-a", "run-b", "run-c"} {
				if err := s.SaveRun(ctx, testItem(id, id, base.Add(time.Duration(i)*time.Minute))); err != nil {
					t.Fatalf("SaveRun(%s) error = %v", id, err)
				}
			}

			got, err := s.ListRuns(ctx, 0)
			if err != nil {
				t.Fatalf("ListRuns() error = %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d runs, want 3", len(got))
			}
			if got[0].ID != "run-c" || got[2].ID != "run-a" {
				t.Errorf("order = [%s %s %s], want newest first", got[0].ID, got[1].ID, got[2].ID)
			}

			limited, err := s.ListRuns(ctx, 2)
			if err != nil {
				t.Fatalf("ListRuns(2) error = %v", err)
			}
			if len(limited) != 2 {
				t.Errorf("got %d runs with limit 2", len(limited))
			}
		})
	}
}

func TestStoreDeleteAndNotFound(t *testing.T) {
	for _, impl := range []string{"memory", "sqlite"} {
		t.Run(impl, func(t *testing.T) {
			s := storeUnderTest(t, impl)
			ctx := context.Background()

			if err := s.SaveRun(ctx, testItem("run-1", "p", time.Now().UTC())); err != nil {
				t.Fatalf("SaveRun() error = %v", err)
			}
			if err := s.DeleteRun(ctx, "run-1"); err != nil {
				t.Fatalf("DeleteRun() error = %v", err)
			}

			var nf *ErrNotFound
			if _, err := s.GetRun(ctx, "run-1"); !errors.As(err, &nf) {
				t.Errorf("GetRun() after delete error = %v, want ErrNotFound", err)
			}
			if err := s.DeleteRun(ctx, "run-1"); !errors.As(err, &nf) {
				t.Errorf("second DeleteRun() error = %v, want ErrNotFound", err)
			}
		})
	}
}
