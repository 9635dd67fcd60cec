// Package store — in-memory Store implementation.
// Used when no storage path is configured (local dev, tests).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/panelsim/panelsim/pkg/models"
)

// MemoryStore implements Store with an in-memory map.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*models.HistoryItem
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*models.HistoryItem)}
}

func (s *MemoryStore) SaveRun(ctx context.Context, item *models.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.runs[item.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.runs[id]
	if !ok {
		return nil, &ErrNotFound{Entity: "run", Key: id}
	}
	cp := *item
	return &cp, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]models.HistorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]models.HistorySummary, 0, len(s.runs))
	for _, item := range s.runs {
		summaries = append(summaries, models.HistorySummary{
			ID:             item.ID,
			Timestamp:      item.Timestamp,
			ProductName:    item.ProductName,
			AcceptanceRate: item.AcceptanceRate,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *MemoryStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return &ErrNotFound{Entity: "run", Key: id}
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
