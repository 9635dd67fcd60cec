// Package store persists completed simulation runs. The default
// deployment uses SQLite; the in-memory implementation backs tests and
// ephemeral setups.
package store

import (
	"context"

	"github.com/panelsim/panelsim/pkg/models"
)

// Store is the run history interface. Handlers and the engine depend
// on this, so SQLite and in-memory implementations are interchangeable.
type Store interface {
	// SaveRun persists one completed run.
	SaveRun(ctx context.Context, item *models.HistoryItem) error

	// GetRun returns one persisted run by id.
	GetRun(ctx context.Context, id string) (*models.HistoryItem, error)

	// ListRuns returns run summaries, newest first.
	ListRuns(ctx context.Context, limit int) ([]models.HistorySummary, error)

	// DeleteRun removes one persisted run.
	DeleteRun(ctx context.Context, id string) error

	// Ping checks if the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}
