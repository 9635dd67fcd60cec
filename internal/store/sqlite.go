// Package store — SQLite Store implementation.
// The run payload is stored as a JSON document; the columns queried by
// the history listing are materialized for indexed access.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/panelsim/panelsim/pkg/models"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path and ensures
// the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		product_name TEXT NOT NULL,
		acceptance_rate INTEGER NOT NULL,
		result TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`)
	return err
}

func (s *SQLiteStore) SaveRun(ctx context.Context, item *models.HistoryItem) error {
	result, err := json.Marshal(item.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, created_at, product_name, acceptance_rate, result)
		 VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Timestamp.UTC(), item.ProductName, item.AcceptanceRate, string(result))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.HistoryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, product_name, acceptance_rate, result FROM runs WHERE id = ?`, id)

	var item models.HistoryItem
	var ts time.Time
	var result string
	if err := row.Scan(&item.ID, &ts, &item.ProductName, &item.AcceptanceRate, &result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{Entity: "run", Key: id}
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	item.Timestamp = ts
	if err := json.Unmarshal([]byte(result), &item.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &item, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]models.HistorySummary, error) {
	query := `SELECT id, created_at, product_name, acceptance_rate FROM runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var summaries []models.HistorySummary
	for rows.Next() {
		var sum models.HistorySummary
		var ts time.Time
		if err := rows.Scan(&sum.ID, &ts, &sum.ProductName, &sum.AcceptanceRate); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		sum.Timestamp = ts
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &ErrNotFound{Entity: "run", Key: id}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
