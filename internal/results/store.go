// Package results persists evaluation records in a SQLite table keyed by
// (method, llm, dataset, retriever, metric). Writes are idempotent
// upserts, so re-running a cell overwrites its own row and nothing else.
package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/haasonsaas/reformbench/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Store is the results table handle. Safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the results database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create results directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results database: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			method     TEXT NOT NULL,
			llm        TEXT NOT NULL,
			dataset    TEXT NOT NULL,
			retriever  TEXT NOT NULL,
			metric     TEXT NOT NULL,
			value      REAL NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (method, llm, dataset, retriever, metric)
		)
	`)
	if err != nil {
		return fmt.Errorf("create results table: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert writes one cell's metric values, replacing any previous values for
// the same key. Other keys are untouched.
func (s *Store) Upsert(ctx context.Context, rec models.EvaluationRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (method, llm, dataset, retriever, metric, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (method, llm, dataset, retriever, metric)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare results upsert: %w", err)
	}
	defer stmt.Close()

	for _, metric := range sortedMetrics(rec.Metrics) {
		k := rec.Key
		if _, err := stmt.ExecContext(ctx, k.Method, k.LLM, k.Dataset, k.Retriever, metric, rec.Metrics[metric]); err != nil {
			return fmt.Errorf("upsert %s %s: %w", k, metric, err)
		}
	}
	return tx.Commit()
}

// Get returns the stored metric values for one key, or an empty map when
// the key has no rows.
func (s *Store) Get(ctx context.Context, key models.CellKey) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, value FROM results
		WHERE method = ? AND llm = ? AND dataset = ? AND retriever = ?
	`, key.Method, key.LLM, key.Dataset, key.Retriever)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, fmt.Errorf("scan results row: %w", err)
		}
		out[metric] = value
	}
	return out, rows.Err()
}

// All returns every record in the table, ordered by key.
func (s *Store) All(ctx context.Context) ([]models.EvaluationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT method, llm, dataset, retriever, metric, value FROM results
		ORDER BY method, llm, dataset, retriever, metric
	`)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var (
		records []models.EvaluationRecord
		current *models.EvaluationRecord
	)
	for rows.Next() {
		var key models.CellKey
		var metric string
		var value float64
		if err := rows.Scan(&key.Method, &key.LLM, &key.Dataset, &key.Retriever, &metric, &value); err != nil {
			return nil, fmt.Errorf("scan results row: %w", err)
		}
		if current == nil || current.Key != key {
			records = append(records, models.EvaluationRecord{Key: key, Metrics: make(map[string]float64)})
			current = &records[len(records)-1]
		}
		current.Metrics[metric] = value
	}
	return records, rows.Err()
}

func sortedMetrics(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
