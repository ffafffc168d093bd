package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// TaskResultStore implements domain.TaskResultSource and
// domain.TaskResultImporter over the task_results table.
type TaskResultStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.TaskResultSource   = (*TaskResultStore)(nil)
	_ domain.TaskResultImporter = (*TaskResultStore)(nil)
)

// NewTaskResultStore creates a new TaskResultStore backed by the given pool.
func NewTaskResultStore(pool *pgxpool.Pool) *TaskResultStore {
	return &TaskResultStore{pool: pool}
}

// LoadTaskResults returns one result per recipe spanning its first start to
// its last end.
func (s *TaskResultStore) LoadTaskResults(ctx context.Context, experiment string) ([]domain.TaskResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recipe, MIN(t_start), MAX(t_end)
		FROM task_results
		WHERE experiment = $1
		GROUP BY recipe
		ORDER BY recipe`, experiment)
	if err != nil {
		return nil, fmt.Errorf("postgres: load task results %s: %w", experiment, err)
	}
	defer rows.Close()

	var out []domain.TaskResult
	for rows.Next() {
		var r domain.TaskResult
		if err := rows.Scan(&r.Recipe, &r.TStart, &r.TEnd); err != nil {
			return nil, fmt.Errorf("postgres: scan task result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load task results %s: %w", experiment, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("postgres: task results of %q: %w", experiment, domain.ErrNotFound)
	}
	return out, nil
}

// ImportTaskResults inserts results for experiment in one transaction.
func (s *TaskResultStore) ImportTaskResults(ctx context.Context, experiment string, results []domain.TaskResult) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := ensureEmpty(ctx, tx, "task_results", experiment); err != nil {
		return 0, err
	}

	const query = `INSERT INTO task_results (experiment, recipe, t_start, t_end) VALUES ($1, $2, $3, $4)`
	for start := 0; start < len(results); start += importChunk {
		end := min(start+importChunk, len(results))
		batch := &pgx.Batch{}
		for _, r := range results[start:end] {
			batch.Queue(query, experiment, r.Recipe, r.TStart, r.TEnd)
		}
		if err := execBatch(ctx, tx, batch, start); err != nil {
			return 0, fmt.Errorf("postgres: import task results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit import: %w", err)
	}
	return int64(len(results)), nil
}
