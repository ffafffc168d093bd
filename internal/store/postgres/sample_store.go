package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// importChunk bounds the number of rows queued in one pgx.Batch.
const importChunk = 5000

// SampleStore implements domain.RecordSource and domain.RecordImporter over
// the distance_samples table.
type SampleStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.RecordSource   = (*SampleStore)(nil)
	_ domain.RecordImporter = (*SampleStore)(nil)
)

// NewSampleStore creates a new SampleStore backed by the given connection pool.
func NewSampleStore(pool *pgxpool.Pool) *SampleStore {
	return &SampleStore{pool: pool}
}

// LoadRecords returns the rows of experiment in insertion order.
func (s *SampleStore) LoadRecords(ctx context.Context, experiment string) ([]domain.RawRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT recipe, mean, ts FROM distance_samples WHERE experiment = $1 ORDER BY id`,
		experiment)
	if err != nil {
		return nil, fmt.Errorf("postgres: load samples %s: %w", experiment, err)
	}
	defer rows.Close()

	var out []domain.RawRecord
	for rows.Next() {
		var r domain.RawRecord
		if err := rows.Scan(&r.Recipe, &r.Mean, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan sample: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load samples %s: %w", experiment, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("postgres: experiment %q: %w", experiment, domain.ErrNotFound)
	}
	return out, nil
}

// ImportRecords inserts records for experiment in one transaction. It refuses
// to add rows to an experiment that already has any.
func (s *SampleStore) ImportRecords(ctx context.Context, experiment string, records []domain.RawRecord) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin import: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := ensureEmpty(ctx, tx, "distance_samples", experiment); err != nil {
		return 0, err
	}

	const query = `INSERT INTO distance_samples (experiment, recipe, mean, ts) VALUES ($1, $2, $3, $4)`
	for start := 0; start < len(records); start += importChunk {
		end := min(start+importChunk, len(records))
		batch := &pgx.Batch{}
		for _, r := range records[start:end] {
			batch.Queue(query, experiment, r.Recipe, r.Mean, r.Timestamp)
		}
		if err := execBatch(ctx, tx, batch, start); err != nil {
			return 0, fmt.Errorf("postgres: import samples: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit import: %w", err)
	}
	return int64(len(records)), nil
}

// Experiments returns the distinct experiment names holding samples.
func (s *SampleStore) Experiments(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT experiment FROM distance_samples ORDER BY experiment`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list experiments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: scan experiment: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ensureEmpty fails with ErrAlreadyExists when table holds rows of experiment.
// The table name is a package constant, never user input.
func ensureEmpty(ctx context.Context, tx pgx.Tx, table, experiment string) error {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE experiment = $1)`, experiment,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check %s for %s: %w", table, experiment, err)
	}
	if exists {
		return fmt.Errorf("postgres: %s already holds experiment %q: %w", table, experiment, domain.ErrAlreadyExists)
	}
	return nil
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, offset int) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("batch item %d: %w", offset+i, err)
		}
	}
	return br.Close()
}
