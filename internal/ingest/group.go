package ingest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Resolver labels a recipe with its strategy key.
type Resolver interface {
	Resolve(recipe string) (string, error)
	Excluded(recipe string) bool
}

// Grouped is the result of GroupRuns.
type Grouped struct {
	// Runs holds the runs of every strategy in first-seen recipe order.
	Runs map[string][]domain.Run
	// Unmatched lists recipes no rule matched, in first-seen order.
	Unmatched []string
	// Rejected lists runs dropped for ambiguous labels or invalid samples.
	Rejected []domain.SkippedRun
	// Excluded counts recipes skipped by an exclude pattern.
	Excluded int
}

// Count returns the number of grouped runs.
func (g Grouped) Count() int {
	n := 0
	for _, runs := range g.Runs {
		n += len(runs)
	}
	return n
}

// GroupRuns splits cleaned rows into runs by exact recipe, orders each run's
// samples by timestamp and labels it with r. Runs with repeated timestamps
// or negative distances are rejected with ErrInvalidSample.
func GroupRuns(records []domain.RawRecord, r Resolver) Grouped {
	var order []string
	byRecipe := make(map[string][]domain.Sample)
	for _, rec := range records {
		if _, seen := byRecipe[rec.Recipe]; !seen {
			order = append(order, rec.Recipe)
		}
		byRecipe[rec.Recipe] = append(byRecipe[rec.Recipe], domain.Sample{
			Timestamp: rec.Timestamp,
			Distance:  rec.Mean,
		})
	}

	g := Grouped{Runs: make(map[string][]domain.Run)}
	for _, recipe := range order {
		if r.Excluded(recipe) {
			g.Excluded++
			continue
		}

		key, err := r.Resolve(recipe)
		switch {
		case errors.Is(err, domain.ErrUnknownStrategy):
			g.Unmatched = append(g.Unmatched, recipe)
			continue
		case err != nil:
			g.Rejected = append(g.Rejected, domain.SkippedRun{RunID: recipe, Reason: err.Error()})
			continue
		}

		samples := byRecipe[recipe]
		if err := orderSamples(samples); err != nil {
			g.Rejected = append(g.Rejected, domain.SkippedRun{
				RunID:    recipe,
				Strategy: key,
				Reason:   fmt.Sprintf("ingest: run %q: %v", recipe, err),
			})
			continue
		}
		g.Runs[key] = append(g.Runs[key], domain.Run{ID: recipe, Strategy: key, Samples: samples})
	}
	return g
}

func orderSamples(samples []domain.Sample) error {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp < samples[j].Timestamp
	})
	for i, s := range samples {
		if s.Distance < 0 {
			return fmt.Errorf("negative distance %v at t=%v: %w", s.Distance, s.Timestamp, domain.ErrInvalidSample)
		}
		if i > 0 && s.Timestamp <= samples[i-1].Timestamp {
			return fmt.Errorf("repeated timestamp %v: %w", s.Timestamp, domain.ErrInvalidSample)
		}
	}
	return nil
}
