package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/aclements/go-moremath/stats"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Labeler maps a strategy key to its display label.
type Labeler interface {
	Label(key string) string
}

// MinDistanceTable builds one row per band, in band order, with the
// difference between the strategy's minimum distance and that of each
// reference strategy. References without a band are left out of Differences.
func MinDistanceTable(bands []domain.Band, references []string, labels Labeler) []domain.MinDistanceRow {
	byKey := make(map[string]float64, len(bands))
	for _, b := range bands {
		byKey[b.Strategy] = b.MinDistance
	}

	rows := make([]domain.MinDistanceRow, 0, len(bands))
	for _, b := range bands {
		row := domain.MinDistanceRow{
			Strategy:    b.Strategy,
			Label:       labels.Label(b.Strategy),
			MinDistance: b.MinDistance,
			Differences: make(map[string]float64, len(references)),
		}
		for _, ref := range references {
			if v, ok := byKey[ref]; ok {
				row.Differences[ref] = b.MinDistance - v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// RecipeDurations collapses task results into one span per recipe: the
// earliest start to the latest end. strategyOf resolves the strategy of a
// recipe; recipes it rejects are returned separately. Output is sorted by
// recipe.
func RecipeDurations(results []domain.TaskResult, strategyOf func(recipe string) (string, error)) ([]domain.DurationRecord, []string) {
	spans := make(map[string]*domain.DurationRecord)
	for _, r := range results {
		s, ok := spans[r.Recipe]
		if !ok {
			s = &domain.DurationRecord{Recipe: r.Recipe, Start: r.TStart, End: r.TEnd}
			spans[r.Recipe] = s
			continue
		}
		s.Start = math.Min(s.Start, r.TStart)
		s.End = math.Max(s.End, r.TEnd)
	}

	recipes := make([]string, 0, len(spans))
	for k := range spans {
		recipes = append(recipes, k)
	}
	sort.Strings(recipes)

	var out []domain.DurationRecord
	var rejected []string
	for _, recipe := range recipes {
		key, err := strategyOf(recipe)
		if err != nil {
			rejected = append(rejected, recipe)
			continue
		}
		s := spans[recipe]
		s.Strategy = key
		s.Duration = s.End - s.Start
		out = append(out, *s)
	}
	return out, rejected
}

// SummarizeDurations averages recipe durations per strategy, in the order of
// keys, and computes the relative reduction against each reference:
// (reference − mean) / reference · 100. Strategies without records are
// skipped.
func SummarizeDurations(records []domain.DurationRecord, keys, references []string, labels Labeler) ([]domain.DurationSummary, error) {
	grouped := make(map[string][]float64)
	for _, r := range records {
		grouped[r.Strategy] = append(grouped[r.Strategy], r.Duration)
	}

	means := make(map[string]float64, len(grouped))
	for k, ds := range grouped {
		means[k] = stats.Mean(ds)
	}

	var out []domain.DurationSummary
	for _, key := range keys {
		ds, ok := grouped[key]
		if !ok {
			continue
		}
		sum := domain.DurationSummary{
			Strategy:     key,
			Label:        labels.Label(key),
			Runs:         len(ds),
			MeanDuration: means[key],
			Reductions:   make(map[string]float64, len(references)),
		}
		for _, ref := range references {
			base, ok := means[ref]
			if !ok {
				continue
			}
			if base == 0 {
				return nil, fmt.Errorf("stats: duration reduction against %s: zero mean duration", ref)
			}
			sum.Reductions[ref] = (base - sum.MeanDuration) / base * 100
		}
		out = append(out, sum)
	}
	return out, nil
}
