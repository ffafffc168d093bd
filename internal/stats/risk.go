package stats

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// DefaultRiskThresholds are the distances, in meters, below which time is
// counted as risky.
var DefaultRiskThresholds = []float64{0.4, 0.5, 0.7, 0.8}

// RiskExposure returns, for every threshold in order, the percentage of the
// run's duration during which the distance stayed below the threshold.
//
// Interval i spans samples i and i+1 and is charged to sample i, so the last
// sample never contributes. Runs with fewer than two samples or zero elapsed
// time return domain.ErrInsufficientData.
func RiskExposure(run domain.Run, thresholds []float64) ([]domain.RiskRecord, error) {
	n := len(run.Samples)
	if n < 2 {
		return nil, fmt.Errorf("stats: risk %s: %d sample(s): %w", run.ID, n, domain.ErrInsufficientData)
	}
	total := run.Duration()
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("stats: risk %s: elapsed time %v: %w", run.ID, total, domain.ErrInsufficientData)
	}

	deltas := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		deltas[i] = run.Samples[i+1].Timestamp - run.Samples[i].Timestamp
	}

	out := make([]domain.RiskRecord, 0, len(thresholds))
	for _, tau := range thresholds {
		var under float64
		for i, dt := range deltas {
			if run.Samples[i].Distance < tau {
				under += dt
			}
		}
		out = append(out, domain.RiskRecord{
			RunID:      run.ID,
			Strategy:   run.Strategy,
			Threshold:  tau,
			Percentage: clip(under/total*100, 0, 100),
		})
	}
	return out, nil
}
