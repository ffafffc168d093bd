// Package stats implements the aggregation engine: per-run cumulative
// distance curves, their cross-run confidence band, and the time spent below
// risk thresholds.
//
// Everything in this package is pure and synchronous. Inputs are never
// mutated, so curves and risk records of different runs can be computed
// concurrently.
package stats

import (
	"fmt"
	"math"

	"github.com/aclements/go-moremath/stats"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// DefaultCap is the distance ceiling, in meters, shared by every curve.
const DefaultCap = 4.0

// BuildCurve bins the run's distances into exactly len(distances) equal-width
// bins over [min(distances), cap] and returns the running count divided by
// the sample count.
//
// Samples above cap fall outside the range, so the last fraction reaches 1.0
// only when every distance is at or below cap. The divisor stays the sample
// count even then. When every sample lies at or above cap the range falls
// back to [min, max]. A range of zero width yields a single bin holding
// fraction 1.0.
//
// Distances must be finite and non-negative.
func BuildCurve(runID string, distances []float64, cap float64) (domain.Curve, error) {
	n := len(distances)
	if n == 0 {
		return domain.Curve{}, fmt.Errorf("stats: curve %s: %w", runID, domain.ErrInsufficientData)
	}
	for i, d := range distances {
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return domain.Curve{}, fmt.Errorf("stats: curve %s: sample %d (%v): %w", runID, i, d, domain.ErrInvalidSample)
		}
	}

	lo, hi := stats.Sample{Xs: distances}.Bounds()
	upper := cap
	if upper <= lo {
		upper = hi
	}

	if upper == lo {
		return domain.Curve{
			RunID:       runID,
			Edges:       []float64{lo, lo},
			Fractions:   []float64{1},
			MinDistance: lo,
		}, nil
	}

	edges := linspace(lo, upper, n+1)
	counts := histogram(distances, edges)

	fractions := make([]float64, n)
	var running int
	for i, c := range counts {
		running += c
		fractions[i] = float64(running) / float64(n)
	}

	return domain.Curve{
		RunID:       runID,
		Edges:       edges,
		Fractions:   fractions,
		MinDistance: lo,
	}, nil
}

// linspace returns num evenly spaced values over [start, stop], with the last
// value pinned to stop.
func linspace(start, stop float64, num int) []float64 {
	out := make([]float64, num)
	step := (stop - start) / float64(num-1)
	for i := range out {
		out[i] = float64(i)*step + start
	}
	out[num-1] = stop
	return out
}

// histogram counts xs into the uniform bins described by edges. Every bin is
// half-open except the last, which includes its upper edge. Values outside
// [edges[0], edges[len-1]] are ignored.
func histogram(xs []float64, edges []float64) []int {
	nbins := len(edges) - 1
	first, last := edges[0], edges[nbins]
	norm := float64(nbins) / (last - first)

	counts := make([]int, nbins)
	for _, x := range xs {
		if x < first || x > last {
			continue
		}
		idx := int((x - first) * norm)
		if idx == nbins {
			idx--
		}
		// The scaled index can land one bin off due to rounding; settle it
		// against the actual edges.
		if x < edges[idx] {
			idx--
		} else if idx != nbins-1 && x >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}
	return counts
}
