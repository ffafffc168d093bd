package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/aclements/go-moremath/stats"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

const (
	// DefaultGridStep is the spacing of the shared distance grid in meters.
	DefaultGridStep = 0.01

	// BandSigma is the half-width of the confidence band in standard
	// deviations.
	BandSigma = 2.0
)

// Aggregate resamples every curve of a strategy onto a shared grid and
// returns the cross-run mean with a ±2σ band clipped into [0, 1].
//
// The grid starts at the smallest first edge and runs with spacing step up
// to, but excluding, max(largest last edge, cap) + step. At each grid point a
// curve contributes the fraction of its last upper edge at or below the
// point, or 0 if there is none.
func Aggregate(strategy string, curves []domain.Curve, cap, step float64) (domain.Band, error) {
	if len(curves) == 0 {
		return domain.Band{}, fmt.Errorf("stats: aggregate %s: %w", strategy, domain.ErrEmptyGroup)
	}
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return domain.Band{}, fmt.Errorf("stats: aggregate %s: grid step must be positive, got %v", strategy, step)
	}

	start := math.Inf(1)
	maxEdge := math.Inf(-1)
	minDistance := math.Inf(1)
	for _, c := range curves {
		if len(c.Edges) < 2 || len(c.Fractions) != len(c.Edges)-1 {
			return domain.Band{}, fmt.Errorf("stats: aggregate %s: malformed curve %s", strategy, c.RunID)
		}
		start = math.Min(start, c.Edges[0])
		maxEdge = math.Max(maxEdge, c.Edges[len(c.Edges)-1])
		minDistance = math.Min(minDistance, c.MinDistance)
	}
	stop := math.Max(maxEdge, cap) + step

	grid := arange(start, stop, step)
	points := make([]domain.BandPoint, len(grid))
	values := make([]float64, len(curves))
	for i, g := range grid {
		for j, c := range curves {
			values[j] = FractionAt(c, g)
		}
		mean := stats.Mean(values)
		sd := populationStdDev(values)
		points[i] = domain.BandPoint{
			Distance: g,
			Mean:     mean,
			Lower:    clip(mean-BandSigma*sd, 0, 1),
			Upper:    clip(mean+BandSigma*sd, 0, 1),
		}
	}

	return domain.Band{
		Strategy:    strategy,
		Runs:        len(curves),
		MinDistance: minDistance,
		Points:      points,
	}, nil
}

// FractionAt returns the cumulative fraction of the last bin whose upper edge
// is at or below distance, or 0 when distance lies below every upper edge.
func FractionAt(c domain.Curve, distance float64) float64 {
	upper := c.UpperEdges()
	k := sort.Search(len(upper), func(i int) bool { return upper[i] > distance })
	if k == 0 {
		return 0
	}
	return c.Fractions[k-1]
}

// arange returns start, start+step, ... for every value strictly below stop.
func arange(start, stop, step float64) []float64 {
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// populationStdDev converts the sample variance reported by go-moremath into
// the population standard deviation.
func populationStdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	v := stats.Variance(xs) * float64(n-1) / float64(n)
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
