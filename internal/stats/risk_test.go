package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

func makeRun(id string, ts, ds []float64) domain.Run {
	samples := make([]domain.Sample, len(ts))
	for i := range ts {
		samples[i] = domain.Sample{Timestamp: ts[i], Distance: ds[i]}
	}
	return domain.Run{ID: id, Strategy: "BASIC_SOLVER", Samples: samples}
}

func TestRiskExposure_ChargesIntervalToItsStartSample(t *testing.T) {
	run := makeRun("run-1", []float64{0, 1, 2, 3}, []float64{0.3, 0.3, 0.9, 0.9})

	recs, err := RiskExposure(run, []float64{0.4})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, "run-1", recs[0].RunID)
	assert.Equal(t, "BASIC_SOLVER", recs[0].Strategy)
	assert.Equal(t, 0.4, recs[0].Threshold)
	assert.InDelta(t, 66.6667, recs[0].Percentage, 1e-4)
}

func TestRiskExposure_LastSampleNeverCounts(t *testing.T) {
	run := makeRun("r", []float64{0, 2, 5}, []float64{0.9, 0.9, 0.1})

	recs, err := RiskExposure(run, []float64{0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, recs[0].Percentage)
}

func TestRiskExposure_IrregularTimestamps(t *testing.T) {
	run := makeRun("r", []float64{10, 10.5, 14, 15}, []float64{0.2, 0.6, 0.45, 0.1})

	recs, err := RiskExposure(run, []float64{0.4, 0.5, 0.7})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	// Intervals: 0.5 s at 0.2, 3.5 s at 0.6, 1 s at 0.45; total 5 s.
	assert.InDelta(t, 10.0, recs[0].Percentage, 1e-9)
	assert.InDelta(t, 30.0, recs[1].Percentage, 1e-9)
	assert.InDelta(t, 100.0, recs[2].Percentage, 1e-9)
}

func TestRiskExposure_MonotoneInThreshold(t *testing.T) {
	run := makeRun("r",
		[]float64{0, 0.3, 0.9, 1.4, 2.0, 2.2, 3.7, 4.1},
		[]float64{1.2, 0.35, 0.75, 0.42, 0.55, 0.81, 0.2, 0.6},
	)
	recs, err := RiskExposure(run, DefaultRiskThresholds)
	require.NoError(t, err)
	require.Len(t, recs, len(DefaultRiskThresholds))

	prev := 0.0
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.Percentage, prev)
		assert.GreaterOrEqual(t, r.Percentage, 0.0)
		assert.LessOrEqual(t, r.Percentage, 100.0)
		prev = r.Percentage
	}
}

func TestRiskExposure_InsufficientData(t *testing.T) {
	tests := []struct {
		name string
		run  domain.Run
	}{
		{name: "no samples", run: domain.Run{ID: "r"}},
		{name: "single sample", run: makeRun("r", []float64{3}, []float64{0.2})},
		{name: "zero duration", run: makeRun("r", []float64{3, 3}, []float64{0.2, 0.2})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := RiskExposure(tt.run, DefaultRiskThresholds)
			assert.ErrorIs(t, err, domain.ErrInsufficientData)
			assert.Nil(t, recs)
		})
	}
}

func TestRiskExposure_NoThresholds(t *testing.T) {
	recs, err := RiskExposure(makeRun("r", []float64{0, 1}, []float64{0.1, 0.1}), nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
