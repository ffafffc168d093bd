package stats

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

type labelMap map[string]string

func (m labelMap) Label(key string) string {
	if l, ok := m[key]; ok {
		return l
	}
	return key
}

var testLabels = labelMap{
	"BASIC_SOLVER":           "Baseline TP",
	"NOT_NEIGHBORING_SOLVER": "Not Neighboring TP",
	"COMPLETE_HA_SOLVER":     "Synergistic TP",
}

func TestMinDistanceTable(t *testing.T) {
	bands := []domain.Band{
		{Strategy: "COMPLETE_HA_SOLVER", MinDistance: 0.62},
		{Strategy: "BASIC_SOLVER", MinDistance: 0.31},
	}
	rows := MinDistanceTable(bands, []string{"BASIC_SOLVER", "NOT_NEIGHBORING_SOLVER"}, testLabels)
	require.Len(t, rows, 2)

	assert.Equal(t, "Synergistic TP", rows[0].Label)
	assert.InDelta(t, 0.31, rows[0].Differences["BASIC_SOLVER"], 1e-12)
	assert.NotContains(t, rows[0].Differences, "NOT_NEIGHBORING_SOLVER")

	assert.Equal(t, "Baseline TP", rows[1].Label)
	assert.Equal(t, 0.0, rows[1].Differences["BASIC_SOLVER"])
}

func resolveBySuffix(recipe string) (string, error) {
	for _, k := range []string{"BASIC_SOLVER", "COMPLETE_HA_SOLVER"} {
		if strings.Contains(recipe, k) {
			return k, nil
		}
	}
	return "", errors.New("no match")
}

func TestRecipeDurations(t *testing.T) {
	results := []domain.TaskResult{
		{Recipe: "run2_BASIC_SOLVER", TStart: 5, TEnd: 9},
		{Recipe: "run1_COMPLETE_HA_SOLVER", TStart: 2, TEnd: 4},
		{Recipe: "run2_BASIC_SOLVER", TStart: 1, TEnd: 7},
		{Recipe: "run1_COMPLETE_HA_SOLVER", TStart: 3, TEnd: 8},
		{Recipe: "mystery", TStart: 0, TEnd: 1},
	}

	recs, rejected := RecipeDurations(results, resolveBySuffix)
	assert.Equal(t, []string{"mystery"}, rejected)
	require.Len(t, recs, 2)

	assert.Equal(t, domain.DurationRecord{
		Recipe: "run1_COMPLETE_HA_SOLVER", Strategy: "COMPLETE_HA_SOLVER", Start: 2, End: 8, Duration: 6,
	}, recs[0])
	assert.Equal(t, domain.DurationRecord{
		Recipe: "run2_BASIC_SOLVER", Strategy: "BASIC_SOLVER", Start: 1, End: 9, Duration: 8,
	}, recs[1])
}

func TestSummarizeDurations(t *testing.T) {
	recs := []domain.DurationRecord{
		{Strategy: "BASIC_SOLVER", Duration: 100},
		{Strategy: "BASIC_SOLVER", Duration: 120},
		{Strategy: "COMPLETE_HA_SOLVER", Duration: 88},
	}
	keys := []string{"COMPLETE_HA_SOLVER", "NOT_NEIGHBORING_SOLVER", "BASIC_SOLVER"}
	refs := []string{"BASIC_SOLVER", "NOT_NEIGHBORING_SOLVER"}

	sums, err := SummarizeDurations(recs, keys, refs, testLabels)
	require.NoError(t, err)
	require.Len(t, sums, 2)

	assert.Equal(t, "COMPLETE_HA_SOLVER", sums[0].Strategy)
	assert.Equal(t, 1, sums[0].Runs)
	assert.InDelta(t, 20.0, sums[0].Reductions["BASIC_SOLVER"], 1e-9)
	assert.NotContains(t, sums[0].Reductions, "NOT_NEIGHBORING_SOLVER")

	assert.Equal(t, "BASIC_SOLVER", sums[1].Strategy)
	assert.InDelta(t, 110.0, sums[1].MeanDuration, 1e-9)
	assert.Equal(t, 0.0, sums[1].Reductions["BASIC_SOLVER"])
}

func TestSummarizeDurations_ZeroReference(t *testing.T) {
	recs := []domain.DurationRecord{{Strategy: "BASIC_SOLVER", Duration: 0}}
	_, err := SummarizeDurations(recs, []string{"BASIC_SOLVER"}, []string{"BASIC_SOLVER"}, testLabels)
	assert.Error(t, err)
}
