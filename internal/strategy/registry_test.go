package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

func TestDefault_ResolvesExperimentRecipes(t *testing.T) {
	r := Default()

	tests := []struct {
		recipe string
		want   string
	}{
		{"recipe_COMPLETE_HA_SOLVER_3", "COMPLETE_HA_SOLVER"},
		{"RELAXED_HA_SOLVER_run12", "RELAXED_HA_SOLVER"},
		{"x_NOT_NEIGHBORING_SOLVER", "NOT_NEIGHBORING_SOLVER"},
		{"BASIC_SOLVER", "BASIC_SOLVER"},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.recipe)
		require.NoError(t, err, tt.recipe)
		assert.Equal(t, tt.want, got)
	}

	assert.Equal(t, []string{"COMPLETE_HA_SOLVER", "RELAXED_HA_SOLVER", "NOT_NEIGHBORING_SOLVER", "BASIC_SOLVER"}, r.Keys())
	assert.Equal(t, "Baseline TP", r.Label("BASIC_SOLVER"))
	assert.Equal(t, "OTHER", r.Label("OTHER"))
}

func TestResolve_UnknownRecipe(t *testing.T) {
	_, err := Default().Resolve("SAFETY_AREA_NO_AWARE_1")
	assert.ErrorIs(t, err, domain.ErrUnknownStrategy)
}

func TestResolve_AmbiguousRecipe(t *testing.T) {
	r, err := NewRegistry(
		[]Entry{{Key: "COMPLETE"}, {Key: "NEW"}},
		[]Rule{{Pattern: "COMPLETE", Key: "COMPLETE"}, {Pattern: "NEW", Key: "NEW"}},
		nil,
	)
	require.NoError(t, err)

	_, err = r.Resolve("NEW_COMPLETE_7")
	assert.ErrorIs(t, err, domain.ErrAmbiguousStrategy)
}

func TestResolve_SeveralRulesForOneKey(t *testing.T) {
	r, err := NewRegistry(
		[]Entry{{Key: "COMPLETE", Label: "Synergistic TP"}},
		[]Rule{
			{Pattern: "COMPLETE_SOLVER", Key: "COMPLETE"},
			{Pattern: "COMPLETE_HA_SOLVER", Key: "COMPLETE"},
			{Pattern: "SOLVER", Key: "COMPLETE"},
		},
		nil,
	)
	require.NoError(t, err)

	got, err := r.Resolve("COMPLETE_HA_SOLVER_1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETE", got)
}

func TestExcluded(t *testing.T) {
	r, err := NewRegistry([]Entry{{Key: "BASIC_SOLVER"}}, nil, []string{"TEST"})
	require.NoError(t, err)

	assert.True(t, r.Excluded("TEST_BASIC_SOLVER"))
	assert.False(t, r.Excluded("BASIC_SOLVER_2"))
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		rules   []Rule
		exclude []string
	}{
		{name: "no entries"},
		{name: "empty key", entries: []Entry{{Key: " "}}},
		{name: "duplicate", entries: []Entry{{Key: "A"}, {Key: "A"}}},
		{name: "rule to unknown key", entries: []Entry{{Key: "A"}}, rules: []Rule{{Pattern: "B", Key: "B"}}},
		{name: "empty pattern", entries: []Entry{{Key: "A"}}, rules: []Rule{{Key: "A"}}},
		{name: "empty exclude", entries: []Entry{{Key: "A"}}, exclude: []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.entries, tt.rules, tt.exclude)
			assert.Error(t, err)
		})
	}
}

func TestLabels_ReturnsCopy(t *testing.T) {
	r := Default()
	m := r.Labels()
	m["BASIC_SOLVER"] = "changed"
	assert.Equal(t, "Baseline TP", r.Label("BASIC_SOLVER"))
	assert.Equal(t, "changed", r.Label("changed"))
}
