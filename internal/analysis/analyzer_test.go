package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
	"github.com/alanyoungcy/hrcsafety/internal/strategy"
)

type fakeRecords struct {
	records map[string][]domain.RawRecord
	calls   int
}

func (f *fakeRecords) LoadRecords(_ context.Context, experiment string) ([]domain.RawRecord, error) {
	f.calls++
	recs, ok := f.records[experiment]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return recs, nil
}

type fakeTasks struct{ results []domain.TaskResult }

func (f fakeTasks) LoadTaskResults(context.Context, string) ([]domain.TaskResult, error) {
	return f.results, nil
}

type fakeSynergies struct {
	records []domain.SynergyRecord
	err     error
}

func (f fakeSynergies) LoadSynergies(context.Context, string) ([]domain.SynergyRecord, error) {
	return f.records, f.err
}

type memCache struct {
	mu      sync.Mutex
	reports map[string]domain.Report
}

func (m *memCache) Set(_ context.Context, r domain.Report, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reports == nil {
		m.reports = make(map[string]domain.Report)
	}
	m.reports[r.Experiment+"/"+fp] = r
	m.reports[r.Experiment+"/latest"] = r
	return nil
}

func (m *memCache) Get(_ context.Context, exp, fp string) (domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[exp+"/"+fp]
	if !ok {
		return domain.Report{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memCache) Latest(ctx context.Context, exp string) (domain.Report, error) {
	return m.Get(ctx, exp, "latest")
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type recordingBus struct {
	mu     sync.Mutex
	events map[string][][]byte
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.events == nil {
		b.events = make(map[string][][]byte)
	}
	b.events[channel] = append(b.events[channel], payload)
	return nil
}

type recordingListener struct {
	completed []string
	failed    []error
}

func (l *recordingListener) AnalysisCompleted(_ context.Context, r domain.Report) {
	l.completed = append(l.completed, r.ID)
}

func (l *recordingListener) AnalysisFailed(_ context.Context, _ string, err error) {
	l.failed = append(l.failed, err)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *strategy.Registry {
	t.Helper()
	r, err := strategy.NewRegistry([]strategy.Entry{
		{Key: "COMPLETE_HA_SOLVER", Label: "Synergistic TP"},
		{Key: "RELAXED_HA_SOLVER", Label: "Relaxed S. TP"},
		{Key: "BASIC_SOLVER", Label: "Baseline TP"},
	}, nil, []string{"TEST"})
	require.NoError(t, err)
	return r
}

func rows(recipe string, ts, ds []float64) []domain.RawRecord {
	out := make([]domain.RawRecord, len(ts))
	for i := range ts {
		out[i] = domain.RawRecord{Recipe: recipe, Timestamp: ts[i], Mean: ds[i]}
	}
	return out
}

func sampleRecords() []domain.RawRecord {
	var recs []domain.RawRecord
	recs = append(recs, rows("COMPLETE_HA_SOLVER_1", []float64{0, 1, 2, 3}, []float64{0.3, 0.3, 0.9, 0.9})...)
	recs = append(recs, rows("COMPLETE_HA_SOLVER_2", []float64{0, 1, 2, 3}, []float64{0.5, 1.0, 1.5, 2.0})...)
	recs = append(recs, rows("BASIC_SOLVER_1", []float64{0, 2, 4}, []float64{0.2, 0.6, 1000})...)
	recs = append(recs, rows("BASIC_SOLVER_2", []float64{5}, []float64{0.7})...)
	recs = append(recs, rows("BASIC_SOLVER_TEST", []float64{0, 1}, []float64{0.1, 0.1})...)
	recs = append(recs, rows("MYSTERY_1", []float64{0, 1}, []float64{1, 1})...)
	return recs
}

func newAnalyzer(t *testing.T, deps Deps) *Analyzer {
	t.Helper()
	params := DefaultParams()
	params.Baselines = []string{"BASIC_SOLVER"}
	a := New(deps, testRegistry(t), params, testLogger())
	a.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	n := 0
	a.newID = func() string {
		n++
		return []string{"r1", "r2", "r3", "r4"}[n-1]
	}
	return a
}

func TestAnalyze(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	a := newAnalyzer(t, Deps{Records: src, Metrics: metrics})

	report, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)

	assert.Equal(t, "r1", report.ID)
	assert.Equal(t, "safety_areas", report.Experiment)
	assert.Equal(t, []string{"COMPLETE_HA_SOLVER", "RELAXED_HA_SOLVER", "BASIC_SOLVER"}, report.Strategies)
	assert.Equal(t, "Baseline TP", report.Labels["BASIC_SOLVER"])
	assert.Equal(t, []string{"MYSTERY_1"}, report.Unmatched)

	require.Len(t, report.Bands, 2)
	assert.Equal(t, "COMPLETE_HA_SOLVER", report.Bands[0].Strategy)
	assert.Equal(t, 2, report.Bands[0].Runs)
	assert.InDelta(t, 0.3, report.Bands[0].MinDistance, 1e-12)
	assert.Equal(t, "BASIC_SOLVER", report.Bands[1].Strategy)
	assert.InDelta(t, 0.2, report.Bands[1].MinDistance, 1e-12)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, "RELAXED_HA_SOLVER", report.Errors[0].Strategy)
	assert.Contains(t, report.Errors[0].Error, domain.ErrEmptyGroup.Error())

	// BASIC_SOLVER_1 keeps two samples after the sentinel row is dropped;
	// BASIC_SOLVER_2 has one and is skipped from the risk table.
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "BASIC_SOLVER_2", report.Skipped[0].RunID)
	assert.Equal(t, "BASIC_SOLVER", report.Skipped[0].Strategy)

	require.Len(t, report.Risk, 12)
	first := report.Risk[0]
	assert.Equal(t, "COMPLETE_HA_SOLVER_1", first.RunID)
	assert.InDelta(t, 0.4, first.Threshold, 1e-12)
	assert.InDelta(t, 200.0/3, first.Percentage, 1e-9)
	last := report.Risk[11]
	assert.Equal(t, "BASIC_SOLVER_1", last.RunID)
	assert.InDelta(t, 100, last.Percentage, 1e-9)

	require.Len(t, report.MinDistances, 2)
	assert.InDelta(t, 0.1, report.MinDistances[0].Differences["BASIC_SOLVER"], 1e-12)
	assert.Empty(t, report.Durations)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.runsAnalyzed.WithLabelValues("COMPLETE_HA_SOLVER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.strategiesFailed.WithLabelValues("RELAXED_HA_SOLVER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runsSkipped.WithLabelValues("insufficient_data")))
}

func TestAnalyze_Deterministic(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	a := newAnalyzer(t, Deps{Records: src})

	r1, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)
	r2, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)

	assert.NotEqual(t, r1.ID, r2.ID)
	r2.ID = r1.ID
	assert.Equal(t, r1, r2)
}

func TestAnalyze_CacheHit(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	cache := &memCache{}
	bus := &recordingBus{}
	listener := &recordingListener{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	a := newAnalyzer(t, Deps{Records: src, Cache: cache, Events: bus, Listener: listener, Metrics: metrics})

	r1, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)
	r2, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)

	assert.Equal(t, r1.ID, r2.ID)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, []string{"r1"}, listener.completed)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheHits))

	require.Len(t, bus.events[ChannelCompleted], 1)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(bus.events[ChannelCompleted][0], &ev))
	assert.Equal(t, "r1", ev["report_id"])
	assert.Equal(t, float64(4), ev["runs"])
	assert.Equal(t, []any{"RELAXED_HA_SOLVER"}, ev["failed"])

	latest, err := cache.Latest(context.Background(), "safety_areas")
	require.NoError(t, err)
	assert.Equal(t, "r1", latest.ID)
}

func TestAnalyze_ParamsChangeFingerprint(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	cache := &memCache{}
	a := newAnalyzer(t, Deps{Records: src, Cache: cache})
	r1, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)

	a.params.Thresholds = []float64{0.5}
	r2, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r2.ID)
	assert.Len(t, r2.Risk, 3)
}

func TestAnalyze_Durations(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	tasks := fakeTasks{results: []domain.TaskResult{
		{Recipe: "COMPLETE_HA_SOLVER_1", TStart: 0, TEnd: 40},
		{Recipe: "COMPLETE_HA_SOLVER_1", TStart: 40, TEnd: 60},
		{Recipe: "COMPLETE_HA_SOLVER_2", TStart: 10, TEnd: 50},
		{Recipe: "BASIC_SOLVER_1", TStart: 0, TEnd: 100},
		{Recipe: "BASIC_SOLVER_TEST", TStart: 0, TEnd: 1},
	}}
	a := newAnalyzer(t, Deps{Records: src, Tasks: tasks})

	report, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)
	require.Len(t, report.Durations, 2)

	complete := report.Durations[0]
	assert.Equal(t, "COMPLETE_HA_SOLVER", complete.Strategy)
	assert.Equal(t, 2, complete.Runs)
	assert.InDelta(t, 50, complete.MeanDuration, 1e-9)
	assert.InDelta(t, 50, complete.Reductions["BASIC_SOLVER"], 1e-9)

	basic := report.Durations[1]
	assert.Equal(t, 1, basic.Runs)
	assert.InDelta(t, 0, basic.Reductions["BASIC_SOLVER"], 1e-9)
	assert.Empty(t, report.Warnings)
}

func TestAnalyze_Synergies(t *testing.T) {
	pair := func(skill, cskill string, risk float64) domain.SynergyRecord {
		return domain.SynergyRecord{
			Agent: "human_right_arm", AgentSkill: skill,
			ConcurrentAgent: "ur5_on_guide", ConcurrentSkill: cskill,
			DynamicRisk: risk,
		}
	}

	tests := []struct {
		name        string
		source      fakeSynergies
		wantMatrix  int
		wantWarning string
	}{
		{
			name: "pivoted",
			source: fakeSynergies{records: []domain.SynergyRecord{
				pair("pick_blue_box", "place_white_box", 0.4),
				pair("pick_orange_box", "place_white_box", 0.6),
			}},
			wantMatrix: 1,
		},
		{
			name: "duplicated pair",
			source: fakeSynergies{records: []domain.SynergyRecord{
				pair("pick_orange_box", "place_white_box", 0.6),
				pair("pick_orange_box", "place_white_box", 0.6),
			}},
			wantWarning: "duplicated task pair",
		},
		{
			name:   "no collection",
			source: fakeSynergies{err: domain.ErrNotFound},
		},
		{
			name:        "source failure",
			source:      fakeSynergies{err: errors.New("connection reset")},
			wantWarning: "synergies: connection reset",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
			a := newAnalyzer(t, Deps{Records: src, Synergies: tt.source})

			report, err := a.Analyze(context.Background(), "safety_areas")
			require.NoError(t, err)
			assert.Len(t, report.Synergies, tt.wantMatrix)
			assert.Len(t, report.Bands, 2)
			if tt.wantWarning == "" {
				assert.Empty(t, report.Warnings)
				return
			}
			require.Len(t, report.Warnings, 1)
			assert.Contains(t, report.Warnings[0], tt.wantWarning)
		})
	}
}

func TestAnalyze_SynergiesDisabled(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	a := newAnalyzer(t, Deps{Records: src, Synergies: fakeSynergies{err: errors.New("must not be called")}})
	a.params.Synergies = false

	report, err := a.Analyze(context.Background(), "safety_areas")
	require.NoError(t, err)
	assert.Empty(t, report.Synergies)
	assert.Empty(t, report.Warnings)
}

func TestAnalyze_LockHeld(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	bus := &recordingBus{}
	listener := &recordingListener{}
	a := newAnalyzer(t, Deps{Records: src, Locks: heldLocks{}, Events: bus, Listener: listener})

	_, err := a.Analyze(context.Background(), "safety_areas")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))
	assert.Zero(t, src.calls)
	assert.Len(t, bus.events[ChannelFailed], 1)
	assert.Len(t, listener.failed, 1)
}

func TestAnalyze_UnknownExperiment(t *testing.T) {
	a := newAnalyzer(t, Deps{Records: &fakeRecords{}})
	_, err := a.Analyze(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyze_NoValidSamples(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{
		"bad": rows("BASIC_SOLVER_1", []float64{0, 1}, []float64{1000, 2000}),
	}}
	a := newAnalyzer(t, Deps{Records: src})
	_, err := a.Analyze(context.Background(), "bad")
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestAnalyze_Canceled(t *testing.T) {
	src := &fakeRecords{records: map[string][]domain.RawRecord{"safety_areas": sampleRecords()}}
	a := newAnalyzer(t, Deps{Records: src})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Analyze(ctx, "safety_areas")
	assert.ErrorIs(t, err, context.Canceled)
}
