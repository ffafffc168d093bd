package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

func sampleReport() domain.Report {
	return domain.Report{
		ID:          "r1",
		Experiment:  "safety_areas",
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Strategies:  []string{"COMPLETE_HA_SOLVER", "BASIC_SOLVER", "NOT_NEIGHBORING_SOLVER"},
		Labels: map[string]string{
			"COMPLETE_HA_SOLVER":     "Synergistic TP",
			"BASIC_SOLVER":           "Baseline TP",
			"NOT_NEIGHBORING_SOLVER": "Not Neighboring TP",
		},
		Baselines: []string{"BASIC_SOLVER", "NOT_NEIGHBORING_SOLVER"},
		Bands: []domain.Band{
			{Strategy: "COMPLETE_HA_SOLVER", Runs: 2, MinDistance: 0.5, Points: []domain.BandPoint{
				{Distance: 0.5, Mean: 0.25, Lower: 0, Upper: 0.75},
				{Distance: 0.51, Mean: 0.5, Lower: 0.5, Upper: 0.5},
			}},
			{Strategy: "BASIC_SOLVER", Runs: 1, MinDistance: 0.3, Points: []domain.BandPoint{
				{Distance: 0.3, Mean: 1, Lower: 1, Upper: 1},
			}},
		},
		Risk: []domain.RiskRecord{
			{RunID: "COMPLETE_HA_SOLVER_1", Strategy: "COMPLETE_HA_SOLVER", Threshold: 0.4, Percentage: 10},
			{RunID: "COMPLETE_HA_SOLVER_1", Strategy: "COMPLETE_HA_SOLVER", Threshold: 0.8, Percentage: 20},
			{RunID: "COMPLETE_HA_SOLVER_2", Strategy: "COMPLETE_HA_SOLVER", Threshold: 0.4, Percentage: 30},
			{RunID: "COMPLETE_HA_SOLVER_2", Strategy: "COMPLETE_HA_SOLVER", Threshold: 0.8, Percentage: 40},
			{RunID: "BASIC_SOLVER_1", Strategy: "BASIC_SOLVER", Threshold: 0.4, Percentage: 50},
			{RunID: "BASIC_SOLVER_1", Strategy: "BASIC_SOLVER", Threshold: 0.8, Percentage: 60},
		},
		MinDistances: []domain.MinDistanceRow{
			{Strategy: "COMPLETE_HA_SOLVER", Label: "Synergistic TP", MinDistance: 0.5,
				Differences: map[string]float64{"BASIC_SOLVER": 0.2}},
			{Strategy: "BASIC_SOLVER", Label: "Baseline TP", MinDistance: 0.3,
				Differences: map[string]float64{"BASIC_SOLVER": 0}},
		},
		Durations: []domain.DurationSummary{
			{Strategy: "COMPLETE_HA_SOLVER", Label: "Synergistic TP", Runs: 2, MeanDuration: 50,
				Reductions: map[string]float64{"BASIC_SOLVER": 50}},
		},
		Errors:  []domain.StrategyError{{Strategy: "NOT_NEIGHBORING_SOLVER", Error: "stats: aggregate NOT_NEIGHBORING_SOLVER: empty strategy group"}},
		Skipped: []domain.SkippedRun{{RunID: "BASIC_SOLVER_2", Strategy: "BASIC_SOLVER", Reason: "insufficient data"}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readCSV(t *testing.T, files []domain.ReportFile, name string) [][]string {
	t.Helper()
	for _, f := range files {
		if f.Name == name {
			rows, err := csv.NewReader(bytes.NewReader(f.Data)).ReadAll()
			require.NoError(t, err)
			return rows
		}
	}
	t.Fatalf("file %s not rendered", name)
	return nil
}

func TestRender_CSV(t *testing.T) {
	files, err := Render(FormatCSV, sampleReport())
	require.NoError(t, err)
	require.Len(t, files, 4)

	bands := readCSV(t, files, "bands.csv")
	require.Len(t, bands, 4)
	assert.Equal(t, []string{"strategy", "label", "distance", "mean", "lower", "upper"}, bands[0])
	assert.Equal(t, []string{"COMPLETE_HA_SOLVER", "Synergistic TP", "0.51", "0.5", "0.5", "0.5"}, bands[2])

	risk := readCSV(t, files, "risk.csv")
	require.Len(t, risk, 7)
	assert.Equal(t, []string{"BASIC_SOLVER_1", "BASIC_SOLVER", "Baseline TP", "0.8", "60"}, risk[6])

	mins := readCSV(t, files, "min_distances.csv")
	assert.Equal(t, []string{"strategy", "label", "min_distance", "difference_from_BASIC_SOLVER", "difference_from_NOT_NEIGHBORING_SOLVER"}, mins[0])
	assert.Equal(t, []string{"COMPLETE_HA_SOLVER", "Synergistic TP", "0.5", "0.2", ""}, mins[1])

	durations := readCSV(t, files, "durations.csv")
	assert.Equal(t, []string{"COMPLETE_HA_SOLVER", "Synergistic TP", "2", "50", "50", ""}, durations[1])
}

func TestRender_CSVWithoutDurations(t *testing.T) {
	r := sampleReport()
	r.Durations = nil
	files, err := Render(FormatCSV, r)
	require.NoError(t, err)
	for _, f := range files {
		assert.NotEqual(t, "durations.csv", f.Name)
	}
}

func TestWriteLaTeX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLaTeX(&buf, sampleReport()))
	out := buf.String()

	assert.Equal(t, 2, strings.Count(out, `\begin{tabular}{lrrr}`))
	assert.Contains(t, out, ` Method & Min Distance (m) & Difference from Baseline (m) & Difference from Not Neighboring (m) \\`)
	assert.Contains(t, out, ` Synergistic TP & 0.500 & 0.200 & n/a \\`)
	assert.Contains(t, out, `Reduction from Baseline (\%)`)
	assert.Contains(t, out, ` Synergistic TP & 50.00 & 50.00 & n/a \\`)
}

func TestLatexEscape(t *testing.T) {
	assert.Equal(t, `A\_B \& C \%`, latexEscape("A_B & C %"))
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "safety_areas")
	assert.Contains(t, out, "Synergistic TP")
	assert.Contains(t, out, "Mean Time Below (%)")
	assert.Contains(t, out, "20.00")
	assert.Contains(t, out, "30.00")
	assert.Contains(t, out, "n/a")
	assert.Contains(t, out, "skipped BASIC_SOLVER_2")
	assert.Contains(t, out, "empty strategy group")
}

func TestSummarizeRisk(t *testing.T) {
	got := SummarizeRisk(sampleReport())
	require.Len(t, got, 4)
	assert.Equal(t, RiskSummary{Strategy: "COMPLETE_HA_SOLVER", Threshold: 0.4, Runs: 2, Mean: 20}, got[0])
	assert.Equal(t, RiskSummary{Strategy: "COMPLETE_HA_SOLVER", Threshold: 0.8, Runs: 2, Mean: 30}, got[1])
	assert.Equal(t, RiskSummary{Strategy: "BASIC_SOLVER", Threshold: 0.4, Runs: 1, Mean: 50}, got[2])
}

func TestRender_UnknownFormat(t *testing.T) {
	_, err := Render("pdf", sampleReport())
	assert.Error(t, err)

	_, err = NewEmitter([]string{"json", "pdf"}, "", nil, testLogger())
	assert.Error(t, err)
}

type fakeArchive struct {
	report domain.Report
	files  []string
}

func (f *fakeArchive) Save(_ context.Context, r domain.Report, files []domain.ReportFile) (string, error) {
	f.report = r
	for _, file := range files {
		f.files = append(f.files, file.Name)
	}
	return "reports/" + r.Experiment + "/" + r.ID + "/", nil
}

func (f *fakeArchive) Latest(context.Context, string) (domain.Report, error) {
	return f.report, nil
}

func TestEmitter_Emit(t *testing.T) {
	dir := t.TempDir()
	archive := &fakeArchive{}
	e, err := NewEmitter(Formats, dir, archive, testLogger())
	require.NoError(t, err)

	res, err := e.Emit(context.Background(), sampleReport())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "safety_areas", "r1"), res.Dir)
	assert.Equal(t, "reports/safety_areas/r1/", res.Prefix)
	assert.Equal(t, []string{
		"report.json", "bands.csv", "risk.csv", "min_distances.csv", "durations.csv", "tables.tex", "summary.txt",
	}, res.Files)
	assert.Equal(t, res.Files, archive.files)

	data, err := os.ReadFile(filepath.Join(res.Dir, "report.json"))
	require.NoError(t, err)
	var back domain.Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "r1", back.ID)
	assert.Len(t, back.Risk, 6)
}

func TestEmitter_NoOutputDir(t *testing.T) {
	e, err := NewEmitter([]string{FormatJSON}, "", nil, testLogger())
	require.NoError(t, err)
	res, err := e.Emit(context.Background(), sampleReport())
	require.NoError(t, err)
	assert.Empty(t, res.Dir)
	assert.Empty(t, res.Prefix)
	assert.Equal(t, []string{"report.json"}, res.Files)
}
