package domain

import "time"

// Curve is the empirical cumulative distribution of one run. Edges holds the
// n+1 bin edges and Fractions the n cumulative fractions, where Fractions[i]
// belongs to the upper edge Edges[i+1].
type Curve struct {
	RunID       string    `json:"run_id"`
	Edges       []float64 `json:"edges"`
	Fractions   []float64 `json:"fractions"`
	MinDistance float64   `json:"min_distance"`
}

// UpperEdges returns the upper edge of every bin.
func (c Curve) UpperEdges() []float64 {
	if len(c.Edges) == 0 {
		return nil
	}
	return c.Edges[1:]
}

// BandPoint is one grid point of a strategy's confidence band.
type BandPoint struct {
	Distance float64 `json:"distance"`
	Mean     float64 `json:"mean"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// Band is the aggregated cumulative curve of one strategy.
type Band struct {
	Strategy    string      `json:"strategy"`
	Runs        int         `json:"runs"`
	MinDistance float64     `json:"min_distance"`
	Points      []BandPoint `json:"points"`
}

// RiskRecord is the share of one run's duration spent below a threshold.
type RiskRecord struct {
	RunID      string  `json:"run_id"`
	Strategy   string  `json:"strategy"`
	Threshold  float64 `json:"threshold"`
	Percentage float64 `json:"percentage"`
}

// MinDistanceRow is one line of the minimum distance comparison table.
// Differences is keyed by reference strategy key.
type MinDistanceRow struct {
	Strategy    string             `json:"strategy"`
	Label       string             `json:"label"`
	MinDistance float64            `json:"min_distance"`
	Differences map[string]float64 `json:"differences"`
}

// DurationRecord is the wall-clock span of one recipe execution.
type DurationRecord struct {
	Recipe   string  `json:"recipe"`
	Strategy string  `json:"strategy"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// DurationSummary is the mean plan duration of one strategy. Reductions is
// keyed by reference strategy key; a reference with no runs has no entry.
type DurationSummary struct {
	Strategy     string             `json:"strategy"`
	Label        string             `json:"label"`
	Runs         int                `json:"runs"`
	MeanDuration float64            `json:"mean_duration"`
	Reductions   map[string]float64 `json:"reductions"`
}

// StrategyError records a strategy whose computation failed. Other
// strategies in the same report are unaffected.
type StrategyError struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

// SkippedRun marks a run left out of the risk table, with the reason.
type SkippedRun struct {
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Report is the complete output of one analysis.
type Report struct {
	ID           string            `json:"id"`
	Experiment   string            `json:"experiment"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Strategies   []string          `json:"strategies"`
	Labels       map[string]string `json:"labels"`
	Baselines    []string          `json:"baselines,omitempty"`
	Bands        []Band            `json:"bands"`
	Risk         []RiskRecord      `json:"risk"`
	MinDistances []MinDistanceRow  `json:"min_distances"`
	Durations    []DurationSummary `json:"durations,omitempty"`
	Synergies    []SynergyMatrix   `json:"synergies,omitempty"`
	Errors       []StrategyError   `json:"errors,omitempty"`
	Skipped      []SkippedRun      `json:"skipped,omitempty"`
	Unmatched    []string          `json:"unmatched,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
}
