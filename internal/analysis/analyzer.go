// Package analysis runs the distance statistics of one experiment end to end:
// load, clean, group, per-strategy curves and risk, aggregation and tables.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
	"github.com/alanyoungcy/hrcsafety/internal/ingest"
	"github.com/alanyoungcy/hrcsafety/internal/stats"
	"github.com/alanyoungcy/hrcsafety/internal/strategy"
)

// Event channels published on the EventBus.
const (
	ChannelCompleted = "analysis:completed"
	ChannelFailed    = "analysis:failed"
)

// Params are the numeric settings of one analysis.
type Params struct {
	Cap        float64
	GridStep   float64
	Thresholds []float64
	Sentinel   float64
	Workers    int
	Baselines  []string
	Durations  bool
	Synergies  bool
	LockTTL    time.Duration
}

// DefaultParams mirrors the defaults of the stats package.
func DefaultParams() Params {
	return Params{
		Cap:        stats.DefaultCap,
		GridStep:   stats.DefaultGridStep,
		Thresholds: append([]float64(nil), stats.DefaultRiskThresholds...),
		Sentinel:   ingest.DefaultSentinel,
		Workers:    4,
		Durations:  true,
		Synergies:  true,
		LockTTL:    5 * time.Minute,
	}
}

// Listener is told about finished analyses. notify.Notifier implements it.
type Listener interface {
	AnalysisCompleted(ctx context.Context, report domain.Report)
	AnalysisFailed(ctx context.Context, experiment string, err error)
}

// Deps are the collaborators of an Analyzer. Only Records is required.
type Deps struct {
	Records   domain.RecordSource
	Tasks     domain.TaskResultSource
	Synergies domain.SynergySource
	Cache     domain.ReportCache
	Locks     domain.LockManager
	Events    domain.EventBus
	Listener  Listener
	Metrics   *Metrics
}

// Analyzer produces reports for experiments.
type Analyzer struct {
	deps     Deps
	registry *strategy.Registry
	params   Params
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates an Analyzer.
func New(deps Deps, registry *strategy.Registry, params Params, logger *slog.Logger) *Analyzer {
	if params.Workers <= 0 {
		params.Workers = 1
	}
	return &Analyzer{
		deps:     deps,
		registry: registry,
		params:   params,
		logger:   logger.With(slog.String("component", "analyzer")),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Analyze computes the report of experiment. A cached report for identical
// input is returned as is. Failures of single strategies are recorded in
// the report and do not fail the call.
func (a *Analyzer) Analyze(ctx context.Context, experiment string) (domain.Report, error) {
	start := time.Now()
	report, cached, err := a.analyze(ctx, experiment)

	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case cached:
		result = "cached"
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.duration.WithLabelValues(experiment, result).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		a.logger.Error("analysis failed",
			slog.String("experiment", experiment),
			slog.String("error", err.Error()),
		)
		a.publish(ctx, ChannelFailed, event{Experiment: experiment, Error: err.Error()})
		if a.deps.Listener != nil {
			a.deps.Listener.AnalysisFailed(ctx, experiment, err)
		}
		return domain.Report{}, err
	}

	a.logger.Info("analysis finished",
		slog.String("experiment", experiment),
		slog.String("report_id", report.ID),
		slog.Bool("cached", cached),
		slog.Int("strategies", len(report.Bands)),
		slog.Int("failed", len(report.Errors)),
		slog.Duration("elapsed", time.Since(start)),
	)
	if !cached {
		a.publish(ctx, ChannelCompleted, completedEvent(report))
		if a.deps.Listener != nil {
			a.deps.Listener.AnalysisCompleted(ctx, report)
		}
	}
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, experiment string) (domain.Report, bool, error) {
	if a.deps.Records == nil {
		return domain.Report{}, false, errors.New("analysis: no record source configured")
	}

	if a.deps.Locks != nil {
		unlock, err := a.deps.Locks.Acquire(ctx, "analysis:"+experiment, a.params.LockTTL)
		if err != nil {
			return domain.Report{}, false, fmt.Errorf("analysis: %s: %w", experiment, err)
		}
		defer unlock()
	}

	raw, err := a.deps.Records.LoadRecords(ctx, experiment)
	if err != nil {
		return domain.Report{}, false, fmt.Errorf("analysis: load %s: %w", experiment, err)
	}
	records, cleanStats := ingest.Clean(raw, a.params.Sentinel)
	a.logger.Debug("records cleaned",
		slog.String("experiment", experiment),
		slog.Int("total", cleanStats.Total),
		slog.Int("kept", cleanStats.Kept),
		slog.Int("non_finite", cleanStats.NonFinite),
		slog.Int("sentinel", cleanStats.Sentinel),
		slog.Int("no_recipe", cleanStats.NoRecipe),
	)
	if len(records) == 0 {
		return domain.Report{}, false, fmt.Errorf("analysis: %s: no valid samples: %w", experiment, domain.ErrInsufficientData)
	}

	fp := a.fingerprint(experiment, records)
	if a.deps.Cache != nil {
		report, err := a.deps.Cache.Get(ctx, experiment, fp)
		switch {
		case err == nil:
			if a.deps.Metrics != nil {
				a.deps.Metrics.cacheHits.Inc()
			}
			return report, true, nil
		case !errors.Is(err, domain.ErrNotFound):
			a.logger.Warn("report cache read failed", slog.String("error", err.Error()))
		}
	}

	grouped := ingest.GroupRuns(records, a.registry)
	for _, recipe := range grouped.Unmatched {
		a.logger.Warn("recipe matches no strategy",
			slog.String("experiment", experiment),
			slog.String("recipe", recipe),
		)
	}

	results, err := a.computeStrategies(ctx, grouped)
	if err != nil {
		return domain.Report{}, false, err
	}

	report := domain.Report{
		ID:          a.newID(),
		Experiment:  experiment,
		GeneratedAt: a.now().UTC(),
		Strategies:  a.registry.Keys(),
		Labels:      a.registry.Labels(),
		Baselines:   append([]string(nil), a.params.Baselines...),
		Unmatched:   grouped.Unmatched,
		Skipped:     append([]domain.SkippedRun(nil), grouped.Rejected...),
	}
	for _, res := range results {
		if res.err != nil {
			report.Errors = append(report.Errors, domain.StrategyError{Strategy: res.key, Error: res.err.Error()})
			continue
		}
		report.Bands = append(report.Bands, res.band)
		report.Risk = append(report.Risk, res.risk...)
		report.Skipped = append(report.Skipped, res.skipped...)
	}
	report.MinDistances = stats.MinDistanceTable(report.Bands, a.params.Baselines, a.registry)

	if a.params.Durations && a.deps.Tasks != nil {
		durations, warning := a.durations(ctx, experiment)
		report.Durations = durations
		if warning != "" {
			report.Warnings = append(report.Warnings, warning)
		}
	}

	if a.params.Synergies && a.deps.Synergies != nil {
		matrices, warning := a.synergies(ctx, experiment)
		report.Synergies = matrices
		if warning != "" {
			report.Warnings = append(report.Warnings, warning)
		}
	}

	if a.deps.Cache != nil {
		if err := a.deps.Cache.Set(ctx, report, fp); err != nil {
			a.logger.Warn("report cache write failed", slog.String("error", err.Error()))
		}
	}
	return report, false, nil
}

type strategyResult struct {
	key     string
	band    domain.Band
	risk    []domain.RiskRecord
	skipped []domain.SkippedRun
	err     error
}

// computeStrategies runs every registry strategy on its own goroutine,
// bounded by Workers, and returns the results in registry order.
func (a *Analyzer) computeStrategies(ctx context.Context, grouped ingest.Grouped) ([]strategyResult, error) {
	keys := a.registry.Keys()
	results := make([]strategyResult, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.params.Workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = a.computeStrategy(key, grouped.Runs[key])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis: strategies: %w", err)
	}

	for _, res := range results {
		if res.err == nil {
			continue
		}
		a.logger.Warn("strategy failed",
			slog.String("strategy", res.key),
			slog.String("error", res.err.Error()),
		)
		if a.deps.Metrics != nil {
			a.deps.Metrics.strategiesFailed.WithLabelValues(res.key).Inc()
		}
	}
	return results, nil
}

func (a *Analyzer) computeStrategy(key string, runs []domain.Run) strategyResult {
	res := strategyResult{key: key}
	if len(runs) == 0 {
		res.err = fmt.Errorf("analysis: strategy %s: %w", key, domain.ErrEmptyGroup)
		return res
	}

	curves := make([]domain.Curve, 0, len(runs))
	for _, run := range runs {
		curve, err := stats.BuildCurve(run.ID, run.Distances(), a.params.Cap)
		if err != nil {
			res.err = err
			return res
		}
		curves = append(curves, curve)

		risk, err := stats.RiskExposure(run, a.params.Thresholds)
		switch {
		case errors.Is(err, domain.ErrInsufficientData):
			res.skipped = append(res.skipped, domain.SkippedRun{RunID: run.ID, Strategy: key, Reason: err.Error()})
			if a.deps.Metrics != nil {
				a.deps.Metrics.runsSkipped.WithLabelValues("insufficient_data").Inc()
			}
		case err != nil:
			res.err = err
			return res
		default:
			res.risk = append(res.risk, risk...)
		}
	}

	band, err := stats.Aggregate(key, curves, a.params.Cap, a.params.GridStep)
	if err != nil {
		res.err = err
		return res
	}
	res.band = band
	if a.deps.Metrics != nil {
		a.deps.Metrics.runsAnalyzed.WithLabelValues(key).Add(float64(len(runs)))
	}
	return res
}

// durations loads task results and summarises plan durations. Problems are
// returned as a warning; the rest of the report stands without them.
func (a *Analyzer) durations(ctx context.Context, experiment string) ([]domain.DurationSummary, string) {
	results, err := a.deps.Tasks.LoadTaskResults(ctx, experiment)
	if err != nil {
		a.logger.Warn("task results unavailable",
			slog.String("experiment", experiment),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Sprintf("durations: %v", err)
	}

	records, rejected := stats.RecipeDurations(results, func(recipe string) (string, error) {
		if a.registry.Excluded(recipe) {
			return "", domain.ErrUnknownStrategy
		}
		return a.registry.Resolve(recipe)
	})
	if len(rejected) > 0 {
		a.logger.Debug("task recipes without strategy", slog.Int("count", len(rejected)))
	}

	summary, err := stats.SummarizeDurations(records, a.registry.Keys(), a.params.Baselines, a.registry)
	if err != nil {
		return nil, fmt.Sprintf("durations: %v", err)
	}
	return summary, ""
}

// synergies loads the task synergy records and pivots them per agent pair.
// A missing collection leaves the section out; any other problem, such as a
// duplicated task pair, drops every matrix and is returned as a warning.
func (a *Analyzer) synergies(ctx context.Context, experiment string) ([]domain.SynergyMatrix, string) {
	records, err := a.deps.Synergies.LoadSynergies(ctx, experiment)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.logger.Debug("no synergy records", slog.String("experiment", experiment))
		return nil, ""
	case err != nil:
		a.logger.Warn("synergy records unavailable",
			slog.String("experiment", experiment),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Sprintf("synergies: %v", err)
	}

	matrices, err := stats.SynergyMatrices(records)
	if err != nil {
		a.logger.Error("synergy matrices rejected",
			slog.String("experiment", experiment),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Sprintf("synergies: %v", err)
	}
	return matrices, ""
}

// fingerprint identifies the cleaned input and every parameter that shapes
// the output.
func (a *Analyzer) fingerprint(experiment string, records []domain.RawRecord) string {
	h := sha256.New()
	var buf [8]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	putString := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	putString(experiment)
	putFloat(a.params.Cap)
	putFloat(a.params.GridStep)
	putFloat(a.params.Sentinel)
	for _, t := range a.params.Thresholds {
		putFloat(t)
	}
	putString("|")
	for _, b := range a.params.Baselines {
		putString(b)
	}
	for _, k := range a.registry.Keys() {
		putString(k)
		putString(a.registry.Label(k))
	}
	if a.params.Durations && a.deps.Tasks != nil {
		putString("durations")
	}
	if a.params.Synergies && a.deps.Synergies != nil {
		putString("synergies")
	}
	for _, r := range records {
		putString(r.Recipe)
		putFloat(r.Mean)
		putFloat(r.Timestamp)
	}
	return hex.EncodeToString(h.Sum(nil))
}

type event struct {
	ReportID   string   `json:"report_id,omitempty"`
	Experiment string   `json:"experiment"`
	Strategies int      `json:"strategies,omitempty"`
	Runs       int      `json:"runs,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func completedEvent(r domain.Report) event {
	ev := event{ReportID: r.ID, Experiment: r.Experiment, Strategies: len(r.Bands)}
	for _, b := range r.Bands {
		ev.Runs += b.Runs
	}
	for _, e := range r.Errors {
		ev.Failed = append(ev.Failed, e.Strategy)
	}
	return ev
}

func (a *Analyzer) publish(ctx context.Context, channel string, ev event) {
	if a.deps.Events == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := a.deps.Events.Publish(ctx, channel, payload); err != nil {
		a.logger.Warn("publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
