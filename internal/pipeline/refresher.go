// Package pipeline keeps served reports fresh by re-analyzing experiments in
// the background.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, experiment string) (domain.Report, error)
}

// ReportFunc receives every report the Refresher produces.
type ReportFunc func(ctx context.Context, r domain.Report)

// Refresher re-analyzes a fixed set of experiments on a ticker. Experiments
// whose input did not change are answered from the report cache.
type Refresher struct {
	analyzer    Analyzer
	experiments []string
	interval    time.Duration
	onReport    []ReportFunc
	logger      *slog.Logger
}

// NewRefresher creates a Refresher over experiments. onReport callbacks run
// in order after each successful analysis.
func NewRefresher(
	analyzer Analyzer,
	experiments []string,
	interval time.Duration,
	logger *slog.Logger,
	onReport ...ReportFunc,
) *Refresher {
	return &Refresher{
		analyzer:    analyzer,
		experiments: experiments,
		interval:    interval,
		onReport:    onReport,
		logger:      logger.With(slog.String("component", "refresher")),
	}
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
// Failed analyses are logged and retried on the next tick.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher starting",
		slog.Duration("interval", r.interval),
		slog.Int("experiments", len(r.experiments)),
	)

	r.RefreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			r.RefreshAll(ctx)
		}
	}
}

// RefreshAll analyzes every experiment once and returns how many succeeded.
func (r *Refresher) RefreshAll(ctx context.Context) int {
	ok := 0
	for _, name := range r.experiments {
		if ctx.Err() != nil {
			break
		}
		rep, err := r.analyzer.Analyze(ctx, name)
		switch {
		case err == nil:
			ok++
			for _, fn := range r.onReport {
				fn(ctx, rep)
			}
		case errors.Is(err, domain.ErrLockHeld):
			// Another instance is analyzing it right now.
			r.logger.Debug("refresh skipped", slog.String("experiment", name))
		case ctx.Err() != nil:
			return ok
		default:
			r.logger.Warn("refresh failed",
				slog.String("experiment", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return ok
}
