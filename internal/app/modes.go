package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hrcsafety/internal/analysis"
	"github.com/alanyoungcy/hrcsafety/internal/domain"
	"github.com/alanyoungcy/hrcsafety/internal/ingest"
	"github.com/alanyoungcy/hrcsafety/internal/pipeline"
	"github.com/alanyoungcy/hrcsafety/internal/report"
	"github.com/alanyoungcy/hrcsafety/internal/server"
	"github.com/alanyoungcy/hrcsafety/internal/server/handler"
	"github.com/alanyoungcy/hrcsafety/internal/server/ws"
)

var errNoImporter = errors.New("source does not accept imports")

// eventChannels are relayed to WebSocket clients and listed by the events
// endpoint.
var eventChannels = []string{analysis.ChannelCompleted, analysis.ChannelFailed}

// newEmitter builds the report emitter. The archive is attached only when
// uploads are enabled.
func (a *App) newEmitter(deps *Dependencies) (*report.Emitter, error) {
	var archive domain.ReportArchive
	if a.cfg.Report.Upload && deps.Archive != nil {
		archive = deps.Archive
	}
	return report.NewEmitter(a.cfg.Report.Formats, a.cfg.Report.OutputDir, archive, a.logger)
}

// AnalyzeMode analyzes the configured experiment once, emits the report and
// prints the summary tables to stdout.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	experiment := a.cfg.Source.Experiment
	a.logger.InfoContext(ctx, "starting analyze mode", slog.String("experiment", experiment))

	emitter, err := a.newEmitter(deps)
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}

	analyzer := newAnalyzer(a.cfg, deps, a.logger)
	r, err := analyzer.Analyze(ctx, experiment)
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}

	res, err := emitter.Emit(ctx, r)
	if err != nil {
		return fmt.Errorf("analyze mode: %w", err)
	}

	if err := report.WriteText(a.stdout(), r); err != nil {
		return fmt.Errorf("analyze mode: print summary: %w", err)
	}
	a.logger.InfoContext(ctx, "analysis finished",
		slog.String("report_id", r.ID),
		slog.String("dir", res.Dir),
		slog.String("prefix", res.Prefix),
	)
	return nil
}

// ServeMode runs the HTTP API and, when configured, the WebSocket event hub
// and the background refresher until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode", slog.Int("port", a.cfg.Server.Port))

	g, ctx := errgroup.WithContext(ctx)

	emitter, err := a.newEmitter(deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}
	analyzer := newAnalyzer(a.cfg, deps, a.logger)
	experiments := a.newExperimentHandler(deps, analyzer, emitter)

	srv, hub := a.newServer(deps, experiments)
	if hub != nil {
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	if interval := a.cfg.Server.RefreshInterval.Duration; interval > 0 {
		refresher := pipeline.NewRefresher(analyzer, a.cfg.ExperimentNames(), interval, a.logger,
			func(_ context.Context, r domain.Report) { experiments.Remember(r) },
			func(ctx context.Context, r domain.Report) {
				if _, err := emitter.Emit(ctx, r); err != nil {
					a.logger.WarnContext(ctx, "refresh: emit report failed",
						slog.String("experiment", r.Experiment),
						slog.String("error", err.Error()),
					)
				}
			},
		)
		g.Go(func() error {
			return refresher.Run(ctx)
		})
	}

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

func (a *App) newExperimentHandler(deps *Dependencies, analyzer handler.Analyzer, emitter handler.ReportEmitter) *handler.ExperimentHandler {
	var lookups []handler.ReportLookup
	if deps.ReportCache != nil {
		lookups = append(lookups, deps.ReportCache)
	}
	if deps.Archive != nil {
		lookups = append(lookups, deps.Archive)
	}
	return handler.NewExperimentHandler(a.cfg.ExperimentNames(), analyzer, lookups, emitter, a.logger)
}

// newServer assembles the HTTP server and its handlers from deps.
func (a *App) newServer(deps *Dependencies, experiments *handler.ExperimentHandler) (*server.Server, *ws.Hub) {
	h := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Checks, a.logger),
		Status:      handler.NewStatusHandler(a.cfg.Mode, strings.ToLower(a.cfg.Source.Kind)),
		Strategies:  handler.NewStrategyHandler(deps.Registry, a.cfg.Strategies.Baselines),
		Experiments: experiments,
		Metrics:     promhttp.Handler(),
	}

	var (
		hub     *ws.Hub
		limiter domain.RateLimiter
	)
	if deps.EventBus != nil {
		h.Events = handler.NewEventHandler(deps.EventBus, eventChannels, a.logger)
		hub = ws.NewHub(deps.EventBus, eventChannels, a.cfg.Server.CORSOrigins, a.logger)
	}
	if deps.RateLimiter != nil {
		limiter = deps.RateLimiter
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, h, hub, limiter, a.logger)
	return srv, hub
}

// ImportMode loads the configured file into the run repository of the
// configured experiment. Existing data is never overwritten.
func (a *App) ImportMode(ctx context.Context, deps *Dependencies) error {
	imp := a.cfg.Import
	experiment := a.cfg.Source.Experiment
	a.logger.InfoContext(ctx, "starting import mode",
		slog.String("experiment", experiment),
		slog.String("file", imp.File),
		slog.String("format", imp.Format),
		slog.String("target", imp.Target),
	)

	f, err := os.Open(imp.File)
	if err != nil {
		return fmt.Errorf("import mode: %w", err)
	}
	defer f.Close()

	n, err := importFile(ctx, deps, experiment, imp.Format, imp.Target, f)
	if err != nil {
		return fmt.Errorf("import mode: %w", err)
	}
	a.logger.InfoContext(ctx, "import finished",
		slog.String("experiment", experiment),
		slog.Int64("inserted", n),
	)
	return nil
}

// importFile decodes r and writes it through the matching importer. JSON
// exports go to a document importer unchanged when one is available.
func importFile(ctx context.Context, deps *Dependencies, experiment, format, target string, r io.Reader) (int64, error) {
	if format == "csv" {
		if target != "records" {
			return 0, fmt.Errorf("%s can only be imported from json", target)
		}
		records, err := ingest.ReadCSV(r)
		if err != nil {
			return 0, err
		}
		if deps.RecordImporter == nil {
			return 0, errNoImporter
		}
		return deps.RecordImporter.ImportRecords(ctx, experiment, records)
	}

	docs, err := ingest.ReadJSON(r)
	if err != nil {
		return 0, err
	}
	if deps.Documents != nil {
		return deps.Documents.ImportDocuments(ctx, experiment, target, docs)
	}

	switch target {
	case "records":
		if deps.RecordImporter == nil {
			return 0, errNoImporter
		}
		records, err := ingest.RecordsFromDocuments(docs)
		if err != nil {
			return 0, err
		}
		return deps.RecordImporter.ImportRecords(ctx, experiment, records)
	case "task_results":
		if deps.TaskImporter == nil {
			return 0, errNoImporter
		}
		results, err := ingest.TaskResultsFromDocuments(docs)
		if err != nil {
			return 0, err
		}
		return deps.TaskImporter.ImportTaskResults(ctx, experiment, results)
	case "synergies":
		return 0, errNoImporter
	default:
		return 0, fmt.Errorf("unknown import target %q", target)
	}
}
