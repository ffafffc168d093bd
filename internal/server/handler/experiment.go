package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
	"github.com/alanyoungcy/hrcsafety/internal/report"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, experiment string) (domain.Report, error)
}

// ReportLookup finds the latest stored report of an experiment.
// domain.ReportCache and domain.ReportArchive both satisfy it.
type ReportLookup interface {
	Latest(ctx context.Context, experiment string) (domain.Report, error)
}

// ReportEmitter writes a finished report out.
type ReportEmitter interface {
	Emit(ctx context.Context, r domain.Report) (report.Result, error)
}

// ExperimentHandler serves analysis and report endpoints.
type ExperimentHandler struct {
	known    map[string]bool
	names    []string
	analyzer Analyzer
	lookups  []ReportLookup
	emitter  ReportEmitter
	logger   *slog.Logger

	mu     sync.RWMutex
	latest map[string]domain.Report
}

// NewExperimentHandler creates an ExperimentHandler for the named
// experiments. Reports are looked up in this process first, then in lookups
// in order. A nil emitter skips writing reports out.
func NewExperimentHandler(names []string, analyzer Analyzer, lookups []ReportLookup, emitter ReportEmitter, logger *slog.Logger) *ExperimentHandler {
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	return &ExperimentHandler{
		known:    known,
		names:    names,
		analyzer: analyzer,
		lookups:  lookups,
		emitter:  emitter,
		logger:   logger,
		latest:   make(map[string]domain.Report),
	}
}

// ListExperiments returns the configured experiment names.
// GET /api/experiments
func (h *ExperimentHandler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"experiments": h.names})
}

// RunAnalysis analyzes the experiment and returns the report.
// POST /api/experiments/{name}/analysis
func (h *ExperimentHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.known[name] {
		writeError(w, http.StatusNotFound, "unknown experiment "+name)
		return
	}

	rep, err := h.analyzer.Analyze(r.Context(), name)
	if err != nil {
		writeDomainError(w, r, h.logger, "analysis failed", err)
		return
	}

	h.Remember(rep)

	if h.emitter != nil {
		if _, err := h.emitter.Emit(r.Context(), rep); err != nil {
			h.logger.WarnContext(r.Context(), "handler: emit report failed",
				slog.String("experiment", name),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusOK, rep)
}

// Remember makes rep the latest report of its experiment in this process.
func (h *ExperimentHandler) Remember(rep domain.Report) {
	h.mu.Lock()
	h.latest[rep.Experiment] = rep
	h.mu.Unlock()
}

// GetReport returns the latest report of the experiment.
// GET /api/experiments/{name}/report
func (h *ExperimentHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.findReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetReportFile renders one file of the latest report, for example
// bands.csv, tables.tex or summary.txt.
// GET /api/experiments/{name}/report/{file}
func (h *ExperimentHandler) GetReportFile(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.findReport(w, r)
	if !ok {
		return
	}

	file := r.PathValue("file")
	for _, format := range report.Formats {
		files, err := report.Render(format, rep)
		if err != nil {
			writeDomainError(w, r, h.logger, "render report failed", err)
			return
		}
		for _, f := range files {
			if f.Name != file {
				continue
			}
			w.Header().Set("Content-Type", f.ContentType)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(f.Data)
			return
		}
	}
	writeError(w, http.StatusNotFound, "unknown report file "+file)
}

func (h *ExperimentHandler) findReport(w http.ResponseWriter, r *http.Request) (domain.Report, bool) {
	name := r.PathValue("name")
	if !h.known[name] {
		writeError(w, http.StatusNotFound, "unknown experiment "+name)
		return domain.Report{}, false
	}

	h.mu.RLock()
	rep, ok := h.latest[name]
	h.mu.RUnlock()
	if ok {
		return rep, true
	}

	for _, l := range h.lookups {
		rep, err := l.Latest(r.Context(), name)
		if err == nil {
			return rep, true
		}
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(r.Context(), "handler: report lookup failed",
				slog.String("experiment", name),
				slog.String("error", err.Error()),
			)
		}
	}
	writeError(w, http.StatusNotFound, "no report for "+name)
	return domain.Report{}, false
}
