// Package report renders analysis reports as JSON, CSV, LaTeX and terminal
// tables, writes them to disk and optionally archives them.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatCSV   = "csv"
	FormatLaTeX = "latex"
	FormatText  = "text"
)

// Formats lists every supported format.
var Formats = []string{FormatJSON, FormatCSV, FormatLaTeX, FormatText}

// Render returns the files of one format.
func Render(format string, r domain.Report) ([]domain.ReportFile, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("report: json: %w", err)
		}
		return []domain.ReportFile{{Name: "report.json", ContentType: "application/json", Data: data}}, nil
	case FormatCSV:
		return renderCSV(r)
	case FormatLaTeX:
		var buf bytes.Buffer
		if err := WriteLaTeX(&buf, r); err != nil {
			return nil, err
		}
		return []domain.ReportFile{{Name: "tables.tex", ContentType: "application/x-tex", Data: buf.Bytes()}}, nil
	case FormatText:
		var buf bytes.Buffer
		if err := WriteText(&buf, r); err != nil {
			return nil, err
		}
		return []domain.ReportFile{{Name: "summary.txt", ContentType: "text/plain; charset=utf-8", Data: buf.Bytes()}}, nil
	default:
		return nil, fmt.Errorf("report: unknown format %q", format)
	}
}

// Result describes where an emitted report went.
type Result struct {
	Dir    string
	Prefix string
	Files  []string
}

// Emitter writes reports in the configured formats.
type Emitter struct {
	formats   []string
	outputDir string
	archive   domain.ReportArchive
	logger    *slog.Logger
}

// NewEmitter creates an Emitter. An empty outputDir skips local files and a
// nil archive skips the upload.
func NewEmitter(formats []string, outputDir string, archive domain.ReportArchive, logger *slog.Logger) (*Emitter, error) {
	for _, f := range formats {
		if !validFormat(f) {
			return nil, fmt.Errorf("report: unknown format %q", f)
		}
	}
	return &Emitter{
		formats:   formats,
		outputDir: outputDir,
		archive:   archive,
		logger:    logger.With(slog.String("component", "report")),
	}, nil
}

// Emit renders r and writes it to <outputDir>/<experiment>/<id>/, then
// uploads it when an archive is configured.
func (e *Emitter) Emit(ctx context.Context, r domain.Report) (Result, error) {
	var files []domain.ReportFile
	for _, f := range e.formats {
		out, err := Render(f, r)
		if err != nil {
			return Result{}, err
		}
		files = append(files, out...)
	}

	var res Result
	for _, f := range files {
		res.Files = append(res.Files, f.Name)
	}

	if e.outputDir != "" {
		dir := filepath.Join(e.outputDir, r.Experiment, r.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("report: create %s: %w", dir, err)
		}
		for _, f := range files {
			if err := os.WriteFile(filepath.Join(dir, f.Name), f.Data, 0o644); err != nil {
				return Result{}, fmt.Errorf("report: write %s: %w", f.Name, err)
			}
		}
		res.Dir = dir
	}

	if e.archive != nil {
		prefix, err := e.archive.Save(ctx, r, files)
		if err != nil {
			return res, fmt.Errorf("report: archive: %w", err)
		}
		res.Prefix = prefix
	}

	e.logger.Info("report emitted",
		slog.String("experiment", r.Experiment),
		slog.String("report_id", r.ID),
		slog.String("dir", res.Dir),
		slog.String("prefix", res.Prefix),
		slog.Int("files", len(files)),
	)
	return res, nil
}

func validFormat(f string) bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// referenceName shortens a display label for column headers, so "Baseline
// TP" becomes "Baseline".
func referenceName(r domain.Report, key string) string {
	label := key
	if l, ok := r.Labels[key]; ok {
		label = l
	}
	return strings.TrimSuffix(label, " TP")
}

func label(r domain.Report, key string) string {
	if l, ok := r.Labels[key]; ok {
		return l
	}
	return key
}

// formatNumber renders v with the given decimals, or "n/a" when v is NaN or
// missing.
func formatNumber(v float64, ok bool, decimals int) string {
	if !ok || math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", decimals, v)
}

// RiskSummary is the mean risk percentage of one strategy at one threshold
// across its runs.
type RiskSummary struct {
	Strategy  string
	Threshold float64
	Runs      int
	Mean      float64
}

// SummarizeRisk averages the risk records of every strategy per threshold,
// in strategy order and first-seen threshold order.
func SummarizeRisk(r domain.Report) []RiskSummary {
	type cell struct {
		sum float64
		n   int
	}
	var thresholds []float64
	seen := make(map[float64]bool)
	cells := make(map[string]map[float64]*cell)
	for _, rec := range r.Risk {
		if !seen[rec.Threshold] {
			seen[rec.Threshold] = true
			thresholds = append(thresholds, rec.Threshold)
		}
		byT, ok := cells[rec.Strategy]
		if !ok {
			byT = make(map[float64]*cell)
			cells[rec.Strategy] = byT
		}
		c, ok := byT[rec.Threshold]
		if !ok {
			c = &cell{}
			byT[rec.Threshold] = c
		}
		c.sum += rec.Percentage
		c.n++
	}

	var out []RiskSummary
	for _, key := range r.Strategies {
		byT, ok := cells[key]
		if !ok {
			continue
		}
		for _, t := range thresholds {
			c, ok := byT[t]
			if !ok {
				continue
			}
			out = append(out, RiskSummary{Strategy: key, Threshold: t, Runs: c.n, Mean: c.sum / float64(c.n)})
		}
	}
	return out
}
