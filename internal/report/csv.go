package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

func renderCSV(r domain.Report) ([]domain.ReportFile, error) {
	files := []struct {
		name  string
		write func(*csv.Writer, domain.Report) error
	}{
		{"bands.csv", writeBandsCSV},
		{"risk.csv", writeRiskCSV},
		{"min_distances.csv", writeMinDistancesCSV},
		{"durations.csv", writeDurationsCSV},
		{"synergies.csv", writeSynergiesCSV},
	}

	out := make([]domain.ReportFile, 0, len(files))
	for _, f := range files {
		if f.name == "durations.csv" && len(r.Durations) == 0 {
			continue
		}
		if f.name == "synergies.csv" && len(r.Synergies) == 0 {
			continue
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := f.write(w, r); err != nil {
			return nil, fmt.Errorf("report: %s: %w", f.name, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("report: %s: %w", f.name, err)
		}
		out = append(out, domain.ReportFile{Name: f.name, ContentType: "text/csv", Data: buf.Bytes()})
	}
	return out, nil
}

func csvFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// writeBandsCSV writes one row per band point, the data behind the banded
// cumulative distribution plot.
func writeBandsCSV(w *csv.Writer, r domain.Report) error {
	if err := w.Write([]string{"strategy", "label", "distance", "mean", "lower", "upper"}); err != nil {
		return err
	}
	for _, b := range r.Bands {
		l := label(r, b.Strategy)
		for _, p := range b.Points {
			row := []string{b.Strategy, l, csvFloat(p.Distance), csvFloat(p.Mean), csvFloat(p.Lower), csvFloat(p.Upper)}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRiskCSV(w *csv.Writer, r domain.Report) error {
	if err := w.Write([]string{"run_id", "strategy", "label", "threshold", "percentage"}); err != nil {
		return err
	}
	for _, rec := range r.Risk {
		row := []string{rec.RunID, rec.Strategy, label(r, rec.Strategy), csvFloat(rec.Threshold), csvFloat(rec.Percentage)}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeMinDistancesCSV(w *csv.Writer, r domain.Report) error {
	header := []string{"strategy", "label", "min_distance"}
	for _, ref := range r.Baselines {
		header = append(header, "difference_from_"+ref)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range r.MinDistances {
		rec := []string{row.Strategy, row.Label, csvFloat(row.MinDistance)}
		for _, ref := range r.Baselines {
			v, ok := row.Differences[ref]
			if !ok {
				v = math.NaN()
			}
			rec = append(rec, csvFloat(v))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeDurationsCSV(w *csv.Writer, r domain.Report) error {
	header := []string{"strategy", "label", "runs", "mean_duration"}
	for _, ref := range r.Baselines {
		header = append(header, "reduction_from_"+ref)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, d := range r.Durations {
		rec := []string{d.Strategy, d.Label, strconv.Itoa(d.Runs), csvFloat(d.MeanDuration)}
		for _, ref := range r.Baselines {
			v, ok := d.Reductions[ref]
			if !ok {
				v = math.NaN()
			}
			rec = append(rec, csvFloat(v))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}
