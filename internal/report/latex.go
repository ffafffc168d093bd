package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// WriteLaTeX writes the minimum distance table and, when present, the plan
// duration table and synergy matrices as LaTeX tabular environments.
func WriteLaTeX(w io.Writer, r domain.Report) error {
	header := []string{"Method", "Min Distance (m)"}
	for _, ref := range r.Baselines {
		header = append(header, fmt.Sprintf("Difference from %s (m)", referenceName(r, ref)))
	}
	var rows [][]string
	for _, row := range r.MinDistances {
		cells := []string{row.Label, formatNumber(row.MinDistance, true, 3)}
		for _, ref := range r.Baselines {
			v, ok := row.Differences[ref]
			cells = append(cells, formatNumber(v, ok, 3))
		}
		rows = append(rows, cells)
	}
	if err := writeTabular(w, header, rows); err != nil {
		return fmt.Errorf("report: latex min distances: %w", err)
	}

	if len(r.Durations) > 0 {
		if err := writeDurationsLaTeX(w, r); err != nil {
			return err
		}
	}
	return writeSynergiesLaTeX(w, r)
}

func writeDurationsLaTeX(w io.Writer, r domain.Report) error {
	header := []string{"Task Planner Type", "Mean Duration (s)"}
	for _, ref := range r.Baselines {
		header = append(header, fmt.Sprintf("Reduction from %s (%%)", referenceName(r, ref)))
	}
	rows := make([][]string, 0, len(r.Durations))
	for _, d := range r.Durations {
		cells := []string{d.Label, formatNumber(d.MeanDuration, true, 2)}
		for _, ref := range r.Baselines {
			v, ok := d.Reductions[ref]
			cells = append(cells, formatNumber(v, ok, 2))
		}
		rows = append(rows, cells)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	if err := writeTabular(w, header, rows); err != nil {
		return fmt.Errorf("report: latex durations: %w", err)
	}
	return nil
}

// writeTabular writes a tabular with the first column left aligned and the
// rest right aligned.
func writeTabular(w io.Writer, header []string, rows [][]string) error {
	cols := "l" + strings.Repeat("r", len(header)-1)

	var b strings.Builder
	fmt.Fprintf(&b, "\\begin{tabular}{%s}\n\\hline\n", cols)
	b.WriteString(latexRow(header))
	b.WriteString("\\hline\n")
	for _, row := range rows {
		b.WriteString(latexRow(row))
	}
	b.WriteString("\\hline\n\\end{tabular}\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func latexRow(cells []string) string {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = latexEscape(c)
	}
	return " " + strings.Join(escaped, " & ") + " \\\\\n"
}

var latexReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
)

func latexEscape(s string) string {
	return latexReplacer.Replace(s)
}
