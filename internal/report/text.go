package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorBorder = lipgloss.Color("#16858E")
	colorWarn   = lipgloss.Color("#F4D03F")
	colorError  = lipgloss.Color("#E74C3C")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError)
)

// WriteText writes a terminal summary of r: minimum distances, mean risk
// exposure per threshold, plan durations and any problems.
func WriteText(w io.Writer, r domain.Report) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  (%s)", r.Experiment, r.ID)))
	b.WriteString("\n\n")

	header := []string{"Method", "Runs", "Min Distance (m)"}
	for _, ref := range r.Baselines {
		header = append(header, fmt.Sprintf("Diff. %s (m)", referenceName(r, ref)))
	}
	runs := make(map[string]int, len(r.Bands))
	for _, band := range r.Bands {
		runs[band.Strategy] = band.Runs
	}
	var rows [][]string
	for _, row := range r.MinDistances {
		cells := []string{row.Label, fmt.Sprint(runs[row.Strategy]), formatNumber(row.MinDistance, true, 3)}
		for _, ref := range r.Baselines {
			v, ok := row.Differences[ref]
			cells = append(cells, formatNumber(v, ok, 3))
		}
		rows = append(rows, cells)
	}
	b.WriteString(renderTable(header, rows))
	b.WriteString("\n")

	if risk := SummarizeRisk(r); len(risk) > 0 {
		rows = rows[:0]
		for _, s := range risk {
			rows = append(rows, []string{
				label(r, s.Strategy),
				formatNumber(s.Threshold, true, 2),
				fmt.Sprint(s.Runs),
				formatNumber(s.Mean, true, 2),
			})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Method", "Threshold (m)", "Runs", "Mean Time Below (%)"}, rows))
		b.WriteString("\n")
	}

	if len(r.Durations) > 0 {
		header = []string{"Task Planner Type", "Runs", "Mean Duration (s)"}
		for _, ref := range r.Baselines {
			header = append(header, fmt.Sprintf("Red. %s (%%)", referenceName(r, ref)))
		}
		rows = rows[:0]
		for _, d := range r.Durations {
			cells := []string{d.Label, fmt.Sprint(d.Runs), formatNumber(d.MeanDuration, true, 2)}
			for _, ref := range r.Baselines {
				v, ok := d.Reductions[ref]
				cells = append(cells, formatNumber(v, ok, 2))
			}
			rows = append(rows, cells)
		}
		b.WriteString("\n")
		b.WriteString(renderTable(header, rows))
		b.WriteString("\n")
	}

	for _, e := range r.Errors {
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %s", label(r, e.Strategy), e.Error)))
		b.WriteString("\n")
	}
	for _, s := range r.Skipped {
		b.WriteString(warningStyle.Render(fmt.Sprintf("⚠ skipped %s: %s", s.RunID, s.Reason)))
		b.WriteString("\n")
	}
	for _, u := range r.Unmatched {
		b.WriteString(warningStyle.Render(fmt.Sprintf("⚠ unmatched recipe %s", u)))
		b.WriteString("\n")
	}
	for _, msg := range r.Warnings {
		b.WriteString(warningStyle.Render("⚠ " + msg))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderTable(header []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(header...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return cellStyle
			default:
				return numberStyle
			}
		})
	return t.String()
}
