package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

var taskNames = map[string]string{
	"pick_blue_box_human_right_arm":  "Pick Blue Box (H)",
	"place_blue_box_human_right_arm": "Place Blue Box (H)",
	"pick_blue_box_ur5_on_guide":     "Pick Blue Box (R)",
	"place_blue_box_ur5_on_guide":    "Place Blue Box (R)",
	"pick_white_box":                 "Pick White Box",
	"place_white_box":                "Place White Box",
	"pick_orange_box":                "Pick Orange Box",
	"place_orange_box":               "Place Orange Box",
}

type agentName struct {
	name, abbreviation string
}

var agentNames = map[string]agentName{
	"ur5_on_guide":    {"Robot", "R"},
	"manipulator":     {"Robot", "R"},
	"human_right_arm": {"Human", "H"},
	"human":           {"Human", "H"},
}

// taskLabel returns the display name of a skill. Unknown skills are title
// cased word by word.
func taskLabel(skill string) string {
	if name, ok := taskNames[skill]; ok {
		return name
	}
	words := strings.Split(skill, "_")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func agentLabel(agent string) agentName {
	if a, ok := agentNames[agent]; ok {
		return a
	}
	return agentName{name: agent, abbreviation: agent}
}

// writeSynergiesCSV writes one row per matrix cell.
func writeSynergiesCSV(w *csv.Writer, r domain.Report) error {
	if err := w.Write([]string{"agent", "concurrent_agent", "agent_skill", "concurrent_skill", "dynamic_risk"}); err != nil {
		return err
	}
	for _, m := range r.Synergies {
		for _, c := range m.Cells {
			if err := w.Write([]string{m.Agent, m.ConcurrentAgent, c.Row, c.Column, csvFloat(c.DynamicRisk)}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeSynergiesLaTeX writes every synergy matrix as a tabular with the
// agent's tasks as rows and the concurrent agent's tasks as columns.
func writeSynergiesLaTeX(w io.Writer, r domain.Report) error {
	for _, m := range r.Synergies {
		agent, concurrent := agentLabel(m.Agent), agentLabel(m.ConcurrentAgent)

		header := []string{fmt.Sprintf("%s Tasks / %s Tasks", agent.name, concurrent.name)}
		for _, col := range m.Columns {
			header = append(header, taskLabel(col))
		}
		rows := make([][]string, 0, len(m.Rows))
		for _, row := range m.Rows {
			cells := []string{taskLabel(row)}
			for _, col := range m.Columns {
				v, ok := m.Value(row, col)
				cells = append(cells, formatNumber(v, ok, 2))
			}
			rows = append(rows, cells)
		}

		if _, err := fmt.Fprintf(w, "\n%% Synergy matrix for agent: %s ($S^%s$)\n", agent.name, agent.abbreviation); err != nil {
			return err
		}
		if err := writeTabular(w, header, rows); err != nil {
			return fmt.Errorf("report: latex synergies %s: %w", m.Agent, err)
		}
	}
	return nil
}
