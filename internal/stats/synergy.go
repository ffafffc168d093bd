package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// SharedSkill names the skill both agents can execute. Its occurrences are
// tagged with the executing agent so the human and robot variants get
// separate rows and columns.
const SharedSkill = "pick_blue_box"

// TagSkill appends agent to skill when skill is the shared one.
func TagSkill(skill, agent string) string {
	if strings.Contains(skill, SharedSkill) {
		return skill + "_" + agent
	}
	return skill
}

type agentPair struct {
	agent      string
	concurrent string
}

// SynergyMatrices pivots synergy records into one matrix per (agent,
// concurrent agent) pair, ordered by agent and then concurrent agent.
//
// A (skill, concurrent skill) pair recorded twice for the same agents
// returns domain.ErrDuplicatePair, since the matrix could not tell which
// measurement to show. Records with an empty agent or a non-finite dynamic
// risk return domain.ErrInvalidSample.
func SynergyMatrices(records []domain.SynergyRecord) ([]domain.SynergyMatrix, error) {
	groups := make(map[agentPair][]domain.SynergyCell)
	for i, rec := range records {
		if rec.Agent == "" || rec.ConcurrentAgent == "" {
			return nil, fmt.Errorf("stats: synergy record %d: missing agent: %w", i, domain.ErrInvalidSample)
		}
		if math.IsNaN(rec.DynamicRisk) || math.IsInf(rec.DynamicRisk, 0) {
			return nil, fmt.Errorf("stats: synergy record %d: dynamic risk %v: %w", i, rec.DynamicRisk, domain.ErrInvalidSample)
		}
		key := agentPair{agent: rec.Agent, concurrent: rec.ConcurrentAgent}
		groups[key] = append(groups[key], domain.SynergyCell{
			Row:         TagSkill(rec.AgentSkill, rec.Agent),
			Column:      TagSkill(rec.ConcurrentSkill, rec.ConcurrentAgent),
			DynamicRisk: rec.DynamicRisk,
		})
	}

	pairs := make([]agentPair, 0, len(groups))
	for p := range groups {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].agent != pairs[j].agent {
			return pairs[i].agent < pairs[j].agent
		}
		return pairs[i].concurrent < pairs[j].concurrent
	})

	out := make([]domain.SynergyMatrix, 0, len(pairs))
	for _, p := range pairs {
		m, err := pivot(p, groups[p])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func pivot(p agentPair, cells []domain.SynergyCell) (domain.SynergyMatrix, error) {
	seen := make(map[[2]string]bool, len(cells))
	rows := make(map[string]bool)
	cols := make(map[string]bool)
	for _, c := range cells {
		k := [2]string{c.Row, c.Column}
		if seen[k] {
			return domain.SynergyMatrix{}, fmt.Errorf("stats: synergy %s/%s: %s with %s: %w",
				p.agent, p.concurrent, c.Row, c.Column, domain.ErrDuplicatePair)
		}
		seen[k] = true
		rows[c.Row] = true
		cols[c.Column] = true
	}

	sorted := append([]domain.SynergyCell(nil), cells...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Column < sorted[j].Column
	})

	return domain.SynergyMatrix{
		Agent:           p.agent,
		ConcurrentAgent: p.concurrent,
		Rows:            sortedKeys(rows),
		Columns:         sortedKeys(cols),
		Cells:           sorted,
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
