package domain

import "context"

// SynergyRecord is the dynamic risk measured while a task of Agent ran
// alongside a task of ConcurrentAgent.
type SynergyRecord struct {
	Agent           string  `json:"agent" bson:"agent"`
	AgentSkill      string  `json:"agent_skill" bson:"agent_skill"`
	ConcurrentAgent string  `json:"concurrent_agent" bson:"concurrent_agent"`
	ConcurrentSkill string  `json:"concurrent_skill" bson:"concurrent_skill"`
	DynamicRisk     float64 `json:"dynamic_risk" bson:"dynamic_risk"`
}

// SynergyCell is one entry of a synergy matrix.
type SynergyCell struct {
	Row         string  `json:"row"`
	Column      string  `json:"column"`
	DynamicRisk float64 `json:"dynamic_risk"`
}

// SynergyMatrix pivots the dynamic risk of one agent pair. Rows are the
// skills of Agent and Columns the skills of ConcurrentAgent, both sorted.
// Cells are in row-major order; pairs never observed have no cell.
type SynergyMatrix struct {
	Agent           string        `json:"agent"`
	ConcurrentAgent string        `json:"concurrent_agent"`
	Rows            []string      `json:"rows"`
	Columns         []string      `json:"columns"`
	Cells           []SynergyCell `json:"cells"`
}

// Value returns the dynamic risk of the (row, column) pair.
func (m SynergyMatrix) Value(row, column string) (float64, bool) {
	for _, c := range m.Cells {
		if c.Row == row && c.Column == column {
			return c.DynamicRisk, true
		}
	}
	return 0, false
}

// SynergySource supplies the task synergy records of an experiment.
type SynergySource interface {
	LoadSynergies(ctx context.Context, experiment string) ([]SynergyRecord, error)
}
