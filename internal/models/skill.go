package models

import "time"

// Skill is a named category tag grouping related neurons.
// NeuronCount and AvgConfidence are reporting fields computed on read
// (see NeuronStore.SkillStats), not persisted counters.
type Skill struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	NeuronCount   int64     `json:"neuron_count"`
	AvgConfidence float64   `json:"avg_confidence"`
	Enabled       bool      `json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

// SkillStats are per-skill aggregates derived from the neurons table
type SkillStats struct {
	SkillID       string  `json:"skill_id"`
	NeuronCount   int64   `json:"neuron_count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// MetaNeuron is a reserved entity for future compression of similar neurons
// into a single templated record. The table exists but nothing produces rows
// yet; no compression algorithm is implemented.
type MetaNeuron struct {
	ID            int64     `json:"id"`
	Pattern       string    `json:"pattern"`
	Template      string    `json:"template"`
	Occurrences   int64     `json:"occurrences"`
	AvgConfidence float64   `json:"avg_confidence"`
	SkillID       string    `json:"skill_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
