package models

import "time"

// Rule is a mined behavioral heuristic intended to bias future generation.
// rule_text acts as the natural key: de-duplication is by exact textual
// equality, never semantic similarity.
type Rule struct {
	ID                  int64     `json:"id"`
	RuleText            string    `json:"rule_text"`
	TriggerPattern      string    `json:"trigger_pattern"`
	ConfidenceThreshold float64   `json:"confidence_threshold"` // in [0,1]
	Priority            int       `json:"priority"`             // higher = more specific/urgent
	Enabled             bool      `json:"enabled"`
	CreatedAt           time.Time `json:"created_at"`
	AppliedCount        int64     `json:"applied_count"` // reserved, not incremented yet
}

// RuleSnapshot is the side artifact exported after each auto-evolution pass
// so humans can inspect what the miner produced.
type RuleSnapshot struct {
	SnapshotID  string         `json:"snapshot_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	RulesCount  int            `json:"rules_count"`
	Rules       []SnapshotRule `json:"rules"`
}

// SnapshotRule is the exported view of a mined rule
type SnapshotRule struct {
	RuleText            string  `json:"rule_text"`
	TriggerPattern      string  `json:"trigger_pattern"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Priority            int     `json:"priority"`
	Enabled             bool    `json:"enabled"`
}

// EvolveResult summarizes one auto-evolution pass
type EvolveResult struct {
	NeuronsAnalyzed int    `json:"neurons_analyzed"`
	RulesGenerated  int    `json:"rules_generated"`
	RulesSaved      int    `json:"rules_saved"`
	Message         string `json:"message"`
}
