package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Mood constants derived from user feedback
const (
	MoodPositive = "positive"
	MoodNeutral  = "neutral"
	MoodNegative = "negative"
)

// Neuron represents a single stored interaction (input/output exchange)
type Neuron struct {
	ID           int64     `json:"id"`
	InputText    string    `json:"input_text"`
	Idea         string    `json:"idea,omitempty"` // optional short annotation
	OutputText   string    `json:"output_text"`
	Mood         string    `json:"mood"`       // derived from user_feedback, never set directly
	Confidence   float64   `json:"confidence"` // always in [0,1]
	UserFeedback int       `json:"user_feedback"` // -1, 0, +1
	ContextHash  string    `json:"context_hash"`  // fingerprint of normalized input text
	SkillID      string    `json:"skill_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int64     `json:"access_count"`
}

// ContextHash computes the approximate-match fingerprint for an input text:
// the first 8 hex characters of the MD5 of the lower-cased, trimmed text.
// Not cryptographic - it only buckets near-identical inputs together.
func ContextHash(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:8]
}

// MoodForFeedback maps a feedback value to the derived mood
func MoodForFeedback(feedback int) string {
	switch {
	case feedback > 0:
		return MoodPositive
	case feedback < 0:
		return MoodNegative
	default:
		return MoodNeutral
	}
}
