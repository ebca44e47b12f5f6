package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"evomemory/internal/database"
	"evomemory/internal/models"
)

// Validation errors rejected before anything touches the database
var (
	ErrInvalidConfidence = errors.New("confidence must be between 0.0 and 1.0")
	ErrInvalidFeedback   = errors.New("feedback must be -1, 0 or +1")
	ErrEmptyText         = errors.New("input_text and output_text are required")
)

// NeuronStore handles durable CRUD and querying over neuron records.
// It is the single source of truth; every operation is atomic at
// single-row granularity.
type NeuronStore struct {
	db *database.DB
}

// NewNeuronStore creates a new neuron store
func NewNeuronStore(db *database.DB) *NeuronStore {
	return &NeuronStore{db: db}
}

// Save persists a new neuron and returns its assigned id.
// The context hash is computed from the normalized input text and the mood
// is derived from the feedback value; both are immutable after creation.
func (s *NeuronStore) Save(n *models.Neuron) (int64, error) {
	if n.InputText == "" || n.OutputText == "" {
		return 0, ErrEmptyText
	}
	if n.Confidence < 0.0 || n.Confidence > 1.0 {
		return 0, ErrInvalidConfidence
	}
	if n.UserFeedback < -1 || n.UserFeedback > 1 {
		return 0, ErrInvalidFeedback
	}

	now := time.Now().UTC()
	n.ContextHash = models.ContextHash(n.InputText)
	n.Mood = models.MoodForFeedback(n.UserFeedback)
	n.Timestamp = now
	n.LastAccessed = now

	result, err := s.db.Exec(`
		INSERT INTO neurons (
			input_text, idea, output_text, mood, confidence,
			user_feedback, context_hash, skill_id, timestamp, last_accessed, access_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, n.InputText, nullString(n.Idea), n.OutputText, n.Mood, n.Confidence,
		n.UserFeedback, n.ContextHash, nullString(n.SkillID), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to save neuron: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get neuron id: %w", err)
	}
	n.ID = id

	if m := GetMetrics(); m != nil {
		m.NeuronsSaved.Inc()
	}

	return id, nil
}

// Get returns the neuron with the given id, or nil if absent
func (s *NeuronStore) Get(id int64) (*models.Neuron, error) {
	row := s.db.QueryRow(`
		SELECT id, input_text, idea, output_text, mood, confidence,
		       user_feedback, context_hash, skill_id, timestamp, last_accessed, access_count
		FROM neurons
		WHERE id = ?
	`, id)

	n, err := scanNeuron(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query neuron: %w", err)
	}

	return n, nil
}

// Recent returns the last N neurons ordered by timestamp descending,
// optionally filtered by skill
func (s *NeuronStore) Recent(limit int, skillID string) ([]*models.Neuron, error) {
	query := `
		SELECT id, input_text, idea, output_text, mood, confidence,
		       user_feedback, context_hash, skill_id, timestamp, last_accessed, access_count
		FROM neurons
	`
	args := []any{}
	if skillID != "" {
		query += " WHERE skill_id = ?"
		args = append(args, skillID)
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	return s.queryNeurons(query, args...)
}

// Similar returns neurons sharing a context hash, best confidence first.
// This is the coarse approximate-match path, independent of the BM25 index.
func (s *NeuronStore) Similar(contextHash string, limit int) ([]*models.Neuron, error) {
	return s.queryNeurons(`
		SELECT id, input_text, idea, output_text, mood, confidence,
		       user_feedback, context_hash, skill_id, timestamp, last_accessed, access_count
		FROM neurons
		WHERE context_hash = ?
		ORDER BY confidence DESC, timestamp DESC
		LIMIT ?
	`, contextHash, limit)
}

// Search returns neurons whose input or output text contains the query,
// case-insensitive. A plain substring filter - ranked search belongs to
// the retrieval service.
func (s *NeuronStore) Search(query string, limit int) ([]*models.Neuron, error) {
	pattern := "%" + query + "%"
	return s.queryNeurons(`
		SELECT id, input_text, idea, output_text, mood, confidence,
		       user_feedback, context_hash, skill_id, timestamp, last_accessed, access_count
		FROM neurons
		WHERE input_text LIKE ? OR output_text LIKE ?
		ORDER BY confidence DESC, timestamp DESC
		LIMIT ?
	`, pattern, pattern, limit)
}

// UpdateFeedback sets the user feedback (-1, 0, +1) on a neuron and
// recomputes its mood
func (s *NeuronStore) UpdateFeedback(id int64, feedback int) error {
	if feedback < -1 || feedback > 1 {
		return ErrInvalidFeedback
	}

	mood := models.MoodForFeedback(feedback)
	_, err := s.db.Exec(`
		UPDATE neurons
		SET user_feedback = ?, mood = ?, last_accessed = ?
		WHERE id = ?
	`, feedback, mood, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}

	return nil
}

// Touch records that neurons were injected into a prompt, bumping their
// access count and last-accessed time
func (s *NeuronStore) Touch(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		UPDATE neurons
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to record neuron access: %w", err)
	}

	return nil
}

// Prune deletes neurons older than keepDays whose confidence is below
// minConfidence and whose feedback is non-positive. Neurons with positive
// feedback are never pruned, regardless of age or confidence.
func (s *NeuronStore) Prune(keepDays int, minConfidence float64) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays)

	result, err := s.db.Exec(`
		DELETE FROM neurons
		WHERE timestamp < ?
		AND confidence < ?
		AND user_feedback <= 0
	`, cutoff, minConfidence)
	if err != nil {
		return 0, fmt.Errorf("failed to prune neurons: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned neurons: %w", err)
	}

	if m := GetMetrics(); m != nil {
		m.NeuronsPruned.Add(float64(deleted))
	}

	return deleted, nil
}

// SkillStats computes per-skill aggregates on read. Skill counters are
// reporting fields, not authoritatively maintained state.
func (s *NeuronStore) SkillStats() ([]models.SkillStats, error) {
	rows, err := s.db.Query(`
		SELECT skill_id, COUNT(*), AVG(confidence)
		FROM neurons
		WHERE skill_id IS NOT NULL AND skill_id != ''
		GROUP BY skill_id
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query skill stats: %w", err)
	}
	defer rows.Close()

	var stats []models.SkillStats
	for rows.Next() {
		var st models.SkillStats
		if err := rows.Scan(&st.SkillID, &st.NeuronCount, &st.AvgConfidence); err != nil {
			return nil, fmt.Errorf("failed to scan skill stats: %w", err)
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

func (s *NeuronStore) queryNeurons(query string, args ...any) ([]*models.Neuron, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query neurons: %w", err)
	}
	defer rows.Close()

	var neurons []*models.Neuron
	for rows.Next() {
		n, err := scanNeuron(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan neuron: %w", err)
		}
		neurons = append(neurons, n)
	}

	return neurons, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNeuron(row rowScanner) (*models.Neuron, error) {
	var n models.Neuron
	var idea, contextHash, skillID sql.NullString

	err := row.Scan(&n.ID, &n.InputText, &idea, &n.OutputText, &n.Mood, &n.Confidence,
		&n.UserFeedback, &contextHash, &skillID, &n.Timestamp, &n.LastAccessed, &n.AccessCount)
	if err != nil {
		return nil, err
	}

	if idea.Valid {
		n.Idea = idea.String
	}
	if contextHash.Valid {
		n.ContextHash = contextHash.String
	}
	if skillID.Valid {
		n.SkillID = skillID.String
	}

	return &n, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
