package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"evomemory/internal/database"
	"evomemory/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// KeywordExtractor isolates the ad hoc tokenization used for pattern mining,
// so the mining control flow stays stable if extraction improves later.
type KeywordExtractor interface {
	// Extract returns the significant keywords of a text, in order
	Extract(text string) []string
}

// whitespaceExtractor is the default extractor: lower-cased whitespace
// tokens longer than 3 characters. Not real NLP, by contract.
type whitespaceExtractor struct{}

func (whitespaceExtractor) Extract(text string) []string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if utf8.RuneCountInString(w) > 3 {
			keywords = append(keywords, w)
		}
	}
	return keywords
}

// PatternGroups is the outcome of one analysis pass over recent neurons
type PatternGroups struct {
	BySkill    map[string][]*models.Neuron
	ByMood     map[string][]*models.Neuron
	ByKeywords map[string][]*models.Neuron
}

// RuleMinerService mines recurring patterns out of recent neurons and
// persists them as standing rules. It is a stateless read-analyze-write
// batch pass; scheduling its invocations is an external concern.
type RuleMinerService struct {
	db           *database.DB
	store        *NeuronStore
	extractor    KeywordExtractor
	snapshotPath string
	logger       *logrus.Logger
}

// NewRuleMinerService creates a rule miner. snapshotPath is where each
// auto-evolution pass exports its rule snapshot for human inspection.
func NewRuleMinerService(db *database.DB, store *NeuronStore, snapshotPath string) *RuleMinerService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &RuleMinerService{
		db:           db,
		store:        store,
		extractor:    whitespaceExtractor{},
		snapshotPath: snapshotPath,
		logger:       logger,
	}
}

// SetExtractor swaps the keyword extraction strategy
func (s *RuleMinerService) SetExtractor(extractor KeywordExtractor) {
	s.extractor = extractor
}

// Analyze groups the most recent `limit` neurons by skill, by mood, and by
// up to the first 3 keywords of each input text (a neuron fans out into
// multiple keyword buckets).
func (s *RuleMinerService) Analyze(limit int) (*PatternGroups, error) {
	neurons, err := s.store.Recent(limit, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load neurons for analysis: %w", err)
	}

	groups := &PatternGroups{
		BySkill:    make(map[string][]*models.Neuron),
		ByMood:     make(map[string][]*models.Neuron),
		ByKeywords: make(map[string][]*models.Neuron),
	}

	for _, n := range neurons {
		if n.SkillID != "" {
			groups.BySkill[n.SkillID] = append(groups.BySkill[n.SkillID], n)
		}
		groups.ByMood[n.Mood] = append(groups.ByMood[n.Mood], n)

		keywords := s.extractor.Extract(n.InputText)
		if len(keywords) > 3 {
			keywords = keywords[:3]
		}
		for _, kw := range keywords {
			groups.ByKeywords[kw] = append(groups.ByKeywords[kw], n)
		}
	}

	return groups, nil
}

// GenerateRules runs the four mining heuristics over recent neurons and
// returns the candidate rules. Nothing is persisted here.
func (s *RuleMinerService) GenerateRules(minOccurrences int) ([]models.Rule, error) {
	groups, err := s.Analyze(200)
	if err != nil {
		return nil, err
	}

	var rules []models.Rule

	// 1. Skill groups that consistently score well
	skillIDs := make([]string, 0, len(groups.BySkill))
	for skillID := range groups.BySkill {
		skillIDs = append(skillIDs, skillID)
	}
	sort.Strings(skillIDs)

	for _, skillID := range skillIDs {
		neurons := groups.BySkill[skillID]
		if len(neurons) < minOccurrences {
			continue
		}
		total := 0.0
		for _, n := range neurons {
			total += n.Confidence
		}
		avgConfidence := total / float64(len(neurons))
		if avgConfidence > 0.7 {
			rules = append(rules, models.Rule{
				RuleText:            fmt.Sprintf("Use high confidence for %s tasks", skillID),
				TriggerPattern:      "skill_id:" + skillID,
				ConfidenceThreshold: avgConfidence,
				Priority:            2,
				Enabled:             true,
			})
		}
	}

	recent100, err := s.store.Recent(100, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load neurons for feedback mining: %w", err)
	}

	// 2. Words that keep showing up in negatively rated outputs
	var negative []*models.Neuron
	for _, n := range recent100 {
		if n.UserFeedback < 0 {
			negative = append(negative, n)
		}
	}
	if len(negative) >= 3 {
		counts := make(map[string]int)
		for _, n := range negative {
			for _, w := range s.extractor.Extract(n.OutputText) {
				if utf8.RuneCountInString(w) > 4 {
					counts[w]++
				}
			}
		}
		for _, word := range topCounted(counts, 5, 3) {
			rules = append(rules, models.Rule{
				RuleText:            fmt.Sprintf("Avoid using '%s' in responses (negative feedback pattern)", word),
				TriggerPattern:      "avoid_word:" + word,
				ConfidenceThreshold: 0.3,
				Priority:            3,
				Enabled:             true,
			})
		}
	}

	// 3. Input keywords that reliably lead to high confidence
	var highConf []*models.Neuron
	for _, n := range recent100 {
		if n.Confidence > 0.8 {
			highConf = append(highConf, n)
		}
	}
	if len(highConf) >= 5 {
		counts := make(map[string]int)
		for _, n := range highConf {
			for _, kw := range s.extractor.Extract(n.InputText) {
				counts[kw]++
			}
		}
		for _, keyword := range topCounted(counts, 3, 3) {
			rules = append(rules, models.Rule{
				RuleText:            fmt.Sprintf("High confidence pattern detected for '%s' queries", keyword),
				TriggerPattern:      "keyword:" + keyword,
				ConfidenceThreshold: 0.8,
				Priority:            1,
				Enabled:             true,
			})
		}
	}

	// 4. Topics that repeatedly cause low confidence
	recent50, err := s.store.Recent(50, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load neurons for topic mining: %w", err)
	}
	var lowConf []*models.Neuron
	for _, n := range recent50 {
		if n.Confidence < 0.4 {
			lowConf = append(lowConf, n)
		}
	}
	if len(lowConf) >= 5 {
		counts := make(map[string]int)
		for _, n := range lowConf {
			for _, topic := range s.extractor.Extract(firstWords(n.InputText, 5)) {
				counts[topic]++
			}
		}
		for _, topic := range topCounted(counts, 2, 3) {
			rules = append(rules, models.Rule{
				RuleText:            fmt.Sprintf("Ask clarification for '%s' topics (low confidence pattern)", topic),
				TriggerPattern:      "clarify:" + topic,
				ConfidenceThreshold: 0.4,
				Priority:            2,
				Enabled:             true,
			})
		}
	}

	return rules, nil
}

// SaveRules inserts each rule unless one with identical rule_text already
// exists. Returns the count actually inserted. Each insertion is atomic;
// there are no partial batch semantics to roll back.
func (s *RuleMinerService) SaveRules(rules []models.Rule) (int, error) {
	saved := 0

	for _, rule := range rules {
		var existing int64
		err := s.db.QueryRow("SELECT id FROM rules WHERE rule_text = ?", rule.RuleText).Scan(&existing)
		if err == nil {
			continue // exact duplicate, skip
		}
		if err != sql.ErrNoRows {
			return saved, fmt.Errorf("failed to check for duplicate rule: %w", err)
		}

		_, err = s.db.Exec(`
			INSERT INTO rules (rule_text, trigger_pattern, confidence_threshold, priority, enabled, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rule.RuleText, rule.TriggerPattern, rule.ConfidenceThreshold, rule.Priority,
			boolToInt(rule.Enabled), time.Now().UTC())
		if err != nil {
			return saved, fmt.Errorf("failed to save rule: %w", err)
		}
		saved++
	}

	if m := GetMetrics(); m != nil {
		m.RulesSaved.Add(float64(saved))
	}

	return saved, nil
}

// Rules returns all persisted rules, highest priority first
func (s *RuleMinerService) Rules() ([]models.Rule, error) {
	rows, err := s.db.Query(`
		SELECT id, rule_text, trigger_pattern, confidence_threshold, priority, enabled, created_at, applied_count
		FROM rules
		ORDER BY priority DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		var r models.Rule
		var trigger sql.NullString
		var enabled int
		if err := rows.Scan(&r.ID, &r.RuleText, &trigger, &r.ConfidenceThreshold,
			&r.Priority, &enabled, &r.CreatedAt, &r.AppliedCount); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if trigger.Valid {
			r.TriggerPattern = trigger.String
		}
		r.Enabled = enabled != 0
		rules = append(rules, r)
	}

	return rules, rows.Err()
}

// AutoEvolve runs one full evolution cycle: verify there is enough history,
// mine rules, persist the new ones, and export a snapshot artifact.
func (s *RuleMinerService) AutoEvolve(minNeurons int) (*models.EvolveResult, error) {
	stats, err := s.db.GetStats()
	if err != nil {
		return nil, fmt.Errorf("failed to read store stats: %w", err)
	}

	if stats.Neurons < int64(minNeurons) {
		return &models.EvolveResult{
			NeuronsAnalyzed: int(stats.Neurons),
			RulesGenerated:  0,
			RulesSaved:      0,
			Message:         fmt.Sprintf("Not enough neurons (%d < %d)", stats.Neurons, minNeurons),
		}, nil
	}

	rules, err := s.GenerateRules(3)
	if err != nil {
		return nil, err
	}

	saved, err := s.SaveRules(rules)
	if err != nil {
		return nil, err
	}

	if err := s.exportSnapshot(rules); err != nil {
		// The rules are already persisted; a failed export only loses the
		// inspection artifact.
		s.logger.WithError(err).Warn("rule snapshot export failed")
	}

	if m := GetMetrics(); m != nil {
		m.RulesGenerated.Add(float64(len(rules)))
	}

	s.logger.WithFields(logrus.Fields{
		"neurons_analyzed": stats.Neurons,
		"rules_generated":  len(rules),
		"rules_saved":      saved,
	}).Info("auto-evolution pass completed")

	return &models.EvolveResult{
		NeuronsAnalyzed: int(stats.Neurons),
		RulesGenerated:  len(rules),
		RulesSaved:      saved,
		Message:         fmt.Sprintf("Generated %d rules, saved %d new ones", len(rules), saved),
	}, nil
}

// exportSnapshot writes the timestamped rule snapshot artifact
func (s *RuleMinerService) exportSnapshot(rules []models.Rule) error {
	if s.snapshotPath == "" {
		return nil
	}

	snapshot := models.RuleSnapshot{
		SnapshotID:  uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		RulesCount:  len(rules),
		Rules:       make([]models.SnapshotRule, 0, len(rules)),
	}
	for _, r := range rules {
		snapshot.Rules = append(snapshot.Rules, models.SnapshotRule{
			RuleText:            r.RuleText,
			TriggerPattern:      r.TriggerPattern,
			ConfidenceThreshold: r.ConfidenceThreshold,
			Priority:            r.Priority,
			Enabled:             r.Enabled,
		})
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rule snapshot: %w", err)
	}

	if dir := filepath.Dir(s.snapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	if err := os.WriteFile(s.snapshotPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rule snapshot: %w", err)
	}

	return nil
}

// topCounted returns up to topN keys with count >= minCount, most frequent
// first. Ties break lexicographically so mining output is deterministic.
func topCounted(counts map[string]int, topN, minCount int) []string {
	keys := make([]string, 0, len(counts))
	for k, c := range counts {
		if c >= minCount {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > topN {
		keys = keys[:topN]
	}
	return keys
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
