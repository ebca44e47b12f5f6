package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ScorerConfig holds every threshold and delta of the confidence heuristic.
// Tests rely on DefaultScorerConfig for the stock behavior and override
// individual fields to probe single adjustments.
type ScorerConfig struct {
	Baseline float64 `yaml:"baseline"`

	ShortOutputChars   int     `yaml:"short_output_chars"`
	ShortOutputPenalty float64 `yaml:"short_output_penalty"`
	DetailedChars      int     `yaml:"detailed_chars"`
	DetailedBonus      float64 `yaml:"detailed_bonus"`

	UncertaintyPenalty float64 `yaml:"uncertainty_penalty"` // per match
	CertaintyBonus     float64 `yaml:"certainty_bonus"`     // per match

	QuestionPenalty float64 `yaml:"question_penalty"` // more than one '?'

	RepetitionMinWords int     `yaml:"repetition_min_words"`
	RepetitionRatio    float64 `yaml:"repetition_ratio"`
	RepetitionPenalty  float64 `yaml:"repetition_penalty"`

	LongPromptTokens    int     `yaml:"long_prompt_tokens"`
	ShortAnswerPenalty  float64 `yaml:"short_answer_penalty"`
	FluentTokensPerSec  float64 `yaml:"fluent_tokens_per_sec"`
	FluentBonus         float64 `yaml:"fluent_bonus"`

	ClarificationThreshold float64 `yaml:"clarification_threshold"`

	// Phrase sets cover both working languages (Italian and English)
	UncertaintyPhrases []string `yaml:"uncertainty_phrases"`
	CertaintyPhrases   []string `yaml:"certainty_phrases"`
}

// DefaultScorerConfig returns the stock heuristic configuration
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Baseline: 0.5,

		ShortOutputChars:   10,
		ShortOutputPenalty: 0.2,
		DetailedChars:      50,
		DetailedBonus:      0.1,

		UncertaintyPenalty: 0.15,
		CertaintyBonus:     0.1,

		QuestionPenalty: 0.1,

		RepetitionMinWords: 10,
		RepetitionRatio:    0.6,
		RepetitionPenalty:  0.15,

		LongPromptTokens:   500,
		ShortAnswerPenalty: 0.1,
		FluentTokensPerSec: 5,
		FluentBonus:        0.05,

		ClarificationThreshold: 0.4,

		UncertaintyPhrases: []string{
			"non sono sicuro", "non so", "forse", "probabilmente",
			"potrebbe essere", "possibilmente",
			"I'm not sure", "I don't know", "maybe", "probably",
			"might be", "could be",
		},
		CertaintyPhrases: []string{
			"sicuramente", "certamente", "conferma", "essenzialmente",
			"definitivamente",
			"certainly", "definitely", "clearly", "obviously",
		},
	}
}

// GenerationStats are the optional numeric generation signals supplied by
// the text-generation collaborator. Missing stats degrade the heuristic
// gracefully; they never fail it.
type GenerationStats struct {
	PromptTokens    int
	TokensPerSecond float64
}

// ConfidenceScorer maps generated text (plus optional generation stats) to a
// confidence value in [0,1] and a human-readable explanation. It is
// deterministic and keeps no state across calls.
type ConfidenceScorer struct {
	config           ScorerConfig
	uncertaintyRegex *regexp.Regexp
	certaintyRegex   *regexp.Regexp
}

// NewConfidenceScorer creates a scorer with the given configuration
func NewConfidenceScorer(config ScorerConfig) *ConfidenceScorer {
	return &ConfidenceScorer{
		config:           config,
		uncertaintyRegex: compilePhrases(config.UncertaintyPhrases),
		certaintyRegex:   compilePhrases(config.CertaintyPhrases),
	}
}

// compilePhrases returns nil for an empty list; a pattern with an empty
// alternation would match the empty string at every word boundary
func compilePhrases(phrases []string) *regexp.Regexp {
	if len(phrases) == 0 {
		return nil
	}
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Score evaluates an output text and returns (confidence, reasoning).
// The reasoning concatenates the label of every adjustment that fired, in
// evaluation order; "standard evaluation" when none fired.
func (cs *ConfidenceScorer) Score(outputText string, stats *GenerationStats) (float64, string) {
	confidence := cs.config.Baseline
	var reasons []string

	outputLen := utf8.RuneCountInString(strings.TrimSpace(outputText))
	if outputLen < cs.config.ShortOutputChars {
		confidence -= cs.config.ShortOutputPenalty
		reasons = append(reasons, "output too short")
	} else if outputLen > cs.config.DetailedChars {
		confidence += cs.config.DetailedBonus
		reasons = append(reasons, "detailed response")
	}

	if cs.uncertaintyRegex != nil {
		if matches := cs.uncertaintyRegex.FindAllString(outputText, -1); len(matches) > 0 {
			confidence -= cs.config.UncertaintyPenalty * float64(len(matches))
			reasons = append(reasons, fmt.Sprintf("found %d uncertainty expressions", len(matches)))
		}
	}

	if cs.certaintyRegex != nil {
		if matches := cs.certaintyRegex.FindAllString(outputText, -1); len(matches) > 0 {
			confidence += cs.config.CertaintyBonus * float64(len(matches))
			reasons = append(reasons, fmt.Sprintf("found %d certainty expressions", len(matches)))
		}
	}

	if strings.Count(outputText, "?") > 1 {
		confidence -= cs.config.QuestionPenalty
		reasons = append(reasons, "response contains questions")
	}

	words := strings.Fields(strings.ToLower(outputText))
	if len(words) > cs.config.RepetitionMinWords {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[w] = struct{}{}
		}
		if float64(len(unique))/float64(len(words)) < cs.config.RepetitionRatio {
			confidence -= cs.config.RepetitionPenalty
			reasons = append(reasons, "too many repetitions")
		}
	}

	if stats != nil {
		if stats.PromptTokens > cs.config.LongPromptTokens && outputLen < cs.config.DetailedChars {
			confidence -= cs.config.ShortAnswerPenalty
			reasons = append(reasons, "output too short for prompt length")
		}
		if stats.TokensPerSecond > cs.config.FluentTokensPerSec {
			confidence += cs.config.FluentBonus
			reasons = append(reasons, "fluent generation")
		}
	}

	confidence = clamp(confidence, 0.0, 1.0)

	reasoning := "standard evaluation"
	if len(reasons) > 0 {
		reasoning = strings.Join(reasons, "; ")
	}

	return confidence, reasoning
}

// ShouldAskClarification reports whether the confidence falls below the
// clarification threshold
func (cs *ConfidenceScorer) ShouldAskClarification(confidence float64) bool {
	return confidence < cs.config.ClarificationThreshold
}

// Label returns a human-readable confidence band
func (cs *ConfidenceScorer) Label(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "very high"
	case confidence >= 0.6:
		return "high"
	case confidence >= 0.4:
		return "medium"
	case confidence >= 0.2:
		return "low"
	default:
		return "very low"
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
