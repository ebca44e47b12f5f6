package services

import (
	"strings"
	"testing"
)

func TestScore_Clamped(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultScorerConfig())

	texts := []string{
		"",
		"ok",
		"Non sono sicuro, forse, probabilmente, potrebbe essere, non so",
		"Certainly! Definitely working. Clearly this is obviously the definitive answer to your question.",
		strings.Repeat("same same same ", 20),
	}

	for _, text := range texts {
		confidence, _ := scorer.Score(text, nil)
		if confidence < 0.0 || confidence > 1.0 {
			t.Errorf("Score(%q) = %f, want value in [0,1]", text, confidence)
		}
	}
}

func TestScore_UncertaintyPhrases(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultScorerConfig())

	// Two uncertainty hits: "non sono sicuro" and "forse"
	confidence, reasoning := scorer.Score("Non sono sicuro, forse è il pin 17", nil)
	if confidence >= 0.45 {
		t.Errorf("Expected confidence < 0.45 for doubly uncertain output, got %f", confidence)
	}
	if !strings.Contains(reasoning, "uncertainty") {
		t.Errorf("Expected uncertainty in reasoning, got %q", reasoning)
	}
}

func TestScore_CertaintyPhrases(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultScorerConfig())

	confidence, _ := scorer.Score("Certamente! Il comando corretto è gpio.write(17, HIGH).", nil)
	if confidence < 0.6 {
		t.Errorf("Expected confidence >= 0.6 for confident output, got %f", confidence)
	}
}

func TestScore_Adjustments(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultScorerConfig())

	tests := []struct {
		name      string
		text      string
		stats     *GenerationStats
		want      float64
		reasoning string
	}{
		{
			name:      "too short",
			text:      "ok",
			want:      0.3,
			reasoning: "output too short",
		},
		{
			name:      "detailed",
			text:      "The red LED is wired to GPIO pin 17 and is currently set to HIGH.",
			want:      0.6,
			reasoning: "detailed response",
		},
		{
			name:      "questions",
			text:      "Did you mean GPIO 17? Or 18? Hard to say.",
			want:      0.4,
			reasoning: "response contains questions",
		},
		{
			name:      "repetitions",
			text:      "led on led on led on led on led on led on",
			want:      0.35,
			reasoning: "too many repetitions",
		},
		{
			name:      "long prompt short answer",
			text:      "GPIO 17 is HIGH now.",
			stats:     &GenerationStats{PromptTokens: 600},
			want:      0.4,
			reasoning: "output too short for prompt length",
		},
		{
			name:      "fluent generation",
			text:      "GPIO 17 is HIGH now.",
			stats:     &GenerationStats{TokensPerSecond: 12},
			want:      0.55,
			reasoning: "fluent generation",
		},
		{
			name:      "no adjustments",
			text:      "GPIO 17 is HIGH now.",
			want:      0.5,
			reasoning: "standard evaluation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			confidence, reasoning := scorer.Score(tt.text, tt.stats)
			if diff := confidence - tt.want; diff > 0.001 || diff < -0.001 {
				t.Errorf("Score(%q) = %f, want %f", tt.text, confidence, tt.want)
			}
			if !strings.Contains(reasoning, tt.reasoning) {
				t.Errorf("Expected reasoning to contain %q, got %q", tt.reasoning, reasoning)
			}
		})
	}
}

func TestScore_EmptyPhraseSets(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.UncertaintyPhrases = nil
	cfg.CertaintyPhrases = nil
	scorer := NewConfidenceScorer(cfg)

	// Empty phrase sets must disable phrase matching entirely, not match
	// the empty string at every word boundary
	confidence, reasoning := scorer.Score("GPIO 17 is HIGH now.", nil)
	if confidence != 0.5 {
		t.Errorf("Score = %f, want the 0.5 baseline", confidence)
	}
	if reasoning != "standard evaluation" {
		t.Errorf("Reasoning = %q, want standard evaluation", reasoning)
	}
}

func TestScore_MissingStatsDegradeGracefully(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultScorerConfig())

	withStats, _ := scorer.Score("GPIO 17 is HIGH now.", &GenerationStats{})
	withoutStats, _ := scorer.Score("GPIO 17 is HIGH now.", nil)

	if withStats != withoutStats {
		t.Errorf("Zero-valued stats should score like missing stats: %f != %f", withStats, withoutStats)
	}
}

func TestShouldAskClarification(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultScorerConfig())

	if !scorer.ShouldAskClarification(0.39) {
		t.Error("Expected clarification below the 0.4 threshold")
	}
	if scorer.ShouldAskClarification(0.4) {
		t.Error("Expected no clarification at the 0.4 threshold")
	}
}

func TestLabel(t *testing.T) {
	scorer := NewConfidenceScorer(DefaultScorerConfig())

	tests := []struct {
		confidence float64
		want       string
	}{
		{0.85, "very high"},
		{0.8, "very high"},
		{0.7, "high"},
		{0.5, "medium"},
		{0.3, "low"},
		{0.1, "very low"},
	}

	for _, tt := range tests {
		if got := scorer.Label(tt.confidence); got != tt.want {
			t.Errorf("Label(%f) = %q, want %q", tt.confidence, got, tt.want)
		}
	}
}
