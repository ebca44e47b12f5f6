package models

import "testing"

func TestContextHash_NormalizationIdempotent(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{"case and padding", " Led ON ", "led on"},
		{"trailing whitespace", "Accendi il LED\t", "accendi il led"},
		{"identity", "che temperatura fa?", "che temperatura fa?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ha := ContextHash(tt.a)
			hb := ContextHash(tt.b)
			if ha != hb {
				t.Errorf("ContextHash(%q) = %s, ContextHash(%q) = %s; want equal", tt.a, ha, tt.b, hb)
			}
		})
	}
}

func TestContextHash_Length(t *testing.T) {
	h := ContextHash("turn on the red LED")
	if len(h) != 8 {
		t.Errorf("Expected 8 hex characters, got %d (%q)", len(h), h)
	}
}

func TestContextHash_DistinctInputs(t *testing.T) {
	if ContextHash("turn on the LED") == ContextHash("what is the temperature") {
		t.Error("Expected different hashes for unrelated inputs")
	}
}

func TestMoodForFeedback(t *testing.T) {
	tests := []struct {
		feedback int
		want     string
	}{
		{1, MoodPositive},
		{-1, MoodNegative},
		{0, MoodNeutral},
	}

	for _, tt := range tests {
		if got := MoodForFeedback(tt.feedback); got != tt.want {
			t.Errorf("MoodForFeedback(%d) = %s, want %s", tt.feedback, got, tt.want)
		}
	}
}
