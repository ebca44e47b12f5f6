package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.DatabasePath != "data/neurons.db" {
		t.Errorf("DatabasePath = %q, want data/neurons.db", cfg.DatabasePath)
	}
	if cfg.IndexMaxNeurons != 1000 {
		t.Errorf("IndexMaxNeurons = %d, want 1000", cfg.IndexMaxNeurons)
	}
	if cfg.EvolveMinNeurons != 50 {
		t.Errorf("EvolveMinNeurons = %d, want 50", cfg.EvolveMinNeurons)
	}
	if cfg.PruneKeepDays != 90 {
		t.Errorf("PruneKeepDays = %d, want 90", cfg.PruneKeepDays)
	}
	if cfg.PruneMinConfidence != 0.3 {
		t.Errorf("PruneMinConfidence = %f, want 0.3", cfg.PruneMinConfidence)
	}
	if !cfg.ScorerWatchEnabled {
		t.Error("ScorerWatchEnabled should default to true")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EVOMEMORY_DB_PATH", "/tmp/other.db")
	t.Setenv("INDEX_MAX_NEURONS", "250")
	t.Setenv("PRUNE_MIN_CONFIDENCE", "0.5")
	t.Setenv("PRUNE_KEEP_DAYS", "not-a-number")

	cfg := Load()

	if cfg.DatabasePath != "/tmp/other.db" {
		t.Errorf("DatabasePath = %q, want /tmp/other.db", cfg.DatabasePath)
	}
	if cfg.IndexMaxNeurons != 250 {
		t.Errorf("IndexMaxNeurons = %d, want 250", cfg.IndexMaxNeurons)
	}
	if cfg.PruneMinConfidence != 0.5 {
		t.Errorf("PruneMinConfidence = %f, want 0.5", cfg.PruneMinConfidence)
	}
	// Unparseable values fall back to the default
	if cfg.PruneKeepDays != 90 {
		t.Errorf("PruneKeepDays = %d, want default 90", cfg.PruneKeepDays)
	}
}

func TestLoadScorerConfig_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scorer.yaml")
	content := "baseline: 0.6\nuncertainty_penalty: 0.2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := LoadScorerConfig(path)
	if err != nil {
		t.Fatalf("LoadScorerConfig failed: %v", err)
	}

	if cfg.Baseline != 0.6 {
		t.Errorf("Baseline = %f, want 0.6", cfg.Baseline)
	}
	if cfg.UncertaintyPenalty != 0.2 {
		t.Errorf("UncertaintyPenalty = %f, want 0.2", cfg.UncertaintyPenalty)
	}
	// Untouched fields keep defaults
	if cfg.ShortOutputChars == 0 {
		t.Error("ShortOutputChars should keep its default")
	}
	if len(cfg.UncertaintyPhrases) == 0 {
		t.Error("UncertaintyPhrases should keep their defaults")
	}
}

func TestLoadScorerConfig_MissingFile(t *testing.T) {
	if _, err := LoadScorerConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}
