package config

import (
	"fmt"
	"os"
	"strconv"

	"evomemory/internal/services"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	DatabasePath string
	MetricsPort  string

	// Retrieval index
	IndexMaxNeurons int

	// Confidence scorer; when ScorerConfigPath is set its YAML overrides
	// the built-in defaults and is re-read on file change unless watching
	// is disabled
	ScorerConfigPath   string
	ScorerWatchEnabled bool

	// Rule mining
	SnapshotPath     string
	EvolveMinNeurons int

	// Maintenance schedules (cron expressions)
	ReindexCron string
	EvolveCron  string
	PruneCron   string

	// Pruning policy
	PruneKeepDays      int
	PruneMinConfidence float64
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		DatabasePath: getEnv("EVOMEMORY_DB_PATH", "data/neurons.db"),
		MetricsPort:  getEnv("METRICS_PORT", "9091"),

		IndexMaxNeurons: getIntEnv("INDEX_MAX_NEURONS", services.DefaultIndexSize),

		ScorerConfigPath:   getEnv("SCORER_CONFIG_PATH", ""),
		ScorerWatchEnabled: getBoolEnv("SCORER_WATCH_ENABLED", true),

		SnapshotPath:     getEnv("SNAPSHOT_PATH", "data/instinct.json"),
		EvolveMinNeurons: getIntEnv("EVOLVE_MIN_NEURONS", 50),

		ReindexCron: getEnv("REINDEX_CRON", "*/5 * * * *"),
		EvolveCron:  getEnv("EVOLVE_CRON", "0 * * * *"),
		PruneCron:   getEnv("PRUNE_CRON", "0 4 * * *"),

		PruneKeepDays:      getIntEnv("PRUNE_KEEP_DAYS", 90),
		PruneMinConfidence: getFloatEnv("PRUNE_MIN_CONFIDENCE", 0.3),
	}
}

// LoadScorerConfig reads scorer overrides from a YAML file. Fields absent
// from the file keep their default values.
func LoadScorerConfig(filePath string) (services.ScorerConfig, error) {
	cfg := services.DefaultScorerConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read scorer config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse scorer config YAML: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
