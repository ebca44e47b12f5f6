package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// Stats holds aggregate counts over the stored data
type Stats struct {
	Neurons       int64   `json:"neurons"`
	MetaNeurons   int64   `json:"meta_neurons"`
	Rules         int64   `json:"rules"`          // enabled only
	Skills        int64   `json:"skills"`         // enabled only
	AvgConfidence float64 `json:"avg_confidence"` // over the last 7 days
}

// New opens (or creates) the sqlite database at the given path.
// Parent directories are created as needed.
func New(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Serialize writes through a single connection; sqlite allows one writer
	// at a time and this avoids SQLITE_BUSY churn under concurrent callers.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return &DB{db}, nil
}

// Initialize creates all required tables and indexes
func (db *DB) Initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS neurons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			input_text TEXT NOT NULL,
			idea TEXT,
			output_text TEXT NOT NULL,
			mood TEXT DEFAULT 'neutral',
			confidence REAL DEFAULT 0.5,
			user_feedback INTEGER DEFAULT 0,
			context_hash TEXT,
			skill_id TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_accessed DATETIME DEFAULT CURRENT_TIMESTAMP,
			access_count INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS meta_neurons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern TEXT NOT NULL,
			template TEXT NOT NULL,
			occurrences INTEGER DEFAULT 1,
			avg_confidence REAL DEFAULT 0.5,
			skill_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_text TEXT NOT NULL,
			trigger_pattern TEXT,
			confidence_threshold REAL DEFAULT 0.5,
			priority INTEGER DEFAULT 1,
			enabled INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			applied_count INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS skills (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			neuron_count INTEGER DEFAULT 0,
			avg_confidence REAL DEFAULT 0.5,
			enabled INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_neurons_timestamp ON neurons(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_neurons_confidence ON neurons(confidence DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_neurons_context ON neurons(context_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_neurons_skill ON neurons(skill_id)`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	log.Println("✅ EvoMemory database initialized")
	return nil
}

// GetStats returns aggregate counts over neurons, meta-neurons, rules and skills
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if err := db.QueryRow("SELECT COUNT(*) FROM neurons").Scan(&stats.Neurons); err != nil {
		return nil, fmt.Errorf("failed to count neurons: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM meta_neurons").Scan(&stats.MetaNeurons); err != nil {
		return nil, fmt.Errorf("failed to count meta_neurons: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM rules WHERE enabled = 1").Scan(&stats.Rules); err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM skills WHERE enabled = 1").Scan(&stats.Skills); err != nil {
		return nil, fmt.Errorf("failed to count skills: %w", err)
	}

	var avg sql.NullFloat64
	weekAgo := time.Now().UTC().AddDate(0, 0, -7)
	if err := db.QueryRow("SELECT AVG(confidence) FROM neurons WHERE timestamp > ?", weekAgo).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to compute average confidence: %w", err)
	}
	if avg.Valid {
		stats.AvgConfidence = avg.Float64
	}

	return stats, nil
}
