package database

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "neurons.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestNew(t *testing.T) {
	db := newTestDB(t)

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}
}

func TestNew_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "evomemory", "neurons.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("Failed to create database in nested directory: %v", err)
	}
	defer db.Close()
}

func TestInitialize(t *testing.T) {
	db := newTestDB(t)

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	tables := []string{"neurons", "meta_neurons", "rules", "skills"}
	for _, table := range tables {
		var name string
		query := "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
		if err := db.QueryRow(query, table).Scan(&name); err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}

	indexes := []string{
		"idx_neurons_timestamp",
		"idx_neurons_confidence",
		"idx_neurons_context",
		"idx_neurons_skill",
	}
	for _, index := range indexes {
		var name string
		query := "SELECT name FROM sqlite_master WHERE type='index' AND name=?"
		if err := db.QueryRow(query, index).Scan(&name); err != nil {
			t.Errorf("Index %s was not created: %v", index, err)
		}
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.Initialize(); err != nil {
		t.Fatalf("First initialize failed: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("Second initialize failed: %v", err)
	}
}

func TestGetStats_Empty(t *testing.T) {
	db := newTestDB(t)

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}

	if stats.Neurons != 0 {
		t.Errorf("Expected 0 neurons, got %d", stats.Neurons)
	}
	if stats.Rules != 0 {
		t.Errorf("Expected 0 rules, got %d", stats.Rules)
	}
	if stats.AvgConfidence != 0 {
		t.Errorf("Expected 0 average confidence on empty store, got %f", stats.AvgConfidence)
	}
}
