package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evomemory/internal/config"
	"evomemory/internal/database"
	"evomemory/internal/jobs"
	"evomemory/internal/logging"
	"evomemory/internal/services"
)

// scorer holds the live confidence scorer. The config watcher swaps it
// whenever the overrides file changes, so readers always see a coherent
// configuration.
var scorer atomic.Pointer[services.ConfidenceScorer]

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting evomemoryd...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (DB: %s, metrics port: %s)", cfg.DatabasePath, cfg.MetricsPort)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("❌ Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	log.Println("✅ Database initialized")

	services.InitMetrics()

	store := services.NewNeuronStore(db)
	retrieval := services.NewRetrievalService(store, cfg.IndexMaxNeurons)
	miner := services.NewRuleMinerService(db, store, cfg.SnapshotPath)

	// Build the index once at startup so the first retrieval is warm
	if err := retrieval.Reindex(0); err != nil {
		log.Printf("⚠️  Initial index build failed: %v", err)
	}

	// Confidence scorer, with optional YAML overrides and hot reload
	scorer.Store(services.NewConfidenceScorer(loadScorerConfig(cfg.ScorerConfigPath)))
	if cfg.ScorerConfigPath != "" && cfg.ScorerWatchEnabled {
		go watchScorerConfig(cfg.ScorerConfigPath)
	}

	if stats, err := db.GetStats(); err == nil {
		log.Printf("🧠 Memory: %d neurons, %d rules, avg confidence %.2f (%s)",
			stats.Neurons, stats.Rules, stats.AvgConfidence, scorer.Load().Label(stats.AvgConfidence))
	}

	scheduler, err := jobs.NewMaintenanceScheduler(jobs.Options{
		ReindexCron:        cfg.ReindexCron,
		EvolveCron:         cfg.EvolveCron,
		PruneCron:          cfg.PruneCron,
		EvolveMinNeurons:   cfg.EvolveMinNeurons,
		PruneKeepDays:      cfg.PruneKeepDays,
		PruneMinConfidence: cfg.PruneMinConfidence,
	}, retrieval, store, miner)
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("❌ Failed to start scheduler: %v", err)
	}

	// Metrics and health endpoints
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthzHandler(db))

	server := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: mux,
	}
	go func() {
		log.Printf("📡 Metrics: http://localhost:%s/metrics", cfg.MetricsPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Metrics server failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("\n🛑 Shutting down evomemoryd...")

	if err := scheduler.Stop(); err != nil {
		log.Printf("⚠️  Error stopping scheduler: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Error stopping metrics server: %v", err)
	}

	log.Println("✅ Shutdown complete")
}

// healthzHandler reports store liveness plus the current scorer's reading
// of the 7-day average confidence, so config reloads are observable.
func healthzHandler(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetStats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":           "ok",
			"neurons":          stats.Neurons,
			"rules":            stats.Rules,
			"avg_confidence":   stats.AvgConfidence,
			"confidence_label": scorer.Load().Label(stats.AvgConfidence),
		})
	}
}

// loadScorerConfig returns the scorer configuration, falling back to the
// defaults when no overrides file is configured or it cannot be read.
func loadScorerConfig(path string) services.ScorerConfig {
	if path == "" {
		return services.DefaultScorerConfig()
	}

	cfg, err := config.LoadScorerConfig(path)
	if err != nil {
		log.Printf("⚠️  Failed to load scorer config from %s, using defaults: %v", path, err)
		return services.DefaultScorerConfig()
	}

	log.Printf("✅ Scorer config loaded from %s", path)
	return cfg
}

// watchScorerConfig watches the scorer overrides file and hot-swaps the
// scorer on changes.
func watchScorerConfig(filePath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️  Failed to create file watcher: %v", err)
		return
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		log.Printf("⚠️  Failed to get absolute path for %s: %v", filePath, err)
		watcher.Close()
		return
	}

	// Watch the directory containing the file (more reliable than watching the file directly)
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)

	if err := watcher.Add(dir); err != nil {
		log.Printf("⚠️  Failed to watch directory %s: %v", dir, err)
		watcher.Close()
		return
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", filePath)

	// Debounce timer to avoid multiple reloads for rapid file changes
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			// Only react to changes to our specific file
			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}

				debounceTimer = time.AfterFunc(debounceDuration, func() {
					log.Printf("🔄 Detected changes in %s, reloading scorer config...", filePath)
					scorer.Store(services.NewConfidenceScorer(loadScorerConfig(filePath)))
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  File watcher error: %v", err)
		}
	}
}
