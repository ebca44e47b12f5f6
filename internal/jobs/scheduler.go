package jobs

import (
	"fmt"
	"log"
	"sync"
	"time"

	"evomemory/internal/logging"
	"evomemory/internal/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Options carries the schedules and policies for the maintenance jobs.
// Cron expressions use the standard five-field form.
type Options struct {
	ReindexCron string
	EvolveCron  string
	PruneCron   string

	EvolveMinNeurons   int
	PruneKeepDays      int
	PruneMinConfidence float64
}

// MaintenanceScheduler runs the periodic memory upkeep: index rebuilds,
// rule evolution passes, and pruning of stale low-value neurons.
type MaintenanceScheduler struct {
	scheduler  gocron.Scheduler
	retrieval  *services.RetrievalService
	store      *services.NeuronStore
	miner      *services.RuleMinerService
	opts       Options
	instanceID string
	mu         sync.Mutex
	jobs       map[string]gocron.Job
}

// NewMaintenanceScheduler creates the scheduler and validates every
// configured cron expression up front.
func NewMaintenanceScheduler(
	opts Options,
	retrieval *services.RetrievalService,
	store *services.NeuronStore,
	miner *services.RuleMinerService,
) (*MaintenanceScheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for name, expr := range map[string]string{
		"reindex": opts.ReindexCron,
		"evolve":  opts.EvolveCron,
		"prune":   opts.PruneCron,
	} {
		if _, err := parser.Parse(expr); err != nil {
			return nil, fmt.Errorf("invalid %s cron expression %q: %w", name, expr, err)
		}
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &MaintenanceScheduler{
		scheduler:  scheduler,
		retrieval:  retrieval,
		store:      store,
		miner:      miner,
		opts:       opts,
		instanceID: uuid.New().String(),
		jobs:       make(map[string]gocron.Job),
	}, nil
}

// Start registers the maintenance jobs and begins scheduling
func (s *MaintenanceScheduler) Start() error {
	log.Println("⏰ Starting maintenance scheduler...")

	if err := s.registerJob("reindex", s.opts.ReindexCron, s.runReindex); err != nil {
		return err
	}
	if err := s.registerJob("evolve", s.opts.EvolveCron, s.runEvolve); err != nil {
		return err
	}
	if err := s.registerJob("prune", s.opts.PruneCron, s.runPrune); err != nil {
		return err
	}

	s.scheduler.Start()
	log.Printf("✅ Maintenance scheduler started (%d jobs)", len(s.jobs))

	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *MaintenanceScheduler) Stop() error {
	log.Println("⏹️ Stopping maintenance scheduler...")
	return s.scheduler.Shutdown()
}

// RunNow triggers a registered job immediately, outside its schedule
func (s *MaintenanceScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("unknown job %q", name)
	}
	return job.RunNow()
}

// NextRuns reports the next scheduled run time of each job
func (s *MaintenanceScheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.jobs))
	for name, job := range s.jobs {
		t, err := job.NextRun()
		if err != nil {
			continue
		}
		next[name] = t
	}
	return next
}

func (s *MaintenanceScheduler) registerJob(name, cronExpr string, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s job: %w", name, err)
	}

	s.jobs[name] = job
	log.Printf("📅 Registered %s job (cron: %s)", name, cronExpr)

	return nil
}

func (s *MaintenanceScheduler) runReindex() {
	logger := logging.WithJob("reindex", s.instanceID)
	start := time.Now()

	if err := s.retrieval.Reindex(0); err != nil {
		logger.Error("index rebuild failed", "error", err)
		return
	}

	logger.Info("index rebuilt", "duration", time.Since(start).String())
}

func (s *MaintenanceScheduler) runEvolve() {
	logger := logging.WithJob("evolve", s.instanceID)

	result, err := s.miner.AutoEvolve(s.opts.EvolveMinNeurons)
	if err != nil {
		logger.Error("evolution pass failed", "error", err)
		return
	}

	logger.Info("evolution pass completed",
		"neurons_analyzed", result.NeuronsAnalyzed,
		"rules_generated", result.RulesGenerated,
		"rules_saved", result.RulesSaved,
	)
}

func (s *MaintenanceScheduler) runPrune() {
	logger := logging.WithJob("prune", s.instanceID)

	removed, err := s.store.Prune(s.opts.PruneKeepDays, s.opts.PruneMinConfidence)
	if err != nil {
		logger.Error("prune failed", "error", err)
		return
	}

	logger.Info("prune completed",
		"removed", removed,
		"keep_days", s.opts.PruneKeepDays,
		"min_confidence", s.opts.PruneMinConfidence,
	)
}
