package cron

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tunnelbot/internal/config"
)

// Scheduler drives the janitor sweeps on their configured cadence.
type Scheduler struct {
	cron    *cron.Cron
	cfg     *config.Store
	janitor *Janitor
	logger  *zap.Logger
}

// New creates a new sweep scheduler.
func New(cfg *config.Store, janitor *Janitor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		janitor: janitor,
		logger:  logger,
	}
}

// Start registers and starts the sweeps. Cadence comes from the config
// snapshot taken at startup; the sweeps themselves re-read config per run.
func (s *Scheduler) Start() error {
	cfg := s.cfg.Snapshot()

	if _, err := s.cron.AddFunc(cfg.Janitor.PurgeSpec, func() {
		s.logger.Debug("Running: expired account purge")
		s.janitor.RunPurge()
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(cfg.Janitor.BackfillSpec, func() {
		s.logger.Debug("Running: domain back-fill")
		s.janitor.RunBackfill()
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Janitor scheduler started",
		zap.String("purge_spec", cfg.Janitor.PurgeSpec),
		zap.String("backfill_spec", cfg.Janitor.BackfillSpec))
	return nil
}

// Stop gracefully stops the scheduler. The returned context is done once any
// in-flight sweep has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
