// Package jobs runs periodic ledger maintenance on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"time"

	"learncoins-ledger/config"
	"learncoins-ledger/internal/core/ports"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// jobTimeout bounds a single run so a stuck query cannot pile up runs.
const jobTimeout = 5 * time.Minute

// Scheduler owns the cron runner and the maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	runner ports.JobRunner
	log    zerolog.Logger
}

// NewScheduler registers the purge and reconcile jobs. Overlapping runs of
// the same job are skipped.
func NewScheduler(cfg config.JobsConfig, runner ports.JobRunner, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		runner: runner,
		log:    log.With().Str("component", "jobs").Logger(),
	}

	if _, err := s.cron.AddFunc(cfg.PurgeSchedule, s.purge); err != nil {
		return nil, fmt.Errorf("jobs.purge_schedule %q: %w", cfg.PurgeSchedule, err)
	}
	if _, err := s.cron.AddFunc(cfg.ReconcileSchedule, s.reconcile); err != nil {
		return nil, fmt.Errorf("jobs.reconcile_schedule %q: %w", cfg.ReconcileSchedule, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop prevents new runs and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

func (s *Scheduler) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.runner.PurgeIdempotencyLogs(ctx); err != nil {
		s.log.Error().Err(err).Msg("idempotency purge failed")
	}
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.runner.ReconcileBalances(ctx); err != nil {
		s.log.Error().Err(err).Msg("balance reconciliation failed")
	}
}
