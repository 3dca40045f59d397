package service

import (
	"context"
	"fmt"
	"time"

	"learncoins-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// JobServiceImpl implements ports.JobRunner.
type JobServiceImpl struct {
	idempotency ports.IdempotencyRepository
	wallets     ports.WalletRepository
	retention   time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

// NewJobService creates a new JobServiceImpl. Idempotency logs older than
// retention are eligible for purge.
func NewJobService(
	idempotency ports.IdempotencyRepository,
	wallets ports.WalletRepository,
	retention time.Duration,
	log zerolog.Logger,
) *JobServiceImpl {
	return &JobServiceImpl{
		idempotency: idempotency,
		wallets:     wallets,
		retention:   retention,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PurgeIdempotencyLogs deletes stored responses past the retention window.
func (s *JobServiceImpl) PurgeIdempotencyLogs(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.idempotency.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency logs: %w", err)
	}
	s.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("idempotency logs purged")
	return n, nil
}

// ReconcileBalances reports wallets whose balance disagrees with the signed
// sum of their successful records. It never corrects anything.
func (s *JobServiceImpl) ReconcileBalances(ctx context.Context) ([]ports.BalanceDrift, error) {
	drift, err := s.wallets.FindDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("find balance drift: %w", err)
	}
	for _, d := range drift {
		s.log.Warn().
			Int64("wallet_id", d.WalletID).
			Str("user_id", d.UserID.String()).
			Str("balance", d.Balance.String()).
			Str("ledger_sum", d.LedgerSum.String()).
			Msg("wallet balance drifted from ledger")
	}
	s.log.Info().Int("drifted", len(drift)).Msg("balance reconciliation finished")
	return drift, nil
}
