package memory

import (
	"context"
	"time"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	s *Store
}

// NewIdempotencyRepo creates an IdempotencyRepo over the store.
func NewIdempotencyRepo(s *Store) *IdempotencyRepo {
	return &IdempotencyRepo{s: s}
}

var _ ports.IdempotencyRepository = (*IdempotencyRepo)(nil)

func (r *IdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	if _, exists := r.s.data.idempotency[log.Key]; exists {
		return apperror.ErrDuplicateRequest(nil)
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.s.now()
	}
	r.s.data.idempotency[log.Key] = *log
	return nil
}

func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	log, ok := r.s.data.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &log, nil
}

func (r *IdempotencyRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for key, log := range r.s.data.idempotency {
		if log.CreatedAt.Before(cutoff) {
			delete(r.s.data.idempotency, key)
			n++
		}
	}
	return n, nil
}
