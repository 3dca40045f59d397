package memory

import (
	"context"
	"sort"
	"time"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	s *Store
}

// NewTransactionRepo creates a TransactionRepo over the store.
func NewTransactionRepo(s *Store) *TransactionRepo {
	return &TransactionRepo{s: s}
}

var _ ports.TransactionRepository = (*TransactionRepo)(nil)

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.TransactionRecord) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.s.now()
	}
	r.s.data.records = append(r.s.data.records, *rec)
	return nil
}

// List returns matching records newest first. Records created at the same
// instant come back in reverse insertion order.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.TransactionRecord, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []domain.TransactionRecord
	for i := len(r.s.data.records) - 1; i >= 0; i-- {
		rec := r.s.data.records[i]
		if matches(&rec, params) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	start, end := paginate(len(matched), params.Page, params.PageSize)
	return append([]domain.TransactionRecord{}, matched[start:end]...), int64(len(matched)), nil
}

func matches(rec *domain.TransactionRecord, p ports.TransactionListParams) bool {
	switch {
	case rec.UserID != p.UserID:
		return false
	case p.Kind != nil && rec.Kind != *p.Kind:
		return false
	case p.Status != nil && rec.Status != *p.Status:
		return false
	case p.Source != nil && rec.Source != *p.Source:
		return false
	case p.From != nil && rec.CreatedAt.Before(*p.From):
		return false
	case p.To != nil && rec.CreatedAt.After(*p.To):
		return false
	}
	return true
}

func (r *TransactionRepo) LastCreatedAt(ctx context.Context, tx pgx.Tx, walletID int64, source domain.TransactionSource) (*time.Time, error) {
	if err := r.s.checkUnit(tx); err != nil {
		return nil, err
	}
	var last *time.Time
	for i := range r.s.data.records {
		rec := &r.s.data.records[i]
		if rec.WalletID != walletID || rec.Source != source || rec.Status != domain.TransactionStatusSuccess {
			continue
		}
		if last == nil || rec.CreatedAt.After(*last) {
			at := rec.CreatedAt
			last = &at
		}
	}
	return last, nil
}
