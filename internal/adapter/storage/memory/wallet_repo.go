package memory

import (
	"context"
	"fmt"
	"sort"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	s *Store
}

// NewWalletRepo creates a WalletRepo over the store.
func NewWalletRepo(s *Store) *WalletRepo {
	return &WalletRepo{s: s}
}

var _ ports.WalletRepository = (*WalletRepo)(nil)

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	for _, existing := range r.s.data.wallets {
		if existing.UserID == w.UserID {
			return apperror.ErrConflict("Wallet already exists for this user")
		}
	}
	r.s.data.walletSeq++
	now := r.s.now()
	w.ID = r.s.data.walletSeq
	w.CreatedAt = now
	w.UpdatedAt = now
	r.s.data.wallets[w.ID] = *w
	return nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.byUser(userID), nil
}

func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	if err := r.s.checkUnit(tx); err != nil {
		return nil, err
	}
	return r.byUser(userID), nil
}

func (r *WalletRepo) byUser(userID uuid.UUID) *domain.Wallet {
	for _, w := range r.s.data.wallets {
		if w.UserID == userID {
			return &w
		}
	}
	return nil
}

func (r *WalletRepo) LockByIDs(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*domain.Wallet, error) {
	if err := r.s.checkUnit(tx); err != nil {
		return nil, err
	}
	out := make(map[int64]*domain.Wallet, len(ids))
	for _, id := range ids {
		if w, ok := r.s.data.wallets[id]; ok {
			out[id] = &w
		}
	}
	return out, nil
}

func (r *WalletRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, walletID int64, delta decimal.Decimal) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	w, ok := r.s.data.wallets[walletID]
	if !ok || w.Balance.Add(delta).IsNegative() {
		return fmt.Errorf("wallet %d not found or balance would go negative", walletID)
	}
	w.Balance = w.Balance.Add(delta)
	w.UpdatedAt = r.s.now()
	r.s.data.wallets[walletID] = w
	return nil
}

func (r *WalletRepo) UpdatePin(ctx context.Context, tx pgx.Tx, walletID int64, pin domain.PinCredential) error {
	if err := r.s.checkUnit(tx); err != nil {
		return err
	}
	w, ok := r.s.data.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet %d not found", walletID)
	}
	w.Pin = pin
	w.UpdatedAt = r.s.now()
	r.s.data.wallets[walletID] = w
	return nil
}

func (r *WalletRepo) FindDrift(ctx context.Context) ([]ports.BalanceDrift, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sums := make(map[int64]decimal.Decimal, len(r.s.data.wallets))
	for i := range r.s.data.records {
		rec := &r.s.data.records[i]
		if rec.Status != domain.TransactionStatusSuccess {
			continue
		}
		sums[rec.WalletID] = sums[rec.WalletID].Add(rec.SignedAmount())
	}

	var drift []ports.BalanceDrift
	for id, w := range r.s.data.wallets {
		if !w.Balance.Equal(sums[id]) {
			drift = append(drift, ports.BalanceDrift{
				WalletID:  id,
				UserID:    w.UserID,
				Balance:   w.Balance,
				LedgerSum: sums[id],
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].WalletID < drift[j].WalletID })
	return drift, nil
}
