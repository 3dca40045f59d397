package postgres

import (
	"context"
	"errors"
	"fmt"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const walletSelect = `SELECT id, user_id, balance::text, pin, pin_kind, created_at, updated_at FROM wallets`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new wallet and fills its generated columns.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (user_id, balance, pin, pin_kind)
		VALUES ($1, $2::numeric, $3, $4)
		RETURNING id, created_at, updated_at`

	err := tx.QueryRow(ctx, query, w.UserID, w.Balance.String(), w.Pin.Value, string(w.Pin.Kind)).
		Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ErrConflict("Wallet already exists for this user")
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet by owner (non-locking read).
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(r.pool.QueryRow(ctx, walletSelect+` WHERE user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet by user: %w", err)
	}
	return w, nil
}

// GetByUserIDForUpdate fetches a wallet by owner with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(tx.QueryRow(ctx, walletSelect+` WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by user: %w", err)
	}
	return w, nil
}

// LockByIDs locks wallets in ascending id order so that concurrent transfers
// between the same pair cannot deadlock.
func (r *WalletRepo) LockByIDs(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*domain.Wallet, error) {
	rows, err := tx.Query(ctx, walletSelect+` WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sortedUnique(ids))
	if err != nil {
		return nil, fmt.Errorf("lock wallets: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]*domain.Wallet, len(ids))
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan locked wallet: %w", err)
		}
		out[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locked wallets: %w", err)
	}
	return out, nil
}

// AdjustBalance applies delta to the wallet balance. The update refuses to take
// the balance below zero, as does the table's CHECK constraint.
func (r *WalletRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, walletID int64, delta decimal.Decimal) error {
	query := `UPDATE wallets SET balance = balance + $1::numeric, updated_at = NOW()
		WHERE id = $2 AND balance + $1::numeric >= 0`

	tag, err := tx.Exec(ctx, query, delta.String(), walletID)
	if err != nil {
		return fmt.Errorf("adjust wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet %d not found or balance would go negative", walletID)
	}
	return nil
}

// UpdatePin replaces the stored PIN credential.
func (r *WalletRepo) UpdatePin(ctx context.Context, tx pgx.Tx, walletID int64, pin domain.PinCredential) error {
	query := `UPDATE wallets SET pin = $1, pin_kind = $2, updated_at = NOW() WHERE id = $3`

	tag, err := tx.Exec(ctx, query, pin.Value, string(pin.Kind), walletID)
	if err != nil {
		return fmt.Errorf("update wallet pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %d", walletID)
	}
	return nil
}

// FindDrift compares each balance against the signed sum of its successful records.
func (r *WalletRepo) FindDrift(ctx context.Context) ([]ports.BalanceDrift, error) {
	query := `SELECT w.id, w.user_id, w.balance::text, l.total::text
		FROM wallets w
		CROSS JOIN LATERAL (
			SELECT COALESCE(SUM(CASE WHEN t.kind = 'credit' THEN t.amount ELSE -t.amount END), 0) AS total
			FROM transactions t
			WHERE t.wallet_id = w.id AND t.status = 'success'
		) l
		WHERE w.balance <> l.total
		ORDER BY w.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find balance drift: %w", err)
	}
	defer rows.Close()

	var drifts []ports.BalanceDrift
	for rows.Next() {
		var (
			d                    ports.BalanceDrift
			balance, ledgerTotal string
		)
		if err := rows.Scan(&d.WalletID, &d.UserID, &balance, &ledgerTotal); err != nil {
			return nil, fmt.Errorf("scan drift row: %w", err)
		}
		if d.Balance, err = parseNumeric("balance", balance); err != nil {
			return nil, err
		}
		if d.LedgerSum, err = parseNumeric("ledger sum", ledgerTotal); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drift rows: %w", err)
	}
	return drifts, nil
}

// scanWallet returns nil, nil when the row does not exist.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w       domain.Wallet
		balance string
		pinKind string
	)
	err := row.Scan(&w.ID, &w.UserID, &balance, &w.Pin.Value, &pinKind, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if w.Balance, err = parseNumeric("balance", balance); err != nil {
		return nil, err
	}
	w.Pin.Kind = domain.PinKind(pinKind)
	return &w, nil
}
