package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, wallet_id, kind, amount::text, status, source, note,
		counterpart_wallet_id, order_id, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create appends a ledger record within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.TransactionRecord) error {
	query := `INSERT INTO transactions (id, user_id, wallet_id, kind, amount, status, source, note,
		counterpart_wallet_id, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.UserID, t.WalletID, string(t.Kind), t.Amount.String(),
		string(t.Status), string(t.Source), t.Note,
		t.CounterpartWalletID, t.OrderID, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// List fetches a user's records with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.TransactionRecord, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, params.UserID)
	argIdx++

	if params.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, string(*params.Kind))
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*params.Status))
		argIdx++
	}
	if params.Source != nil {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argIdx))
		args = append(args, string(*params.Source))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	var total int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s
		ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, pageOffset(params.Page, params.PageSize))

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	records := make([]domain.TransactionRecord, 0, params.PageSize)
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return records, total, nil
}

// LastCreatedAt returns when the wallet last received a record from source, or nil if never.
func (r *TransactionRepo) LastCreatedAt(ctx context.Context, tx pgx.Tx, walletID int64, source domain.TransactionSource) (*time.Time, error) {
	query := `SELECT MAX(created_at) FROM transactions WHERE wallet_id = $1 AND source = $2 AND status = 'success'`

	var last *time.Time
	if err := tx.QueryRow(ctx, query, walletID, string(source)).Scan(&last); err != nil {
		return nil, fmt.Errorf("last transaction time: %w", err)
	}
	return last, nil
}

func scanTransaction(row pgx.Row) (*domain.TransactionRecord, error) {
	var (
		t                    domain.TransactionRecord
		kind, status, source string
		amount               string
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.WalletID, &kind, &amount, &status, &source, &t.Note,
		&t.CounterpartWalletID, &t.OrderID, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = parseNumeric("amount", amount); err != nil {
		return nil, err
	}
	t.Kind = domain.TransactionKind(kind)
	t.Status = domain.TransactionStatus(status)
	t.Source = domain.TransactionSource(source)
	return &t, nil
}
