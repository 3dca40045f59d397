package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWallet(t *testing.T, s *Store, balance int64) *domain.Wallet {
	t.Helper()
	w := &domain.Wallet{UserID: uuid.New(), Balance: decimal.NewFromInt(balance), Pin: domain.PlainPin("123456")}
	err := NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return NewWalletRepo(s).Create(ctx, tx, w)
	})
	require.NoError(t, err)
	return w
}

func TestTransactor_RollbackRestoresState(t *testing.T) {
	s := NewStore()
	wallets := NewWalletRepo(s)
	records := NewTransactionRepo(s)
	w := newWallet(t, s, 100)

	boom := errors.New("boom")
	err := NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, wallets.AdjustBalance(ctx, tx, w.ID, decimal.NewFromInt(-40)))
		require.NoError(t, records.Create(ctx, tx, &domain.TransactionRecord{
			UserID: w.UserID, WalletID: w.ID, Kind: domain.TransactionKindDebit,
			Amount: decimal.NewFromInt(40), Status: domain.TransactionStatusSuccess,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := wallets.GetByUserID(context.Background(), w.UserID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(100)))

	list, total, err := records.List(context.Background(), ports.TransactionListParams{UserID: w.UserID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestTransactor_CommitKeepsState(t *testing.T) {
	s := NewStore()
	wallets := NewWalletRepo(s)
	w := newWallet(t, s, 100)

	err := NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return wallets.AdjustBalance(ctx, tx, w.ID, decimal.RequireFromString("-0.01"))
	})
	require.NoError(t, err)

	got, _ := wallets.GetByUserID(context.Background(), w.UserID)
	assert.Equal(t, "99.99", got.Balance.StringFixed(2))
}

func TestTransactor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewTransactor(NewStore()).WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestTxMethods_RejectForeignTx(t *testing.T) {
	s := NewStore()
	var leaked pgx.Tx
	require.NoError(t, NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		leaked = tx
		return nil
	}))

	err := NewWalletRepo(s).AdjustBalance(context.Background(), leaked, 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errNoUnit)

	err = NewWalletRepo(s).AdjustBalance(context.Background(), nil, 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errNoUnit)
}

func TestWalletRepo_CreateDuplicateUser(t *testing.T) {
	s := NewStore()
	w := newWallet(t, s, 0)

	err := NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return NewWalletRepo(s).Create(ctx, tx, &domain.Wallet{UserID: w.UserID})
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestWalletRepo_AdjustBalanceNeverNegative(t *testing.T) {
	s := NewStore()
	w := newWallet(t, s, 10)

	err := NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		return NewWalletRepo(s).AdjustBalance(ctx, tx, w.ID, decimal.NewFromInt(-11))
	})
	assert.Error(t, err)

	got, _ := NewWalletRepo(s).GetByUserID(context.Background(), w.UserID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(10)))
}

func TestWalletRepo_LockByIDs_ReturnsCopies(t *testing.T) {
	s := NewStore()
	a := newWallet(t, s, 5)
	b := newWallet(t, s, 7)

	err := NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		locked, err := NewWalletRepo(s).LockByIDs(ctx, tx, b.ID, a.ID, 999)
		require.NoError(t, err)
		assert.Len(t, locked, 2)
		locked[a.ID].Balance = decimal.NewFromInt(1000)
		return nil
	})
	require.NoError(t, err)

	got, _ := NewWalletRepo(s).GetByUserID(context.Background(), a.UserID)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(5)))
}

func TestWalletRepo_FindDrift(t *testing.T) {
	s := NewStore()
	wallets := NewWalletRepo(s)
	records := NewTransactionRepo(s)

	// balanced: opening credit matches balance
	ok := newWallet(t, s, 0)
	drifted := newWallet(t, s, 0)
	require.NoError(t, NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		require.NoError(t, wallets.AdjustBalance(ctx, tx, ok.ID, decimal.NewFromInt(500)))
		require.NoError(t, records.Create(ctx, tx, &domain.TransactionRecord{
			UserID: ok.UserID, WalletID: ok.ID, Kind: domain.TransactionKindCredit,
			Amount: decimal.NewFromInt(500), Status: domain.TransactionStatusSuccess,
		}))
		return wallets.AdjustBalance(ctx, tx, drifted.ID, decimal.NewFromInt(3))
	}))

	drift, err := wallets.FindDrift(context.Background())
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, drifted.ID, drift[0].WalletID)
	assert.True(t, drift[0].LedgerSum.IsZero())
	assert.True(t, drift[0].Balance.Equal(decimal.NewFromInt(3)))
}

func TestTransactionRepo_ListFiltersAndOrder(t *testing.T) {
	s := NewStore()
	records := NewTransactionRepo(s)
	w := newWallet(t, s, 0)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		for i, kind := range []domain.TransactionKind{domain.TransactionKindCredit, domain.TransactionKindDebit, domain.TransactionKindCredit} {
			err := records.Create(ctx, tx, &domain.TransactionRecord{
				UserID: w.UserID, WalletID: w.ID, Kind: kind, Amount: decimal.NewFromInt(int64(i + 1)),
				Status: domain.TransactionStatusSuccess, Source: domain.TransactionSourceTransfer,
				CreatedAt: base.Add(time.Duration(i) * time.Hour),
			})
			require.NoError(t, err)
		}
		return nil
	}))

	list, total, err := records.List(context.Background(), ports.TransactionListParams{UserID: w.UserID, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, list, 2)
	assert.True(t, list[0].Amount.Equal(decimal.NewFromInt(3)), "newest first")

	credit := domain.TransactionKindCredit
	to := base.Add(time.Hour)
	list, total, err = records.List(context.Background(), ports.TransactionListParams{
		UserID: w.UserID, Kind: &credit, To: &to, Page: 1, PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.True(t, list[0].Amount.Equal(decimal.NewFromInt(1)))

	list, _, err = records.List(context.Background(), ports.TransactionListParams{UserID: w.UserID, Page: 5, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTransactionRepo_LastCreatedAt(t *testing.T) {
	s := NewStore()
	records := NewTransactionRepo(s)
	w := newWallet(t, s, 0)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, NewTransactor(s).WithinTx(context.Background(), func(ctx context.Context, tx pgx.Tx) error {
		last, err := records.LastCreatedAt(ctx, tx, w.ID, domain.TransactionSourceDailyReward)
		require.NoError(t, err)
		assert.Nil(t, last)

		require.NoError(t, records.Create(ctx, tx, &domain.TransactionRecord{
			UserID: w.UserID, WalletID: w.ID, Kind: domain.TransactionKindCredit, Amount: decimal.NewFromInt(100),
			Status: domain.TransactionStatusSuccess, Source: domain.TransactionSourceDailyReward, CreatedAt: at,
		}))

		last, err = records.LastCreatedAt(ctx, tx, w.ID, domain.TransactionSourceDailyReward)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.True(t, last.Equal(at))
		return nil
	}))
}
