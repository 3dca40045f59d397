package ports

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

import (
	"context"
	"time"

	"learncoins-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TxFunc is the body of an atomic unit. Every repository call that takes
// the tx participates in the same commit or rollback.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// Transactor runs work inside one atomic unit: commit when fn returns nil,
// roll back on any error.
type Transactor interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside atomic units with row locks held until commit.
type WalletRepository interface {
	// Create inserts a wallet and fills ID and timestamps. A second wallet for the
	// same user fails with a conflict AppError.
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	// LockByIDs locks the given wallets in ascending id order. Missing ids are absent from the map.
	LockByIDs(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*domain.Wallet, error)
	AdjustBalance(ctx context.Context, tx pgx.Tx, walletID int64, delta decimal.Decimal) error
	UpdatePin(ctx context.Context, tx pgx.Tx, walletID int64, pin domain.PinCredential) error
	// FindDrift returns wallets whose balance differs from the signed sum of their successful records.
	FindDrift(ctx context.Context) ([]BalanceDrift, error)
}

// BalanceDrift describes a wallet whose stored balance disagrees with its ledger.
type BalanceDrift struct {
	WalletID  int64
	UserID    uuid.UUID
	Balance   decimal.Decimal
	LedgerSum decimal.Decimal
}

// TransactionRepository defines persistence operations for ledger records. Records are append-only.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, record *domain.TransactionRecord) error
	List(ctx context.Context, params TransactionListParams) ([]domain.TransactionRecord, int64, error)
	// LastCreatedAt returns the time of the newest record of the given source for a wallet, or nil.
	LastCreatedAt(ctx context.Context, tx pgx.Tx, walletID int64, source domain.TransactionSource) (*time.Time, error)
}

// TransactionListParams holds filter + pagination for listing ledger records.
type TransactionListParams struct {
	UserID   uuid.UUID
	Kind     *domain.TransactionKind
	Status   *domain.TransactionStatus
	Source   *domain.TransactionSource
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// ProductRepository defines persistence operations for marketplace products.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context, params ProductListParams) ([]domain.Product, int64, error)
	// LockByIDs locks the given products in ascending id order.
	LockByIDs(ctx context.Context, tx pgx.Tx, ids ...int64) (map[int64]*domain.Product, error)
	DecrementStock(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error
}

// ProductListParams filters the product catalogue. Query matches name or description, case-insensitive.
type ProductListParams struct {
	Query    string
	Page     int
	PageSize int
}

// CartRepository defines persistence operations for cart lines.
type CartRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartItem, error)
	// ListByUserForUpdate locks the user's cart rows for checkout.
	ListByUserForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) ([]domain.CartItem, error)
	GetByUserAndProduct(ctx context.Context, userID uuid.UUID, productID int64) (*domain.CartItem, error)
	// Upsert adds item.Quantity to an existing line for the same product or inserts a new one.
	// On return item holds the stored ID and cumulative quantity.
	Upsert(ctx context.Context, item *domain.CartItem) error
	// Delete removes the line only if it belongs to userID. Reports whether a row was removed.
	Delete(ctx context.Context, userID uuid.UUID, itemID int64) (bool, error)
	DeleteByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	// Create inserts the order with its items and fills every ID and CreatedAt.
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	ListByUser(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error)
}

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRepository is the write-only audit sink.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}
