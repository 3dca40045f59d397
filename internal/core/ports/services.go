package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"learncoins-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HashService handles PIN hashing (Argon2id, legacy bcrypt verification).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, encoded string) (bool, error)
}

// PinVerifier authenticates a wallet operation against the stored credential.
type PinVerifier interface {
	// Verify returns nil on match. On success with a legacy credential the
	// returned PinCheck carries the replacement hashed credential.
	Verify(ctx context.Context, wallet *domain.Wallet, pin string) (PinCheck, error)
}

// PinCheck is the outcome of a successful verification.
type PinCheck struct {
	Upgrade *domain.PinCredential
}

// PinAttemptLimiter counts PIN verifications per wallet. An attempt is
// reserved before the PIN is compared and the counter is cleared on success,
// so concurrent guesses cannot exceed the limit.
type PinAttemptLimiter interface {
	// Reserve counts one attempt and reports whether it is within the limit.
	Reserve(ctx context.Context, walletID int64) (attempt int64, allowed bool, err error)
	Reset(ctx context.Context, walletID int64) error
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Role   domain.Role
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ClaimGuard reserves a key for a period so that only one caller proceeds.
type ClaimGuard interface {
	// Acquire returns true if the key was free and is now held for ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RateLimitStore counts requests in fixed windows.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// EventPublisher announces committed ledger operations.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.LedgerEvent) error
}

// --- Service Ports (Business Logic) ---

// LedgerService is the only code path that mutates wallet balances.
type LedgerService interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	Checkout(ctx context.Context, req CheckoutRequest) (*domain.Order, error)
	// OpenWallet creates a wallet holding the configured opening balance.
	OpenWallet(ctx context.Context, userID uuid.UUID, pin domain.PinCredential) (*domain.Wallet, error)
	ClaimDailyReward(ctx context.Context, userID uuid.UUID) (*RewardResult, error)
}

// TransferRequest holds validated input for a coin transfer.
type TransferRequest struct {
	SenderUserID      uuid.UUID
	RecipientWalletID int64
	Amount            decimal.Decimal
	Note              string
	Pin               string
	IdempotencyKey    string // optional
}

// TransferResult holds the two records a transfer produces.
type TransferResult struct {
	Debit  *domain.TransactionRecord `json:"debit_record"`
	Credit *domain.TransactionRecord `json:"credit_record"`
}

// CheckoutRequest holds validated input for a cart checkout.
type CheckoutRequest struct {
	UserID         uuid.UUID
	Pin            string
	IdempotencyKey string // optional
}

// RewardResult holds the outcome of a daily reward claim.
type RewardResult struct {
	Wallet    *domain.Wallet
	Record    *domain.TransactionRecord
	NextClaim time.Time
}

// WalletService covers the wallet owner's PIN lifecycle and read models.
type WalletService interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// SetupPin sets the first PIN; created reports whether the wallet was opened by this call.
	SetupPin(ctx context.Context, userID uuid.UUID, pin string) (wallet *domain.Wallet, created bool, err error)
	ChangePin(ctx context.Context, userID uuid.UUID, oldPin, newPin string) error
	VerifyPin(ctx context.Context, userID uuid.UUID, pin string) error
	History(ctx context.Context, params TransactionListParams) ([]domain.TransactionRecord, int64, error)
}

// MarketService covers the product catalogue, cart and order read model.
type MarketService interface {
	ListProducts(ctx context.Context, params ProductListParams) ([]domain.Product, int64, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, actor domain.Principal, req CreateProductRequest) (*domain.Product, error)
	GetCart(ctx context.Context, userID uuid.UUID) ([]domain.CartItem, error)
	AddToCart(ctx context.Context, userID uuid.UUID, productID int64, quantity int) (*domain.CartItem, error)
	RemoveFromCart(ctx context.Context, userID uuid.UUID, itemID int64) error
	ListOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error)
}

// CreateProductRequest holds validated input for a new product.
type CreateProductRequest struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	ImageURL    *string
	Category    string
}

// AuditService records audit events asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// JobRunner owns scheduled maintenance work.
type JobRunner interface {
	PurgeIdempotencyLogs(ctx context.Context) (int64, error)
	ReconcileBalances(ctx context.Context) ([]BalanceDrift, error)
}
