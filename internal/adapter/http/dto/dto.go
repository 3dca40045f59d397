package dto

import (
	"time"

	"learncoins-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// TransferRequest is the request body for a coin transfer.
type TransferRequest struct {
	RecipientWalletID int64           `json:"recipientWalletId" binding:"required,gt=0"`
	Amount            decimal.Decimal `json:"amount" binding:"coin_amount"`
	Pin               string          `json:"pin" binding:"required,pin"`
	Note              string          `json:"note" binding:"max=255"`
}

// TransferResponse carries both sides of a transfer.
type TransferResponse struct {
	DebitRecord  *domain.TransactionRecord `json:"debitRecord"`
	CreditRecord *domain.TransactionRecord `json:"creditRecord"`
}

// PinRequest is the body for checkout, setup and verify: a PIN and nothing else.
type PinRequest struct {
	Pin string `json:"pin" binding:"required,pin"`
}

// ChangePinRequest is the request body for PUT /wallet/pin.
type ChangePinRequest struct {
	OldPin string `json:"oldPin" binding:"required,pin"`
	NewPin string `json:"newPin" binding:"required,pin,nefield=OldPin"`
}

// WalletResponse is the caller's wallet. The credential is reduced to a flag.
type WalletResponse struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	PinSet    bool            `json:"pin_set"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewWalletResponse builds a WalletResponse from a wallet.
func NewWalletResponse(w *domain.Wallet) WalletResponse {
	return WalletResponse{
		ID:        w.ID,
		UserID:    w.UserID.String(),
		Balance:   w.Balance,
		PinSet:    w.Pin.IsSet(),
		CreatedAt: w.CreatedAt,
	}
}

// BalanceResponse is the response for GET /wallet/balance.
type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// VerifyPinResponse is the response for a matching PIN.
type VerifyPinResponse struct {
	Verified bool `json:"verified"`
}

// RewardResponse is the response for a daily reward claim.
type RewardResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
	NextClaim time.Time       `json:"next_claim_at"`
}

// HistoryQuery filters GET /wallet/history.
type HistoryQuery struct {
	Page     int       `form:"page" binding:"omitempty,gte=1"`
	PageSize int       `form:"page_size" binding:"omitempty,gte=1,lte=100"`
	Kind     string    `form:"kind" binding:"omitempty,oneof=debit credit"`
	Status   string    `form:"status" binding:"omitempty,oneof=success pending failed"`
	Source   string    `form:"source" binding:"omitempty,oneof=transfer checkout daily_reward opening_balance"`
	From     time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// PageQuery is the plain page/limit pair used by catalogue and order listings.
type PageQuery struct {
	Page  int    `form:"page" binding:"omitempty,gte=1"`
	Limit int    `form:"limit" binding:"omitempty,gte=1,lte=100"`
	Query string `form:"query" binding:"max=100"`
}

// CreateProductRequest is the request body for a new catalogue item.
type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required,min=1,max=100"`
	Description string          `json:"description" binding:"max=1000"`
	Price       decimal.Decimal `json:"price" binding:"coin_amount"`
	Stock       int             `json:"stock" binding:"gte=0"`
	ImageURL    *string         `json:"imageUrl,omitempty" binding:"omitempty,safe_url"`
	Category    string          `json:"category" binding:"max=50"`
}

// AddToCartRequest is the request body for POST /market/cart.
type AddToCartRequest struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,gte=1"`
}

// CartLineResponse shows a cart line with the snapshot and the current price side by side.
type CartLineResponse struct {
	ID            int64            `json:"id"`
	ProductID     int64            `json:"product_id"`
	ProductName   string           `json:"product_name,omitempty"`
	Quantity      int              `json:"quantity"`
	PriceSnapshot decimal.Decimal  `json:"price_snapshot"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	InStock       int              `json:"in_stock"`
}

// NewCartLineResponse builds a CartLineResponse from a cart item.
func NewCartLineResponse(item domain.CartItem) CartLineResponse {
	line := CartLineResponse{
		ID:            item.ID,
		ProductID:     item.ProductID,
		Quantity:      item.Quantity,
		PriceSnapshot: item.PriceSnapshot,
	}
	if item.Product != nil {
		price := item.Product.Price
		line.ProductName = item.Product.Name
		line.CurrentPrice = &price
		line.InStock = item.Product.Stock
	}
	return line
}
