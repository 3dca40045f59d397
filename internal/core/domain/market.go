package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatusCompleted is the only state a checkout produces.
const OrderStatusCompleted = "completed"

// Product is an item sold in the marketplace.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	ImageURL    *string         `json:"image_url,omitempty"`
	Category    string          `json:"category"`
	CreatorID   uuid.UUID       `json:"creator_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CartItem is one pending line in a user's cart.
// PriceSnapshot is the price when the line was added; checkout charges the current price.
type CartItem struct {
	ID            int64           `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	Product       *Product        `json:"product,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Order is the immutable result of a completed checkout.
type Order struct {
	ID          int64           `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      string          `json:"status"`
	Items       []OrderItem     `json:"items"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderItem fixes the quantity and unit price paid for a product.
type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal returns quantity times unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
