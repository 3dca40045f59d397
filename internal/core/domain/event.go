package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a committed ledger operation.
type EventType string

const (
	EventTransfer    EventType = "transfer"
	EventCheckout    EventType = "checkout"
	EventDailyReward EventType = "reward"
)

// LedgerEvent is published after a ledger operation commits.
type LedgerEvent struct {
	ID         uuid.UUID       `json:"id"`
	Type       EventType       `json:"type"`
	UserID     uuid.UUID       `json:"user_id"`
	WalletID   int64           `json:"wallet_id"`
	Amount     decimal.Decimal `json:"amount"`
	Records    []uuid.UUID     `json:"records"`
	OrderID    *int64          `json:"order_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
