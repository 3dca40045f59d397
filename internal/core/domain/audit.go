package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionTransfer    AuditAction = "TRANSFER"
	AuditActionCheckout    AuditAction = "CHECKOUT"
	AuditActionSetupPin    AuditAction = "SETUP_PIN"
	AuditActionChangePin   AuditAction = "CHANGE_PIN"
	AuditActionDailyClaim  AuditAction = "DAILY_CLAIM"
	AuditActionAddToCart   AuditAction = "ADD_TO_CART"
	AuditActionRemoveCart  AuditAction = "REMOVE_FROM_CART"
	AuditActionNewProduct  AuditAction = "CREATE_PRODUCT"
	AuditActionUnknownCall AuditAction = "UNKNOWN"
)

// AuditCategory groups actions for reporting.
type AuditCategory string

const (
	AuditCategoryFinance AuditCategory = "FINANCE"
	AuditCategoryMarket  AuditCategory = "MARKET"
	AuditCategorySystem  AuditCategory = "SYSTEM"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID     `json:"id"`
	UserID       *uuid.UUID    `json:"user_id,omitempty"`
	Action       AuditAction   `json:"action"`
	Category     AuditCategory `json:"category"`
	ResourceType string        `json:"resource_type"`
	ResourceID   string        `json:"resource_id,omitempty"`
	Details      string        `json:"details,omitempty"` // JSON string
	IPAddress    string        `json:"ip_address"`
	CreatedAt    time.Time     `json:"created_at"`
}
