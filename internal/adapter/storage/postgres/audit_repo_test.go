package postgres

import (
	"time"

	"learncoins-ledger/internal/core/domain"

	"github.com/google/uuid"
)

func newAuditEntry() *domain.AuditLog {
	userID := uuid.New()
	return &domain.AuditLog{
		ID:           uuid.New(),
		UserID:       &userID,
		Action:       domain.AuditActionTransfer,
		Category:     domain.AuditCategoryFinance,
		ResourceType: "wallet",
		ResourceID:   "7",
		IPAddress:    "10.0.0.1",
		CreatedAt:    time.Now().UTC(),
	}
}
