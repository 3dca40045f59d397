package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type auditRoute struct {
	action   domain.AuditAction
	category domain.AuditCategory
	resource string
}

// auditRoutes maps "METHOD route-pattern" to the audited action.
var auditRoutes = map[string]auditRoute{
	"POST /api/v1/wallet/transfer":     {domain.AuditActionTransfer, domain.AuditCategoryFinance, "wallet"},
	"POST /api/v1/wallet/checkout":     {domain.AuditActionCheckout, domain.AuditCategoryFinance, "order"},
	"POST /api/v1/wallet/setup":        {domain.AuditActionSetupPin, domain.AuditCategoryFinance, "wallet"},
	"PUT /api/v1/wallet/pin":           {domain.AuditActionChangePin, domain.AuditCategoryFinance, "wallet"},
	"POST /api/v1/wallet/daily-reward": {domain.AuditActionDailyClaim, domain.AuditCategoryFinance, "wallet"},
	"POST /api/v1/market/cart":         {domain.AuditActionAddToCart, domain.AuditCategoryMarket, "cart"},
	"DELETE /api/v1/market/cart/:id":   {domain.AuditActionRemoveCart, domain.AuditCategoryMarket, "cart"},
	"POST /api/v1/market/products":     {domain.AuditActionNewProduct, domain.AuditCategoryMarket, "product"},
}

// AuditLog records successful write requests after the handler has run.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		route, ok := auditRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			route = auditRoute{domain.AuditActionUnknownCall, domain.AuditCategorySystem, "unknown"}
		}

		var userID *uuid.UUID
		if p, ok := CurrentPrincipal(c); ok {
			userID = &p.UserID
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       route.action,
			Category:     route.category,
			ResourceType: route.resource,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now().UTC(),
		})
	}
}
