package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func auditRouter(svc *mocks.MockAuditService, userID uuid.UUID, status int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(CtxUserID, userID)
		c.Set(CtxRole, domain.RoleStudent)
		c.Next()
	})
	r.Use(AuditLog(svc))
	handler := func(c *gin.Context) { c.Status(status) }
	r.POST("/api/v1/wallet/transfer", handler)
	r.DELETE("/api/v1/market/cart/:id", handler)
	r.GET("/api/v1/wallet/me", handler)
	r.POST("/api/v1/unmapped", handler)
	return r
}

func TestAuditLog_RecordsTransfer(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockAuditService(ctrl)
	userID := uuid.New()

	svc.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ any, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionTransfer, entry.Action)
		assert.Equal(t, domain.AuditCategoryFinance, entry.Category)
		assert.Equal(t, userID, *entry.UserID)
		assert.Contains(t, entry.Details, `"status":200`)
	})

	w := httptest.NewRecorder()
	auditRouter(svc, userID, http.StatusOK).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", nil))
}

func TestAuditLog_UsesRoutePattern(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockAuditService(ctrl)

	svc.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ any, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionRemoveCart, entry.Action)
		assert.Equal(t, "42", entry.ResourceID)
	})

	w := httptest.NewRecorder()
	auditRouter(svc, uuid.New(), http.StatusOK).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/market/cart/42", nil))
}

func TestAuditLog_SkipsReadsAndFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockAuditService(ctrl)
	// no Log calls expected

	w := httptest.NewRecorder()
	auditRouter(svc, uuid.New(), http.StatusOK).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/wallet/me", nil))

	w = httptest.NewRecorder()
	auditRouter(svc, uuid.New(), http.StatusBadRequest).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/wallet/transfer", nil))
}

func TestAuditLog_UnmappedWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockAuditService(ctrl)

	svc.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ any, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionUnknownCall, entry.Action)
		assert.Equal(t, domain.AuditCategorySystem, entry.Category)
	})

	w := httptest.NewRecorder()
	auditRouter(svc, uuid.New(), http.StatusCreated).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/unmapped", nil))
}
