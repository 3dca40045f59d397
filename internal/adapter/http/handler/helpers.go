package handler

import (
	"learncoins-ledger/internal/adapter/http/dto"
	"learncoins-ledger/internal/adapter/http/middleware"
	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/pkg/apperror"
	"learncoins-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const defaultPageSize = 20

// principal returns the authenticated caller or writes a 401.
func principal(c *gin.Context) (domain.Principal, bool) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
	}
	return p, ok
}

// bindJSON binds and sanitizes the body or writes a 400.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
