package handler

import (
	"learncoins-ledger/internal/adapter/http/dto"
	"learncoins-ledger/internal/adapter/http/middleware"
	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"
	"learncoins-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxIdempotencyKeyLen = 128

// WalletHandler handles wallet and ledger endpoints.
type WalletHandler struct {
	ledger  ports.LedgerService
	wallets ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger ports.LedgerService, wallets ports.WalletService) *WalletHandler {
	return &WalletHandler{ledger: ledger, wallets: wallets}
}

// GetMe handles GET /api/v1/wallet/me.
func (h *WalletHandler) GetMe(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWalletResponse(wallet))
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BalanceResponse{Balance: wallet.Balance})
}

// Setup handles POST /api/v1/wallet/setup.
func (h *WalletHandler) Setup(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.PinRequest
	if !bindJSON(c, &req) {
		return
	}

	wallet, created, err := h.wallets.SetupPin(c.Request.Context(), p.UserID, req.Pin)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, dto.NewWalletResponse(wallet))
		return
	}
	response.OK(c, dto.NewWalletResponse(wallet))
}

// ChangePin handles PUT /api/v1/wallet/pin.
func (h *WalletHandler) ChangePin(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.ChangePinRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.wallets.ChangePin(c.Request.Context(), p.UserID, req.OldPin, req.NewPin); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "PIN updated"})
}

// VerifyPin handles POST /api/v1/wallet/verify-pin.
func (h *WalletHandler) VerifyPin(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req dto.PinRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.wallets.VerifyPin(c.Request.Context(), p.UserID, req.Pin); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.VerifyPinResponse{Verified: true})
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.ledger.Transfer(c.Request.Context(), ports.TransferRequest{
		SenderUserID:      p.UserID,
		RecipientWalletID: req.RecipientWalletID,
		Amount:            req.Amount,
		Note:              req.Note,
		Pin:               req.Pin,
		IdempotencyKey:    key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.TransferResponse{DebitRecord: result.Debit, CreditRecord: result.Credit})
}

// Checkout handles POST /api/v1/wallet/checkout.
func (h *WalletHandler) Checkout(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req dto.PinRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.ledger.Checkout(c.Request.Context(), ports.CheckoutRequest{
		UserID:         p.UserID,
		Pin:            req.Pin,
		IdempotencyKey: key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// ClaimDailyReward handles POST /api/v1/wallet/daily-reward.
func (h *WalletHandler) ClaimDailyReward(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	result, err := h.ledger.ClaimDailyReward(c.Request.Context(), p.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.RewardResponse{
		Amount:    result.Record.Amount,
		Balance:   result.Wallet.Balance,
		NextClaim: result.NextClaim,
	})
}

// History handles GET /api/v1/wallet/history.
func (h *WalletHandler) History(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.TransactionListParams{
		UserID:   p.UserID,
		Page:     orDefault(q.Page, 1),
		PageSize: orDefault(q.PageSize, defaultPageSize),
	}
	if q.Kind != "" {
		kind := domain.TransactionKind(q.Kind)
		params.Kind = &kind
	}
	if q.Status != "" {
		status := domain.TransactionStatus(q.Status)
		params.Status = &status
	}
	if q.Source != "" {
		source := domain.TransactionSource(q.Source)
		params.Source = &source
	}
	if !q.From.IsZero() {
		params.From = &q.From
	}
	if !q.To.IsZero() {
		params.To = &q.To
	}

	records, total, err := h.wallets.History(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paginated(c, records, total, params.Page, params.PageSize)
}

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader(middleware.HeaderIdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key must be at most 128 characters"))
		return "", false
	}
	return key, true
}
