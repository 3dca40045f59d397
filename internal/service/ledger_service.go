package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LedgerConfig carries the coin economy settings.
type LedgerConfig struct {
	InitialBalance      decimal.Decimal
	DailyReward         decimal.Decimal
	DailyRewardCooldown time.Duration
	IdempotencyTTL      time.Duration
}

// LedgerDeps groups the collaborators of the ledger engine.
type LedgerDeps struct {
	Transactor   ports.Transactor
	Wallets      ports.WalletRepository
	Transactions ports.TransactionRepository
	Products     ports.ProductRepository
	Cart         ports.CartRepository
	Orders       ports.OrderRepository
	Idempotency  ports.IdempotencyRepository
	IdempCache   ports.IdempotencyCache
	Claims       ports.ClaimGuard
	Pins         ports.PinVerifier
	Events       ports.EventPublisher
}

// LedgerServiceImpl implements ports.LedgerService. It is the only code
// path that changes a wallet balance, and every change is paired with a
// TransactionRecord written in the same unit.
type LedgerServiceImpl struct {
	tx         ports.Transactor
	wallets    ports.WalletRepository
	records    ports.TransactionRepository
	products   ports.ProductRepository
	cart       ports.CartRepository
	orders     ports.OrderRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	claims     ports.ClaimGuard
	pins       ports.PinVerifier
	events     ports.EventPublisher
	cfg        LedgerConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(deps LedgerDeps, cfg LedgerConfig, log zerolog.Logger) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		tx:         deps.Transactor,
		wallets:    deps.Wallets,
		records:    deps.Transactions,
		products:   deps.Products,
		cart:       deps.Cart,
		orders:     deps.Orders,
		idempRepo:  deps.Idempotency,
		idempCache: deps.IdempCache,
		claims:     deps.Claims,
		pins:       deps.Pins,
		events:     deps.Events,
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Transfer moves coins from the caller's wallet to another wallet.
//
// Both wallets are locked in ascending id order. The PIN is checked before
// any amount or balance rule, and nothing is written until every rule passes.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	idempKey := s.idempotencyKey(req.SenderUserID, domain.OperationTransfer, req.IdempotencyKey)
	if idempKey != "" {
		var cached ports.TransferResult
		hit, err := s.replay(ctx, idempKey, &cached)
		if err != nil {
			return nil, err
		}
		if hit {
			return &cached, nil
		}
	}

	sender, err := s.wallets.GetByUserID(ctx, req.SenderUserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get sender wallet: %w", err))
	}
	if sender == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}

	var (
		result   *ports.TransferResult
		respJSON []byte
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		locked, err := s.wallets.LockByIDs(ctx, tx, sender.ID, req.RecipientWalletID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallets: %w", err))
		}
		from := locked[sender.ID]
		if from == nil {
			return apperror.ErrNotFound("Wallet")
		}

		if err := s.authorize(ctx, tx, from, req.Pin); err != nil {
			return err
		}
		if !domain.ValidAmount(req.Amount) {
			return apperror.ErrInvalidAmount()
		}
		if !from.CanCover(req.Amount) {
			return apperror.ErrInsufficientFunds()
		}

		to := locked[req.RecipientWalletID]
		if to == nil {
			return apperror.ErrNotFound("Recipient wallet")
		}
		if to.UserID == from.UserID {
			return apperror.ErrSelfTransfer()
		}

		if err := s.wallets.AdjustBalance(ctx, tx, from.ID, req.Amount.Neg()); err != nil {
			return apperror.InternalError(fmt.Errorf("debit sender: %w", err))
		}
		if err := s.wallets.AdjustBalance(ctx, tx, to.ID, req.Amount); err != nil {
			return apperror.InternalError(fmt.Errorf("credit recipient: %w", err))
		}

		now := s.now()
		fromID, toID := from.ID, to.ID
		debit := &domain.TransactionRecord{
			ID:                  uuid.New(),
			UserID:              from.UserID,
			WalletID:            from.ID,
			Kind:                domain.TransactionKindDebit,
			Amount:              req.Amount,
			Status:              domain.TransactionStatusSuccess,
			Source:              domain.TransactionSourceTransfer,
			Note:                domain.TransferDebitNote(to.ID, req.Note),
			CounterpartWalletID: &toID,
			CreatedAt:           now,
		}
		credit := &domain.TransactionRecord{
			ID:                  uuid.New(),
			UserID:              to.UserID,
			WalletID:            to.ID,
			Kind:                domain.TransactionKindCredit,
			Amount:              req.Amount,
			Status:              domain.TransactionStatusSuccess,
			Source:              domain.TransactionSourceTransfer,
			Note:                domain.TransferCreditNote(from.ID, req.Note),
			CounterpartWalletID: &fromID,
			CreatedAt:           now,
		}
		if err := s.records.Create(ctx, tx, debit); err != nil {
			return apperror.InternalError(fmt.Errorf("create debit record: %w", err))
		}
		if err := s.records.Create(ctx, tx, credit); err != nil {
			return apperror.InternalError(fmt.Errorf("create credit record: %w", err))
		}

		result = &ports.TransferResult{Debit: debit, Credit: credit}
		respJSON, err = s.remember(ctx, tx, idempKey, result, now)
		return err
	})
	if err != nil {
		if idempKey != "" && apperror.HasCode(err, apperror.CodeDuplicateRequest) {
			var cached ports.TransferResult
			if hit, rerr := s.replay(ctx, idempKey, &cached); rerr == nil && hit {
				return &cached, nil
			}
		}
		return nil, asAppError(err)
	}

	s.cacheResponse(ctx, idempKey, respJSON)
	s.publish(ctx, &domain.LedgerEvent{
		ID:         uuid.New(),
		Type:       domain.EventTransfer,
		UserID:     req.SenderUserID,
		WalletID:   sender.ID,
		Amount:     req.Amount,
		Records:    []uuid.UUID{result.Debit.ID, result.Credit.ID},
		OccurredAt: result.Debit.CreatedAt,
	})

	s.log.Info().
		Str("user_id", req.SenderUserID.String()).
		Int64("wallet_id", sender.ID).
		Int64("recipient_wallet_id", req.RecipientWalletID).
		Str("amount", req.Amount.String()).
		Msg("transfer completed")

	return result, nil
}

// Checkout buys everything in the caller's cart at current product prices.
func (s *LedgerServiceImpl) Checkout(ctx context.Context, req ports.CheckoutRequest) (*domain.Order, error) {
	idempKey := s.idempotencyKey(req.UserID, domain.OperationCheckout, req.IdempotencyKey)
	if idempKey != "" {
		var cached domain.Order
		hit, err := s.replay(ctx, idempKey, &cached)
		if err != nil {
			return nil, err
		}
		if hit {
			return &cached, nil
		}
	}

	var (
		order    *domain.Order
		record   *domain.TransactionRecord
		walletID int64
		respJSON []byte
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		wallet, err := s.wallets.GetByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			return apperror.ErrNotFound("Wallet")
		}
		walletID = wallet.ID

		if err := s.authorize(ctx, tx, wallet, req.Pin); err != nil {
			return err
		}

		items, err := s.cart.ListByUserForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("load cart: %w", err))
		}
		if len(items) == 0 {
			return apperror.ErrEmptyCart()
		}

		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ProductID)
		}
		products, err := s.products.LockByIDs(ctx, tx, ids...)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock products: %w", err))
		}

		total := decimal.Zero
		lines := make([]domain.OrderItem, 0, len(items))
		for _, item := range items {
			p := products[item.ProductID]
			if p == nil {
				return apperror.ErrNotFound("Product")
			}
			if p.Stock < item.Quantity {
				return apperror.ErrInsufficientStock(p.Name)
			}
			line := domain.OrderItem{ProductID: p.ID, Quantity: item.Quantity, UnitPrice: p.Price}
			total = total.Add(line.LineTotal())
			lines = append(lines, line)
		}

		if !wallet.CanCover(total) {
			return apperror.ErrInsufficientFunds()
		}

		if err := s.wallets.AdjustBalance(ctx, tx, wallet.ID, total.Neg()); err != nil {
			return apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
		}

		order = &domain.Order{
			UserID:      req.UserID,
			TotalAmount: total,
			Status:      domain.OrderStatusCompleted,
			Items:       lines,
		}
		if err := s.orders.Create(ctx, tx, order); err != nil {
			return apperror.InternalError(fmt.Errorf("create order: %w", err))
		}

		for _, line := range lines {
			if err := s.products.DecrementStock(ctx, tx, line.ProductID, line.Quantity); err != nil {
				return apperror.InternalError(fmt.Errorf("decrement stock: %w", err))
			}
		}
		if err := s.cart.DeleteByUser(ctx, tx, req.UserID); err != nil {
			return apperror.InternalError(fmt.Errorf("clear cart: %w", err))
		}

		now := s.now()
		// Free items produce an order but no balance change to record.
		if total.IsPositive() {
			orderID := order.ID
			record = &domain.TransactionRecord{
				ID:        uuid.New(),
				UserID:    req.UserID,
				WalletID:  wallet.ID,
				Kind:      domain.TransactionKindDebit,
				Amount:    total,
				Status:    domain.TransactionStatusSuccess,
				Source:    domain.TransactionSourceCheckout,
				Note:      domain.CheckoutNote(order.ID),
				OrderID:   &orderID,
				CreatedAt: now,
			}
			if err := s.records.Create(ctx, tx, record); err != nil {
				return apperror.InternalError(fmt.Errorf("create debit record: %w", err))
			}
		}

		respJSON, err = s.remember(ctx, tx, idempKey, order, now)
		return err
	})
	if err != nil {
		if idempKey != "" && apperror.HasCode(err, apperror.CodeDuplicateRequest) {
			var cached domain.Order
			if hit, rerr := s.replay(ctx, idempKey, &cached); rerr == nil && hit {
				return &cached, nil
			}
		}
		return nil, asAppError(err)
	}

	s.cacheResponse(ctx, idempKey, respJSON)
	event := &domain.LedgerEvent{
		ID:         uuid.New(),
		Type:       domain.EventCheckout,
		UserID:     req.UserID,
		WalletID:   walletID,
		Amount:     order.TotalAmount,
		OrderID:    &order.ID,
		OccurredAt: order.CreatedAt,
	}
	if record != nil {
		event.Records = []uuid.UUID{record.ID}
	}
	s.publish(ctx, event)

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Int64("wallet_id", walletID).
		Int64("order_id", order.ID).
		Str("amount", order.TotalAmount.String()).
		Msg("checkout completed")

	return order, nil
}

// OpenWallet creates the user's wallet holding the configured opening
// balance, recorded as one opening_balance credit.
func (s *LedgerServiceImpl) OpenWallet(ctx context.Context, userID uuid.UUID, pin domain.PinCredential) (*domain.Wallet, error) {
	wallet := &domain.Wallet{UserID: userID, Balance: s.cfg.InitialBalance, Pin: pin}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.wallets.Create(ctx, tx, wallet); err != nil {
			if apperror.IsKind(err, apperror.KindConflict) {
				return err
			}
			return apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
		if !wallet.Balance.IsPositive() {
			return nil
		}
		record := &domain.TransactionRecord{
			ID:        uuid.New(),
			UserID:    userID,
			WalletID:  wallet.ID,
			Kind:      domain.TransactionKindCredit,
			Amount:    wallet.Balance,
			Status:    domain.TransactionStatusSuccess,
			Source:    domain.TransactionSourceOpeningBalance,
			Note:      domain.OpeningBalanceNote,
			CreatedAt: s.now(),
		}
		if err := s.records.Create(ctx, tx, record); err != nil {
			return apperror.InternalError(fmt.Errorf("create opening record: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, asAppError(err)
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Int64("wallet_id", wallet.ID).
		Str("amount", wallet.Balance.String()).
		Msg("wallet opened")

	return wallet, nil
}

// ClaimDailyReward credits the daily reward once per cooldown.
//
// The claim guard turns away concurrent duplicates early. The authoritative
// check is the newest daily_reward record, read under the wallet lock.
func (s *LedgerServiceImpl) ClaimDailyReward(ctx context.Context, userID uuid.UUID) (*ports.RewardResult, error) {
	guardKey := "daily_reward:" + userID.String()
	held := false
	if s.claims != nil {
		ok, err := s.claims.Acquire(ctx, guardKey, s.cfg.DailyRewardCooldown)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("claim guard unavailable, relying on ledger check")
		case !ok:
			return nil, apperror.ErrRewardAlreadyClaimed()
		default:
			held = true
		}
	}

	var result *ports.RewardResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		wallet, err := s.wallets.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			wallet = &domain.Wallet{UserID: userID, Balance: decimal.Zero, Pin: domain.PlainPin(domain.DefaultPin)}
			if err := s.wallets.Create(ctx, tx, wallet); err != nil {
				return asAppError(fmt.Errorf("create wallet: %w", err))
			}
		}

		now := s.now()
		last, err := s.records.LastCreatedAt(ctx, tx, wallet.ID, domain.TransactionSourceDailyReward)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("last reward: %w", err))
		}
		if last != nil && now.Sub(*last) < s.cfg.DailyRewardCooldown {
			return apperror.ErrRewardAlreadyClaimed()
		}

		if err := s.wallets.AdjustBalance(ctx, tx, wallet.ID, s.cfg.DailyReward); err != nil {
			return apperror.InternalError(fmt.Errorf("credit reward: %w", err))
		}
		wallet.Balance = wallet.Balance.Add(s.cfg.DailyReward)

		record := &domain.TransactionRecord{
			ID:        uuid.New(),
			UserID:    userID,
			WalletID:  wallet.ID,
			Kind:      domain.TransactionKindCredit,
			Amount:    s.cfg.DailyReward,
			Status:    domain.TransactionStatusSuccess,
			Source:    domain.TransactionSourceDailyReward,
			Note:      domain.DailyRewardNote,
			CreatedAt: now,
		}
		if err := s.records.Create(ctx, tx, record); err != nil {
			return apperror.InternalError(fmt.Errorf("create reward record: %w", err))
		}

		result = &ports.RewardResult{Wallet: wallet, Record: record, NextClaim: now.Add(s.cfg.DailyRewardCooldown)}
		return nil
	})
	if err != nil {
		if held {
			if rerr := s.claims.Release(ctx, guardKey); rerr != nil {
				s.log.Warn().Err(rerr).Str("user_id", userID.String()).Msg("failed to release claim guard")
			}
		}
		return nil, asAppError(err)
	}

	s.publish(ctx, &domain.LedgerEvent{
		ID:         uuid.New(),
		Type:       domain.EventDailyReward,
		UserID:     userID,
		WalletID:   result.Wallet.ID,
		Amount:     result.Record.Amount,
		Records:    []uuid.UUID{result.Record.ID},
		OccurredAt: result.Record.CreatedAt,
	})

	s.log.Info().
		Str("user_id", userID.String()).
		Int64("wallet_id", result.Wallet.ID).
		Str("amount", result.Record.Amount.String()).
		Msg("daily reward claimed")

	return result, nil
}

// authorize verifies the PIN on a locked wallet and applies a pending
// credential upgrade in the same unit.
func (s *LedgerServiceImpl) authorize(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, pin string) error {
	check, err := s.pins.Verify(ctx, wallet, pin)
	if err != nil {
		return err
	}
	if check.Upgrade != nil {
		if err := s.wallets.UpdatePin(ctx, tx, wallet.ID, *check.Upgrade); err != nil {
			return apperror.InternalError(fmt.Errorf("upgrade pin: %w", err))
		}
		wallet.Pin = *check.Upgrade
	}
	return nil
}

func (s *LedgerServiceImpl) idempotencyKey(userID uuid.UUID, op, clientKey string) string {
	if clientKey == "" || s.idempRepo == nil {
		return ""
	}
	return domain.BuildIdempotencyKey(userID, op, clientKey)
}

// replay loads a stored response into out. Redis first, then the database.
func (s *LedgerServiceImpl) replay(ctx context.Context, key string, out any) (bool, error) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return true, decodeStored(cached, out)
		}
	}

	stored, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return false, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if stored == nil {
		return false, nil
	}
	return true, decodeStored(stored.ResponseJSON, out)
}

// remember writes the idempotency log inside the unit. A blank key is a no-op.
func (s *LedgerServiceImpl) remember(ctx context.Context, tx pgx.Tx, key string, resp any, now time.Time) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal response: %w", err))
	}
	if err := s.idempRepo.Create(ctx, tx, &domain.IdempotencyLog{Key: key, ResponseJSON: data, CreatedAt: now}); err != nil {
		if apperror.HasCode(err, apperror.CodeDuplicateRequest) {
			return nil, err
		}
		return nil, apperror.InternalError(fmt.Errorf("save idempotency log: %w", err))
	}
	return data, nil
}

func (s *LedgerServiceImpl) cacheResponse(ctx context.Context, key string, data []byte) {
	if key == "" || s.idempCache == nil {
		return
	}
	if err := s.idempCache.Set(ctx, key, data, s.cfg.IdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

func (s *LedgerServiceImpl) publish(ctx context.Context, event *domain.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("event", string(event.Type)).Msg("failed to publish ledger event")
	}
}

func decodeStored(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return apperror.InternalError(fmt.Errorf("unmarshal stored response: %w", err))
	}
	return nil
}

// asAppError passes AppErrors through and wraps anything else as internal.
func asAppError(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperror.InternalError(err)
}
