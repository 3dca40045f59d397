package service

import (
	"context"
	"fmt"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	tx      ports.Transactor
	wallets ports.WalletRepository
	records ports.TransactionRepository
	pins    ports.PinVerifier
	hasher  ports.HashService
	ledger  ports.LedgerService
	log     zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	tx ports.Transactor,
	wallets ports.WalletRepository,
	records ports.TransactionRepository,
	pins ports.PinVerifier,
	hasher ports.HashService,
	ledger ports.LedgerService,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		tx:      tx,
		wallets: wallets,
		records: records,
		pins:    pins,
		hasher:  hasher,
		ledger:  ledger,
		log:     log,
	}
}

func (s *WalletServiceImpl) GetWallet(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return wallet, nil
}

// SetupPin sets the first PIN. A user without a wallet gets one opened
// through the ledger, so the opening balance is recorded.
func (s *WalletServiceImpl) SetupPin(ctx context.Context, userID uuid.UUID, pin string) (*domain.Wallet, bool, error) {
	if err := checkNewPin(pin); err != nil {
		return nil, false, err
	}
	encoded, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("hash pin: %w", err))
	}
	cred := domain.HashedPin(encoded)

	existing, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if existing == nil {
		wallet, err := s.ledger.OpenWallet(ctx, userID, cred)
		if err != nil {
			return nil, false, err
		}
		return wallet, true, nil
	}
	if existing.Pin.IsSet() {
		return nil, false, apperror.ErrPinAlreadySet()
	}

	var wallet *domain.Wallet
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		w, err := s.wallets.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if w == nil {
			return apperror.ErrNotFound("Wallet")
		}
		if w.Pin.IsSet() {
			return apperror.ErrPinAlreadySet()
		}
		if err := s.wallets.UpdatePin(ctx, tx, w.ID, cred); err != nil {
			return apperror.InternalError(fmt.Errorf("update pin: %w", err))
		}
		w.Pin = cred
		wallet = w
		return nil
	})
	if err != nil {
		return nil, false, asAppError(err)
	}

	s.log.Info().Str("user_id", userID.String()).Int64("wallet_id", wallet.ID).Msg("wallet pin set")
	return wallet, false, nil
}

// ChangePin replaces the PIN after verifying the old one. Failed attempts
// count towards the same lockout as ledger operations.
func (s *WalletServiceImpl) ChangePin(ctx context.Context, userID uuid.UUID, oldPin, newPin string) error {
	if !domain.ValidPinFormat(oldPin) {
		return apperror.ErrInvalidPinFormat()
	}
	if err := checkNewPin(newPin); err != nil {
		return err
	}

	existing, err := s.GetWallet(ctx, userID)
	if err != nil {
		return err
	}

	encoded, err := s.hasher.Hash(newPin)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("hash pin: %w", err))
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		w, err := s.wallets.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if w == nil {
			return apperror.ErrNotFound("Wallet")
		}
		if _, err := s.pins.Verify(ctx, w, oldPin); err != nil {
			return err
		}
		if err := s.wallets.UpdatePin(ctx, tx, w.ID, domain.HashedPin(encoded)); err != nil {
			return apperror.InternalError(fmt.Errorf("update pin: %w", err))
		}
		return nil
	})
	if err != nil {
		return asAppError(err)
	}

	s.log.Info().Str("user_id", userID.String()).Int64("wallet_id", existing.ID).Msg("wallet pin changed")
	return nil
}

// VerifyPin checks the PIN without moving coins.
func (s *WalletServiceImpl) VerifyPin(ctx context.Context, userID uuid.UUID, pin string) error {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return err
	}

	check, err := s.pins.Verify(ctx, wallet, pin)
	if err != nil {
		return err
	}
	if check.Upgrade == nil {
		return nil
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.wallets.UpdatePin(ctx, tx, wallet.ID, *check.Upgrade)
	})
	if err != nil {
		s.log.Warn().Err(err).Int64("wallet_id", wallet.ID).Msg("failed to upgrade legacy pin")
	}
	return nil
}

// History lists the caller's ledger records, newest first.
func (s *WalletServiceImpl) History(ctx context.Context, params ports.TransactionListParams) ([]domain.TransactionRecord, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)

	records, total, err := s.records.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	return records, total, nil
}

func checkNewPin(pin string) error {
	if !domain.ValidPinFormat(pin) {
		return apperror.ErrInvalidPinFormat()
	}
	if pin == domain.DefaultPin {
		return apperror.Validation("PIN 000000 is reserved, choose another")
	}
	return nil
}
