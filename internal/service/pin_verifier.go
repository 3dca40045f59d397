package service

import (
	"context"
	"crypto/subtle"
	"fmt"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"
	"learncoins-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// PinVerifierImpl implements ports.PinVerifier with per-wallet attempt throttling.
type PinVerifierImpl struct {
	hasher  ports.HashService
	limiter ports.PinAttemptLimiter
	log     zerolog.Logger
}

// NewPinVerifier creates a PinVerifierImpl. limiter may be nil to disable throttling.
func NewPinVerifier(hasher ports.HashService, limiter ports.PinAttemptLimiter, log zerolog.Logger) *PinVerifierImpl {
	return &PinVerifierImpl{hasher: hasher, limiter: limiter, log: log}
}

// Verify checks pin against the wallet's stored credential.
//
// The default sentinel never matches. Every comparison first reserves an
// attempt; once the wallet is over its limit the PIN is not compared.
// Limiter failures are logged and do not block verification.
func (v *PinVerifierImpl) Verify(ctx context.Context, wallet *domain.Wallet, pin string) (ports.PinCheck, error) {
	if !wallet.Pin.IsSet() {
		return ports.PinCheck{}, apperror.ErrPinNotSet()
	}
	if !domain.ValidPinFormat(pin) {
		return ports.PinCheck{}, apperror.ErrInvalidPinFormat()
	}

	var attempt int64
	if v.limiter != nil {
		n, allowed, err := v.limiter.Reserve(ctx, wallet.ID)
		if err != nil {
			v.log.Warn().Err(err).Int64("wallet_id", wallet.ID).Msg("pin limiter unavailable, verifying unthrottled")
		} else if !allowed {
			return ports.PinCheck{}, apperror.ErrPinLocked()
		}
		attempt = n
	}

	match, err := v.compare(wallet.Pin, pin)
	if err != nil {
		return ports.PinCheck{}, apperror.InternalError(fmt.Errorf("compare pin: %w", err))
	}

	if !match {
		v.log.Info().Int64("wallet_id", wallet.ID).Int64("attempts", attempt).Msg("pin mismatch")
		return ports.PinCheck{}, apperror.ErrInvalidPin()
	}

	if v.limiter != nil {
		if err := v.limiter.Reset(ctx, wallet.ID); err != nil {
			v.log.Warn().Err(err).Int64("wallet_id", wallet.ID).Msg("failed to reset pin attempts")
		}
	}

	var check ports.PinCheck
	if wallet.Pin.NeedsUpgrade() {
		encoded, err := v.hasher.Hash(pin)
		if err != nil {
			// The PIN matched; keep the legacy credential until the next success.
			v.log.Warn().Err(err).Int64("wallet_id", wallet.ID).Msg("failed to re-hash legacy pin")
			return check, nil
		}
		upgraded := domain.HashedPin(encoded)
		check.Upgrade = &upgraded
	}
	return check, nil
}

func (v *PinVerifierImpl) compare(cred domain.PinCredential, pin string) (bool, error) {
	switch cred.Kind {
	case domain.PinKindPlain:
		return subtle.ConstantTimeCompare([]byte(cred.Value), []byte(pin)) == 1, nil
	case domain.PinKindHashed:
		return v.hasher.Verify(pin, cred.Value)
	default:
		return false, fmt.Errorf("unknown pin kind %q", cred.Kind)
	}
}
