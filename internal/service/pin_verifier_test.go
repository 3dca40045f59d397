package service

import (
	"context"
	"errors"
	"testing"

	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports/mocks"
	"learncoins-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func TestPinVerifier_HashedMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockPinAttemptLimiter(ctrl)
	hasher := cheapHasher()
	v := NewPinVerifier(hasher, limiter, zerolog.Nop())

	encoded, err := hasher.Hash("482913")
	require.NoError(t, err)
	w := &domain.Wallet{ID: 5, Pin: domain.HashedPin(encoded)}

	limiter.EXPECT().Reserve(gomock.Any(), int64(5)).Return(int64(1), true, nil)
	limiter.EXPECT().Reset(gomock.Any(), int64(5)).Return(nil)

	check, err := v.Verify(context.Background(), w, "482913")
	require.NoError(t, err)
	assert.Nil(t, check.Upgrade, "hashed credentials are not rewritten")
}

func TestPinVerifier_MismatchKeepsReservation(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockPinAttemptLimiter(ctrl)
	v := NewPinVerifier(cheapHasher(), limiter, zerolog.Nop())
	w := &domain.Wallet{ID: 5, Pin: domain.PlainPin("123456")}

	limiter.EXPECT().Reserve(gomock.Any(), int64(5)).Return(int64(1), true, nil)
	// no Reset: the failed attempt stays counted

	_, err := v.Verify(context.Background(), w, "654321")
	assert.True(t, apperror.IsKind(err, apperror.KindUnauthorized))
	assert.True(t, apperror.HasCode(err, "WAL_001"))
}

func TestPinVerifier_LockedSkipsCompare(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockPinAttemptLimiter(ctrl)
	hasher := mocks.NewMockHashService(ctrl)
	v := NewPinVerifier(hasher, limiter, zerolog.Nop())
	w := &domain.Wallet{ID: 9, Pin: domain.HashedPin("$argon2id$...")}

	limiter.EXPECT().Reserve(gomock.Any(), int64(9)).Return(int64(6), false, nil)
	// hasher.Verify must not be called

	_, err := v.Verify(context.Background(), w, "123456")
	assert.True(t, apperror.IsKind(err, apperror.KindRateLimited))
}

func TestPinVerifier_LimiterDownStillVerifies(t *testing.T) {
	ctrl := gomock.NewController(t)
	limiter := mocks.NewMockPinAttemptLimiter(ctrl)
	v := NewPinVerifier(cheapHasher(), limiter, zerolog.Nop())
	w := &domain.Wallet{ID: 3, Pin: domain.PlainPin("123456")}

	redisDown := errors.New("dial tcp: connection refused")
	limiter.EXPECT().Reserve(gomock.Any(), int64(3)).Return(int64(0), false, redisDown)
	limiter.EXPECT().Reset(gomock.Any(), int64(3)).Return(redisDown)

	check, err := v.Verify(context.Background(), w, "123456")
	require.NoError(t, err)
	require.NotNil(t, check.Upgrade)
}

func TestPinVerifier_LegacyPlainUpgrade(t *testing.T) {
	hasher := cheapHasher()
	v := NewPinVerifier(hasher, nil, zerolog.Nop())
	w := &domain.Wallet{ID: 1, Pin: domain.PlainPin("135790")}

	check, err := v.Verify(context.Background(), w, "135790")
	require.NoError(t, err)
	require.NotNil(t, check.Upgrade)
	assert.Equal(t, domain.PinKindHashed, check.Upgrade.Kind)

	ok, err := hasher.Verify("135790", check.Upgrade.Value)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPinVerifier_DefaultSentinelNeverMatches(t *testing.T) {
	v := NewPinVerifier(cheapHasher(), nil, zerolog.Nop())

	_, err := v.Verify(context.Background(), &domain.Wallet{Pin: domain.PlainPin(domain.DefaultPin)}, domain.DefaultPin)
	assert.True(t, apperror.HasCode(err, "WAL_004"))

	_, err = v.Verify(context.Background(), &domain.Wallet{}, "123456")
	assert.True(t, apperror.HasCode(err, "WAL_004"))
}

func TestPinVerifier_BadFormat(t *testing.T) {
	v := NewPinVerifier(cheapHasher(), nil, zerolog.Nop())
	w := &domain.Wallet{Pin: domain.PlainPin("123456")}

	for _, pin := range []string{"", "12345", "1234567", "12a456"} {
		_, err := v.Verify(context.Background(), w, pin)
		assert.True(t, apperror.HasCode(err, "VAL_003"), "pin %q", pin)
	}
}

func TestPinVerifier_LegacyBcrypt(t *testing.T) {
	v := NewPinVerifier(cheapHasher(), nil, zerolog.Nop())
	w := &domain.Wallet{Pin: domain.HashedPin(mustBcrypt(t, "246810"))}

	check, err := v.Verify(context.Background(), w, "246810")
	require.NoError(t, err)
	assert.Nil(t, check.Upgrade)

	_, err = v.Verify(context.Background(), w, "246811")
	assert.True(t, apperror.HasCode(err, "WAL_001"))
}

func mustBcrypt(t *testing.T, pin string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}
