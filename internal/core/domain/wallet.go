package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits a coin amount may carry.
const MoneyScale = 2

// DefaultPin is the sentinel PIN given to wallets created implicitly
// (daily reward claim). It never authorizes a debit.
const DefaultPin = "000000"

// PinLength is the exact number of digits a PIN has.
const PinLength = 6

// PinKind tags how a stored PIN credential must be compared.
type PinKind string

const (
	PinKindPlain  PinKind = "plain"  // legacy, stored as the raw 6 digits
	PinKindHashed PinKind = "hashed" // argon2id or legacy bcrypt encoded hash
)

// PinCredential is the stored secret guarding a wallet.
type PinCredential struct {
	Kind  PinKind
	Value string
}

// PlainPin builds a legacy plain credential.
func PlainPin(pin string) PinCredential {
	return PinCredential{Kind: PinKindPlain, Value: pin}
}

// HashedPin builds a hashed credential from an encoded hash.
func HashedPin(encoded string) PinCredential {
	return PinCredential{Kind: PinKindHashed, Value: encoded}
}

// IsEmpty reports whether no PIN has been stored.
func (c PinCredential) IsEmpty() bool {
	return c.Value == ""
}

// IsDefault reports whether the credential is the unset sentinel.
func (c PinCredential) IsDefault() bool {
	return c.Kind == PinKindPlain && c.Value == DefaultPin
}

// IsSet reports whether the owner has chosen a PIN.
func (c PinCredential) IsSet() bool {
	return !c.IsEmpty() && !c.IsDefault()
}

// NeedsUpgrade reports whether the credential is a legacy plain PIN that
// should be re-hashed after a successful verification.
func (c PinCredential) NeedsUpgrade() bool {
	return c.Kind == PinKindPlain && c.IsSet()
}

// ValidPinFormat reports whether pin is exactly six ASCII digits.
func ValidPinFormat(pin string) bool {
	if len(pin) != PinLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// Wallet holds one user's coin balance and PIN credential.
type Wallet struct {
	ID        int64           `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Pin       PinCredential   `json:"-"` // Never expose
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanCover reports whether the balance is enough to debit amount.
func (w *Wallet) CanCover(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

// ValidAmount reports whether amount is a positive value with at most MoneyScale fractional digits.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(MoneyScale))
}
