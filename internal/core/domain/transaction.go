package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind is the direction of a balance change.
type TransactionKind string

const (
	TransactionKindDebit  TransactionKind = "debit"
	TransactionKindCredit TransactionKind = "credit"
)

// TransactionStatus represents the lifecycle state of a record.
type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// TransactionSource names the ledger operation that produced a record.
type TransactionSource string

const (
	TransactionSourceTransfer       TransactionSource = "transfer"
	TransactionSourceCheckout       TransactionSource = "checkout"
	TransactionSourceDailyReward    TransactionSource = "daily_reward"
	TransactionSourceOpeningBalance TransactionSource = "opening_balance"
)

// TransactionRecord is an immutable ledger entry describing one balance change.
type TransactionRecord struct {
	ID                  uuid.UUID         `json:"id"`
	UserID              uuid.UUID         `json:"user_id"`
	WalletID            int64             `json:"wallet_id"`
	Kind                TransactionKind   `json:"kind"`
	Amount              decimal.Decimal   `json:"amount"` // Always positive; Kind carries the sign
	Status              TransactionStatus `json:"status"`
	Source              TransactionSource `json:"source"`
	Note                string            `json:"note"`
	CounterpartWalletID *int64            `json:"counterpart_wallet_id,omitempty"`
	OrderID             *int64            `json:"order_id,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// SignedAmount returns the record's effect on the wallet balance.
func (t *TransactionRecord) SignedAmount() decimal.Decimal {
	if t.Kind == TransactionKindDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// TransferDebitNote is the note written on the sender's record.
func TransferDebitNote(recipientWalletID int64, note string) string {
	return withNote(fmt.Sprintf("Sent to Wallet #%d", recipientWalletID), note)
}

// TransferCreditNote is the note written on the recipient's record.
func TransferCreditNote(senderWalletID int64, note string) string {
	return withNote(fmt.Sprintf("Received from Wallet #%d", senderWalletID), note)
}

// CheckoutNote is the note written on an order's debit record.
func CheckoutNote(orderID int64) string {
	return fmt.Sprintf("Order #%d Payment", orderID)
}

const (
	DailyRewardNote    = "Daily reward"
	OpeningBalanceNote = "Opening balance"
)

func withNote(prefix, note string) string {
	if note == "" {
		return prefix
	}
	return prefix + ": " + note
}
