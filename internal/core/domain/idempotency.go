package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyLog holds the stored result of a ledger request made with an Idempotency-Key.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "user_id:operation:client_key"
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}

// Idempotent operations.
const (
	OperationTransfer = "transfer"
	OperationCheckout = "checkout"
)

// BuildIdempotencyKey scopes a client supplied key to the user and operation.
func BuildIdempotencyKey(userID uuid.UUID, operation, clientKey string) string {
	return userID.String() + ":" + operation + ":" + clientKey
}
