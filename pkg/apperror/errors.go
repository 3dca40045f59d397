package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError independently of its wire code.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindRateLimited       Kind = "rate_limited"
	KindInternal          Kind = "internal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Kind       Kind   `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Kind:       kind,
		Err:        err,
	}
}

// IsKind reports whether err (or anything it wraps) is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// ---- Validation (VAL) ----

// Validation returns a VAL_001 error carrying a caller-facing message.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Amount must be greater than zero", http.StatusBadRequest)
}

func ErrInvalidPinFormat() *AppError {
	return New(KindValidation, "VAL_003", "PIN must be exactly 6 digits", http.StatusBadRequest)
}

// ---- Wallet & PIN (WAL) ----

func ErrInvalidPin() *AppError {
	return New(KindUnauthorized, "WAL_001", "Invalid PIN", http.StatusUnauthorized)
}

func ErrPinLocked() *AppError {
	return New(KindRateLimited, "WAL_002", "Too many failed PIN attempts, try again later", http.StatusTooManyRequests)
}

func ErrSelfTransfer() *AppError {
	return New(KindValidation, "WAL_003", "Cannot send to self", http.StatusBadRequest)
}

func ErrPinNotSet() *AppError {
	return New(KindUnauthorized, "WAL_004", "PIN not set, complete wallet setup first", http.StatusUnauthorized)
}

func ErrPinAlreadySet() *AppError {
	return New(KindConflict, "WAL_005", "PIN already set. Use change PIN endpoint.", http.StatusConflict)
}

func ErrRewardAlreadyClaimed() *AppError {
	return New(KindConflict, "WAL_006", "Daily reward already claimed", http.StatusConflict)
}

// ---- Ledger & Market (LED / MKT) ----

func ErrInsufficientFunds() *AppError {
	return New(KindInsufficientFunds, "LED_001", "Insufficient balance in wallet", http.StatusBadRequest)
}

func ErrInsufficientStock(product string) *AppError {
	return New(KindInsufficientStock, "MKT_001", fmt.Sprintf("Insufficient stock for %s", product), http.StatusBadRequest)
}

func ErrEmptyCart() *AppError {
	return New(KindValidation, "MKT_002", "Cart is empty", http.StatusBadRequest)
}

// ---- Resources (RES) ----

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, "RES_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrConflict(message string) *AppError {
	return New(KindConflict, "RES_002", message, http.StatusConflict)
}

// CodeDuplicateRequest marks an Idempotency-Key that another request already committed.
const CodeDuplicateRequest = "RES_003"

func ErrDuplicateRequest(err error) *AppError {
	return Wrap(KindConflict, CodeDuplicateRequest, "Request with this Idempotency-Key was already processed", http.StatusConflict, err)
}

// HasCode reports whether err (or anything it wraps) is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(KindUnauthorized, "AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(KindForbidden, "AUTH_002", "Insufficient role for this action", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(KindRateLimited, "RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap(KindInternal, "SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}
