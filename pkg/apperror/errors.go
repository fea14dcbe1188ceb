package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"error_code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"` // Safe context for the caller, e.g. balances
	Err        error          `json:"-"`                 // Wrapped internal error (not exposed to client)
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

// WithDetail returns a copy of e carrying an extra detail field.
func (e *AppError) WithDetail(key string, value any) *AppError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// WithBalances attaches the wallet's current balances so callers can render
// an actionable message.
func (e *AppError) WithBalances(available, pending int64) *AppError {
	return e.WithDetail("available_balance", available).WithDetail("pending_balance", pending)
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Code returns the taxonomy code of err, or "" if err is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err (or anything it wraps) is an AppError with code.
func IsCode(err error, code string) bool {
	return err != nil && Code(err) == code
}

// Codes, grouped like the constructors below.
const (
	CodeInvalidAmount              = "WAL_001"
	CodeInsufficientBalance        = "WAL_002"
	CodeInsufficientPendingBalance = "WAL_003"
	CodeWalletNotFound             = "WAL_004"
	CodeWalletInactive             = "WAL_005"
	CodeInvalidPin                 = "WAL_006"

	CodeSellerProfileNotFound = "TRF_001"
	CodeOperationTimeout      = "TRF_002"
	CodeRollbackFailed        = "TRF_003"
	CodeInvalidOrder          = "TRF_004"

	CodeAlreadyReversed = "LED_001"
	CodeNotCompleted    = "LED_002"
	CodeEntryNotFound   = "LED_003"
	CodeEntryConsumed   = "LED_004"

	CodeAlreadyProcessed      = "CAN_001"
	CodeMustRespondToAllItems = "CAN_002"
	CodeCancelRequestPending  = "CAN_003"
	CodeSellerNotRequired     = "CAN_004"
	CodeAlreadyResponded      = "CAN_005"
	CodeCancelRequestNotFound = "CAN_006"
	CodeOrderNotFound         = "CAN_007"
	CodeItemNotCancellable    = "CAN_008"

	CodeInvalidToken        = "AUTH_003"
	CodeForbidden           = "AUTH_005"
	CodeRateLimitExceeded   = "RATE_001"
	CodeInternal            = "SYS_001"
	CodeCollaboratorFailure = "SYS_002"
	CodeValidation          = "VAL_001"
	CodePayloadTooLarge     = "VAL_002"
)

// ---- Wallet & balances (WAL) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be positive", http.StatusBadRequest)
}

func ErrInsufficientBalance() *AppError {
	return New(CodeInsufficientBalance, "Insufficient available balance", http.StatusPaymentRequired)
}

func ErrInsufficientPendingBalance() *AppError {
	return New(CodeInsufficientPendingBalance, "Insufficient pending balance", http.StatusConflict)
}

func ErrWalletNotFound() *AppError {
	return New(CodeWalletNotFound, "Wallet not found", http.StatusNotFound)
}

func ErrWalletInactive() *AppError {
	return New(CodeWalletInactive, "Wallet is deactivated", http.StatusForbidden)
}

func ErrInvalidPin() *AppError {
	return New(CodeInvalidPin, "Invalid security PIN", http.StatusForbidden)
}

// ---- Transfer orchestration (TRF) ----

func ErrSellerProfileNotFound(sellerRef string) *AppError {
	return New(CodeSellerProfileNotFound, fmt.Sprintf("Seller profile not found: %s", sellerRef), http.StatusUnprocessableEntity).
		WithDetail("seller_ref", sellerRef)
}

func ErrOperationTimeout(err error) *AppError {
	return Wrap(CodeOperationTimeout, "Operation timed out", http.StatusGatewayTimeout, err)
}

// ErrRollbackFailed marks ledger/wallet drift that needs an operator.
func ErrRollbackFailed(err error) *AppError {
	return Wrap(CodeRollbackFailed, "Compensating rollback failed, manual intervention required", http.StatusInternalServerError, err)
}

func ErrInvalidOrder(message string) *AppError {
	return New(CodeInvalidOrder, message, http.StatusBadRequest)
}

// ---- Ledger & reversal (LED) ----

func ErrAlreadyReversed() *AppError {
	return New(CodeAlreadyReversed, "Ledger entry already reversed", http.StatusConflict)
}

func ErrNotCompleted() *AppError {
	return New(CodeNotCompleted, "Ledger entry is not completed", http.StatusConflict)
}

func ErrEntryNotFound() *AppError {
	return New(CodeEntryNotFound, "Ledger entry not found", http.StatusNotFound)
}

func ErrEntryConsumed() *AppError {
	return New(CodeEntryConsumed, "Pending earnings already settled or cancelled", http.StatusConflict)
}

// ---- Cancellation workflow (CAN) ----

func ErrAlreadyProcessed() *AppError {
	return New(CodeAlreadyProcessed, "Cancel request already processed", http.StatusConflict)
}

func ErrMustRespondToAllItems() *AppError {
	return New(CodeMustRespondToAllItems, "Seller must respond to all of their items", http.StatusBadRequest)
}

func ErrCancelRequestPending() *AppError {
	return New(CodeCancelRequestPending, "A cancel request is already pending for this order", http.StatusConflict)
}

func ErrSellerNotRequired() *AppError {
	return New(CodeSellerNotRequired, "Seller is not part of this cancel request", http.StatusForbidden)
}

func ErrAlreadyResponded() *AppError {
	return New(CodeAlreadyResponded, "Seller already responded", http.StatusConflict)
}

func ErrCancelRequestNotFound() *AppError {
	return New(CodeCancelRequestNotFound, "Cancel request not found", http.StatusNotFound)
}

func ErrOrderNotFound() *AppError {
	return New(CodeOrderNotFound, "Order not found", http.StatusNotFound)
}

// ErrItemNotCancellable reports an item that was already cancelled, received
// or settled to the seller.
func ErrItemNotCancellable(productID, reason string) *AppError {
	return New(CodeItemNotCancellable, "Item can no longer be cancelled", http.StatusConflict).
		WithDetail("product_id", productID).
		WithDetail("reason", reason)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Insufficient role for this operation", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

func ErrCollaboratorFailure(name string, err error) *AppError {
	return Wrap(CodeCollaboratorFailure, fmt.Sprintf("Upstream %s unavailable", name), http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ErrPayloadTooLarge rejects a request body over the configured limit.
func ErrPayloadTooLarge(limit int64) *AppError {
	return New(CodePayloadTooLarge, "Request body too large", http.StatusRequestEntityTooLarge).WithDetail("limit_bytes", limit)
}
