package domain

import "errors"

// Business error codes returned to clients. These failures are terminal for
// the request: retrying without changing the input cannot succeed.
const (
	CodeSameAccount         = "SAME_ACCOUNT"
	CodeAmountNotPositive   = "AMOUNT_NOT_POSITIVE"
	CodeAmountPrecision     = "AMOUNT_PRECISION"
	CodeOwnership           = "OWNERSHIP"
	CodeAccountInactive     = "ACCOUNT_INACTIVE"
	CodeCurrencyMismatch    = "CURRENCY_MISMATCH"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeWeakPassword        = "WEAK_PASSWORD"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeNoPhone             = "NO_PHONE"
	CodeRateLimit           = "RATE_LIMIT"
	CodeOTPNotFound         = "OTP_NOT_FOUND"
	CodeOTPExpired          = "OTP_EXPIRED"
	CodeOTPInvalid          = "OTP_INVALID"
	CodeOTPLocked           = "OTP_LOCKED"
)

// Coded failures the transfer engine can report. Retrying any of these with
// the same input cannot succeed.
var (
	ErrSameAccount         = NewBusinessError(CodeSameAccount, "fromAccount and toAccount must be different")
	ErrAmountNotPositive   = NewBusinessError(CodeAmountNotPositive, "amount must be positive")
	ErrAmountPrecision     = NewBusinessError(CodeAmountPrecision, "amount must have at most 2 decimal places")
	ErrOwnership           = NewBusinessError(CodeOwnership, "both accounts must belong to the customer")
	ErrAccountInactive     = NewBusinessError(CodeAccountInactive, "both accounts must be active")
	ErrCurrencyMismatch    = NewBusinessError(CodeCurrencyMismatch, "currency must match both accounts")
	ErrInsufficientFunds   = NewBusinessError(CodeInsufficientFunds, "insufficient funds")
	ErrIdempotencyConflict = NewBusinessError(CodeIdempotencyConflict, "idempotency key has been used with a different payload")
)

// BusinessError is a client-caused failure carrying a stable machine code.
// It maps to HTTP 422 at the API boundary.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	return e.Code + ": " + e.Message
}

// NewBusinessError builds a coded business error.
func NewBusinessError(code, message string) *BusinessError {
	return &BusinessError{Code: code, Message: message}
}

// AsBusinessError unwraps err into a BusinessError if it is one.
func AsBusinessError(err error) (*BusinessError, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
