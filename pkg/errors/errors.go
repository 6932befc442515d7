package errors

import "errors"

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountDeleted      = errors.New("account is deleted")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUsageNotFound       = errors.New("usage event not found")
	ErrInsufficientCredit  = errors.New("insufficient credit")
	ErrInvariantViolation  = errors.New("balance would go negative")
	ErrAlreadyRefunded     = errors.New("usage event already refunded")
	ErrInvalidPlan         = errors.New("invalid plan")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrPaymentNotCaptured  = errors.New("payment not captured")
	ErrDuplicateDelivery   = errors.New("webhook already delivered")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnavailable         = errors.New("storage unavailable")
)
