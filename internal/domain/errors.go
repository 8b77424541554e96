package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrWalletNotFound      = fmt.Errorf("wallet %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrWalletExists        = errors.New("wallet already exists for user")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrForbidden           = errors.New("forbidden")

	// ErrDuplicateCallback is returned by finalize when the transaction is already terminal.
	ErrDuplicateCallback = errors.New("transaction already finalized")
	ErrInvalidTransition = errors.New("invalid transaction status transition")
	ErrNotReconcilable   = errors.New("transaction cannot be reconciled")
	ErrProviderTimeout   = errors.New("payment provider timed out")
)

// ValidationError carries the offending field for the response message.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
