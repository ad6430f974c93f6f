package domain

import "github.com/pkg/errors"

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrWarehouseNotFound   = errors.New("warehouse not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

var (
	ErrInvalidTransfer            = errors.New("invalid transfer")
	ErrInvalidQuantity            = errors.New("invalid quantity")
	ErrInvalidPrice               = errors.New("unit price cannot be negative")
	ErrInvalidType                = errors.New("invalid transaction type")
	ErrInvalidStatus              = errors.New("invalid transaction status")
	ErrInvalidThreshold           = errors.New("threshold must be positive")
	ErrMissingReference           = errors.New("missing reference")
	ErrDuplicateTransactionNumber = errors.New("duplicate transaction number")
	ErrDuplicateRequest           = errors.New("duplicate request")
)

// ErrReconciliation means a multi-leg update may have been partially applied.
// No compensation exists; it must be investigated by hand.
var ErrReconciliation = errors.New("reconciliation failure")

func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrWarehouseNotFound) ||
		errors.Is(err, ErrTransactionNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateTransactionNumber) || errors.Is(err, ErrDuplicateRequest)
}

func IsInvalidOperation(err error) bool {
	for _, target := range []error{
		ErrInvalidTransfer, ErrInvalidQuantity, ErrInvalidPrice, ErrInvalidType,
		ErrInvalidStatus, ErrInvalidThreshold, ErrMissingReference,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return IsConflict(err)
}
