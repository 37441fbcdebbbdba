package invoicer

import (
	"errors"
	"fmt"

	"github.com/xraph/invoicer/invoice"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound     = errors.New("invoicer: not found")
	ErrInvalidInput = errors.New("invoicer: invalid input")

	// Invoice errors
	ErrInvoiceNotFound = errors.New("invoicer: invoice not found")
	ErrInvalidState    = errors.New("invoicer: operation not allowed in current state")
	ErrDuplicateNumber = errors.New("invoicer: invoice number already in use")

	// Counter errors
	ErrCounterNotFound = errors.New("invoicer: counter not found")

	// Store errors
	ErrStoreNotReady   = errors.New("invoicer: store not ready")
	ErrStoreClosed     = errors.New("invoicer: store is closed")
	ErrMigrationFailed = errors.New("invoicer: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError = invoice.ValidationError

// StateError describes a rejected lifecycle operation.
type StateError struct {
	Op     invoice.Operation
	Status invoice.Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invoicer: cannot %s invoice in state %s", e.Op, e.Status)
}

// Unwrap lets errors.Is match ErrInvalidState.
func (e *StateError) Unwrap() error { return ErrInvalidState }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrCounterNotFound)
}

// IsInvalidState returns true if the operation is not allowed in the
// invoice's current state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateNumber)
}

// IsValidation returns true if the error carries a ValidationError.
func IsValidation(err error) bool {
	var verr ValidationError
	return errors.As(err, &verr) || errors.Is(err, ErrInvalidInput)
}
