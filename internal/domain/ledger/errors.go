package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError marks caller mistakes: non-positive amounts, missing
// required fields. Never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError marks an unknown patient, deposit, invoice, credit note or
// refund id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func notFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError marks business-rule violations: paying a PAID or CANCELLED
// invoice, reusing an APPLIED credit note, invalid refund transitions.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

func conflictf(format string, args ...interface{}) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientBalanceError reports both sides of a failed allocation so the
// caller can show the shortfall.
type InsufficientBalanceError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient deposit balance: available %s, requested %s",
		e.Available, e.Requested)
}

// ConcurrencyError wraps a serialization or lock failure that exhausted the
// service's bounded retries. Safe for the caller to retry after a backoff.
type ConcurrencyError struct {
	Err error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("transaction conflict, retry later: %v", e.Err)
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError anywhere in its chain.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
