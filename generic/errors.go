/*
errors.go - Store-level and range error types

PURPOSE:
  Errors raised by the foundation layer (event log persistence, lookups,
  date ranges). The attendance package defines the validation taxonomy
  (duplicate, illegal transition, out of zone...) and wraps these where
  needed.

ERROR CATEGORIES:
  1. Log errors - append failures, idempotency collisions
  2. Lookup errors - unknown employee or tenant
  3. Range errors - dateFrom after dateTo

USAGE:
  if errors.Is(err, generic.ErrEmployeeNotFound) {
      // 404
  }
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an event with the same
	// idempotency key already exists. Expected on client retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrDuplicateEventID is returned when an event ID is reused.
	ErrDuplicateEventID = errors.New("duplicate event id")

	// ErrAppendFailed is returned when an event cannot be persisted.
	ErrAppendFailed = errors.New("append failed")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrTenantNotFound is returned when a referenced tenant doesn't exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range: to before from")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidRangeError carries the offending bounds.
type InvalidRangeError struct {
	From Date
	To   Date
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range: %s is after %s", e.From, e.To)
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) || errors.Is(err, ErrTenantNotFound)
}

// IsConflict returns true for idempotency and id collisions.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey) || errors.Is(err, ErrDuplicateEventID)
}
