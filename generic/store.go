/*
store.go - Persistence interface for the clock event log

PURPOSE:
  Defines the interface between the attendance core and the database.
  The Store keeps append-only semantics: events are written once and only
  ever read back.

APPEND-ONLY CONTRACT:
  - Append(): single event write
  - NO Update() or Delete() methods exist
  Administrative corrections are a separate collaborator and never go
  through this interface.

IDEMPOTENCY:
  An event may carry a client idempotency key. If the key already exists
  for the employee, the write is rejected with ErrDuplicateIdempotencyKey
  so a retried submission can be answered with the original event.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:     SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)
  - generic/store/memory.go:    in-memory for tests
*/
package generic

import (
	"context"
	"time"
)

// Store handles persistence of clock events.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete.
type Store interface {
	// Append persists an event.
	Append(ctx context.Context, ev ClockEvent) error

	// Last returns the employee's most recent event, or nil when the log is
	// empty for that employee.
	Last(ctx context.Context, employeeID EmployeeID) (*ClockEvent, error)

	// LoadRange returns the employee's events with from <= Timestamp < to,
	// ordered by Timestamp.
	LoadRange(ctx context.Context, employeeID EmployeeID, from, to time.Time) ([]ClockEvent, error)

	// FindByIdempotencyKey returns the event recorded with key, or nil.
	FindByIdempotencyKey(ctx context.Context, employeeID EmployeeID, key string) (*ClockEvent, error)
}
