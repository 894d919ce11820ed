/*
ledger.go - Append-only clock event log

PURPOSE:
  The Ledger is the immutable source of truth for attendance. Worked time,
  targets and the bank of hours are always computed by replaying events;
  there is no stored balance that can drift from the log.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: no update, no delete
  2. IMMUTABLE: once written, events cannot be modified
  3. IDEMPOTENT: same idempotency key = same event (no duplicates)

DAY VIEWS:
  Calendar days are evaluated in the tenant's location. A Date plus a
  *time.Location becomes the half-open instant window [00:00, next 00:00).
*/
package generic

import (
	"context"
	"time"
)

// Ledger is the read/append view over the event log used by the core.
type Ledger interface {
	// Append adds an event. Fails if the idempotency key exists.
	Append(ctx context.Context, ev ClockEvent) error

	// LastEvent returns the employee's most recent event (any day), or nil.
	LastEvent(ctx context.Context, employeeID EmployeeID) (*ClockEvent, error)

	// EventsOn returns the employee's events on day d in loc, chronologically.
	EventsOn(ctx context.Context, employeeID EmployeeID, d Date, loc *time.Location) ([]ClockEvent, error)

	// EventsIn returns the employee's events on the days of r in loc.
	EventsIn(ctx context.Context, employeeID EmployeeID, r DateRange, loc *time.Location) ([]ClockEvent, error)

	// Replay returns the event previously appended with key, or nil.
	Replay(ctx context.Context, employeeID EmployeeID, key string) (*ClockEvent, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, ev ClockEvent) error {
	if ev.IdempotencyKey != "" {
		existing, err := l.Store.FindByIdempotencyKey(ctx, ev.EmployeeID, ev.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, ev)
}

func (l *DefaultLedger) LastEvent(ctx context.Context, employeeID EmployeeID) (*ClockEvent, error) {
	return l.Store.Last(ctx, employeeID)
}

func (l *DefaultLedger) EventsOn(ctx context.Context, employeeID EmployeeID, d Date, loc *time.Location) ([]ClockEvent, error) {
	return l.EventsIn(ctx, employeeID, DateRange{From: d, To: d}, loc)
}

func (l *DefaultLedger) EventsIn(ctx context.Context, employeeID EmployeeID, r DateRange, loc *time.Location) ([]ClockEvent, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return l.Store.LoadRange(ctx, employeeID, r.From.Start(loc), r.To.AddDays(1).Start(loc))
}

func (l *DefaultLedger) Replay(ctx context.Context, employeeID EmployeeID, key string) (*ClockEvent, error) {
	if key == "" {
		return nil, nil
	}
	return l.Store.FindByIdempotencyKey(ctx, employeeID, key)
}
