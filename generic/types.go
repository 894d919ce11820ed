/*
Package generic provides the domain-agnostic foundation of the time clock.

PURPOSE:
  Types and helpers shared by the attendance validator and the hours
  accounting engine: identifiers, minute amounts, calendar dates and date
  ranges, the holiday calendar, and the append-only event log interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Minutes: a signed quantity of worked/target time
  - ClockEvent: an immutable entry of the attendance log
  - EmployeeID / TenantID / EventID: type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: clock events are never modified, only appended
  2. Precision: hour conversions go through decimal.Decimal, never float64
  3. Type Safety: strong typing for IDs prevents mixing employees and tenants

SEE ALSO:
  - time.go: Date, ISO week helpers, holiday calendar
  - period.go: DateRange
  - ledger.go: append-only event log
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type TenantID string
type EventID string

// =============================================================================
// MINUTES - Signed amount of time, the unit of the bank of hours
// =============================================================================

// Minutes is a whole number of minutes. Worked time, targets and balances
// are all accounted in minutes; hours are a presentation concern.
type Minutes int

const MinutesPerDay Minutes = 24 * 60

var sixty = decimal.NewFromInt(60)

// Hours converts to decimal hours rounded to two places (e.g. 485 -> 8.08).
func (m Minutes) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(sixty).Round(2)
}

func (m Minutes) Abs() Minutes {
	if m < 0 {
		return -m
	}
	return m
}

// Clamp bounds m to [lo, hi].
func (m Minutes) Clamp(lo, hi Minutes) Minutes {
	if m < lo {
		return lo
	}
	if m > hi {
		return hi
	}
	return m
}

func (m Minutes) Min(o Minutes) Minutes {
	if m < o {
		return m
	}
	return o
}

// String renders as signed hours and minutes: "+8h05", "-0h30", "0h00".
func (m Minutes) String() string {
	sign := ""
	switch {
	case m > 0:
		sign = "+"
	case m < 0:
		sign = "-"
	}
	a := m.Abs()
	return fmt.Sprintf("%s%dh%02d", sign, a/60, a%60)
}

// MinutesFromHours parses a decimal hour figure ("7.5") into whole minutes,
// rounding half away from zero.
func MinutesFromHours(h decimal.Decimal) Minutes {
	return Minutes(h.Mul(sixty).Round(0).IntPart())
}

// =============================================================================
// CLOCK EVENT - Immutable fact in the attendance log
// =============================================================================

type EventKind string

const (
	KindClockIn       EventKind = "CLOCK_IN"
	KindBreakOutShort EventKind = "BREAK_OUT_SHORT"
	KindBreakInShort  EventKind = "BREAK_IN_SHORT"
	KindBreakOutLong  EventKind = "BREAK_OUT_LONG"
	KindBreakInLong   EventKind = "BREAK_IN_LONG"
	KindClockOut      EventKind = "CLOCK_OUT"
)

// AllKinds lists every kind in canonical order.
var AllKinds = []EventKind{
	KindClockIn, KindBreakOutShort, KindBreakInShort,
	KindBreakOutLong, KindBreakInLong, KindClockOut,
}

func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

func (k EventKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ResumesWork is true for kinds that open a work interval.
func (k EventKind) ResumesWork() bool {
	return k == KindClockIn || k == KindBreakInShort || k == KindBreakInLong
}

// PausesWork is true for kinds that close a work interval.
func (k EventKind) PausesWork() bool {
	return k == KindBreakOutShort || k == KindBreakOutLong || k == KindClockOut
}

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// ZoneUnrestricted is recorded when geofencing did not apply.
const ZoneUnrestricted = "unrestricted"

// ClockEvent is one accepted submission. Created once, never updated or
// deleted by the core; corrections are administrative.
type ClockEvent struct {
	ID            EventID
	TenantID      TenantID
	EmployeeID    EmployeeID
	Timestamp     time.Time // server-assigned
	Kind          EventKind
	Coordinate    *Coordinate
	ZoneMatched   string
	PhotoProvided bool

	// Best-effort metadata
	Address        string     // reverse-geocoded, may be empty
	DeviceTime     *time.Time // client clock, informational only
	IdempotencyKey string
}
