/*
Package accounting turns the clock event log into worked time, daily
targets and the bank of hours.

Everything here is a pure function of (events, schedule, exempt dates,
now). Nothing is cached or written: the same inputs always produce the
same Result, so it is safe to recompute on every request.

FILES:
  target.go   - expected minutes for a date (Saturday compression)
  pairing.go  - work intervals, short-break credit, live status
  engine.go   - per-day tallies, tolerance band, bank balance
  service.go  - loads collaborators and runs the engine
*/
package accounting

import (
	"time"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/generic"
)

// =============================================================================
// TARGET POLICY CONSTANTS
// =============================================================================

const (
	// CompressedDayTarget is the weekday target when Saturday was worked
	// and the configured day is unset or at least CompressionThreshold.
	CompressedDayTarget generic.Minutes = 480

	// CompressionThreshold is the shortest configured weekday (8h40) that
	// Saturday compression caps to CompressedDayTarget.
	CompressionThreshold generic.Minutes = 520

	// SaturdayDefaultTarget applies to a worked Saturday with no explicit
	// Saturday block.
	SaturdayDefaultTarget generic.Minutes = 240
)

// DailyTarget returns the expected worked minutes for d.
//
// workedSaturday reports whether the employee clocked in on the Saturday
// of d's ISO week (see WorkedSaturday).
func DailyTarget(d generic.Date, schedule attendance.WeeklySchedule, exempt generic.DateSet, workedSaturday bool) generic.Minutes {
	if exempt.Contains(d) {
		return 0
	}

	entry, configured := schedule.Entry(d.Weekday())
	minutes := generic.Minutes(0)
	if configured {
		minutes = entry.ConfiguredMinutes()
	}
	explicit := configured && entry.Active && entry.HasBlocks()

	switch {
	case d.IsWeekday():
		if !workedSaturday {
			return minutes
		}
		unset := !configured || (entry.Active && !entry.HasBlocks())
		if unset || minutes >= CompressionThreshold {
			return CompressedDayTarget
		}
		return minutes

	case d.IsSaturday():
		if workedSaturday && !explicit {
			return SaturdayDefaultTarget
		}
		return minutes
	}

	return minutes
}

// WorkedSaturday reports whether events contain a CLOCK_IN on the Saturday
// of d's ISO week, with days evaluated in loc.
func WorkedSaturday(events []generic.ClockEvent, d generic.Date, loc *time.Location) bool {
	saturday := d.SaturdayOfWeek()
	for _, ev := range events {
		if ev.Kind == generic.KindClockIn && generic.DateIn(ev.Timestamp, loc) == saturday {
			return true
		}
	}
	return false
}
