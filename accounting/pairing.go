package accounting

import (
	"time"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/generic"
)

// Status is the employee's live state on the current day.
type Status string

const (
	StatusNotStarted           Status = "NOT_STARTED"
	StatusWorking              Status = "WORKING"
	StatusOnShortBreak         Status = "ON_SHORT_BREAK"
	StatusOnShortBreakExceeded Status = "ON_SHORT_BREAK_EXCEEDED"
	StatusOnLongBreak          Status = "ON_LONG_BREAK"
	StatusClockedOut           Status = "CLOCKED_OUT"
)

const (
	// ShortBreakCredit caps the paid part of a short break.
	ShortBreakCredit generic.Minutes = 15

	// GraceMinutes is the largest CLOCK_OUT overage past the scheduled
	// afternoon end that is rounded back down to the scheduled time.
	GraceMinutes = 10
)

// DayWork is the worked time of one calendar day.
type DayWork struct {
	Date          generic.Date
	WorkedMinutes generic.Minutes

	// Breakdown of WorkedMinutes
	IntervalMinutes    generic.Minutes
	BreakCredit        generic.Minutes
	GraceAdjustment    generic.Minutes // subtracted, always >= 0
	DiscardedIntervals int

	// Live fields, only set when Date is today
	Open    bool
	Status  Status
	Elapsed generic.Minutes // in the current segment
}

func minutesBetween(from, to time.Time) generic.Minutes {
	return generic.Minutes(to.Sub(from) / time.Minute)
}

func plausible(m generic.Minutes) bool { return m > 0 && m < generic.MinutesPerDay }

// PairDay computes worked minutes for day d from that day's events, which
// must be sorted chronologically.
//
// Work-resuming kinds (CLOCK_IN, BREAK_IN_*) open an interval that the next
// event closes if it is work-pausing (BREAK_OUT_*, CLOCK_OUT). Intervals of
// <= 0 or >= 1440 minutes are discarded. A CLOCK_OUT 1-10 minutes after the
// scheduled afternoon end is credited only up to that end. Short breaks are
// paid up to ShortBreakCredit; long breaks are never paid.
//
// When d is today, an unclosed interval or short break is credited up to now
// and reflected in Status.
func PairDay(events []generic.ClockEvent, d generic.Date, entry attendance.ScheduleEntry, now time.Time, loc *time.Location) DayWork {
	dw := DayWork{Date: d}
	today := generic.DateIn(now, loc) == d
	if today {
		dw.Status = StatusNotStarted
	}

	for i, ev := range events {
		var next *generic.ClockEvent
		if i+1 < len(events) {
			next = &events[i+1]
		}

		switch {
		case ev.Kind.ResumesWork():
			if next != nil {
				if !next.Kind.PausesWork() {
					continue
				}
				m := minutesBetween(ev.Timestamp, next.Timestamp)
				if !plausible(m) {
					dw.DiscardedIntervals++
					continue
				}
				if next.Kind == generic.KindClockOut {
					g := afternoonGrace(entry, next.Timestamp, loc).Min(m)
					m -= g
					dw.GraceAdjustment += g
				}
				dw.IntervalMinutes += m
			} else if today {
				m := minutesBetween(ev.Timestamp, now)
				if plausible(m) {
					dw.IntervalMinutes += m
				}
				dw.Open = true
				dw.Status = StatusWorking
				dw.Elapsed = m.Clamp(0, generic.MinutesPerDay)
			}

		case ev.Kind == generic.KindBreakOutShort:
			if next != nil {
				if next.Kind != generic.KindBreakInShort {
					continue
				}
				m := minutesBetween(ev.Timestamp, next.Timestamp)
				if plausible(m) {
					dw.BreakCredit += m.Min(ShortBreakCredit)
				}
			} else if today {
				m := minutesBetween(ev.Timestamp, now).Clamp(0, generic.MinutesPerDay)
				dw.BreakCredit += m.Min(ShortBreakCredit)
				dw.Open = true
				dw.Status = StatusOnShortBreak
				if m > ShortBreakCredit {
					dw.Status = StatusOnShortBreakExceeded
				}
				dw.Elapsed = m
			}

		case ev.Kind == generic.KindBreakOutLong:
			if next == nil && today {
				dw.Open = true
				dw.Status = StatusOnLongBreak
				dw.Elapsed = minutesBetween(ev.Timestamp, now).Clamp(0, generic.MinutesPerDay)
			}

		case ev.Kind == generic.KindClockOut:
			if next == nil && today {
				dw.Status = StatusClockedOut
			}
		}
	}

	dw.WorkedMinutes = dw.IntervalMinutes + dw.BreakCredit
	return dw
}

// afternoonGrace returns the overage to subtract when a CLOCK_OUT lands
// 1..GraceMinutes after the scheduled afternoon end. Only the second block
// is considered.
func afternoonGrace(entry attendance.ScheduleEntry, out time.Time, loc *time.Location) generic.Minutes {
	if !entry.Active || entry.AfternoonStart == nil || entry.AfternoonEnd == nil {
		return 0
	}
	over := attendance.MinuteOfDay(out, loc) - entry.AfternoonEnd.Minute()
	if over >= 1 && over <= GraceMinutes {
		return generic.Minutes(over)
	}
	return 0
}
