/*
sequencer.go - Legal continuations of an employee's day

STATE:
  The state is the kind of the last event of the current calendar day, or
  NoEventToday. Nothing else is remembered: DeriveState recomputes it from
  the log on every submission.

STRICT FLOW:
  NoEventToday            -> CLOCK_IN
  CLOCK_IN / BREAK_IN_*   -> BREAK_OUT_LONG | BREAK_OUT_SHORT | CLOCK_OUT
  BREAK_OUT_LONG          -> BREAK_IN_LONG
  BREAK_OUT_SHORT         -> BREAK_IN_SHORT
  CLOCK_OUT               -> CLOCK_IN

FLEXIBLE FLOW:
  The first event of the day must be CLOCK_IN; after that anything goes.
*/
package attendance

import (
	"time"

	"github.com/warp/timeclock/generic"
)

// State is the sequencer state for one day.
type State string

const NoEventToday State = "NO_EVENT_TODAY"

// StateAfter maps an event kind to the state it leaves the day in.
func StateAfter(k generic.EventKind) State { return State(k) }

// DeriveState returns the state of day d from the employee's events. Events
// on other days are ignored; the latest event on d wins regardless of slice
// order.
func DeriveState(events []generic.ClockEvent, d generic.Date, loc *time.Location) State {
	var last *generic.ClockEvent
	for i := range events {
		ev := &events[i]
		if generic.DateIn(ev.Timestamp, loc) != d {
			continue
		}
		if last == nil || !ev.Timestamp.Before(last.Timestamp) {
			last = ev
		}
	}
	if last == nil {
		return NoEventToday
	}
	return StateAfter(last.Kind)
}

var strictTransitions = map[State][]generic.EventKind{
	NoEventToday:                          {generic.KindClockIn},
	StateAfter(generic.KindClockIn):       {generic.KindBreakOutLong, generic.KindBreakOutShort, generic.KindClockOut},
	StateAfter(generic.KindBreakInShort):  {generic.KindBreakOutLong, generic.KindBreakOutShort, generic.KindClockOut},
	StateAfter(generic.KindBreakInLong):   {generic.KindBreakOutLong, generic.KindBreakOutShort, generic.KindClockOut},
	StateAfter(generic.KindBreakOutLong):  {generic.KindBreakInLong},
	StateAfter(generic.KindBreakOutShort): {generic.KindBreakInShort},
	StateAfter(generic.KindClockOut):      {generic.KindClockIn},
}

// Expected lists the kinds legal from s.
func Expected(s State, strict bool) []generic.EventKind {
	if s == NoEventToday {
		return []generic.EventKind{generic.KindClockIn}
	}
	if !strict {
		return append([]generic.EventKind(nil), generic.AllKinds...)
	}
	return append([]generic.EventKind(nil), strictTransitions[s]...)
}

// CheckTransition decides whether requested may follow state s.
func CheckTransition(s State, requested generic.EventKind, strict bool) error {
	for _, k := range Expected(s, strict) {
		if k == requested {
			return nil
		}
	}
	return &TransitionError{From: s, Requested: requested, Expected: Expected(s, strict)}
}
