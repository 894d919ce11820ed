package attendance

import (
	"time"

	"github.com/warp/timeclock/generic"
)

// DuplicateCooldown is the minimum gap between two events of one employee.
// Mobile clients retry on flaky networks; this is what keeps one physical
// punch from being recorded twice.
const DuplicateCooldown = 60 * time.Second

// CheckDuplicate rejects when the previous event is less than
// DuplicateCooldown before now. A nil last event always passes.
func CheckDuplicate(last *generic.ClockEvent, now time.Time) error {
	if last == nil {
		return nil
	}
	elapsed := now.Sub(last.Timestamp)
	if elapsed < DuplicateCooldown {
		return &DuplicateSubmissionError{
			LastEventAt: last.Timestamp,
			Elapsed:     elapsed,
			Cooldown:    DuplicateCooldown,
		}
	}
	return nil
}
