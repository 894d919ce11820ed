package accounting

import (
	"sort"
	"time"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/generic"
)

// =============================================================================
// BANK OF HOURS POLICY
// =============================================================================

// ToleranceMinutes is the daily band inside which a day's balance counts as
// zero. A day at exactly +/-10 contributes nothing; +/-11 counts in full.
const ToleranceMinutes generic.Minutes = 10

// DayBalanceLimit bounds a single day's contribution to the bank.
const DayBalanceLimit = generic.MinutesPerDay

// ApplyTolerance zeroes balances inside the tolerance band and clamps the
// rest to +/-DayBalanceLimit.
func ApplyTolerance(balance generic.Minutes) generic.Minutes {
	if balance.Abs() <= ToleranceMinutes {
		return 0
	}
	return balance.Clamp(-DayBalanceLimit, DayBalanceLimit)
}

// =============================================================================
// ENGINE
// =============================================================================

// Input is everything Compute needs. Events must cover the whole ISO weeks
// of Range (see generic.DateRange.Weeks) so that Saturday compression sees
// the Saturday of every week; events outside Range are otherwise ignored.
type Input struct {
	EmployeeID generic.EmployeeID
	Range      generic.DateRange
	Now        time.Time
	Location   *time.Location
	Schedule   attendance.WeeklySchedule
	Exempt     generic.DateSet
	Events     []generic.ClockEvent
}

// DailyTally is one computed day.
type DailyTally struct {
	Date           generic.Date    `json:"date"`
	WorkedMinutes  generic.Minutes `json:"worked_minutes"`
	TargetMinutes  generic.Minutes `json:"target_minutes"`
	DayBalance     generic.Minutes `json:"day_balance_minutes"`
	RawBalance     generic.Minutes `json:"raw_balance_minutes"`
	Exempt         bool            `json:"exempt"`
	WorkedSaturday bool            `json:"worked_saturday"`
}

// Result is the accounting summary for a range.
type Result struct {
	EmployeeID         generic.EmployeeID
	Range              generic.DateRange
	TotalWorkedMinutes generic.Minutes
	BankBalanceMinutes generic.Minutes

	// Live view, only meaningful when TodayInRange
	TodayInRange            bool
	WorkedMinutesToday      generic.Minutes
	TargetMinutesToday      generic.Minutes
	CurrentStatus           Status
	ElapsedInCurrentSegment generic.Minutes

	Days []DailyTally
}

// Compute derives worked time, targets and the bank balance for in.Range.
// Days after today (in in.Location) are skipped; today is included with
// open intervals credited up to in.Now.
func Compute(in Input) (Result, error) {
	if err := in.Range.Validate(); err != nil {
		return Result{}, err
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	if in.Exempt == nil {
		in.Exempt = generic.NewDateSet()
	}

	byDay := groupByDay(in.Events, loc)
	today := generic.DateIn(in.Now, loc)

	result := Result{EmployeeID: in.EmployeeID, Range: in.Range}
	effective, ok := in.Range.Clip(today)
	if !ok {
		return result, nil
	}

	for _, d := range effective.Days() {
		entry, _ := in.Schedule.Entry(d.Weekday())
		work := PairDay(byDay[d], d, entry, in.Now, loc)

		saturday := d.SaturdayOfWeek()
		workedSaturday := WorkedSaturday(byDay[saturday], saturday, loc)
		target := DailyTarget(d, in.Schedule, in.Exempt, workedSaturday)

		raw := work.WorkedMinutes - target
		tally := DailyTally{
			Date:           d,
			WorkedMinutes:  work.WorkedMinutes,
			TargetMinutes:  target,
			RawBalance:     raw,
			DayBalance:     ApplyTolerance(raw),
			Exempt:         in.Exempt.Contains(d),
			WorkedSaturday: workedSaturday,
		}
		result.Days = append(result.Days, tally)
		result.TotalWorkedMinutes += tally.WorkedMinutes
		result.BankBalanceMinutes += tally.DayBalance

		if d == today {
			result.TodayInRange = true
			result.WorkedMinutesToday = work.WorkedMinutes
			result.TargetMinutesToday = target
			result.CurrentStatus = work.Status
			result.ElapsedInCurrentSegment = work.Elapsed
		}
	}

	return result, nil
}

// groupByDay buckets events by calendar day in loc, each bucket sorted by
// timestamp.
func groupByDay(events []generic.ClockEvent, loc *time.Location) map[generic.Date][]generic.ClockEvent {
	sorted := make([]generic.ClockEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	byDay := make(map[generic.Date][]generic.ClockEvent)
	for _, ev := range sorted {
		d := generic.DateIn(ev.Timestamp, loc)
		byDay[d] = append(byDay[d], ev)
	}
	return byDay
}
