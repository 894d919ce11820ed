package accounting_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeclock/accounting"
	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/generic"
	"github.com/warp/timeclock/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	monday   = generic.NewDate(2025, time.March, 10)
	friday   = generic.NewDate(2025, time.March, 14)
	saturday = generic.NewDate(2025, time.March, 15)
	sunday   = generic.NewDate(2025, time.March, 16)
)

func tod(s string) attendance.TimeOfDay {
	t, err := attendance.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// officeHours is 08:00-12:00 / 13:00-17:00 Monday to Friday (480 min).
func officeHours() attendance.WeeklySchedule {
	return attendance.StandardSchedule(tod("08:00"), tod("12:00"), tod("13:00"), tod("17:00"))
}

func at(d generic.Date, hhmm string) time.Time {
	return d.At(tod(hhmm).Minute(), time.UTC)
}

var seq int

func ev(kind generic.EventKind, t time.Time) generic.ClockEvent {
	seq++
	return generic.ClockEvent{
		ID:         generic.EventID(fmt.Sprintf("ev-%d", seq)),
		EmployeeID: "emp-1",
		Kind:       kind,
		Timestamp:  t,
	}
}

func workDay(d generic.Date, in, out string) []generic.ClockEvent {
	return []generic.ClockEvent{
		ev(generic.KindClockIn, at(d, in)),
		ev(generic.KindClockOut, at(d, out)),
	}
}

func singleDay(d generic.Date) generic.DateRange {
	return generic.DateRange{From: d, To: d}
}

// =============================================================================
// DAILY TARGET
// =============================================================================

func TestDailyTarget_ConfiguredWeekday(t *testing.T) {
	target := accounting.DailyTarget(monday, officeHours(), nil, false)
	assert.Equal(t, generic.Minutes(480), target)
}

func TestDailyTarget_ExemptDateIsZero(t *testing.T) {
	exempt := generic.NewDateSet(monday)
	assert.Equal(t, generic.Minutes(0), accounting.DailyTarget(monday, officeHours(), exempt, true))
	assert.Equal(t, generic.Minutes(0), accounting.DailyTarget(monday, officeHours(), exempt, false))
}

func TestDailyTarget_SaturdayCompression(t *testing.T) {
	// GIVEN: Weekdays of 519, 520 and 521 configured minutes
	// WHEN: Saturday of that week was worked
	// THEN: 520 and above drop to 480; 519 is kept as configured

	cases := []struct {
		afternoonEnd string
		configured   generic.Minutes
		compressed   generic.Minutes
	}{
		{"17:39", 519, 519},
		{"17:40", 520, 480},
		{"17:41", 521, 480},
	}
	for _, tc := range cases {
		schedule := attendance.StandardSchedule(tod("08:00"), tod("12:00"), tod("13:00"), tod(tc.afternoonEnd))
		assert.Equal(t, tc.compressed, accounting.DailyTarget(monday, schedule, nil, true), "configured %d, Saturday worked", int(tc.configured))
		assert.Equal(t, tc.configured, accounting.DailyTarget(monday, schedule, nil, false), "configured %d, no Saturday", int(tc.configured))
	}
}

func TestDailyTarget_UnsetWeekdayWithWorkedSaturday(t *testing.T) {
	empty := attendance.WeeklySchedule{}
	assert.Equal(t, generic.Minutes(480), accounting.DailyTarget(monday, empty, nil, true))
	assert.Equal(t, generic.Minutes(0), accounting.DailyTarget(monday, empty, nil, false))
}

func TestDailyTarget_InactiveWeekdayStaysZero(t *testing.T) {
	schedule := officeHours()
	schedule[time.Monday] = attendance.ScheduleEntry{Active: false}
	assert.Equal(t, generic.Minutes(0), accounting.DailyTarget(monday, schedule, nil, true))
}

func TestDailyTarget_Saturday(t *testing.T) {
	// No Saturday block: 240 when worked, 0 otherwise
	assert.Equal(t, generic.Minutes(240), accounting.DailyTarget(saturday, officeHours(), nil, true))
	assert.Equal(t, generic.Minutes(0), accounting.DailyTarget(saturday, officeHours(), nil, false))

	// Explicit Saturday block wins
	schedule := officeHours()
	start, end := tod("08:00"), tod("11:00")
	schedule[time.Saturday] = attendance.ScheduleEntry{Active: true, MorningStart: &start, MorningEnd: &end}
	assert.Equal(t, generic.Minutes(180), accounting.DailyTarget(saturday, schedule, nil, true))
}

func TestDailyTarget_SundayUsesConfigured(t *testing.T) {
	assert.Equal(t, generic.Minutes(0), accounting.DailyTarget(sunday, officeHours(), nil, true))
}

// =============================================================================
// PAIRING
// =============================================================================

func TestPairDay_ShortBreakCreditCapped(t *testing.T) {
	// GIVEN: A 25 minute short break and a 10 minute short break
	// THEN: Credits are 15 and 10

	cases := []struct {
		name   string
		back   string
		credit generic.Minutes
	}{
		{"25 minutes", "10:25", 15},
		{"10 minutes", "10:10", 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := []generic.ClockEvent{
				ev(generic.KindBreakOutShort, at(monday, "10:00")),
				ev(generic.KindBreakInShort, at(monday, tc.back)),
			}
			dw := accounting.PairDay(events, monday, attendance.ScheduleEntry{}, at(sunday, "12:00"), time.UTC)
			assert.Equal(t, tc.credit, dw.BreakCredit)
			assert.Equal(t, generic.Minutes(0), dw.IntervalMinutes)
		})
	}
}

func TestPairDay_LongBreakNotPaid(t *testing.T) {
	events := []generic.ClockEvent{
		ev(generic.KindClockIn, at(monday, "08:00")),
		ev(generic.KindBreakOutLong, at(monday, "12:00")),
		ev(generic.KindBreakInLong, at(monday, "13:00")),
		ev(generic.KindClockOut, at(monday, "17:00")),
	}
	entry, _ := officeHours().Entry(time.Monday)
	dw := accounting.PairDay(events, monday, entry, at(sunday, "12:00"), time.UTC)
	assert.Equal(t, generic.Minutes(480), dw.WorkedMinutes)
}

func TestPairDay_AfternoonGrace(t *testing.T) {
	entry, _ := officeHours().Entry(time.Monday)

	cases := []struct {
		out    string
		worked generic.Minutes
	}{
		{"17:00", 240},
		{"17:01", 240},
		{"17:10", 240},
		{"17:11", 251},
		{"16:55", 235},
	}
	for _, tc := range cases {
		t.Run(tc.out, func(t *testing.T) {
			events := []generic.ClockEvent{
				ev(generic.KindBreakInLong, at(monday, "13:00")),
				ev(generic.KindClockOut, at(monday, tc.out)),
			}
			dw := accounting.PairDay(events, monday, entry, at(sunday, "12:00"), time.UTC)
			assert.Equal(t, tc.worked, dw.WorkedMinutes)
		})
	}
}

func TestPairDay_DiscardsNonPositiveIntervals(t *testing.T) {
	events := []generic.ClockEvent{
		ev(generic.KindClockIn, at(monday, "08:00")),
		ev(generic.KindClockOut, at(monday, "08:00")),
	}
	dw := accounting.PairDay(events, monday, attendance.ScheduleEntry{}, at(sunday, "12:00"), time.UTC)
	assert.Equal(t, generic.Minutes(0), dw.WorkedMinutes)
	assert.Equal(t, 1, dw.DiscardedIntervals)
}

func TestPairDay_TruncatesToWholeMinutes(t *testing.T) {
	events := []generic.ClockEvent{
		ev(generic.KindClockIn, at(monday, "08:00").Add(30*time.Second)),
		ev(generic.KindClockOut, at(monday, "09:00").Add(10*time.Second)),
	}
	dw := accounting.PairDay(events, monday, attendance.ScheduleEntry{}, at(sunday, "12:00"), time.UTC)
	assert.Equal(t, generic.Minutes(59), dw.WorkedMinutes)
}

func TestPairDay_UnclosedPastDayNotCredited(t *testing.T) {
	events := []generic.ClockEvent{ev(generic.KindClockIn, at(monday, "08:00"))}
	dw := accounting.PairDay(events, monday, attendance.ScheduleEntry{}, at(friday, "12:00"), time.UTC)
	assert.Equal(t, generic.Minutes(0), dw.WorkedMinutes)
	assert.False(t, dw.Open)
}

func TestPairDay_LiveStatus(t *testing.T) {
	cases := []struct {
		name    string
		events  []generic.ClockEvent
		now     string
		status  accounting.Status
		worked  generic.Minutes
		elapsed generic.Minutes
	}{
		{
			name:   "not started",
			now:    "07:00",
			status: accounting.StatusNotStarted,
		},
		{
			name:    "working",
			events:  []generic.ClockEvent{ev(generic.KindClockIn, at(monday, "08:00"))},
			now:     "10:30",
			status:  accounting.StatusWorking,
			worked:  150,
			elapsed: 150,
		},
		{
			name: "short break within allowance",
			events: []generic.ClockEvent{
				ev(generic.KindClockIn, at(monday, "08:00")),
				ev(generic.KindBreakOutShort, at(monday, "10:00")),
			},
			now:     "10:12",
			status:  accounting.StatusOnShortBreak,
			worked:  132,
			elapsed: 12,
		},
		{
			name: "short break exceeded",
			events: []generic.ClockEvent{
				ev(generic.KindClockIn, at(monday, "08:00")),
				ev(generic.KindBreakOutShort, at(monday, "10:00")),
			},
			now:     "10:20",
			status:  accounting.StatusOnShortBreakExceeded,
			worked:  135,
			elapsed: 20,
		},
		{
			name: "long break",
			events: []generic.ClockEvent{
				ev(generic.KindClockIn, at(monday, "08:00")),
				ev(generic.KindBreakOutLong, at(monday, "12:00")),
			},
			now:     "12:40",
			status:  accounting.StatusOnLongBreak,
			worked:  240,
			elapsed: 40,
		},
		{
			name:   "clocked out",
			events: workDay(monday, "08:00", "12:00"),
			now:    "18:00",
			status: accounting.StatusClockedOut,
			worked: 240,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dw := accounting.PairDay(tc.events, monday, attendance.ScheduleEntry{}, at(monday, tc.now), time.UTC)
			assert.Equal(t, tc.status, dw.Status)
			assert.Equal(t, tc.worked, dw.WorkedMinutes)
			assert.Equal(t, tc.elapsed, dw.Elapsed)
		})
	}
}

// =============================================================================
// ENGINE
// =============================================================================

func TestCompute_ToleranceBand(t *testing.T) {
	// GIVEN: Target 480
	// WHEN: Worked 490 / 491 / 470 / 469
	// THEN: Balances 0 / +11 / 0 / -11

	cases := []struct {
		out     string
		balance generic.Minutes
	}{
		{"16:10", 0},
		{"16:11", 11},
		{"15:50", 0},
		{"15:49", -11},
	}
	for _, tc := range cases {
		t.Run(tc.out, func(t *testing.T) {
			res, err := accounting.Compute(accounting.Input{
				EmployeeID: "emp-1",
				Range:      singleDay(monday),
				Now:        at(friday, "12:00"),
				Schedule:   officeHours(),
				Events:     workDay(monday, "08:00", tc.out),
			})
			require.NoError(t, err)
			require.Len(t, res.Days, 1)
			assert.Equal(t, tc.balance, res.Days[0].DayBalance)
			assert.Equal(t, tc.balance, res.BankBalanceMinutes)
		})
	}
}

func TestCompute_FullDayScenario(t *testing.T) {
	// GIVEN: Schedule 08:00-12:00 / 13:00-17:00
	//   CLOCK_IN 08:00, short break 10:00-10:05, lunch 12:05-13:00,
	//   CLOCK_OUT 17:03
	// THEN: 120 + 5 + 120 + (243 - 3 grace) = 485 worked, 8h05
	//       +5 balance falls inside tolerance, bank contribution 0

	events := []generic.ClockEvent{
		ev(generic.KindClockIn, at(monday, "08:00")),
		ev(generic.KindBreakOutShort, at(monday, "10:00")),
		ev(generic.KindBreakInShort, at(monday, "10:05")),
		ev(generic.KindBreakOutLong, at(monday, "12:05")),
		ev(generic.KindBreakInLong, at(monday, "13:00")),
		ev(generic.KindClockOut, at(monday, "17:03")),
	}

	res, err := accounting.Compute(accounting.Input{
		EmployeeID: "emp-1",
		Range:      singleDay(monday),
		Now:        at(monday, "20:00"),
		Schedule:   officeHours(),
		Events:     events,
	})
	require.NoError(t, err)

	assert.Equal(t, generic.Minutes(485), res.TotalWorkedMinutes)
	assert.Equal(t, "+8h05", res.TotalWorkedMinutes.String())
	assert.Equal(t, generic.Minutes(480), res.TargetMinutesToday)
	assert.Equal(t, generic.Minutes(5), res.Days[0].RawBalance)
	assert.Equal(t, generic.Minutes(0), res.BankBalanceMinutes)
	assert.True(t, res.TodayInRange)
	assert.Equal(t, accounting.StatusClockedOut, res.CurrentStatus)
}

func TestCompute_SaturdayOutsideRangeStillCompresses(t *testing.T) {
	// GIVEN: 525-minute weekdays, range Mon..Fri, Saturday worked
	// WHEN: No weekday events
	// THEN: Each weekday target is 480 (compressed), bank = -2400

	schedule := attendance.StandardSchedule(tod("08:00"), tod("12:00"), tod("13:00"), tod("17:45"))
	r := generic.DateRange{From: monday, To: friday}

	withSaturday, err := accounting.Compute(accounting.Input{
		Range:    r,
		Now:      at(sunday, "12:00"),
		Schedule: schedule,
		Events:   workDay(saturday, "08:00", "12:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, generic.Minutes(-2400), withSaturday.BankBalanceMinutes)
	assert.Equal(t, generic.Minutes(0), withSaturday.TotalWorkedMinutes)

	without, err := accounting.Compute(accounting.Input{
		Range:    r,
		Now:      at(sunday, "12:00"),
		Schedule: schedule,
	})
	require.NoError(t, err)
	assert.Equal(t, generic.Minutes(-2625), without.BankBalanceMinutes)
}

func TestCompute_FutureDaysSkipped(t *testing.T) {
	res, err := accounting.Compute(accounting.Input{
		Range:    generic.DateRange{From: monday, To: friday},
		Now:      at(generic.NewDate(2025, time.March, 11), "07:00"),
		Schedule: officeHours(),
		Events:   workDay(monday, "08:00", "16:00"),
	})
	require.NoError(t, err)

	require.Len(t, res.Days, 2, "Monday and today (Tuesday) only")
	assert.True(t, res.TodayInRange)
	assert.Equal(t, accounting.StatusNotStarted, res.CurrentStatus)
	assert.Equal(t, generic.Minutes(480), res.TotalWorkedMinutes)
	// Tuesday is -480 so far
	assert.Equal(t, generic.Minutes(-480), res.BankBalanceMinutes)
}

func TestCompute_RangeEntirelyInFuture(t *testing.T) {
	res, err := accounting.Compute(accounting.Input{
		Range:    generic.DateRange{From: monday, To: friday},
		Now:      at(generic.NewDate(2025, time.March, 1), "12:00"),
		Schedule: officeHours(),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Days)
	assert.False(t, res.TodayInRange)
	assert.Equal(t, generic.Minutes(0), res.BankBalanceMinutes)
}

func TestCompute_InvalidRange(t *testing.T) {
	_, err := accounting.Compute(accounting.Input{
		Range: generic.DateRange{From: friday, To: monday},
		Now:   at(sunday, "12:00"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInvalidRange)
}

func TestCompute_DayBalanceClamped(t *testing.T) {
	// A target above a full day cannot push one day past -1440
	schedule := attendance.WeeklySchedule{}
	s1, e1, s2, e2 := tod("00:00"), tod("23:59"), tod("00:00"), tod("23:59")
	schedule[time.Monday] = attendance.ScheduleEntry{Active: true, MorningStart: &s1, MorningEnd: &e1, AfternoonStart: &s2, AfternoonEnd: &e2}

	res, err := accounting.Compute(accounting.Input{
		Range:    singleDay(monday),
		Now:      at(friday, "12:00"),
		Schedule: schedule,
	})
	require.NoError(t, err)
	assert.Equal(t, generic.Minutes(-1440), res.BankBalanceMinutes)
}

func TestCompute_Idempotent(t *testing.T) {
	in := accounting.Input{
		EmployeeID: "emp-1",
		Range:      generic.DateRange{From: monday, To: sunday},
		Now:        at(sunday, "09:00"),
		Schedule:   officeHours(),
		Exempt:     generic.NewDateSet(friday),
		Events: append(append(workDay(monday, "08:00", "17:30"),
			workDay(generic.NewDate(2025, time.March, 12), "09:00", "17:00")...),
			workDay(saturday, "08:00", "12:00")...),
	}

	first, err := accounting.Compute(in)
	require.NoError(t, err)
	second, err := accounting.Compute(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestApplyTolerance(t *testing.T) {
	assert.Equal(t, generic.Minutes(0), accounting.ApplyTolerance(10))
	assert.Equal(t, generic.Minutes(0), accounting.ApplyTolerance(-10))
	assert.Equal(t, generic.Minutes(11), accounting.ApplyTolerance(11))
	assert.Equal(t, generic.Minutes(1440), accounting.ApplyTolerance(5000))
	assert.Equal(t, generic.Minutes(-1440), accounting.ApplyTolerance(-5000))
}

// =============================================================================
// SERVICE
// =============================================================================

func newService(t *testing.T) (*accounting.Service, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.SaveEmployee(ctx, attendance.Employee{
		ID:       "emp-1",
		TenantID: "acme",
		Name:     "Alice",
		Schedule: officeHours(),
	}))

	svc := accounting.NewService(generic.NewLedger(mem), mem, mem, mem)
	svc.Now = func() time.Time { return at(friday, "20:00") }
	return svc, mem
}

func TestService_HolidayAndAbsenceAreExempt(t *testing.T) {
	// GIVEN: Monday is a holiday, Tuesday-Wednesday an approved absence
	// WHEN: Thursday and Friday are worked in full
	// THEN: Bank is 0 and Monday-Wednesday have target 0

	ctx := context.Background()
	svc, mem := newService(t)

	require.NoError(t, mem.SaveHoliday(ctx, generic.Holiday{ID: "h1", TenantID: "acme", Date: monday, Name: "Founders Day"}))
	require.NoError(t, mem.SaveAbsence(ctx, attendance.Absence{
		ID:         "a1",
		EmployeeID: "emp-1",
		Range:      generic.DateRange{From: monday.AddDays(1), To: monday.AddDays(2)},
		Reason:     "medical",
	}))
	ledger := generic.NewLedger(mem)
	for _, e := range append(workDay(monday.AddDays(3), "08:00", "16:00"), workDay(friday, "08:00", "16:00")...) {
		require.NoError(t, ledger.Append(ctx, e))
	}

	res, err := svc.GetAccounting(ctx, "emp-1", monday, friday)
	require.NoError(t, err)

	require.Len(t, res.Days, 5)
	for _, d := range res.Days[:3] {
		assert.True(t, d.Exempt, d.Date.String())
		assert.Equal(t, generic.Minutes(0), d.TargetMinutes)
	}
	assert.Equal(t, generic.Minutes(960), res.TotalWorkedMinutes)
	assert.Equal(t, generic.Minutes(0), res.BankBalanceMinutes)
}

func TestService_UnknownEmployee(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetAccounting(context.Background(), "ghost", monday, friday)
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestService_InvalidRange(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetAccounting(context.Background(), "emp-1", friday, monday)
	assert.ErrorIs(t, err, generic.ErrInvalidRange)
}

func TestService_UsesTenantTimezone(t *testing.T) {
	// GIVEN: Tenant in America/Sao_Paulo (UTC-3)
	// WHEN: Clock in 23:30 UTC Monday = 20:30 local Monday
	// THEN: Worked time lands on Monday local

	ctx := context.Background()
	svc, mem := newService(t)
	require.NoError(t, mem.SaveTenantPolicy(ctx, "acme", attendance.TenantPolicy{Timezone: "America/Sao_Paulo"}))

	ledger := generic.NewLedger(mem)
	require.NoError(t, ledger.Append(ctx, ev(generic.KindClockIn, at(monday, "23:30"))))
	require.NoError(t, ledger.Append(ctx, ev(generic.KindClockOut, at(monday, "23:30").Add(time.Hour))))

	res, err := svc.GetAccounting(ctx, "emp-1", monday, monday)
	require.NoError(t, err)
	assert.Equal(t, generic.Minutes(60), res.TotalWorkedMinutes)
}

// blockingLedger holds EventsIn until release is closed.
type blockingLedger struct {
	generic.Ledger
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingLedger) EventsIn(ctx context.Context, id generic.EmployeeID, r generic.DateRange, loc *time.Location) ([]generic.ClockEvent, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Ledger.EventsIn(ctx, id, r, loc)
}

func TestService_SharedComputationSurvivesCallerCancel(t *testing.T) {
	// GIVEN: Two callers asking for the same range while events load slowly
	// WHEN: The first caller goes away before the load finishes
	// THEN: The first caller sees its own cancellation, the second still
	//       gets a full result

	ctx := context.Background()
	svc, mem := newService(t)
	for _, e := range workDay(monday, "08:00", "16:00") {
		require.NoError(t, mem.Append(ctx, e))
	}
	blocking := &blockingLedger{
		Ledger:  generic.NewLedger(mem),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc.Ledger = blocking

	firstCtx, cancelFirst := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetAccounting(firstCtx, "emp-1", monday, friday)
		firstErr <- err
	}()
	<-blocking.entered

	type outcome struct {
		res accounting.Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := svc.GetAccounting(ctx, "emp-1", monday, friday)
		second <- outcome{res, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(blocking.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, generic.Minutes(480), got.res.TotalWorkedMinutes)
	assert.Len(t, got.res.Days, 5)
}
