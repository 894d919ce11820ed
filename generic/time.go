package generic

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day, independent of clock time
// =============================================================================

// Date is a calendar day. Clock events are instants; everything the
// accounting engine does is keyed by the calendar day an instant falls on
// in the tenant's location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// DateIn returns the calendar day of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(t.In(loc))
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Start returns midnight of the day in loc.
func (d Date) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// At returns the instant of the given minute-of-day on d in loc.
func (d Date) At(minuteOfDay int, loc *time.Location) time.Time {
	return d.Start(loc).Add(time.Duration(minuteOfDay) * time.Minute)
}

func (d Date) utc() time.Time { return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC) }

// Comparison
func (d Date) Before(o Date) bool        { return d.utc().Before(o.utc()) }
func (d Date) After(o Date) bool         { return d.utc().After(o.utc()) }
func (d Date) Equal(o Date) bool         { return d == o }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) IsZero() bool              { return d == Date{} }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.utc().AddDate(0, 0, n)) }

func (d Date) Weekday() time.Weekday { return d.utc().Weekday() }
func (d Date) IsSaturday() bool      { return d.Weekday() == time.Saturday }
func (d Date) IsSunday() bool        { return d.Weekday() == time.Sunday }

// IsWeekday reports Monday through Friday.
func (d Date) IsWeekday() bool { return !d.IsSaturday() && !d.IsSunday() }

func (d Date) String() string { return d.utc().Format(dateLayout) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// ISO WEEK - Monday-start week
// =============================================================================

// WeekStart returns the Monday of d's ISO week.
func (d Date) WeekStart() Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// WeekEnd returns the Sunday of d's ISO week.
func (d Date) WeekEnd() Date { return d.WeekStart().AddDays(6) }

// SaturdayOfWeek returns the Saturday of d's ISO week.
func (d Date) SaturdayOfWeek() Date { return d.WeekStart().AddDays(5) }

// DaysBetween counts calendar days from -> to (negative when to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.utc().Sub(from.utc()).Hours() / 24)
}

// =============================================================================
// DATE SET - Exempt dates (holidays and approved absences)
// =============================================================================

type DateSet map[Date]struct{}

func NewDateSet(dates ...Date) DateSet {
	s := make(DateSet, len(dates))
	for _, d := range dates {
		s.Add(d)
	}
	return s
}

func (s DateSet) Add(d Date) { s[d] = struct{}{} }

// AddRange adds every day of r.
func (s DateSet) AddRange(r DateRange) {
	for _, d := range r.Days() {
		s.Add(d)
	}
}

func (s DateSet) Contains(d Date) bool {
	_, ok := s[d]
	return ok
}

// =============================================================================
// HOLIDAY CALENDAR - Company-specific holidays
// =============================================================================

// Holiday is a tenant holiday. Its target is always zero.
type Holiday struct {
	ID        string
	TenantID  TenantID // empty = applies to every tenant
	Date      Date
	Name      string
	Recurring bool // same month/day every year
}

// Matches reports whether the holiday falls on d.
func (h Holiday) Matches(d Date) bool {
	if h.Recurring {
		return h.Date.Month == d.Month && h.Date.Day == d.Day
	}
	return h.Date == d
}

// HolidayCalendar provides holiday lookup for a tenant.
type HolidayCalendar interface {
	// HolidaysInRange returns the tenant's (and global) holidays that fall
	// inside r, with recurring holidays projected onto each year of r.
	HolidaysInRange(ctx context.Context, tenantID TenantID, r DateRange) ([]Holiday, error)
}

// ProjectHolidays expands a holiday list onto the concrete dates of r.
func ProjectHolidays(holidays []Holiday, r DateRange) []Holiday {
	var out []Holiday
	for _, d := range r.Days() {
		for _, h := range holidays {
			if h.Matches(d) {
				projected := h
				projected.Date = d
				out = append(out, projected)
			}
		}
	}
	return out
}
