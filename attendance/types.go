// Package attendance implements the clock-event side of the time clock:
// employee profiles (zones, weekly schedule), tenant policy, and the
// validator that decides whether a submission may be appended to the log.
package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/timeclock/generic"
)

// =============================================================================
// TIME OF DAY
// =============================================================================

// TimeOfDay is a wall-clock time as minutes after midnight (0..1439).
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay { return TimeOfDay(hour*60 + minute) }

// ParseTimeOfDay accepts "HH:MM" (and "HH:MM:SS", seconds ignored).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q (use HH:MM)", s)
}

func (t TimeOfDay) Minute() int { return int(t) }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	parsed, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MinuteOfDay returns t's minutes after midnight in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Hour()*60 + t.Minute()
}

// =============================================================================
// WEEKLY SCHEDULE
// =============================================================================

// ScheduleEntry is the contracted blocks for one weekday. Either block may
// be absent.
type ScheduleEntry struct {
	Active         bool
	MorningStart   *TimeOfDay
	MorningEnd     *TimeOfDay
	AfternoonStart *TimeOfDay
	AfternoonEnd   *TimeOfDay
}

// blockMinutes is (end - start) mod 1440 so an overnight block
// (22:00-06:00) counts 480.
func blockMinutes(start, end *TimeOfDay) int {
	if start == nil || end == nil {
		return 0
	}
	d := (int(*end) - int(*start)) % 1440
	if d < 0 {
		d += 1440
	}
	return d
}

// HasBlocks reports whether at least one complete block is configured.
func (e ScheduleEntry) HasBlocks() bool {
	return (e.MorningStart != nil && e.MorningEnd != nil) ||
		(e.AfternoonStart != nil && e.AfternoonEnd != nil)
}

// ConfiguredMinutes sums both blocks; zero for an inactive day.
func (e ScheduleEntry) ConfiguredMinutes() generic.Minutes {
	if !e.Active {
		return 0
	}
	return generic.Minutes(blockMinutes(e.MorningStart, e.MorningEnd) + blockMinutes(e.AfternoonStart, e.AfternoonEnd))
}

// WeeklySchedule maps weekday to its entry. A weekday missing from the map
// has no schedule at all ("unset"), which is different from an inactive day.
type WeeklySchedule map[time.Weekday]ScheduleEntry

// Entry returns the weekday's entry and whether one is configured.
func (w WeeklySchedule) Entry(day time.Weekday) (ScheduleEntry, bool) {
	e, ok := w[day]
	return e, ok
}

// StandardSchedule builds a Monday-Friday two-block schedule.
func StandardSchedule(morningStart, morningEnd, afternoonStart, afternoonEnd TimeOfDay) WeeklySchedule {
	w := make(WeeklySchedule, 5)
	for day := time.Monday; day <= time.Friday; day++ {
		ms, me, as, ae := morningStart, morningEnd, afternoonStart, afternoonEnd
		w[day] = ScheduleEntry{Active: true, MorningStart: &ms, MorningEnd: &me, AfternoonStart: &as, AfternoonEnd: &ae}
	}
	return w
}

// =============================================================================
// GEO ZONES
// =============================================================================

// DefaultRadiusMeters applies when a zone's radius is unset or <= 0.
const DefaultRadiusMeters = 100.0

type GeoZone struct {
	Name         string
	Center       generic.Coordinate
	RadiusMeters float64
}

// Radius returns the effective radius.
func (z GeoZone) Radius() float64 {
	if z.RadiusMeters <= 0 {
		return DefaultRadiusMeters
	}
	return z.RadiusMeters
}

// ZoneSet is an employee's authorized zones: a home base plus extra zones,
// or FreeRoaming to bypass geofencing.
type ZoneSet struct {
	Home        *GeoZone
	Extra       []GeoZone
	FreeRoaming bool
}

// =============================================================================
// TENANT POLICY
// =============================================================================

// TenantPolicy is the typed tenant configuration the validator consumes.
// factory.ParseTenantSettings produces it from the stored JSON.
type TenantPolicy struct {
	GeofenceEnforced bool
	PhotoRequired    bool
	StrictFlow       bool
	Timezone         string // IANA name; empty = UTC
}

// Location resolves Timezone, falling back to UTC.
func (p TenantPolicy) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// =============================================================================
// EMPLOYEE PROFILE & COLLABORATORS
// =============================================================================

// Employee is the read-only profile the core needs. It is owned by an
// administrative collaborator.
type Employee struct {
	ID       generic.EmployeeID
	TenantID generic.TenantID
	Name     string
	Zones    ZoneSet
	Schedule WeeklySchedule
}

// Absence is an approved absence range. Every day in it is exempt.
type Absence struct {
	ID         string
	EmployeeID generic.EmployeeID
	Range      generic.DateRange
	Reason     string
}

// Directory resolves employees and tenant policy.
type Directory interface {
	Employee(ctx context.Context, id generic.EmployeeID) (*Employee, error)
	TenantPolicy(ctx context.Context, tenantID generic.TenantID) (TenantPolicy, error)
}

// AbsenceSource lists approved absences overlapping a range.
type AbsenceSource interface {
	ApprovedAbsences(ctx context.Context, employeeID generic.EmployeeID, r generic.DateRange) ([]Absence, error)
}

// ReferencePhotos returns the employee's enrolled reference photo, or nil
// when none exists.
type ReferencePhotos interface {
	ReferencePhoto(ctx context.Context, employeeID generic.EmployeeID) ([]byte, error)
}

// FaceMatcher is the external biometric oracle.
type FaceMatcher interface {
	Compare(ctx context.Context, reference, submitted []byte) (bool, error)
}

// Geocoder resolves a human-readable address for a coordinate.
type Geocoder interface {
	Reverse(ctx context.Context, c generic.Coordinate) (string, error)
}
