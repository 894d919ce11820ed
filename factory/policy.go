/*
Package factory provides JSON to Go conversion for tenant settings and
employee profiles.

PURPOSE:
  Tenant settings and employee schedules/zones are stored and exchanged as
  JSON documents. The factory validates them and produces the typed
  attendance.TenantPolicy, attendance.WeeklySchedule and attendance.ZoneSet
  the core consumes. Nothing downstream reads raw JSON.

JSON SCHEMA:
  Tenant settings:
  {
    "geofence_enforced": true,
    "photo_required": false,
    "strict_flow": true,
    "timezone": "America/Sao_Paulo"
  }

  Weekly schedule (weekday keys are lowercase English names):
  {
    "monday":   {"active": true, "morning_start": "08:00", "morning_end": "12:00",
                 "afternoon_start": "13:00", "afternoon_end": "17:00"},
    "saturday": {"active": false}
  }

  Zones:
  {
    "home":  {"name": "HQ", "lat": -23.55, "lon": -46.63, "radius_meters": 150},
    "extra": [{"name": "Depot", "lat": -23.60, "lon": -46.70}],
    "free_roaming": false
  }

KEY FEATURES:
  - Unknown weekday keys and malformed times are rejected
  - A block needs both start and end
  - Radius <= 0 falls back to the 100 m default at match time
  - Timezones are checked with time.LoadLocation

USAGE:
  f := factory.NewProfileFactory()
  policy, err := f.ParseTenantSettings(raw)
  schedule, err := f.ParseSchedule(raw)

SEE ALSO:
  - attendance/types.go: the typed structures
  - store/sqlite, store/postgres: persist these documents as JSON columns
*/
package factory

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// TenantSettingsJSON is the JSON representation of a tenant's policy.
type TenantSettingsJSON struct {
	GeofenceEnforced bool   `json:"geofence_enforced"`
	PhotoRequired    bool   `json:"photo_required"`
	StrictFlow       bool   `json:"strict_flow"`
	Timezone         string `json:"timezone,omitempty"`
}

// ScheduleEntryJSON is one weekday. Times are "HH:MM".
type ScheduleEntryJSON struct {
	Active         bool   `json:"active"`
	MorningStart   string `json:"morning_start,omitempty"`
	MorningEnd     string `json:"morning_end,omitempty"`
	AfternoonStart string `json:"afternoon_start,omitempty"`
	AfternoonEnd   string `json:"afternoon_end,omitempty"`
}

// ScheduleJSON maps lowercase weekday names to entries.
type ScheduleJSON map[string]ScheduleEntryJSON

// ZoneJSON is one geofence circle.
type ZoneJSON struct {
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	RadiusMeters float64 `json:"radius_meters,omitempty"`
}

// ZonesJSON is an employee's authorized zones.
type ZonesJSON struct {
	Home        *ZoneJSON  `json:"home,omitempty"`
	Extra       []ZoneJSON `json:"extra,omitempty"`
	FreeRoaming bool       `json:"free_roaming,omitempty"`
}

// =============================================================================
// PROFILE FACTORY
// =============================================================================

// ProfileFactory converts JSON settings and profiles to typed values.
type ProfileFactory struct {
	// DefaultTimezone applies to tenants whose settings omit one.
	DefaultTimezone string
}

// NewProfileFactory creates a factory with UTC as the default timezone.
func NewProfileFactory() *ProfileFactory {
	return &ProfileFactory{DefaultTimezone: "UTC"}
}

// ParseTenantSettings parses a JSON string into a TenantPolicy.
func (f *ProfileFactory) ParseTenantSettings(jsonStr string) (attendance.TenantPolicy, error) {
	var tj TenantSettingsJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return attendance.TenantPolicy{}, fmt.Errorf("failed to parse tenant settings JSON: %w", err)
	}
	return f.TenantSettingsFromJSON(tj)
}

// TenantSettingsFromJSON validates tj and converts it.
func (f *ProfileFactory) TenantSettingsFromJSON(tj TenantSettingsJSON) (attendance.TenantPolicy, error) {
	tz := tj.Timezone
	if tz == "" {
		tz = f.DefaultTimezone
	}
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return attendance.TenantPolicy{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
	}
	return attendance.TenantPolicy{
		GeofenceEnforced: tj.GeofenceEnforced,
		PhotoRequired:    tj.PhotoRequired,
		StrictFlow:       tj.StrictFlow,
		Timezone:         tz,
	}, nil
}

// TenantSettingsToJSON converts a TenantPolicy back to its JSON form.
func (f *ProfileFactory) TenantSettingsToJSON(p attendance.TenantPolicy) TenantSettingsJSON {
	return TenantSettingsJSON{
		GeofenceEnforced: p.GeofenceEnforced,
		PhotoRequired:    p.PhotoRequired,
		StrictFlow:       p.StrictFlow,
		Timezone:         p.Timezone,
	}
}

// ParseSchedule parses a JSON string into a WeeklySchedule. An empty
// document yields an empty schedule (every weekday unset).
func (f *ProfileFactory) ParseSchedule(jsonStr string) (attendance.WeeklySchedule, error) {
	if strings.TrimSpace(jsonStr) == "" {
		return attendance.WeeklySchedule{}, nil
	}
	var sj ScheduleJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return nil, fmt.Errorf("failed to parse schedule JSON: %w", err)
	}
	return f.ScheduleFromJSON(sj)
}

// ScheduleFromJSON validates sj and converts it.
func (f *ProfileFactory) ScheduleFromJSON(sj ScheduleJSON) (attendance.WeeklySchedule, error) {
	schedule := make(attendance.WeeklySchedule, len(sj))
	for name, ej := range sj {
		day, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		entry, err := parseEntry(ej)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		schedule[day] = entry
	}
	return schedule, nil
}

// ScheduleToJSON converts a WeeklySchedule to its JSON form.
func (f *ProfileFactory) ScheduleToJSON(w attendance.WeeklySchedule) ScheduleJSON {
	sj := make(ScheduleJSON, len(w))
	for day, e := range w {
		sj[strings.ToLower(day.String())] = ScheduleEntryJSON{
			Active:         e.Active,
			MorningStart:   formatTime(e.MorningStart),
			MorningEnd:     formatTime(e.MorningEnd),
			AfternoonStart: formatTime(e.AfternoonStart),
			AfternoonEnd:   formatTime(e.AfternoonEnd),
		}
	}
	return sj
}

// ParseZones parses a JSON string into a ZoneSet.
func (f *ProfileFactory) ParseZones(jsonStr string) (attendance.ZoneSet, error) {
	if strings.TrimSpace(jsonStr) == "" {
		return attendance.ZoneSet{}, nil
	}
	var zj ZonesJSON
	if err := json.Unmarshal([]byte(jsonStr), &zj); err != nil {
		return attendance.ZoneSet{}, fmt.Errorf("failed to parse zones JSON: %w", err)
	}
	return f.ZonesFromJSON(zj)
}

// ZonesFromJSON validates zj and converts it.
func (f *ProfileFactory) ZonesFromJSON(zj ZonesJSON) (attendance.ZoneSet, error) {
	zs := attendance.ZoneSet{FreeRoaming: zj.FreeRoaming}
	if zj.Home != nil {
		z, err := parseZone(*zj.Home, "home")
		if err != nil {
			return attendance.ZoneSet{}, err
		}
		zs.Home = &z
	}
	for i, ej := range zj.Extra {
		z, err := parseZone(ej, fmt.Sprintf("extra zone %d", i+1))
		if err != nil {
			return attendance.ZoneSet{}, err
		}
		zs.Extra = append(zs.Extra, z)
	}
	return zs, nil
}

// ZonesToJSON converts a ZoneSet to its JSON form.
func (f *ProfileFactory) ZonesToJSON(zs attendance.ZoneSet) ZonesJSON {
	zj := ZonesJSON{FreeRoaming: zs.FreeRoaming}
	if zs.Home != nil {
		h := zoneToJSON(*zs.Home)
		zj.Home = &h
	}
	for _, z := range zs.Extra {
		zj.Extra = append(zj.Extra, zoneToJSON(z))
	}
	return zj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseWeekday(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(name, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

func parseEntry(ej ScheduleEntryJSON) (attendance.ScheduleEntry, error) {
	entry := attendance.ScheduleEntry{Active: ej.Active}

	var err error
	if entry.MorningStart, entry.MorningEnd, err = parseBlock(ej.MorningStart, ej.MorningEnd, "morning"); err != nil {
		return entry, err
	}
	if entry.AfternoonStart, entry.AfternoonEnd, err = parseBlock(ej.AfternoonStart, ej.AfternoonEnd, "afternoon"); err != nil {
		return entry, err
	}
	return entry, nil
}

func parseBlock(start, end, label string) (*attendance.TimeOfDay, *attendance.TimeOfDay, error) {
	if start == "" && end == "" {
		return nil, nil, nil
	}
	if start == "" || end == "" {
		return nil, nil, fmt.Errorf("%s block needs both start and end", label)
	}
	s, err := attendance.ParseTimeOfDay(start)
	if err != nil {
		return nil, nil, err
	}
	e, err := attendance.ParseTimeOfDay(end)
	if err != nil {
		return nil, nil, err
	}
	return &s, &e, nil
}

func formatTime(t *attendance.TimeOfDay) string {
	if t == nil {
		return ""
	}
	return t.String()
}

func parseZone(zj ZoneJSON, label string) (attendance.GeoZone, error) {
	if zj.Lat < -90 || zj.Lat > 90 || zj.Lon < -180 || zj.Lon > 180 ||
		math.IsNaN(zj.Lat) || math.IsNaN(zj.Lon) {
		return attendance.GeoZone{}, fmt.Errorf("%s: coordinate out of range (%v, %v)", label, zj.Lat, zj.Lon)
	}
	name := zj.Name
	if name == "" {
		name = label
	}
	return attendance.GeoZone{
		Name:         name,
		Center:       generic.Coordinate{Lat: zj.Lat, Lon: zj.Lon},
		RadiusMeters: zj.RadiusMeters,
	}, nil
}

func zoneToJSON(z attendance.GeoZone) ZoneJSON {
	return ZoneJSON{Name: z.Name, Lat: z.Center.Lat, Lon: z.Center.Lon, RadiusMeters: z.RadiusMeters}
}

// =============================================================================
// PRESETS
// =============================================================================

// OfficeHoursJSON returns a Monday-Friday two-block schedule document.
func OfficeHoursJSON(morningStart, morningEnd, afternoonStart, afternoonEnd string) string {
	sj := ScheduleJSON{}
	for d := time.Monday; d <= time.Friday; d++ {
		sj[strings.ToLower(d.String())] = ScheduleEntryJSON{
			Active:         true,
			MorningStart:   morningStart,
			MorningEnd:     morningEnd,
			AfternoonStart: afternoonStart,
			AfternoonEnd:   afternoonEnd,
		}
	}
	b, _ := json.Marshal(sj)
	return string(b)
}
