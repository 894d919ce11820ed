/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  attendance/accounting types so the wire contract can evolve on its own.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Clock events:
    SubmitEventRequest, SubmitEventResponse, EventDTO

  Accounting:
    AccountingDTO, DailyTallyDTO

  Profiles:
    EmployeeDTO, CreateEmployeeRequest, AbsenceRequest, HolidayDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

HOURS:
  Minute amounts are also rendered as decimal hours (shopspring/decimal,
  two places) and as a signed "+8h05" label for display.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: Schedule/zone/settings JSON types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/accounting"
	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/factory"
	"github.com/warp/timeclock/generic"
)

// =============================================================================
// CLOCK EVENTS
// =============================================================================

// CoordinateDTO is a WGS84 position.
type CoordinateDTO struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SubmitEventRequest is the body of POST /api/employees/{id}/events.
// Photo is base64 in JSON.
type SubmitEventRequest struct {
	Kind           string         `json:"kind"`
	Coordinate     *CoordinateDTO `json:"coordinate,omitempty"`
	Photo          []byte         `json:"photo,omitempty"`
	DeviceTime     *time.Time     `json:"device_time,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// SubmitEventResponse reports acceptance or the rejection kind.
type SubmitEventResponse struct {
	Accepted    bool      `json:"accepted"`
	EventID     string    `json:"event_id,omitempty"`
	ZoneMatched string    `json:"zone_matched,omitempty"`
	Timestamp   string    `json:"timestamp,omitempty"`
	Address     string    `json:"address,omitempty"`
	Replayed    bool      `json:"replayed,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	Expected    []string  `json:"expected,omitempty"`
	DistanceM   *float64  `json:"distance_meters,omitempty"`
	RetryAfter  *float64  `json:"retry_after_seconds,omitempty"`
	Event       *EventDTO `json:"event,omitempty"`
}

// EventDTO is one clock event in API responses.
type EventDTO struct {
	ID            string         `json:"id"`
	EmployeeID    string         `json:"employee_id"`
	Kind          string         `json:"kind"`
	Timestamp     string         `json:"timestamp"`
	LocalTime     string         `json:"local_time"`
	Coordinate    *CoordinateDTO `json:"coordinate,omitempty"`
	ZoneMatched   string         `json:"zone_matched,omitempty"`
	PhotoProvided bool           `json:"photo_provided"`
	Address       string         `json:"address,omitempty"`
	DeviceTime    string         `json:"device_time,omitempty"`
}

// =============================================================================
// ACCOUNTING
// =============================================================================

// AccountingDTO is the response of GET /api/employees/{id}/accounting.
type AccountingDTO struct {
	EmployeeID string `json:"employee_id"`
	From       string `json:"from"`
	To         string `json:"to"`

	TotalWorkedMinutes int             `json:"total_worked_minutes"`
	TotalWorkedHours   decimal.Decimal `json:"total_worked_hours"`
	BankBalanceMinutes int             `json:"bank_balance_minutes"`
	BankBalanceHours   decimal.Decimal `json:"bank_balance_hours"`
	BankBalanceLabel   string          `json:"bank_balance_label"`

	TodayInRange            bool   `json:"today_in_range"`
	WorkedMinutesToday      int    `json:"worked_minutes_today"`
	TargetMinutesToday      int    `json:"target_minutes_today"`
	CurrentStatus           string `json:"current_status"`
	ElapsedInCurrentSegment int    `json:"elapsed_in_current_segment_minutes"`

	Days []DailyTallyDTO `json:"days"`
}

// DailyTallyDTO is one day of the accounting breakdown.
type DailyTallyDTO struct {
	Date           string `json:"date"`
	Weekday        string `json:"weekday"`
	WorkedMinutes  int    `json:"worked_minutes"`
	TargetMinutes  int    `json:"target_minutes"`
	DayBalance     int    `json:"day_balance_minutes"`
	DayBalanceText string `json:"day_balance_label"`
	Exempt         bool   `json:"exempt,omitempty"`
	WorkedSaturday bool   `json:"worked_saturday,omitempty"`
}

// =============================================================================
// PROFILES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID       string               `json:"id"`
	TenantID string               `json:"tenant_id"`
	Name     string               `json:"name"`
	Schedule factory.ScheduleJSON `json:"schedule"`
	Zones    factory.ZonesJSON    `json:"zones"`
}

// CreateEmployeeRequest creates or replaces an employee profile.
type CreateEmployeeRequest struct {
	ID       string               `json:"id"`
	TenantID string               `json:"tenant_id"`
	Name     string               `json:"name"`
	Schedule factory.ScheduleJSON `json:"schedule,omitempty"`
	Zones    *factory.ZonesJSON   `json:"zones,omitempty"`
}

// AbsenceRequest records an approved absence.
type AbsenceRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// HolidayDTO represents a holiday.
type HolidayDTO struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id,omitempty"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// PhotoRequest enrolls a reference photo (base64 in JSON).
type PhotoRequest struct {
	Photo []byte `json:"photo"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEventDTO(ev generic.ClockEvent, loc *time.Location) EventDTO {
	dto := EventDTO{
		ID:            string(ev.ID),
		EmployeeID:    string(ev.EmployeeID),
		Kind:          string(ev.Kind),
		Timestamp:     ev.Timestamp.UTC().Format(time.RFC3339),
		LocalTime:     ev.Timestamp.In(loc).Format(time.RFC3339),
		ZoneMatched:   ev.ZoneMatched,
		PhotoProvided: ev.PhotoProvided,
		Address:       ev.Address,
	}
	if ev.Coordinate != nil {
		dto.Coordinate = &CoordinateDTO{Lat: ev.Coordinate.Lat, Lon: ev.Coordinate.Lon}
	}
	if ev.DeviceTime != nil {
		dto.DeviceTime = ev.DeviceTime.Format(time.RFC3339)
	}
	return dto
}

func toAccountingDTO(res accounting.Result) AccountingDTO {
	dto := AccountingDTO{
		EmployeeID:              string(res.EmployeeID),
		From:                    res.Range.From.String(),
		To:                      res.Range.To.String(),
		TotalWorkedMinutes:      int(res.TotalWorkedMinutes),
		TotalWorkedHours:        res.TotalWorkedMinutes.Hours(),
		BankBalanceMinutes:      int(res.BankBalanceMinutes),
		BankBalanceHours:        res.BankBalanceMinutes.Hours(),
		BankBalanceLabel:        res.BankBalanceMinutes.String(),
		TodayInRange:            res.TodayInRange,
		WorkedMinutesToday:      int(res.WorkedMinutesToday),
		TargetMinutesToday:      int(res.TargetMinutesToday),
		CurrentStatus:           string(res.CurrentStatus),
		ElapsedInCurrentSegment: int(res.ElapsedInCurrentSegment),
		Days:                    make([]DailyTallyDTO, len(res.Days)),
	}
	for i, d := range res.Days {
		dto.Days[i] = DailyTallyDTO{
			Date:           d.Date.String(),
			Weekday:        d.Date.Weekday().String(),
			WorkedMinutes:  int(d.WorkedMinutes),
			TargetMinutes:  int(d.TargetMinutes),
			DayBalance:     int(d.DayBalance),
			DayBalanceText: d.DayBalance.String(),
			Exempt:         d.Exempt,
			WorkedSaturday: d.WorkedSaturday,
		}
	}
	return dto
}

func toEmployeeDTO(f *factory.ProfileFactory, emp attendance.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:       string(emp.ID),
		TenantID: string(emp.TenantID),
		Name:     emp.Name,
		Schedule: f.ScheduleToJSON(emp.Schedule),
		Zones:    f.ZonesToJSON(emp.Zones),
	}
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		TenantID:  string(h.TenantID),
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}
