/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	data for demos. Each scenario creates a tenant policy, employees with
	schedules and zones, and a week of clock events that show a specific
	accounting rule.

AVAILABLE SCENARIOS:

	standard-week:         Mon-Fri office hours; Monday ends 3 minutes late
	                       with a 5-minute coffee break (8h05, bank 0)
	saturday-compression:  528-minute weekdays plus a Saturday morning;
	                       weekday targets drop to 480
	field-team:            Strict flow, enforced geofence, home + depot
	                       zones, a holiday and an approved absence

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Save tenant settings through the profile factory
 3. Create employees
 4. Append the previous week's events directly to the log

	Seeded events are historical data and skip the validator.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "standard-week"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - factory/policy.go: Settings and schedule JSON
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/factory"
	"github.com/warp/timeclock/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "standard-week",
		Name:        "Standard Week",
		Description: "Office hours Mon-Fri; Monday 8h05 with a short coffee break stays inside the tolerance band",
	},
	{
		ID:          "saturday-compression",
		Name:        "Saturday Compression",
		Description: "Long weekdays compressed to 8h because the employee worked Saturday morning",
	},
	{
		ID:          "field-team",
		Name:        "Field Team",
		Description: "Strict sequencing, enforced geofence with home and depot zones, holiday and absence",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if err == errUnknownScenario {
			writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

var errUnknownScenario = fmt.Errorf("unknown scenario")

// LoadScenarioByID resets the store and loads id. Used at startup.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	return h.loadScenario(ctx, id)
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var loader func(context.Context) error
	switch id {
	case "standard-week":
		loader = h.loadStandardWeekScenario
	case "saturday-compression":
		loader = h.loadSaturdayCompressionScenario
	case "field-team":
		loader = h.loadFieldTeamScenario
	default:
		return errUnknownScenario
	}

	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	if err := loader(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// lastWeek returns Monday of the week before now, in loc.
func (h *Handler) lastWeek(loc *time.Location) generic.Date {
	return generic.DateIn(h.Accounting.Now(), loc).WeekStart().AddDays(-7)
}

func (h *Handler) loadStandardWeekScenario(ctx context.Context) error {
	loc, err := h.saveTenant(ctx, "acme", factory.TenantSettingsJSON{
		StrictFlow: true,
		Timezone:   "America/Sao_Paulo",
	})
	if err != nil {
		return err
	}

	emp, err := h.saveEmployee(ctx, "emp-001", "acme", "Alice Johnson",
		factory.OfficeHoursJSON("08:00", "12:00", "13:00", "17:00"),
		&factory.ZonesJSON{Home: &factory.ZoneJSON{Name: "HQ", Lat: -23.5614, Lon: -46.6559, RadiusMeters: 150}})
	if err != nil {
		return err
	}

	monday := h.lastWeek(loc)
	days := []punches{
		// 08:00-10:00, 5 min coffee, 10:05-12:05, lunch, 13:00-17:03
		{"08:00", "10:00", "10:05", "12:05", "13:00", "17:03"},
		{"08:00", "", "", "12:00", "13:00", "17:00"},
		{"07:58", "", "", "12:00", "13:00", "17:05"},
		{"08:00", "", "", "12:00", "13:00", "16:40"},
		{"08:00", "", "", "12:00", "13:00", "17:00"},
	}
	for i, p := range days {
		if err := h.seedDay(ctx, emp, monday.AddDays(i), loc, p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadSaturdayCompressionScenario(ctx context.Context) error {
	loc, err := h.saveTenant(ctx, "acme", factory.TenantSettingsJSON{Timezone: "America/Sao_Paulo"})
	if err != nil {
		return err
	}

	// 4h + 4h48 = 528 minutes on weekdays, Saturday unset
	emp, err := h.saveEmployee(ctx, "emp-002", "acme", "Bob Smith",
		factory.OfficeHoursJSON("07:30", "11:30", "12:30", "17:18"), nil)
	if err != nil {
		return err
	}

	monday := h.lastWeek(loc)
	for i := 0; i < 5; i++ {
		if err := h.seedDay(ctx, emp, monday.AddDays(i), loc, punches{"07:30", "", "", "11:30", "12:30", "16:30"}); err != nil {
			return err
		}
	}
	return h.seedDay(ctx, emp, monday.AddDays(5), loc, punches{"08:00", "", "", "", "", "12:00"})
}

func (h *Handler) loadFieldTeamScenario(ctx context.Context) error {
	loc, err := h.saveTenant(ctx, "fieldco", factory.TenantSettingsJSON{
		GeofenceEnforced: true,
		StrictFlow:       true,
		Timezone:         "America/Sao_Paulo",
	})
	if err != nil {
		return err
	}

	zones := &factory.ZonesJSON{
		Home:  &factory.ZoneJSON{Name: "Head Office", Lat: -23.5505, Lon: -46.6333, RadiusMeters: 100},
		Extra: []factory.ZoneJSON{{Name: "North Depot", Lat: -23.4800, Lon: -46.6000, RadiusMeters: 250}},
	}
	carla, err := h.saveEmployee(ctx, "emp-003", "fieldco", "Carla Mendes",
		factory.OfficeHoursJSON("08:00", "12:00", "13:00", "17:00"), zones)
	if err != nil {
		return err
	}
	diego, err := h.saveEmployee(ctx, "emp-004", "fieldco", "Diego Rocha",
		factory.OfficeHoursJSON("09:00", "13:00", "14:00", "18:00"), zones)
	if err != nil {
		return err
	}

	monday := h.lastWeek(loc)
	if err := h.Store.SaveHoliday(ctx, generic.Holiday{
		ID: "hol-fieldco-1", TenantID: "fieldco", Date: monday.AddDays(2), Name: "Company Day",
	}); err != nil {
		return err
	}
	if err := h.Store.SaveAbsence(ctx, attendance.Absence{
		ID: "abs-emp-004-1", EmployeeID: diego.ID,
		Range:  generic.DateRange{From: monday.AddDays(3), To: monday.AddDays(4)},
		Reason: "medical",
	}); err != nil {
		return err
	}

	for _, i := range []int{0, 1, 3, 4} {
		if err := h.seedDay(ctx, carla, monday.AddDays(i), loc, punches{"08:00", "", "", "12:00", "13:00", "17:00"}); err != nil {
			return err
		}
	}
	for _, i := range []int{0, 1} {
		if err := h.seedDay(ctx, diego, monday.AddDays(i), loc, punches{"09:00", "10:30", "10:40", "13:00", "14:00", "18:00"}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO HELPERS
// =============================================================================

// punches are local "HH:MM" times for CLOCK_IN, BREAK_OUT_SHORT,
// BREAK_IN_SHORT, BREAK_OUT_LONG, BREAK_IN_LONG, CLOCK_OUT. Empty entries
// are skipped.
type punches [6]string

func (h *Handler) saveTenant(ctx context.Context, id generic.TenantID, settings factory.TenantSettingsJSON) (*time.Location, error) {
	policy, err := h.Profiles.TenantSettingsFromJSON(settings)
	if err != nil {
		return nil, err
	}
	if err := h.Store.SaveTenantPolicy(ctx, id, policy); err != nil {
		return nil, err
	}
	return policy.Location(), nil
}

func (h *Handler) saveEmployee(ctx context.Context, id, tenantID, name, scheduleJSON string, zones *factory.ZonesJSON) (attendance.Employee, error) {
	emp := attendance.Employee{
		ID:       generic.EmployeeID(id),
		TenantID: generic.TenantID(tenantID),
		Name:     name,
	}
	var err error
	if emp.Schedule, err = h.Profiles.ParseSchedule(scheduleJSON); err != nil {
		return emp, err
	}
	if zones != nil {
		if emp.Zones, err = h.Profiles.ZonesFromJSON(*zones); err != nil {
			return emp, err
		}
	}
	return emp, h.Store.SaveEmployee(ctx, emp)
}

func (h *Handler) seedDay(ctx context.Context, emp attendance.Employee, d generic.Date, loc *time.Location, p punches) error {
	var coord *generic.Coordinate
	zone := generic.ZoneUnrestricted
	if emp.Zones.Home != nil {
		coord = &emp.Zones.Home.Center
		zone = emp.Zones.Home.Name
	}

	for i, hhmm := range p {
		if hhmm == "" {
			continue
		}
		tod, err := attendance.ParseTimeOfDay(hhmm)
		if err != nil {
			return err
		}
		kind := generic.AllKinds[i]
		ev := generic.ClockEvent{
			ID:          generic.EventID(fmt.Sprintf("scn-%s-%s-%d", emp.ID, d, i)),
			TenantID:    emp.TenantID,
			EmployeeID:  emp.ID,
			Timestamp:   d.At(tod.Minute(), loc),
			Kind:        kind,
			Coordinate:  coord,
			ZoneMatched: zone,
		}
		if err := h.Store.Append(ctx, ev); err != nil {
			return fmt.Errorf("seed %s %s: %w", emp.ID, kind, err)
		}
	}
	return nil
}
