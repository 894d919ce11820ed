/*
handlers.go - HTTP API handlers for the time clock

PURPOSE:
  Exposes the attendance validator and the hours accounting engine via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Clock events:
    POST   /api/employees/{id}/events       Submit a clock event
    GET    /api/employees/{id}/events       Event log for ?from=&to=
    GET    /api/employees/{id}/accounting   Hours accounting for ?from=&to=

  Employees:
    GET    /api/employees                   List (optionally ?tenant_id=)
    POST   /api/employees                   Create or replace
    GET    /api/employees/{id}              Get profile
    PUT    /api/employees/{id}/schedule     Replace weekly schedule
    PUT    /api/employees/{id}/zones        Replace authorized zones
    PUT    /api/employees/{id}/photo        Enroll reference photo
    POST   /api/employees/{id}/absences     Record an approved absence

  Tenants & calendar:
    GET    /api/tenants/{id}/settings       Tenant policy
    PUT    /api/tenants/{id}/settings       Replace tenant policy
    GET    /api/holidays                    List (?tenant_id=)
    POST   /api/holidays                    Create
    DELETE /api/holidays/{id}               Delete

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input (bad JSON, unknown kind, bad dates)
  - 404: Unknown employee
  - 422: Validation rejection; body carries error_kind
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/timeclock/accounting"
	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/factory"
	"github.com/warp/timeclock/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the HTTP layer needs from persistence. The memory,
// SQLite and PostgreSQL stores all satisfy it.
type Store interface {
	generic.Store
	generic.HolidayCalendar
	attendance.Directory
	attendance.AbsenceSource
	attendance.ReferencePhotos

	SaveEmployee(ctx context.Context, emp attendance.Employee) error
	ListEmployees(ctx context.Context, tenantID generic.TenantID) ([]attendance.Employee, error)
	SaveTenantPolicy(ctx context.Context, tenantID generic.TenantID, p attendance.TenantPolicy) error
	SaveHoliday(ctx context.Context, h generic.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context, tenantID generic.TenantID) ([]generic.Holiday, error)
	SaveAbsence(ctx context.Context, a attendance.Absence) error
	SaveReferencePhoto(ctx context.Context, id generic.EmployeeID, photo []byte) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Profiles   *factory.ProfileFactory
	Validator  *attendance.Validator
	Accounting *accounting.Service

	mu              sync.RWMutex
	currentScenario string
}

// NewHandler wires the validator and accounting service over store.
func NewHandler(store Store) *Handler {
	ledger := generic.NewLedger(store)
	validator := attendance.NewValidator(ledger, store)
	validator.Photos = store

	return &Handler{
		Store:      store,
		Profiles:   factory.NewProfileFactory(),
		Validator:  validator,
		Accounting: accounting.NewService(ledger, store, store, store),
	}
}

// SetClock replaces the time source of the validator and the accounting
// service. Used by tests and demo scenarios.
func (h *Handler) SetClock(now func() time.Time) {
	h.Validator.Now = now
	h.Accounting.Now = now
}

// =============================================================================
// CLOCK EVENT HANDLERS
// =============================================================================

// SubmitEvent validates and records a clock event.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req SubmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	kind, err := generic.ParseEventKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid kind", err)
		return
	}

	sub := attendance.Submission{
		EmployeeID:     generic.EmployeeID(chi.URLParam(r, "id")),
		Kind:           kind,
		Photo:          req.Photo,
		DeviceTime:     req.DeviceTime,
		IdempotencyKey: req.IdempotencyKey,
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		sub.IdempotencyKey = key
	}
	if req.Coordinate != nil {
		sub.Coordinate = &generic.Coordinate{Lat: req.Coordinate.Lat, Lon: req.Coordinate.Lon}
	}

	receipt, err := h.Validator.Submit(r.Context(), sub)
	if err != nil {
		if attendance.IsRejection(err) {
			writeJSON(w, http.StatusUnprocessableEntity, rejectionResponse(err))
			return
		}
		if errors.Is(err, generic.ErrEmployeeNotFound) {
			writeError(w, http.StatusNotFound, "Employee not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to record event", err)
		return
	}

	loc := h.locationFor(r.Context(), receipt.Event.TenantID)
	ev := toEventDTO(receipt.Event, loc)
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, SubmitEventResponse{
		Accepted:    true,
		EventID:     string(receipt.Event.ID),
		ZoneMatched: receipt.ZoneMatched,
		Timestamp:   ev.Timestamp,
		Address:     receipt.Event.Address,
		Replayed:    receipt.Replayed,
		Event:       &ev,
	})
}

func rejectionResponse(err error) SubmitEventResponse {
	resp := SubmitEventResponse{
		Accepted:  false,
		ErrorKind: string(attendance.KindOf(err)),
		Error:     err.Error(),
	}

	var te *attendance.TransitionError
	if errors.As(err, &te) {
		for _, k := range te.Expected {
			resp.Expected = append(resp.Expected, string(k))
		}
	}
	var ze *attendance.OutOfZoneError
	if errors.As(err, &ze) && ze.NearestZone != "" {
		d := ze.DistanceMeters
		resp.DistanceM = &d
	}
	var de *attendance.DuplicateSubmissionError
	if errors.As(err, &de) {
		wait := (de.Cooldown - de.Elapsed).Seconds()
		resp.RetryAfter = &wait
	}
	return resp
}

// ListEvents returns the employee's events for ?from=&to= (default today).
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	emp, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	loc := h.locationFor(ctx, emp.TenantID)

	today := generic.DateIn(h.Validator.Now(), loc)
	rng, err := parseRange(r, today, today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	events, err := h.Validator.Ledger.EventsIn(ctx, emp.ID, rng, loc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev, loc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAccounting returns worked hours and the bank balance for ?from=&to=.
// Both default to the first day of the current month and today.
func (h *Handler) GetAccounting(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	emp, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}

	today := generic.DateIn(h.Accounting.Now(), h.locationFor(ctx, emp.TenantID))
	monthStart := generic.NewDate(today.Year, today.Month, 1)

	from, to, err := parseDates(r, monthStart, today)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	res, err := h.Accounting.GetAccounting(ctx, emp.ID, from, to)
	if err != nil {
		switch {
		case errors.Is(err, generic.ErrInvalidRange):
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
				Error:   "Invalid date range",
				Code:    string(attendance.ErrKindInvalidDateRange),
				Details: err.Error(),
			})
		case errors.Is(err, generic.ErrEmployeeNotFound):
			writeError(w, http.StatusNotFound, "Employee not found", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to compute accounting", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, toAccountingDTO(res))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees, or a tenant's with ?tenant_id=.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context(), generic.TenantID(r.URL.Query().Get("tenant_id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(h.Profiles, e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(h.Profiles, *emp))
}

// CreateEmployee creates or replaces an employee profile.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and name are required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	emp := attendance.Employee{
		ID:       generic.EmployeeID(req.ID),
		TenantID: generic.TenantID(req.TenantID),
		Name:     strings.TrimSpace(req.Name),
	}
	var err error
	if emp.Schedule, err = h.Profiles.ScheduleFromJSON(req.Schedule); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
		return
	}
	if req.Zones != nil {
		if emp.Zones, err = h.Profiles.ZonesFromJSON(*req.Zones); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid zones", err)
			return
		}
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(h.Profiles, emp))
}

// UpdateSchedule replaces the employee's weekly schedule.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var sj factory.ScheduleJSON
	if err := json.NewDecoder(r.Body).Decode(&sj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	schedule, err := h.Profiles.ScheduleFromJSON(sj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule", err)
		return
	}

	emp.Schedule = schedule
	if err := h.Store.SaveEmployee(r.Context(), *emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(h.Profiles, *emp))
}

// UpdateZones replaces the employee's authorized zones.
func (h *Handler) UpdateZones(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var zj factory.ZonesJSON
	if err := json.NewDecoder(r.Body).Decode(&zj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	zones, err := h.Profiles.ZonesFromJSON(zj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid zones", err)
		return
	}

	emp.Zones = zones
	if err := h.Store.SaveEmployee(r.Context(), *emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save zones", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(h.Profiles, *emp))
}

// EnrollPhoto stores the reference photo the face oracle compares against.
func (h *Handler) EnrollPhoto(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var req PhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Photo) == 0 {
		writeError(w, http.StatusBadRequest, "photo is required", nil)
		return
	}
	if err := h.Store.SaveReferencePhoto(r.Context(), emp.ID, req.Photo); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save photo", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateAbsence records an approved absence; its days become exempt.
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	emp, ok := h.loadEmployee(w, r)
	if !ok {
		return
	}
	var req AbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := generic.ParseDate(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := generic.ParseDate(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}
	rng, err := generic.NewDateRange(from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}

	absence := attendance.Absence{
		ID:         uuid.NewString(),
		EmployeeID: emp.ID,
		Range:      rng,
		Reason:     req.Reason,
	}
	if err := h.Store.SaveAbsence(r.Context(), absence); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save absence", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":   absence.ID,
		"from": rng.From.String(),
		"to":   rng.To.String(),
	})
}

// =============================================================================
// TENANT SETTINGS
// =============================================================================

func (h *Handler) GetTenantSettings(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Store.TenantPolicy(r.Context(), generic.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Profiles.TenantSettingsToJSON(policy))
}

func (h *Handler) PutTenantSettings(w http.ResponseWriter, r *http.Request) {
	var tj factory.TenantSettingsJSON
	if err := json.NewDecoder(r.Body).Decode(&tj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	policy, err := h.Profiles.TenantSettingsFromJSON(tj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid settings", err)
		return
	}
	if err := h.Store.SaveTenantPolicy(r.Context(), generic.TenantID(chi.URLParam(r, "id")), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Profiles.TenantSettingsToJSON(policy))
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns holidays for ?tenant_id= plus global ones.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context(), generic.TenantID(r.URL.Query().Get("tenant_id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = toHolidayDTO(hol)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday creates a new holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	holiday := generic.Holiday{
		ID:        req.ID,
		TenantID:  generic.TenantID(req.TenantID),
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(holiday))
}

// DeleteHoliday removes a holiday.
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// loadEmployee resolves {id} or writes a 404/500.
func (h *Handler) loadEmployee(w http.ResponseWriter, r *http.Request) (*attendance.Employee, bool) {
	emp, err := h.Store.Employee(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		if errors.Is(err, generic.ErrEmployeeNotFound) {
			writeError(w, http.StatusNotFound, "Employee not found", err)
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		}
		return nil, false
	}
	return emp, true
}

func (h *Handler) locationFor(ctx context.Context, tenantID generic.TenantID) *time.Location {
	policy, err := h.Store.TenantPolicy(ctx, tenantID)
	if err != nil {
		return time.UTC
	}
	return policy.Location()
}

// parseDates reads ?from= and ?to=, falling back to the given defaults.
func parseDates(r *http.Request, defaultFrom, defaultTo generic.Date) (generic.Date, generic.Date, error) {
	from, to := defaultFrom, defaultTo
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if from, err = generic.ParseDate(s); err != nil {
			return from, to, err
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if to, err = generic.ParseDate(s); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

func parseRange(r *http.Request, defaultFrom, defaultTo generic.Date) (generic.DateRange, error) {
	from, to, err := parseDates(r, defaultFrom, defaultTo)
	if err != nil {
		return generic.DateRange{}, err
	}
	return generic.NewDateRange(from, to)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
