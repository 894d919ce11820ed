/*
handlers_test.go - HTTP tests for the time clock API

Tests for:
- Clock event submission (accepted, rejected, replayed)
- Accounting endpoint
- Profile, calendar and tenant settings administration
- Bearer token checks
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/timeclock/factory"
	"github.com/warp/timeclock/generic/store"
)

// Monday 2025-03-10, UTC tenant.
var monday = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	h      *Handler
	router http.Handler
	now    time.Time
	token  string
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	f := &fixture{t: t, now: monday.Add(8 * time.Hour)}
	f.h = NewHandler(store.NewMemory())
	f.h.SetClock(func() time.Time { return f.now })
	f.router = NewRouter(f.h, RouterOptions{JWTSecret: secret})
	return f
}

func (f *fixture) at(hhmm string) {
	var hh, mm int
	fmt.Sscanf(hhmm, "%d:%d", &hh, &mm)
	f.now = monday.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func (f *fixture) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(f.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (f *fixture) createEmployee(id, tenant string, zones *factory.ZonesJSON) {
	f.t.Helper()
	var schedule factory.ScheduleJSON
	require.NoError(f.t, json.Unmarshal([]byte(factory.OfficeHoursJSON("08:00", "12:00", "13:00", "17:00")), &schedule))
	rr := f.do("POST", "/api/employees", CreateEmployeeRequest{
		ID: id, TenantID: tenant, Name: "Employee " + id, Schedule: schedule, Zones: zones,
	})
	require.Equal(f.t, http.StatusCreated, rr.Code, rr.Body.String())
}

func (f *fixture) submit(id, kind string, extra ...string) *httptest.ResponseRecorder {
	return f.do("POST", "/api/employees/"+id+"/events", SubmitEventRequest{Kind: kind}, extra...)
}

// =============================================================================
// CLOCK EVENTS
// =============================================================================

func TestSubmitEvent_FullDayAndAccounting(t *testing.T) {
	// GIVEN: An employee on 08-12 / 13-17
	// WHEN: They clock a regular day through the API
	// THEN: Accounting shows 8h worked, zero balance, clocked out

	f := newFixture(t, "")
	f.createEmployee("emp-1", "acme", nil)

	for _, step := range []struct{ at, kind string }{
		{"08:00", "CLOCK_IN"},
		{"12:00", "BREAK_OUT_LONG"},
		{"13:00", "BREAK_IN_LONG"},
		{"17:00", "CLOCK_OUT"},
	} {
		f.at(step.at)
		rr := f.submit("emp-1", step.kind)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		resp := decode[SubmitEventResponse](t, rr)
		assert.True(t, resp.Accepted)
		assert.NotEmpty(t, resp.EventID)
		assert.Equal(t, "unrestricted", resp.ZoneMatched)
	}

	rr := f.do("GET", "/api/employees/emp-1/accounting?from=2025-03-10&to=2025-03-10", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	acc := decode[AccountingDTO](t, rr)
	assert.Equal(t, 480, acc.TotalWorkedMinutes)
	assert.Equal(t, "8", acc.TotalWorkedHours.String())
	assert.Equal(t, 0, acc.BankBalanceMinutes)
	assert.True(t, acc.TodayInRange)
	assert.Equal(t, 480, acc.TargetMinutesToday)
	assert.Equal(t, "CLOCKED_OUT", acc.CurrentStatus)
	require.Len(t, acc.Days, 1)
	assert.Equal(t, "Monday", acc.Days[0].Weekday)

	rr = f.do("GET", "/api/employees/emp-1/events", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]EventDTO](t, rr), 4)
}

func TestSubmitEvent_Rejections(t *testing.T) {
	f := newFixture(t, "")
	f.createEmployee("emp-1", "acme", nil)
	rr := f.do("PUT", "/api/tenants/acme/settings", factory.TenantSettingsJSON{StrictFlow: true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	f.at("08:00")
	require.Equal(t, http.StatusCreated, f.submit("emp-1", "CLOCK_IN").Code)

	// 30 seconds later
	f.now = f.now.Add(30 * time.Second)
	rr = f.submit("emp-1", "BREAK_OUT_LONG")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	resp := decode[SubmitEventResponse](t, rr)
	assert.False(t, resp.Accepted)
	assert.Equal(t, "DUPLICATE_SUBMISSION", resp.ErrorKind)
	require.NotNil(t, resp.RetryAfter)
	assert.InDelta(t, 30, *resp.RetryAfter, 0.001)

	f.at("12:00")
	require.Equal(t, http.StatusCreated, f.submit("emp-1", "BREAK_OUT_LONG").Code)

	f.at("12:30")
	rr = f.submit("emp-1", "CLOCK_OUT")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	resp = decode[SubmitEventResponse](t, rr)
	assert.Equal(t, "ILLEGAL_TRANSITION", resp.ErrorKind)
	assert.Equal(t, []string{"BREAK_IN_LONG"}, resp.Expected)

	// Rejections leave no trace
	events := decode[[]EventDTO](t, f.do("GET", "/api/employees/emp-1/events", nil))
	assert.Len(t, events, 2)
}

func TestSubmitEvent_Geofence(t *testing.T) {
	f := newFixture(t, "")
	f.createEmployee("emp-1", "field", &factory.ZonesJSON{
		Home: &factory.ZoneJSON{Name: "HQ", Lat: -23.55, Lon: -46.63, RadiusMeters: 100},
	})
	f.do("PUT", "/api/tenants/field/settings", factory.TenantSettingsJSON{GeofenceEnforced: true})

	rr := f.submit("emp-1", "CLOCK_IN")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "LOCATION_REQUIRED", decode[SubmitEventResponse](t, rr).ErrorKind)

	rr = f.do("POST", "/api/employees/emp-1/events", SubmitEventRequest{
		Kind: "CLOCK_IN", Coordinate: &CoordinateDTO{Lat: -22.55, Lon: -46.63},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	resp := decode[SubmitEventResponse](t, rr)
	assert.Equal(t, "OUT_OF_ZONE", resp.ErrorKind)
	require.NotNil(t, resp.DistanceM)
	assert.Greater(t, *resp.DistanceM, 100000.0)

	rr = f.do("POST", "/api/employees/emp-1/events", SubmitEventRequest{
		Kind: "clock_in", Coordinate: &CoordinateDTO{Lat: -23.5501, Lon: -46.6301},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "HQ", decode[SubmitEventResponse](t, rr).ZoneMatched)
}

func TestSubmitEvent_IdempotencyKey(t *testing.T) {
	// GIVEN: A submission with an Idempotency-Key
	// WHEN: The client retries it 10 seconds later
	// THEN: The original event comes back instead of a duplicate rejection

	f := newFixture(t, "")
	f.createEmployee("emp-1", "acme", nil)

	first := f.submit("emp-1", "CLOCK_IN", "Idempotency-Key", "retry-1")
	require.Equal(t, http.StatusCreated, first.Code)

	f.now = f.now.Add(10 * time.Second)
	again := f.submit("emp-1", "CLOCK_IN", "Idempotency-Key", "retry-1")
	require.Equal(t, http.StatusOK, again.Code, again.Body.String())

	a, b := decode[SubmitEventResponse](t, first), decode[SubmitEventResponse](t, again)
	assert.Equal(t, a.EventID, b.EventID)
	assert.True(t, b.Replayed)

	// Same key, different kind
	f.now = f.now.Add(5 * time.Minute)
	reused := f.submit("emp-1", "CLOCK_OUT", "Idempotency-Key", "retry-1")
	require.Equal(t, http.StatusUnprocessableEntity, reused.Code, reused.Body.String())
	assert.Equal(t, "IDEMPOTENCY_KEY_REUSED", decode[SubmitEventResponse](t, reused).ErrorKind)
}

func TestSubmitEvent_BadInput(t *testing.T) {
	f := newFixture(t, "")
	f.createEmployee("emp-1", "acme", nil)

	assert.Equal(t, http.StatusBadRequest, f.submit("emp-1", "LUNCH").Code)
	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/employees/emp-1/events", "{").Code)
	assert.Equal(t, http.StatusNotFound, f.submit("ghost", "CLOCK_IN").Code)
}

// =============================================================================
// ACCOUNTING
// =============================================================================

func TestGetAccounting_Errors(t *testing.T) {
	f := newFixture(t, "")
	f.createEmployee("emp-1", "acme", nil)

	rr := f.do("GET", "/api/employees/emp-1/accounting?from=2025-03-10&to=2025-03-01", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "INVALID_DATE_RANGE", decode[ErrorResponse](t, rr).Code)

	rr = f.do("GET", "/api/employees/emp-1/accounting?from=10/03/2025", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do("GET", "/api/employees/ghost/accounting", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetAccounting_HolidayAndAbsence(t *testing.T) {
	// GIVEN: A week with a holiday on Tuesday and an absence on Wednesday
	// WHEN: Accounting runs Monday to Wednesday with no work at all
	// THEN: Only Monday counts against the bank

	f := newFixture(t, "")
	f.createEmployee("emp-1", "acme", nil)
	f.now = monday.AddDate(0, 0, 3).Add(9 * time.Hour) // Thursday

	rr := f.do("POST", "/api/holidays", HolidayDTO{TenantID: "acme", Date: "2025-03-11", Name: "Founders Day"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = f.do("POST", "/api/employees/emp-1/absences", AbsenceRequest{From: "2025-03-12", To: "2025-03-12", Reason: "medical"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	acc := decode[AccountingDTO](t, f.do("GET", "/api/employees/emp-1/accounting?from=2025-03-10&to=2025-03-12", nil))
	assert.Equal(t, -480, acc.BankBalanceMinutes)
	assert.Equal(t, "-8h00", acc.BankBalanceLabel)
	assert.False(t, acc.TodayInRange)
	require.Len(t, acc.Days, 3)
	assert.True(t, acc.Days[1].Exempt)
	assert.True(t, acc.Days[2].Exempt)
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

func TestEmployeeAdministration(t *testing.T) {
	f := newFixture(t, "")
	f.createEmployee("emp-1", "acme", nil)
	f.createEmployee("emp-2", "other", nil)

	all := decode[[]EmployeeDTO](t, f.do("GET", "/api/employees", nil))
	assert.Len(t, all, 2)
	acme := decode[[]EmployeeDTO](t, f.do("GET", "/api/employees?tenant_id=acme", nil))
	require.Len(t, acme, 1)
	assert.Contains(t, acme[0].Schedule, "monday")

	rr := f.do("PUT", "/api/employees/emp-1/schedule", `{"saturday": {"active": true, "morning_start": "08:00", "morning_end": "12:00"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	emp := decode[EmployeeDTO](t, rr)
	assert.Len(t, emp.Schedule, 1)

	rr = f.do("PUT", "/api/employees/emp-1/schedule", `{"funday": {"active": true}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do("PUT", "/api/employees/emp-1/zones", `{"home": {"name": "HQ", "lat": 10, "lon": 20}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "HQ", decode[EmployeeDTO](t, rr).Zones.Home.Name)

	rr = f.do("PUT", "/api/employees/emp-1/photo", PhotoRequest{Photo: []byte{0xff, 0xd8}})
	assert.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/employees", CreateEmployeeRequest{Name: "No tenant"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do("GET", "/api/employees/ghost", nil).Code)
}

func TestHolidayAdministration(t *testing.T) {
	f := newFixture(t, "")

	rr := f.do("POST", "/api/holidays", HolidayDTO{ID: "h1", Date: "2025-12-25", Name: "Christmas", Recurring: true})
	require.Equal(t, http.StatusCreated, rr.Code)
	f.do("POST", "/api/holidays", HolidayDTO{ID: "h2", TenantID: "acme", Date: "2025-03-11", Name: "Founders Day"})
	f.do("POST", "/api/holidays", HolidayDTO{ID: "h3", TenantID: "other", Date: "2025-03-12", Name: "Not ours"})

	list := decode[[]HolidayDTO](t, f.do("GET", "/api/holidays?tenant_id=acme", nil))
	assert.Len(t, list, 2)

	assert.Equal(t, http.StatusNoContent, f.do("DELETE", "/api/holidays/h2", nil).Code)
	list = decode[[]HolidayDTO](t, f.do("GET", "/api/holidays?tenant_id=acme", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "Christmas", list[0].Name)

	assert.Equal(t, http.StatusBadRequest, f.do("POST", "/api/holidays", HolidayDTO{Date: "tomorrow", Name: "x"}).Code)
}

func TestTenantSettings(t *testing.T) {
	f := newFixture(t, "")

	got := decode[factory.TenantSettingsJSON](t, f.do("GET", "/api/tenants/acme/settings", nil))
	assert.False(t, got.StrictFlow)

	rr := f.do("PUT", "/api/tenants/acme/settings", factory.TenantSettingsJSON{PhotoRequired: true, Timezone: "America/Sao_Paulo"})
	require.Equal(t, http.StatusOK, rr.Code)
	got = decode[factory.TenantSettingsJSON](t, f.do("GET", "/api/tenants/acme/settings", nil))
	assert.True(t, got.PhotoRequired)
	assert.Equal(t, "America/Sao_Paulo", got.Timezone)

	rr = f.do("PUT", "/api/tenants/acme/settings", factory.TenantSettingsJSON{Timezone: "Mars/Base"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, "")
	rr := f.do("GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

func TestBearerTokens(t *testing.T) {
	const secret = "0123456789abcdef-test"
	f := newFixture(t, secret)

	admin, err := GenerateToken(secret, Claims{Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)
	f.token = admin
	f.createEmployee("emp-1", "acme", nil)
	f.createEmployee("emp-2", "acme", nil)

	// No token
	f.token = ""
	assert.Equal(t, http.StatusUnauthorized, f.submit("emp-1", "CLOCK_IN").Code)

	// Garbage token
	f.token = "not-a-jwt"
	assert.Equal(t, http.StatusUnauthorized, f.submit("emp-1", "CLOCK_IN").Code)

	// Employee token
	own, err := GenerateToken(secret, Claims{TenantID: "acme"}, time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(secret, own)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)

	empClaims := Claims{TenantID: "acme"}
	empClaims.Subject = "emp-1"
	f.token, err = GenerateToken(secret, empClaims, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, f.submit("emp-1", "CLOCK_IN").Code)
	assert.Equal(t, http.StatusForbidden, f.submit("emp-2", "CLOCK_IN").Code)
	assert.Equal(t, http.StatusForbidden, f.do("GET", "/api/employees", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do("PUT", "/api/employees/emp-1/zones", `{}`).Code)
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/employees/emp-1/accounting", nil).Code)

	// Wrong secret
	forged, err := GenerateToken("another-secret-value", empClaims, time.Hour)
	require.NoError(t, err)
	f.token = forged
	assert.Equal(t, http.StatusUnauthorized, f.submit("emp-1", "CLOCK_OUT").Code)
}
