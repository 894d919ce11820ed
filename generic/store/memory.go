// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements generic.Store plus the read-only collaborators
// (attendance.Directory, attendance.AbsenceSource, generic.HolidayCalendar,
// attendance.ReferencePhotos).
type Memory struct {
	mu          sync.RWMutex
	events      map[generic.EmployeeID][]generic.ClockEvent
	ids         map[generic.EventID]bool
	idempotency map[idemKey]generic.EventID

	employees map[generic.EmployeeID]attendance.Employee
	policies  map[generic.TenantID]attendance.TenantPolicy
	holidays  []generic.Holiday
	absences  map[generic.EmployeeID][]attendance.Absence
	photos    map[generic.EmployeeID][]byte
}

type idemKey struct {
	EmployeeID generic.EmployeeID
	Key        string
}

func NewMemory() *Memory {
	return &Memory{
		events:      make(map[generic.EmployeeID][]generic.ClockEvent),
		ids:         make(map[generic.EventID]bool),
		idempotency: make(map[idemKey]generic.EventID),
		employees:   make(map[generic.EmployeeID]attendance.Employee),
		policies:    make(map[generic.TenantID]attendance.TenantPolicy),
		absences:    make(map[generic.EmployeeID][]attendance.Absence),
		photos:      make(map[generic.EmployeeID][]byte),
	}
}

// Append adds a single event. Append-only.
func (m *Memory) Append(_ context.Context, ev generic.ClockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids[ev.ID] {
		return generic.ErrDuplicateEventID
	}
	k := idemKey{EmployeeID: ev.EmployeeID, Key: ev.IdempotencyKey}
	if ev.IdempotencyKey != "" {
		if _, exists := m.idempotency[k]; exists {
			return generic.ErrDuplicateIdempotencyKey
		}
	}

	evs := m.events[ev.EmployeeID]
	// Keep chronological order; equal timestamps keep insertion order.
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].Timestamp.After(ev.Timestamp)
	})
	evs = append(evs, generic.ClockEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	m.events[ev.EmployeeID] = evs

	m.ids[ev.ID] = true
	if ev.IdempotencyKey != "" {
		m.idempotency[k] = ev.ID
	}
	return nil
}

func (m *Memory) Last(_ context.Context, employeeID generic.EmployeeID) (*generic.ClockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	evs := m.events[employeeID]
	if len(evs) == 0 {
		return nil, nil
	}
	last := evs[len(evs)-1]
	return &last, nil
}

func (m *Memory) LoadRange(_ context.Context, employeeID generic.EmployeeID, from, to time.Time) ([]generic.ClockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.ClockEvent
	for _, ev := range m.events[employeeID] {
		if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (m *Memory) FindByIdempotencyKey(_ context.Context, employeeID generic.EmployeeID, key string) (*generic.ClockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.idempotency[idemKey{EmployeeID: employeeID, Key: key}]
	if !ok {
		return nil, nil
	}
	for _, ev := range m.events[employeeID] {
		if ev.ID == id {
			found := ev
			return &found, nil
		}
	}
	return nil, nil
}

// =============================================================================
// COLLABORATOR DATA
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, emp attendance.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) Employee(_ context.Context, id generic.EmployeeID) (*attendance.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	emp, ok := m.employees[id]
	if !ok {
		return nil, generic.ErrEmployeeNotFound
	}
	return &emp, nil
}

// ListEmployees returns a tenant's employees by name, or all when tenantID
// is empty.
func (m *Memory) ListEmployees(_ context.Context, tenantID generic.TenantID) ([]attendance.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Employee
	for _, emp := range m.employees {
		if tenantID == "" || emp.TenantID == tenantID {
			result = append(result, emp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveTenantPolicy(_ context.Context, tenantID generic.TenantID, p attendance.TenantPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[tenantID] = p
	return nil
}

// TenantPolicy returns the zero policy (flexible, no geofence, no photo,
// UTC) for tenants without settings.
func (m *Memory) TenantPolicy(_ context.Context, tenantID generic.TenantID) (attendance.TenantPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policies[tenantID], nil
}

func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.holidays {
		if existing.ID == h.ID {
			m.holidays[i] = h
			return nil
		}
	}
	m.holidays = append(m.holidays, h)
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.holidays[:0]
	for _, h := range m.holidays {
		if h.ID != id {
			kept = append(kept, h)
		}
	}
	m.holidays = kept
	return nil
}

// ListHolidays returns the tenant's and global holidays, unprojected.
func (m *Memory) ListHolidays(_ context.Context, tenantID generic.TenantID) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Holiday
	for _, h := range m.holidays {
		if h.TenantID == "" || h.TenantID == tenantID {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) HolidaysInRange(_ context.Context, tenantID generic.TenantID, r generic.DateRange) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var applicable []generic.Holiday
	for _, h := range m.holidays {
		if h.TenantID == "" || h.TenantID == tenantID {
			applicable = append(applicable, h)
		}
	}
	return generic.ProjectHolidays(applicable, r), nil
}

func (m *Memory) SaveAbsence(_ context.Context, a attendance.Absence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.absences[a.EmployeeID] = append(m.absences[a.EmployeeID], a)
	return nil
}

func (m *Memory) ApprovedAbsences(_ context.Context, employeeID generic.EmployeeID, r generic.DateRange) ([]attendance.Absence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []attendance.Absence
	for _, a := range m.absences[employeeID] {
		if a.Range.From.BeforeOrEqual(r.To) && a.Range.To.AfterOrEqual(r.From) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *Memory) SaveReferencePhoto(_ context.Context, id generic.EmployeeID, photo []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos[id] = append([]byte(nil), photo...)
	return nil
}

func (m *Memory) ReferencePhoto(_ context.Context, id generic.EmployeeID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.photos[id], nil
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = fresh.events
	m.ids = fresh.ids
	m.idempotency = fresh.idempotency
	m.employees = fresh.employees
	m.policies = fresh.policies
	m.holidays = nil
	m.absences = fresh.absences
	m.photos = fresh.photos
	return nil
}
