/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the event log (generic.Store) and every read-only collaborator
  the core consumes (attendance.Directory, attendance.AbsenceSource,
  attendance.ReferencePhotos, generic.HolidayCalendar) using SQLite. The
  PostgreSQL store in store/postgres mirrors this schema.

INTERFACES IMPLEMENTED:
  generic.Store:              Clock event persistence
  attendance.Directory:       Employee profiles and tenant policy
  attendance.AbsenceSource:   Approved absences
  attendance.ReferencePhotos: Enrolled face photos
  generic.HolidayCalendar:    Tenant and global holidays

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on clock_events
  - No DELETE statements on clock_events (except Reset, for demo data)

KEY TABLES:
  clock_events:     Immutable attendance log
  employees:        Profiles; schedule and zones as JSON documents
  tenants:          Tenant settings as a JSON document
  holidays:         Tenant-specific ('' tenant = global) holidays
  absences:         Approved absence ranges
  reference_photos: One enrolled photo per employee

TIMESTAMPS:
  Instants are stored as fixed-width UTC text so that lexical order is
  chronological order; range queries compare strings.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The validator's per-employee lock
  already serializes appends for one employee.

USAGE:
  store, err := sqlite.New("./data/timeclock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/factory"
	"github.com/warp/timeclock/generic"
)

// timestampLayout is RFC3339 with fixed nanoseconds so text order matches
// time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	profiles *factory.ProfileFactory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" is per connection
	db.SetMaxOpenConns(1)

	store := &Store{db: db, profiles: factory.NewProfileFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Clock events (append-only log)
	CREATE TABLE IF NOT EXISTS clock_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		kind TEXT NOT NULL,
		lat REAL,
		lon REAL,
		zone_matched TEXT NOT NULL DEFAULT '',
		photo_provided BOOLEAN NOT NULL DEFAULT FALSE,
		address TEXT NOT NULL DEFAULT '',
		device_time TEXT,
		idempotency_key TEXT,
		created_at TEXT NOT NULL
	);

	-- Day views and "last event" (hot path)
	CREATE INDEX IF NOT EXISTS idx_clock_events_employee_time
		ON clock_events(employee_id, occurred_at);

	-- Same key from the same employee is the same submission
	CREATE UNIQUE INDEX IF NOT EXISTS idx_clock_events_idempotency
		ON clock_events(employee_id, idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Tenants
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		settings_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		schedule_json TEXT NOT NULL DEFAULT '{}',
		zones_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_tenant
		ON employees(tenant_id);

	-- Holidays (tenant-specific and global)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_tenant_date
		ON holidays(tenant_id, date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(tenant_id, date, name);

	-- Approved absences
	CREATE TABLE IF NOT EXISTS absences (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_absences_employee
		ON absences(employee_id, start_date, end_date);

	-- Enrolled reference photos
	CREATE TABLE IF NOT EXISTS reference_photos (
		employee_id TEXT PRIMARY KEY,
		photo BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (generic.Store interface)
// =============================================================================

// Append adds a clock event to the log.
func (s *Store) Append(ctx context.Context, ev generic.ClockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lat, lon sql.NullFloat64
	if ev.Coordinate != nil {
		lat = sql.NullFloat64{Float64: ev.Coordinate.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: ev.Coordinate.Lon, Valid: true}
	}
	var deviceTime sql.NullString
	if ev.DeviceTime != nil {
		deviceTime = sql.NullString{String: formatTimestamp(*ev.DeviceTime), Valid: true}
	}

	query := `
		INSERT INTO clock_events
		(id, tenant_id, employee_id, occurred_at, kind, lat, lon, zone_matched,
		 photo_provided, address, device_time, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		ev.TenantID,
		ev.EmployeeID,
		formatTimestamp(ev.Timestamp),
		ev.Kind,
		lat,
		lon,
		ev.ZoneMatched,
		ev.PhotoProvided,
		ev.Address,
		deviceTime,
		nullString(ev.IdempotencyKey),
		formatTimestamp(time.Now()),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			if isPrimaryKeyError(err) {
				return generic.ErrDuplicateEventID
			}
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("%w: %v", generic.ErrAppendFailed, err)
	}

	return nil
}

const eventColumns = `id, tenant_id, employee_id, occurred_at, kind, lat, lon, zone_matched,
		       photo_provided, address, device_time, idempotency_key`

// Last returns the employee's most recent event, or nil.
func (s *Store) Last(ctx context.Context, employeeID generic.EmployeeID) (*generic.ClockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, err := s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM clock_events
		WHERE employee_id = ?
		ORDER BY occurred_at DESC, rowid DESC
		LIMIT 1
	`, employeeID)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// LoadRange returns events with from <= occurred_at < to, oldest first.
func (s *Store) LoadRange(ctx context.Context, employeeID generic.EmployeeID, from, to time.Time) ([]generic.ClockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM clock_events
		WHERE employee_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC, rowid ASC
	`, employeeID, formatTimestamp(from), formatTimestamp(to))
}

// FindByIdempotencyKey returns the event recorded under key, or nil.
func (s *Store) FindByIdempotencyKey(ctx context.Context, employeeID generic.EmployeeID, key string) (*generic.ClockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, err := s.queryEvents(ctx, `
		SELECT `+eventColumns+`
		FROM clock_events
		WHERE employee_id = ? AND idempotency_key = ?
	`, employeeID, key)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]generic.ClockEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clock events: %w", err)
	}
	defer rows.Close()

	var events []generic.ClockEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (generic.ClockEvent, error) {
	var (
		ev             generic.ClockEvent
		occurredAt     string
		lat, lon       sql.NullFloat64
		deviceTime     sql.NullString
		idempotencyKey sql.NullString
	)

	err := rows.Scan(
		&ev.ID, &ev.TenantID, &ev.EmployeeID, &occurredAt, &ev.Kind,
		&lat, &lon, &ev.ZoneMatched, &ev.PhotoProvided, &ev.Address,
		&deviceTime, &idempotencyKey,
	)
	if err != nil {
		return ev, fmt.Errorf("failed to scan clock event: %w", err)
	}

	if ev.Timestamp, err = time.Parse(timestampLayout, occurredAt); err != nil {
		return ev, fmt.Errorf("failed to parse occurred_at of clock event %s: %w", ev.ID, err)
	}
	if lat.Valid && lon.Valid {
		ev.Coordinate = &generic.Coordinate{Lat: lat.Float64, Lon: lon.Float64}
	}
	if deviceTime.Valid {
		if t, err := time.Parse(timestampLayout, deviceTime.String); err == nil {
			ev.DeviceTime = &t
		}
	}
	ev.IdempotencyKey = idempotencyKey.String

	return ev, nil
}

// =============================================================================
// TENANT STORE
// =============================================================================

// SaveTenantPolicy upserts a tenant's settings.
func (s *Store) SaveTenantPolicy(ctx context.Context, tenantID generic.TenantID, p attendance.TenantPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := json.Marshal(s.profiles.TenantSettingsToJSON(p))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenants (id, settings_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			settings_json = excluded.settings_json,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, tenantID, string(settings), formatTimestamp(time.Now()))
	return err
}

// TenantPolicy returns the tenant's settings, or the zero policy when the
// tenant has none.
func (s *Store) TenantPolicy(ctx context.Context, tenantID generic.TenantID) (attendance.TenantPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var settings string
	err := s.db.QueryRowContext(ctx,
		"SELECT settings_json FROM tenants WHERE id = ?", tenantID,
	).Scan(&settings)

	if err == sql.ErrNoRows {
		return attendance.TenantPolicy{}, nil
	}
	if err != nil {
		return attendance.TenantPolicy{}, err
	}
	return s.profiles.ParseTenantSettings(settings)
}

// =============================================================================
// EMPLOYEE STORE (attendance.Directory interface)
// =============================================================================

// SaveEmployee upserts an employee profile.
func (s *Store) SaveEmployee(ctx context.Context, emp attendance.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scheduleJSON, err := json.Marshal(s.profiles.ScheduleToJSON(emp.Schedule))
	if err != nil {
		return err
	}
	zonesJSON, err := json.Marshal(s.profiles.ZonesToJSON(emp.Zones))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO employees (id, tenant_id, name, schedule_json, zones_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			name = excluded.name,
			schedule_json = excluded.schedule_json,
			zones_json = excluded.zones_json,
			updated_at = excluded.updated_at
	`

	now := formatTimestamp(time.Now())
	_, err = s.db.ExecContext(ctx, query,
		emp.ID, emp.TenantID, emp.Name, string(scheduleJSON), string(zonesJSON), now, now,
	)
	return err
}

// Employee retrieves an employee by ID.
func (s *Store) Employee(ctx context.Context, id generic.EmployeeID) (*attendance.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, tenant_id, name, schedule_json, zones_json FROM employees WHERE id = ?", id,
	)
	emp, err := s.scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns a tenant's employees, or every employee when
// tenantID is empty.
func (s *Store) ListEmployees(ctx context.Context, tenantID generic.TenantID) ([]attendance.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, schedule_json, zones_json
		FROM employees
		WHERE ? = '' OR tenant_id = ?
		ORDER BY name
	`, tenantID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []attendance.Employee
	for rows.Next() {
		emp, err := s.scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEmployee(row scanner) (attendance.Employee, error) {
	var (
		emp                     attendance.Employee
		scheduleJSON, zonesJSON string
	)
	if err := row.Scan(&emp.ID, &emp.TenantID, &emp.Name, &scheduleJSON, &zonesJSON); err != nil {
		return emp, err
	}

	var err error
	if emp.Schedule, err = s.profiles.ParseSchedule(scheduleJSON); err != nil {
		return emp, fmt.Errorf("employee %s: %w", emp.ID, err)
	}
	if emp.Zones, err = s.profiles.ParseZones(zonesJSON); err != nil {
		return emp, fmt.Errorf("employee %s: %w", emp.ID, err)
	}
	return emp, nil
}

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday saves a holiday to the database.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, tenant_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.TenantID,
		h.Date.String(),
		h.Name,
		h.Recurring,
		formatTimestamp(time.Now()),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// HolidaysInRange returns tenant and global holidays inside r, recurring
// ones projected onto each year of r.
func (s *Store) HolidaysInRange(ctx context.Context, tenantID generic.TenantID, r generic.DateRange) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holidays, err := s.queryHolidays(ctx, `
		SELECT id, tenant_id, date, name, recurring
		FROM holidays
		WHERE (tenant_id = ? OR tenant_id = '')
		  AND (recurring = TRUE OR (date >= ? AND date <= ?))
		ORDER BY date ASC
	`, tenantID, r.From.String(), r.To.String())
	if err != nil {
		return nil, err
	}
	return generic.ProjectHolidays(holidays, r), nil
}

// ListHolidays returns all holidays visible to a tenant (for admin UI).
func (s *Store) ListHolidays(ctx context.Context, tenantID generic.TenantID) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryHolidays(ctx, `
		SELECT id, tenant_id, date, name, recurring
		FROM holidays
		WHERE tenant_id = ? OR tenant_id = ''
		ORDER BY date ASC
	`, tenantID)
}

func (s *Store) queryHolidays(ctx context.Context, query string, args ...any) ([]generic.Holiday, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &h.TenantID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = generic.ParseDate(dateStr); err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// ABSENCE STORE (attendance.AbsenceSource interface)
// =============================================================================

// SaveAbsence records an approved absence.
func (s *Store) SaveAbsence(ctx context.Context, a attendance.Absence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO absences (id, employee_id, start_date, end_date, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.EmployeeID, a.Range.From.String(), a.Range.To.String(), a.Reason, formatTimestamp(time.Now()))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("absence %s already exists", a.ID)
	}
	return err
}

// ApprovedAbsences returns absences overlapping r.
func (s *Store) ApprovedAbsences(ctx context.Context, employeeID generic.EmployeeID, r generic.DateRange) ([]attendance.Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, start_date, end_date, reason
		FROM absences
		WHERE employee_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC
	`, employeeID, r.To.String(), r.From.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var absences []attendance.Absence
	for rows.Next() {
		var (
			a          attendance.Absence
			start, end string
			reason     sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.EmployeeID, &start, &end, &reason); err != nil {
			return nil, err
		}
		if a.Range.From, err = generic.ParseDate(start); err != nil {
			return nil, err
		}
		if a.Range.To, err = generic.ParseDate(end); err != nil {
			return nil, err
		}
		a.Reason = reason.String
		absences = append(absences, a)
	}
	return absences, rows.Err()
}

// =============================================================================
// REFERENCE PHOTOS (attendance.ReferencePhotos interface)
// =============================================================================

// SaveReferencePhoto enrolls (or replaces) an employee's reference photo.
func (s *Store) SaveReferencePhoto(ctx context.Context, id generic.EmployeeID, photo []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reference_photos (employee_id, photo, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			photo = excluded.photo,
			updated_at = excluded.updated_at
	`, id, photo, formatTimestamp(time.Now()))
	return err
}

// ReferencePhoto returns the enrolled photo, or nil when none exists.
func (s *Store) ReferencePhoto(ctx context.Context, id generic.EmployeeID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var photo []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT photo FROM reference_photos WHERE employee_id = ?", id,
	).Scan(&photo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return photo, err
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data. Used when loading demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"clock_events", "employees", "tenants", "holidays", "absences", "reference_photos"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isPrimaryKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
