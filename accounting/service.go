package accounting

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/warp/timeclock/attendance"
	"github.com/warp/timeclock/generic"
)

// Service loads an employee's events, schedule and exempt dates and runs
// Compute. Identical concurrent requests share one computation.
type Service struct {
	Ledger    generic.Ledger
	Directory attendance.Directory
	Holidays  generic.HolidayCalendar
	Absences  attendance.AbsenceSource
	Now       func() time.Time

	flight singleflight.Group
}

func NewService(ledger generic.Ledger, dir attendance.Directory, holidays generic.HolidayCalendar, absences attendance.AbsenceSource) *Service {
	return &Service{
		Ledger:    ledger,
		Directory: dir,
		Holidays:  holidays,
		Absences:  absences,
		Now:       time.Now,
	}
}

// GetAccounting computes the accounting summary for [from, to].
func (s *Service) GetAccounting(ctx context.Context, employeeID generic.EmployeeID, from, to generic.Date) (Result, error) {
	r, err := generic.NewDateRange(from, to)
	if err != nil {
		return Result{}, err
	}
	now := s.Now()

	// Requests in the same minute see the same "now" to the resolution the
	// engine works in. The shared computation is detached from the first
	// caller's context; each caller stops waiting when its own ends.
	key := fmt.Sprintf("%s|%s|%s|%d", employeeID, from, to, now.Unix()/60)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return s.compute(context.WithoutCancel(ctx), employeeID, r, now)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return Result{}, out.Err
		}
		res := out.Val.(Result)
		if out.Shared {
			res.Days = append([]DailyTally(nil), res.Days...)
		}
		return res, nil
	}
}

func (s *Service) compute(ctx context.Context, employeeID generic.EmployeeID, r generic.DateRange, now time.Time) (Result, error) {
	emp, err := s.Directory.Employee(ctx, employeeID)
	if err != nil {
		return Result{}, err
	}
	policy, err := s.Directory.TenantPolicy(ctx, emp.TenantID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load tenant policy: %w", err)
	}
	loc := policy.Location()

	var (
		events   []generic.ClockEvent
		holidays []generic.Holiday
		absences []attendance.Absence
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.Ledger.EventsIn(gctx, employeeID, r.Weeks(), loc)
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}
		return nil
	})
	if s.Holidays != nil {
		g.Go(func() error {
			var err error
			holidays, err = s.Holidays.HolidaysInRange(gctx, emp.TenantID, r)
			if err != nil {
				return fmt.Errorf("failed to load holidays: %w", err)
			}
			return nil
		})
	}
	if s.Absences != nil {
		g.Go(func() error {
			var err error
			absences, err = s.Absences.ApprovedAbsences(gctx, employeeID, r)
			if err != nil {
				return fmt.Errorf("failed to load absences: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	exempt := ExemptDates(holidays, absences, r)

	res, err := Compute(Input{
		EmployeeID: employeeID,
		Range:      r,
		Now:        now,
		Location:   loc,
		Schedule:   emp.Schedule,
		Exempt:     exempt,
		Events:     events,
	})
	if err != nil {
		return Result{}, err
	}

	log.Printf("[Accounting] %s %s: worked=%s bank=%s (%d events, %d exempt days)",
		employeeID, r, res.TotalWorkedMinutes, res.BankBalanceMinutes, len(events), len(exempt))
	return res, nil
}

// ExemptDates merges holidays and approved absences into the set of dates
// within r whose target is zero.
func ExemptDates(holidays []generic.Holiday, absences []attendance.Absence, r generic.DateRange) generic.DateSet {
	set := generic.NewDateSet()
	for _, h := range holidays {
		for _, d := range r.Days() {
			if h.Matches(d) {
				set.Add(d)
			}
		}
	}
	for _, a := range absences {
		from, to := a.Range.From, a.Range.To
		if from.Before(r.From) {
			from = r.From
		}
		if to.After(r.To) {
			to = r.To
		}
		if to.Before(from) {
			continue
		}
		set.AddRange(generic.DateRange{From: from, To: to})
	}
	return set
}
