package generic

// =============================================================================
// DATE RANGE - The window every accounting query is computed over
// =============================================================================

// DateRange is an inclusive range of calendar days [From, To].
//
// Examples:
//   - A single day:     2025-03-10 .. 2025-03-10
//   - A payroll month:  2025-03-01 .. 2025-03-31
//   - The ISO weeks containing a range (see Weeks)
type DateRange struct {
	From Date
	To   Date
}

// NewDateRange validates from <= to.
func NewDateRange(from, to Date) (DateRange, error) {
	r := DateRange{From: from, To: to}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate returns ErrInvalidRange when To is before From.
func (r DateRange) Validate() error {
	if r.To.Before(r.From) {
		return &InvalidRangeError{From: r.From, To: r.To}
	}
	return nil
}

// Contains returns true if d is within [From, To].
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.From) && d.BeforeOrEqual(r.To)
}

// Days returns every day in the range, in order.
func (r DateRange) Days() []Date {
	n := DaysBetween(r.From, r.To) + 1
	if n <= 0 {
		return nil
	}
	days := make([]Date, 0, n)
	for d := r.From; d.BeforeOrEqual(r.To); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Len is the number of days in the range.
func (r DateRange) Len() int {
	if r.To.Before(r.From) {
		return 0
	}
	return DaysBetween(r.From, r.To) + 1
}

// Weeks widens the range to whole ISO weeks: Monday of From's week through
// Sunday of To's week. The Saturday-worked rule needs the whole week even
// when the requested range starts or ends mid-week.
func (r DateRange) Weeks() DateRange {
	return DateRange{From: r.From.WeekStart(), To: r.To.WeekEnd()}
}

// Clip restricts the range to days up to and including limit. The second
// return is false when nothing is left.
func (r DateRange) Clip(limit Date) (DateRange, bool) {
	if limit.Before(r.From) {
		return DateRange{}, false
	}
	if limit.Before(r.To) {
		return DateRange{From: r.From, To: limit}, true
	}
	return r, true
}

func (r DateRange) String() string {
	return "[" + r.From.String() + ", " + r.To.String() + "]"
}
