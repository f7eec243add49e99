package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day, the granularity every gate in this system works at
// =============================================================================

// Date is a calendar day in UTC. All eligibility comparisons are date
// comparisons; an explicit as-of date is threaded through every call so
// date-gated behavior is deterministic under test.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool       { return d.t.Before(other.t) }
func (d Date) After(other Date) bool        { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool        { return d.t.Equal(other.t) }
func (d Date) AfterOrEqual(other Date) bool { return !d.t.Before(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }

// Properties
func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) IsZero() bool      { return d.t.IsZero() }
func (d Date) Time() time.Time   { return d.t }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// AddMonths adds calendar months with end-of-month clamping:
// Jan 31 + 1 month = Feb 28 (or 29), not Mar 2. This matches how maturity
// dates were computed for all historical investments, so it must not change.
func (d Date) AddMonths(months int) Date {
	total := d.Year()*12 + int(d.Month()) - 1 + months
	y := total / 12
	m := time.Month(total%12 + 1)

	day := d.Day()
	if last := daysInMonth(y, m); day > last {
		day = last
	}
	return NewDate(y, m, day)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Formatting
func (d Date) String() string  { return d.t.Format("2006-01-02") }
func (d Date) Compact() string { return d.t.Format("20060102") } // YYYYMMDD, used in receipts
