package ir

import (
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used in payloads.
const DateLayout = "2006-01-02"

// Date is a calendar date at UTC midnight.
type Date struct {
	t time.Time
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustDate is like ParseDate but panics on error.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// String renders "YYYY-MM-DD".
func (d Date) String() string {
	return d.t.Format(DateLayout)
}

// Value returns d as payload Text.
func (d Date) Value() Value {
	return Text(d.String())
}

// Time returns UTC midnight of d.
func (d Date) Time() time.Time {
	return d.t
}

// Before reports d < o.
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

// After reports d > o.
func (d Date) After(o Date) bool { return d.t.After(o.t) }

// Equal reports d == o.
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

// DaysSince returns the number of calendar days from o to d (negative if d < o).
func (d Date) DaysSince(o Date) int {
	return int(d.t.Sub(o.t).Hours() / 24)
}

// AddMonths returns d shifted by n calendar months, normalized like time.AddDate.
func (d Date) AddMonths(n int) Date {
	return Date{t: d.t.AddDate(0, n, 0)}
}

// MonthsSince returns the number of whole months from o to d.
// A month is complete once the day of month of o has been reached, or the
// month has ended when it is shorter: 2024-01-31 to 2024-04-30 is 3.
func (d Date) MonthsSince(o Date) int {
	months := (d.t.Year()-o.t.Year())*12 + int(d.t.Month()-o.t.Month())
	if d.t.Day() < o.t.Day() && !d.endOfMonth() {
		months--
	}
	return months
}

func (d Date) endOfMonth() bool {
	return d.t.AddDate(0, 0, 1).Day() == 1
}

// DateField reads a Date from a record field.
func DateField(r Record, key string) (Date, error) {
	s, ok := r[key].(Text)
	if !ok {
		return Date{}, Invalid(ReasonSchemaViolation, "field %q must be a YYYY-MM-DD string", key)
	}
	d, err := ParseDate(string(s))
	if err != nil {
		return Date{}, Invalid(ReasonSchemaViolation, "field %q is not a valid date", key)
	}
	return d, nil
}
