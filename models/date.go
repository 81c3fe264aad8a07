package models

import (
	"fmt"
	"iter"
	"time"
)

const (
	isoLayout  = "2006-01-02"
	formLayout = "02.01.2006"
)

// Date is a calendar day without time-of-day or zone. Two dates are equal
// when their year, month and day are equal.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the normalized date for year, month and day, so that
// NewDate(2024, 1, 32) is 1 February 2024.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf keeps only the calendar day of t, as seen in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO date such as 2024-03-05.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays steps the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool  { return d.Time().After(o.Time()) }
func (d Date) Equal(o Date) bool  { return d == o }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// FormDay renders the day the way the publication form expects it,
// zero-padded and period separated: 05.03.2024.
func (d Date) FormDay() string {
	return d.Time().Format(formLayout)
}

func (d Date) String() string {
	return d.Time().Format(isoLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange is an inclusive span of calendar days. A range whose Start is
// after its End is empty.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Len returns the number of days in the range.
func (r DateRange) Len() int {
	if r.Start.After(r.End) {
		return 0
	}
	return int(r.End.Time().Sub(r.Start.Time())/(24*time.Hour)) + 1
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days yields every day of the range once, in order.
func (r DateRange) Days() iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
			if !yield(d) {
				return
			}
		}
	}
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}
