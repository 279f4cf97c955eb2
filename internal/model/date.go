package model

import (
	"fmt"
	"time"
)

// OpenEndedKey is the textual form of the zero Date.  Coworking seats are
// occupied for an open-ended session, so their slots carry no calendar day
// and are stored and rendered under this key.
const OpenEndedKey = "open"

const dateLayout = "2006-01-02"

// Date is a calendar day without a time of day or location.  The zero value
// denotes an open-ended slot (see OpenEndedKey).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.  OpenEndedKey parses to the zero Date.
func ParseDate(s string) (Date, error) {
	if s == OpenEndedKey {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the open-ended sentinel.
func (d Date) IsZero() bool { return d == Date{} }

// String renders YYYY-MM-DD, or OpenEndedKey for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return OpenEndedKey
	}
	return d.midnight().Format(dateLayout)
}

// AddDays returns the day n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool { return d.midnight().Before(other.midnight()) }

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool { return d.midnight().After(other.midnight()) }

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
