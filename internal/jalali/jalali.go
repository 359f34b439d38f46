// Package jalali stamps and parses Persian (Jalali) calendar dates used to
// group orders and sales reports. Dates are rendered as YYYY-MM-DD with Latin
// digits so that lexical order equals chronological order.
package jalali

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

var ErrInvalidDate = errors.New("invalid jalali date")

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

type Date struct {
	Year  int
	Month int
	Day   int
}

// FromTime converts t, seen in loc, to a Jalali date.
func FromTime(t time.Time, loc *time.Location) Date {
	pt := ptime.New(t.In(loc))
	return Date{Year: pt.Year(), Month: int(pt.Month()), Day: pt.Day()}
}

// ParseDate parses YYYY-MM-DD and rejects days the month does not have.
func ParseDate(s string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		nums[i] = n
	}
	d := Date{Year: nums[0], Month: nums[1], Day: nums[2]}
	if d.Month > 12 || d.Day > 31 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	// ptime normalizes overflowing days into the next month.
	if FromTime(d.Time(time.UTC), time.UTC) != d {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns noon of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return ptime.Date(d.Year, ptime.Month(d.Month), d.Day, 12, 0, 0, 0, loc).Time()
}

func (d Date) AddDays(n int) Date {
	return FromTime(d.Time(time.UTC).AddDate(0, 0, n), time.UTC)
}

func (d Date) Before(o Date) bool { return d.String() < o.String() }

// DaysBetween counts the dates in [from, to]; zero when to precedes from.
func DaysBetween(from, to Date) int {
	if to.Before(from) {
		return 0
	}
	hours := to.Time(time.UTC).Sub(from.Time(time.UTC)).Hours()
	return int(hours/24+0.5) + 1
}

// Range lists every date from..to inclusive.
func Range(from, to Date) []Date {
	n := DaysBetween(from, to)
	out := make([]Date, 0, n)
	for d := from; len(out) < n; d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Scope selects a slice of the calendar relative to today.
type Scope string

const (
	ScopeDaily   Scope = "daily"
	ScopeMonthly Scope = "monthly"
	ScopeYearly  Scope = "yearly"
	ScopeAll     Scope = "all"
)

// ParseScope maps an empty value to ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeDaily:
		return ScopeDaily, nil
	case ScopeMonthly:
		return ScopeMonthly, nil
	case ScopeYearly:
		return ScopeYearly, nil
	}
	return "", fmt.Errorf("invalid scope %q (use daily, monthly, yearly or all)", s)
}

// Calendar stamps instants in the café's local time zone.
type Calendar struct {
	Location *time.Location
	Clock    Clock
}

func NewCalendar(loc *time.Location, clock Clock) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return Calendar{Location: loc, Clock: clock}
}

func (c Calendar) Now() time.Time { return c.Clock.Now() }

func (c Calendar) Today() Date { return FromTime(c.Now(), c.Location) }

// Stamp returns the Jalali date and HH:MM wall clock of t.
func (c Calendar) Stamp(t time.Time) (string, string) {
	local := t.In(c.Location)
	return FromTime(local, c.Location).String(), local.Format("15:04")
}

// Prefix returns the date prefix covering scope; "" covers everything.
func (c Calendar) Prefix(scope Scope) string {
	today := c.Today()
	switch scope {
	case ScopeDaily:
		return today.String()
	case ScopeMonthly:
		return MonthPrefix(today.Year, today.Month)
	case ScopeYearly:
		return fmt.Sprintf("%04d-", today.Year)
	}
	return ""
}

func MonthPrefix(year, month int) string {
	return fmt.Sprintf("%04d-%02d-", year, month)
}

// CompactDate drops separators: 1403-07-25 becomes 14030725.
func CompactDate(date string) string {
	return strings.ReplaceAll(date, "-", "")
}
