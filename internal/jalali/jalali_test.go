package jalali

import (
	"errors"
	"testing"
	"time"
)

func TestFromTime(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC), "1403-01-01"},
		{time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC), "1403-07-25"},
		{time.Date(2024, 9, 22, 12, 0, 0, 0, time.UTC), "1403-07-01"},
	}
	for _, c := range cases {
		if got := FromTime(c.in, time.UTC).String(); got != c.want {
			t.Errorf("FromTime(%s) = %s, want %s", c.in.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestStampUsesLocation(t *testing.T) {
	loc := time.FixedZone("IRST", 3*3600+1800)
	cal := NewCalendar(loc, nil)
	// 22:00 UTC is already the next day in Tehran.
	date, clock := cal.Stamp(time.Date(2024, 10, 15, 22, 0, 0, 0, time.UTC))
	if date != "1403-07-25" || clock != "01:30" {
		t.Fatalf("Stamp = %s %s", date, clock)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("1403-07-25")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d != (Date{Year: 1403, Month: 7, Day: 25}) {
		t.Fatalf("got %+v", d)
	}
	for _, bad := range []string{"", "1403-7-25", "1403/07/25", "1403-13-01", "1403-07-31", "1403-00-10", "abcd-ef-gh"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) err = %v", bad, err)
		}
	}
}

func TestRangeCrossesMonth(t *testing.T) {
	from, _ := ParseDate("1403-06-30")
	to, _ := ParseDate("1403-07-02")
	got := Range(from, to)
	want := []string{"1403-06-30", "1403-06-31", "1403-07-01", "1403-07-02"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if n := DaysBetween(to, from); n != 0 {
		t.Fatalf("reversed range = %d", n)
	}
}

func TestPrefix(t *testing.T) {
	cal := NewCalendar(time.UTC, FixedClock{T: time.Date(2024, 10, 16, 9, 0, 0, 0, time.UTC)})
	cases := map[Scope]string{
		ScopeDaily:   "1403-07-25",
		ScopeMonthly: "1403-07-",
		ScopeYearly:  "1403-",
		ScopeAll:     "",
	}
	for scope, want := range cases {
		if got := cal.Prefix(scope); got != want {
			t.Errorf("Prefix(%s) = %q, want %q", scope, got, want)
		}
	}
}

func TestParseScope(t *testing.T) {
	if s, err := ParseScope(""); err != nil || s != ScopeAll {
		t.Fatalf("empty scope = %q %v", s, err)
	}
	if s, err := ParseScope("Monthly"); err != nil || s != ScopeMonthly {
		t.Fatalf("Monthly = %q %v", s, err)
	}
	if _, err := ParseScope("weekly"); err == nil {
		t.Fatal("weekly should fail")
	}
}

func TestCompactDate(t *testing.T) {
	if got := CompactDate("1403-07-25"); got != "14030725" {
		t.Fatalf("got %s", got)
	}
}
