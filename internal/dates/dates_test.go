package dates

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonthsClampsDay(t *testing.T) {
	cases := []struct {
		in   time.Time
		n    int
		want time.Time
	}{
		{date(2025, time.December, 31), -3, date(2025, time.September, 30)},
		{date(2025, time.January, 31), 1, date(2025, time.February, 28)},
		{date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{date(2025, time.March, 31), -1, date(2025, time.February, 28)},
		{date(2025, time.June, 15), 6, date(2025, time.December, 15)},
		{date(2025, time.November, 30), 1, date(2025, time.December, 30)},
	}
	for _, tc := range cases {
		got := AddMonths(tc.in, tc.n)
		if !got.Equal(tc.want) {
			t.Fatalf("AddMonths(%s, %d) = %s, want %s",
				tc.in.Format("2006-01-02"), tc.n, got.Format("2006-01-02"), tc.want.Format("2006-01-02"))
		}
	}
}

func TestFirstOfNextMonth(t *testing.T) {
	if got := FirstOfNextMonth(date(2025, time.January, 15)); !got.Equal(date(2025, time.February, 1)) {
		t.Fatalf("unexpected: %s", got.Format("2006-01-02"))
	}
	if got := FirstOfNextMonth(date(2025, time.December, 31)); !got.Equal(date(2026, time.January, 1)) {
		t.Fatalf("year rollover: %s", got.Format("2006-01-02"))
	}
	if got := FirstOfNextMonth(date(2025, time.March, 1)); !got.Equal(date(2025, time.April, 1)) {
		t.Fatalf("first of month should still advance: %s", got.Format("2006-01-02"))
	}
}

func TestDaysBetween(t *testing.T) {
	if got := DaysBetween(date(2025, time.January, 1), date(2025, time.January, 8)); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	if got := DaysBetween(date(2025, time.January, 8), date(2025, time.January, 1)); got != -7 {
		t.Fatalf("expected -7, got %d", got)
	}
	// Time of day must not affect the count.
	late := time.Date(2025, time.January, 1, 23, 59, 0, 0, time.UTC)
	early := time.Date(2025, time.January, 2, 0, 1, 0, 0, time.UTC)
	if got := DaysBetween(late, early); got != 1 {
		t.Fatalf("expected 1 across midnight, got %d", got)
	}
}

func TestStartOfDay(t *testing.T) {
	in := time.Date(2025, time.May, 3, 17, 45, 12, 999, time.UTC)
	if got := StartOfDay(in); !got.Equal(date(2025, time.May, 3)) {
		t.Fatalf("unexpected: %s", got)
	}
}

func TestMonthsBetween(t *testing.T) {
	if got := MonthsBetween(date(2025, time.January, 1), date(2026, time.January, 1)); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
	if got := MonthsBetween(date(2025, time.January, 15), date(2025, time.March, 14)); got != 1 {
		t.Fatalf("partial month should not count: got %d", got)
	}
}

func TestDaysInMonth(t *testing.T) {
	if got := DaysInMonth(2024, time.February); got != 29 {
		t.Fatalf("leap february: %d", got)
	}
	if got := DaysInMonth(2025, time.February); got != 28 {
		t.Fatalf("february: %d", got)
	}
	if got := DaysInMonth(2025, time.December); got != 31 {
		t.Fatalf("december: %d", got)
	}
}
