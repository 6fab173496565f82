package models

import (
	"testing"
	"time"
)

func TestIsoWeeksInYear(t *testing.T) {
	cases := map[int]int{
		2015: 53,
		2016: 52,
		2020: 53,
		2021: 52,
		2024: 52,
		2026: 53,
	}
	for year, want := range cases {
		if got := IsoWeeksInYear(year); got != want {
			t.Errorf("IsoWeeksInYear(%d) = %d, want %d", year, got, want)
		}
	}
}

func TestFirstDayOfIsoWeek(t *testing.T) {
	cases := []struct {
		year, week int
		want       string
	}{
		{2024, 1, "2024-01-01"},
		{2021, 1, "2021-01-04"},
		{2020, 53, "2020-12-28"},
		{2015, 53, "2015-12-28"},
		{2026, 1, "2025-12-29"},
	}
	for _, tc := range cases {
		got := FirstDayOfIsoWeek(tc.year, tc.week)
		if got.Format("2006-01-02") != tc.want {
			t.Errorf("FirstDayOfIsoWeek(%d, %d) = %s, want %s",
				tc.year, tc.week, got.Format("2006-01-02"), tc.want)
		}
	}
}

func TestFirstDayRoundTripsThroughISOWeek(t *testing.T) {
	for year := 1999; year <= 2030; year++ {
		for week := 1; week <= IsoWeeksInYear(year); week++ {
			firstDay := FirstDayOfIsoWeek(year, week)
			if firstDay.Weekday() != time.Monday {
				t.Fatalf("first day of %d-W%02d is %s, want Monday", year, week, firstDay.Weekday())
			}
			gotYear, gotWeek := firstDay.ISOWeek()
			if gotYear != year || gotWeek != week {
				t.Fatalf("first day of %d-W%02d maps back to %d-W%02d", year, week, gotYear, gotWeek)
			}
		}
	}
}

func TestWeekKeyOrdersTheWeekAxis(t *testing.T) {
	if WeekKey(2024, 5) != 202405 {
		t.Fatalf("WeekKey(2024, 5) = %d", WeekKey(2024, 5))
	}
	if !(WeekKey(2023, 53) < WeekKey(2024, 1)) {
		t.Fatal("week 2023-53 must sort before 2024-01")
	}
}
