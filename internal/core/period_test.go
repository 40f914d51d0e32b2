package core

import (
	"errors"
	"testing"
)

func TestWeeklyWindow(t *testing.T) {
	tests := []struct {
		name  string
		date  Date
		start string
	}{
		{"monday", NewDate(2024, 1, 15), "2024-01-15"},
		{"wednesday", NewDate(2024, 1, 17), "2024-01-15"},
		{"sunday", NewDate(2024, 1, 21), "2024-01-15"},
		{"across year", NewDate(2025, 1, 1), "2024-12-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := WeeklyWindow{}.Window(tt.date)
			if w.Start.String() != tt.start || w.Days() != 7 || w.Kind != Weekly {
				t.Fatalf("Window(%s) = %+v", tt.date, w)
			}
			if !w.Contains(tt.date) {
				t.Fatalf("window must contain its date")
			}
		})
	}
}

func TestMonthlyAndYearlyWindow(t *testing.T) {
	m := MonthlyWindow{}.Window(NewDate(2024, 2, 29))
	if m.Start.String() != "2024-02-01" || m.End.String() != "2024-03-01" || m.Days() != 29 {
		t.Fatalf("monthly window = %v (%d days)", m, m.Days())
	}
	if m.Contains(NewDate(2024, 3, 1)) || !m.Contains(NewDate(2024, 2, 1)) {
		t.Fatalf("monthly window must be half-open")
	}
	dec := MonthlyWindow{}.Window(NewDate(2023, 12, 31))
	if dec.End.String() != "2024-01-01" {
		t.Fatalf("december end = %s", dec.End)
	}
	y := YearlyWindow{}.Window(NewDate(2024, 7, 4))
	if y.Start.String() != "2024-01-01" || y.End.String() != "2025-01-01" || y.Days() != 366 {
		t.Fatalf("yearly window = %v", y)
	}
}

func TestGetWindowStrategy(t *testing.T) {
	for _, p := range []Period{Weekly, Monthly, Yearly} {
		if _, err := GetWindowStrategy(p); err != nil {
			t.Fatalf("GetWindowStrategy(%s): %v", p, err)
		}
	}
	if _, err := GetWindowStrategy("daily"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestPeriodRangePrevious(t *testing.T) {
	march, _ := WindowFor(Monthly, NewDate(2024, 3, 15))
	prev := march.Previous()
	if prev.Start.String() != "2024-02-01" || prev.End.String() != "2024-03-01" {
		t.Fatalf("previous month = %v", prev)
	}
	week, _ := WindowFor(Weekly, NewDate(2024, 1, 3))
	if p := week.Previous(); p.Start.String() != "2023-12-25" || !p.End.Equal(week.Start) {
		t.Fatalf("previous week = %v", p)
	}
	custom := NewPeriodRange(NewDate(2024, 1, 11), NewDate(2024, 1, 21))
	if p := custom.Previous(); p.Start.String() != "2024-01-01" || !p.End.Equal(custom.Start) {
		t.Fatalf("previous custom = %v", p)
	}
}

func TestPeriodRangeString(t *testing.T) {
	r := NewPeriodRange(NewDate(2024, 1, 1), NewDate(2024, 2, 1))
	if r.String() != "2024-01-01..2024-01-31" {
		t.Fatalf("String = %q", r.String())
	}
}
