// This file implements the Strategy Pattern for budget period windows.
// Each period type (weekly, monthly, yearly) has its own strategy that
// encapsulates how the window containing a given date is computed.

package core

import (
	"fmt"
	"time"
)

// PeriodRange is the half-open date interval [Start, End). Kind is set
// when the range is a calendar window of a budget period; custom ranges
// leave it empty.
type PeriodRange struct {
	Start Date   `json:"start"`
	End   Date   `json:"end"`
	Kind  Period `json:"kind,omitempty"`
}

// NewPeriodRange returns the custom range [start, end).
func NewPeriodRange(start, end Date) PeriodRange {
	return PeriodRange{Start: start, End: end}
}

// Contains reports whether d falls inside the range.
func (r PeriodRange) Contains(d Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

// Days returns the length of the range in days.
func (r PeriodRange) Days() int {
	return DaysBetween(r.End, r.Start)
}

// Previous returns the immediately preceding range of the same length.
// Calendar windows step back one calendar period, so February precedes
// March even though their lengths differ.
func (r PeriodRange) Previous() PeriodRange {
	if r.Kind != "" {
		if w, err := WindowFor(r.Kind, r.Start.AddDays(-1)); err == nil {
			return w
		}
	}
	return PeriodRange{Start: r.Start.AddDays(-r.Days()), End: r.Start}
}

func (r PeriodRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start, r.End.AddDays(-1))
}

// WindowStrategy computes the calendar window that contains a date.
type WindowStrategy interface {
	Window(d Date) PeriodRange
}

// WeeklyWindow implements WindowStrategy for ISO weeks (Monday to Sunday).
type WeeklyWindow struct{}

// Window returns the Monday-based week containing d.
func (WeeklyWindow) Window(d Date) PeriodRange {
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	start := d.AddDays(-offset)
	return PeriodRange{Start: start, End: start.AddDays(7), Kind: Weekly}
}

// MonthlyWindow implements WindowStrategy for calendar months.
type MonthlyWindow struct{}

// Window returns the calendar month containing d.
func (MonthlyWindow) Window(d Date) PeriodRange {
	start := NewDate(d.Year(), d.Month(), 1)
	end := Date{Time: start.Time.AddDate(0, 1, 0)}
	return PeriodRange{Start: start, End: end, Kind: Monthly}
}

// YearlyWindow implements WindowStrategy for calendar years.
type YearlyWindow struct{}

// Window returns the calendar year containing d.
func (YearlyWindow) Window(d Date) PeriodRange {
	start := NewDate(d.Year(), 1, 1)
	return PeriodRange{Start: start, End: NewDate(d.Year()+1, 1, 1), Kind: Yearly}
}

// windowStrategies maps periods to their corresponding window strategy.
var windowStrategies = map[Period]WindowStrategy{
	Weekly:  WeeklyWindow{},
	Monthly: MonthlyWindow{},
	Yearly:  YearlyWindow{},
}

// GetWindowStrategy returns the window strategy for a period.
// Returns an error if the period is not supported.
func GetWindowStrategy(p Period) (WindowStrategy, error) {
	strategy, ok := windowStrategies[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, p)
	}
	return strategy, nil
}

// WindowFor returns the window of period p that contains d.
func WindowFor(p Period, d Date) (PeriodRange, error) {
	strategy, err := GetWindowStrategy(p)
	if err != nil {
		return PeriodRange{}, err
	}
	return strategy.Window(d), nil
}

// CurrentWindow is WindowFor applied to today's date in now's location.
func CurrentWindow(p Period, now time.Time) (PeriodRange, error) {
	return WindowFor(p, DateOf(now))
}
