package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-09")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Year() != 2024 || d.Month() != 3 || d.Day() != 9 {
		t.Fatalf("unexpected date %v", d)
	}
	if _, err := ParseDate("09/03/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestDateHelpers(t *testing.T) {
	a := NewDate(2024, 2, 28)
	b := a.AddDays(2)
	if b.String() != "2024-03-01" {
		t.Fatalf("AddDays across leap day = %s", b)
	}
	if !a.Before(b) || !b.After(a) || a.Equal(b) {
		t.Fatalf("comparison helpers inconsistent")
	}
	if DaysBetween(a, b) != 2 || DaysBetween(b, a) != 2 {
		t.Fatalf("DaysBetween = %d", DaysBetween(a, b))
	}
	if (Date{}).Validate() == nil {
		t.Fatalf("zero date must not validate")
	}
	if err := (Date{Time: time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)}).Validate(); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("non-midnight date: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("NewDate must validate: %v", err)
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(NewDate(2024, 1, 5))
	if err != nil || string(b) != `"2024-01-05"` {
		t.Fatalf("marshal = %s err=%v", b, err)
	}
	var d Date
	if err := json.Unmarshal([]byte(`"2023-12-31"`), &d); err != nil || !d.Equal(NewDate(2023, 12, 31)) {
		t.Fatalf("unmarshal = %v err=%v", d, err)
	}
	if err := json.Unmarshal([]byte(`null`), &d); err != nil || !d.IsZero() {
		t.Fatalf("null should give zero date, got %v err=%v", d, err)
	}
}

func TestBudgetRuleValidate(t *testing.T) {
	base := BudgetRule{Category: "food", Period: Monthly, Limit: Cents(20000), Thresholds: []float64{0.8, 1.0}}
	tests := []struct {
		name   string
		mutate func(r *BudgetRule)
		want   error
	}{
		{"valid", func(r *BudgetRule) {}, nil},
		{"global valid", func(r *BudgetRule) { r.Category = "" }, nil},
		{"bad period", func(r *BudgetRule) { r.Period = "daily" }, ErrInvalidPeriod},
		{"zero limit", func(r *BudgetRule) { r.Limit = Cents(0) }, ErrInvalidLimit},
		{"no thresholds", func(r *BudgetRule) { r.Thresholds = nil }, ErrNoThresholds},
		{"non increasing", func(r *BudgetRule) { r.Thresholds = []float64{0.8, 0.8} }, ErrThresholdOrder},
		{"decreasing", func(r *BudgetRule) { r.Thresholds = []float64{1.0, 0.5} }, ErrThresholdOrder},
		{"non positive", func(r *BudgetRule) { r.Thresholds = []float64{0, 1} }, ErrThresholdNonPos},
		{"above one allowed", func(r *BudgetRule) { r.Thresholds = []float64{1.0, 1.5} }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			r.Thresholds = append([]float64(nil), base.Thresholds...)
			tt.mutate(&r)
			err := r.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) || !errors.Is(err, ErrConfiguration) {
				t.Fatalf("Validate() = %v, want %v wrapped as configuration error", err, tt.want)
			}
		})
	}
}

func TestBudgetRuleKeyAndApplies(t *testing.T) {
	g := BudgetRule{Period: Weekly}
	c := BudgetRule{Category: "food", Period: Monthly}
	if g.Key() != "*/weekly" || c.Key() != "food/monthly" {
		t.Fatalf("keys = %q %q", g.Key(), c.Key())
	}
	if !g.Applies("travel") || !c.Applies("food") || c.Applies("travel") {
		t.Fatalf("Applies mismatch")
	}
}

func TestExpenseValidate(t *testing.T) {
	e := Expense{ID: "x", Merchant: "Shop", Amount: Cents(100), Date: NewDate(2024, 1, 1), Version: 1}
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := e
	bad.Merchant = "  "
	if f := ValidationField(bad.Validate()); f != "merchant" {
		t.Fatalf("field = %q, want merchant", f)
	}
	bad = e
	bad.Amount = Cents(-1)
	if f := ValidationField(bad.Validate()); f != "amount" {
		t.Fatalf("field = %q, want amount", f)
	}
	bad = e
	bad.Date = Date{}
	if f := ValidationField(bad.Validate()); f != "date" {
		t.Fatalf("field = %q, want date", f)
	}
}

func TestErrorClassification(t *testing.T) {
	nf := &NotFoundError{Kind: "budget rule", Key: "food/monthly"}
	if !errors.Is(nf, ErrNotFound) || errors.Is(nf, ErrValidation) {
		t.Fatalf("NotFoundError classification wrong")
	}
	wrapped := errors.Join(errors.New("outer"), &ValidationError{Field: "date", Err: ErrInvalidDate})
	if !errors.Is(wrapped, ErrValidation) || !errors.Is(wrapped, ErrInvalidDate) {
		t.Fatalf("ValidationError must be reachable through wrapping")
	}
	if ValidationField(errors.New("plain")) != "" {
		t.Fatalf("plain errors have no field")
	}
}
