package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"
)

const (
	SourceManual   Source = "manual"
	SourceScanned  Source = "scanned"
	SourceImported Source = "imported"
)

// Uncategorized is the category assigned when no hint is given.
const Uncategorized Category = "uncategorized"

const dateLayout = "2006-01-02"

type (
	// Period is the length of a budget window.
	Period string

	// Category is an open, user-extensible label. Only budget rules are
	// restricted to a registered set.
	Category string

	// Source records where an expense came from.
	Source string

	// Date is a calendar date stored as UTC midnight.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is a normalized expense record. Values are never mutated in
	// place; corrections produce a new value with a higher Version.
	Expense struct {
		ID          string   `json:"id"`
		Merchant    string   `json:"merchant"`     // display form
		MerchantKey string   `json:"merchant_key"` // case-folded comparison form
		Amount      Money    `json:"amount"`
		Category    Category `json:"category"`
		Date        Date     `json:"date"`
		Source      Source   `json:"source"`
		Version     int      `json:"version"`
	}

	// RawExpense is candidate expense data as received from OCR, a bot or a
	// manual form. Amount and Date accept several textual and typed forms.
	RawExpense struct {
		ID       string
		Merchant string
		Amount   any
		Date     any
		Category string
		Source   string
		Version  int

		// Confirmed acknowledges a likely duplicate so it is recorded anyway.
		Confirmed bool
	}

	// BudgetRule limits spending for one category, or overall when
	// Category is empty.
	BudgetRule struct {
		Category   Category  `json:"category,omitempty"`
		Period     Period    `json:"period"`
		Limit      Money     `json:"limit"`
		Thresholds []float64 `json:"thresholds"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrFutureDate      = errors.New("date is beyond the allowed skew")
	ErrEmptyMerchant   = errors.New("empty merchant")
	ErrEmptyID         = errors.New("empty id")
	ErrRepeatedID      = errors.New("id appears more than once in the batch")
	ErrInvalidPeriod   = errors.New("invalid period")
	ErrInvalidLimit    = errors.New("limit must be greater than zero")
	ErrNoThresholds    = errors.New("at least one threshold is required")
	ErrThresholdOrder  = errors.New("thresholds must be strictly increasing")
	ErrThresholdNonPos = errors.New("thresholds must be greater than zero")
	ErrStaleVersion    = errors.New("version is not newer than the stored record")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

// Validate rejects the zero date and dates that are not UTC midnight.
func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	if d.Time.Location() != time.UTC || !d.Time.Equal(d.Time.Truncate(24*time.Hour)) {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// Equal reports whether both values name the same calendar date.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// DaysBetween returns the absolute number of days between a and b.
func DaysBetween(a, b Date) int {
	days := int(a.Time.Sub(b.Time).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Validate checks that a period names a supported window.
func (p Period) Validate() error {
	switch p {
	case Weekly, Monthly, Yearly:
		return nil
	default:
		return ErrInvalidPeriod
	}
}

// IsGlobal reports whether the rule applies to every category.
func (r BudgetRule) IsGlobal() bool {
	return r.Category == ""
}

// Key identifies a rule within a rule set.
func (r BudgetRule) Key() string {
	cat := string(r.Category)
	if cat == "" {
		cat = "*"
	}
	return cat + "/" + string(r.Period)
}

// Applies reports whether the rule covers expenses in category c.
func (r BudgetRule) Applies(c Category) bool {
	return r.IsGlobal() || r.Category == c
}

// Validate enforces the rule invariants: a known period, a positive limit
// and strictly increasing positive thresholds.
func (r BudgetRule) Validate() error {
	fail := func(err error) error {
		return &ConfigurationError{Rule: r.Key(), Err: err}
	}
	if err := r.Period.Validate(); err != nil {
		return fail(err)
	}
	if r.Limit.Cents <= 0 {
		return fail(ErrInvalidLimit)
	}
	if len(r.Thresholds) == 0 {
		return fail(ErrNoThresholds)
	}
	for i, t := range r.Thresholds {
		if t <= 0 {
			return fail(ErrThresholdNonPos)
		}
		if i > 0 && t <= r.Thresholds[i-1] {
			return fail(ErrThresholdOrder)
		}
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return &ValidationError{Field: "id", Err: ErrEmptyID}
	}
	if strings.TrimSpace(e.Merchant) == "" {
		return &ValidationError{Field: "merchant", Err: ErrEmptyMerchant}
	}
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Value: e.Amount.String(), Err: err}
	}
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Value: e.Date.String(), Err: err}
	}
	return nil
}

// Raw converts a normalized record back into raw form. Normalizing the
// result yields the same record.
func (e Expense) Raw() RawExpense {
	return RawExpense{
		ID:       e.ID,
		Merchant: e.Merchant,
		Amount:   e.Amount,
		Date:     e.Date,
		Category: string(e.Category),
		Source:   string(e.Source),
		Version:  e.Version,
	}
}
