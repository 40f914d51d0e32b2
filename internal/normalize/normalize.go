// Package normalize turns raw expense data from any capture channel into
// validated core.Expense records.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"ledgerlens/internal/core"
	"ledgerlens/internal/log"
)

// DefaultLayouts are tried in order when a date arrives as text. Numeric
// slash and dash forms are day-first.
var DefaultLayouts = []string{
	"2006-01-02",
	"2/1/2006",
	"2-1-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Config controls how raw values are interpreted.
type Config struct {
	// SkewTolerance is how far into the future a date may be before it is
	// rejected.
	SkewTolerance time.Duration
	Layouts       []string
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a one day skew tolerance and DefaultLayouts.
func DefaultConfig() Config {
	return Config{
		SkewTolerance: 24 * time.Hour,
		Layouts:       DefaultLayouts,
		Now:           time.Now,
	}
}

// Normalizer validates raw records. It keeps a working set of every
// category it has seen; the set is safe for concurrent use.
type Normalizer struct {
	cfg    Config
	logger *log.Logger

	mu         sync.Mutex
	categories []core.Category
	seen       map[core.Category]struct{}
}

// New creates a Normalizer seeded with known categories.
func New(cfg Config, known []core.Category, logger *log.Logger) *Normalizer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.Layouts) == 0 {
		cfg.Layouts = DefaultLayouts
	}
	if logger == nil {
		logger = log.Nop()
	}
	n := &Normalizer{
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentNormalize),
		seen:   make(map[core.Category]struct{}),
	}
	for _, c := range known {
		if c = CategoryOf(string(c)); c != "" {
			n.remember(c)
		}
	}
	return n
}

// Normalize validates raw and produces a record. Normalizing the Raw()
// form of a normalized record returns the same record.
func (n *Normalizer) Normalize(raw core.RawExpense) (core.Expense, error) {
	merchant := CollapseSpaces(raw.Merchant)
	if merchant == "" {
		return core.Expense{}, &core.ValidationError{Field: "merchant", Err: core.ErrEmptyMerchant}
	}

	amount, err := Amount(raw.Amount)
	if err != nil {
		return core.Expense{}, err
	}

	date, err := n.date(raw.Date)
	if err != nil {
		return core.Expense{}, err
	}

	category := CategoryOf(raw.Category)
	if category == "" {
		category = core.Uncategorized
	}
	if n.remember(category) {
		n.logger.Debug("New category added to working set", log.FieldCategory, string(category))
	}

	source := core.Source(strings.ToLower(strings.TrimSpace(raw.Source)))
	if source == "" {
		source = core.SourceManual
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = uuid.NewString()
	}
	version := raw.Version
	if version < 1 {
		version = 1
	}

	e := core.Expense{
		ID:          id,
		Merchant:    merchant,
		MerchantKey: MerchantKey(merchant),
		Amount:      amount,
		Category:    category,
		Date:        date,
		Source:      source,
		Version:     version,
	}
	return e, e.Validate()
}

// Correct applies the non-empty fields of patch to prev and returns the
// corrected record under the same ID with the next version.
func (n *Normalizer) Correct(prev core.Expense, patch core.RawExpense) (core.Expense, error) {
	raw := prev.Raw()
	if strings.TrimSpace(patch.Merchant) != "" {
		raw.Merchant = patch.Merchant
	}
	if patch.Amount != nil {
		raw.Amount = patch.Amount
	}
	if patch.Date != nil {
		raw.Date = patch.Date
	}
	if strings.TrimSpace(patch.Category) != "" {
		raw.Category = patch.Category
	}
	if strings.TrimSpace(patch.Source) != "" {
		raw.Source = patch.Source
	}
	raw.Version = prev.Version + 1
	return n.Normalize(raw)
}

// Categories returns the working category set in first-seen order.
func (n *Normalizer) Categories() []core.Category {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Category(nil), n.categories...)
}

// remember adds c to the working set and reports whether it was new.
func (n *Normalizer) remember(c core.Category) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.seen[c]; ok {
		return false
	}
	n.seen[c] = struct{}{}
	n.categories = append(n.categories, c)
	return true
}

func (n *Normalizer) date(v any) (core.Date, error) {
	now := n.cfg.Now()
	var d core.Date
	switch x := v.(type) {
	case nil:
		return core.DateOf(now), nil
	case core.Date:
		d = x
	case *core.Date:
		if x == nil {
			return core.DateOf(now), nil
		}
		d = *x
	case time.Time:
		d = core.DateOf(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return core.DateOf(now), nil
		}
		parsed, err := parseDate(s, n.cfg.Layouts)
		if err != nil {
			return core.Date{}, &core.ValidationError{Field: "date", Value: s, Err: core.ErrInvalidDate}
		}
		d = parsed
	default:
		return core.Date{}, &core.ValidationError{Field: "date", Value: fmt.Sprint(v), Err: core.ErrInvalidDate}
	}
	if d.IsZero() {
		return core.DateOf(now), nil
	}
	if latest := core.DateOf(now.Add(n.cfg.SkewTolerance)); d.After(latest) {
		return core.Date{}, &core.ValidationError{Field: "date", Value: d.String(), Err: core.ErrFutureDate}
	}
	return d, nil
}

func parseDate(s string, layouts []string) (core.Date, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, core.ErrInvalidDate
}

// Amount converts a textual or numeric amount to Money.
func Amount(v any) (core.Money, error) {
	invalid := func() (core.Money, error) {
		return core.Money{}, &core.ValidationError{Field: "amount", Value: fmt.Sprint(v), Err: core.ErrInvalidAmount}
	}
	switch x := v.(type) {
	case string:
		return core.ParseAmount(x)
	case json.Number:
		return core.ParseAmount(x.String())
	case core.Money:
		if x.Validate() != nil {
			return invalid()
		}
		return x, nil
	case decimal.Decimal:
		return core.MoneyFromDecimal(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return invalid()
		}
		return core.MoneyFromDecimal(decimal.NewFromFloat(x))
	case float32:
		if f := float64(x); math.IsNaN(f) || math.IsInf(f, 0) {
			return invalid()
		}
		return core.MoneyFromDecimal(decimal.NewFromFloat32(x))
	case int:
		return core.MoneyFromDecimal(decimal.NewFromInt(int64(x)))
	case int32:
		return core.MoneyFromDecimal(decimal.NewFromInt32(x))
	case int64:
		return core.MoneyFromDecimal(decimal.NewFromInt(x))
	default:
		return invalid()
	}
}

// CollapseSpaces trims s and collapses internal whitespace runs to a
// single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// MerchantKey is the comparison form of a merchant name: NFKC, case
// folded, whitespace collapsed.
func MerchantKey(merchant string) string {
	return cases.Fold().String(norm.NFKC.String(CollapseSpaces(merchant)))
}

// CategoryOf turns a free-form category hint into an identifier. It
// returns "" for a blank hint.
func CategoryOf(hint string) core.Category {
	s := CollapseSpaces(hint)
	if s == "" {
		return ""
	}
	return core.Category(cases.Lower(language.Und).String(s))
}
