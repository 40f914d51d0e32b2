// Package budget keeps per-category and global spending rules and derives
// threshold alerts from the record set.
//
// Running totals are never stored: every evaluation re-sums the records
// of the window, so re-evaluating the same record against the same
// history always yields the same alerts.
package budget

import (
	"sort"
	"sync"

	"ledgerlens/internal/core"
	"ledgerlens/internal/log"
)

// Level cut-offs for Status, as fractions of the limit.
const (
	approachingRatio = 0.8
	onTrackRatio     = 0.6
)

// DefaultThresholds is used by callers that register a rule without
// explicit thresholds.
var DefaultThresholds = []float64{0.8, 1.0}

// Tracker holds the rule set and the closed category registry that
// category rules must belong to. It is safe for concurrent use.
type Tracker struct {
	logger *log.Logger

	mu         sync.RWMutex
	rules      []core.BudgetRule
	categories []core.Category
	known      map[core.Category]struct{}
}

// NewTracker creates a tracker with the given registered categories.
func NewTracker(categories []core.Category, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Nop()
	}
	t := &Tracker{
		logger: logger.WithComponent(log.ComponentBudget),
		known:  make(map[core.Category]struct{}),
	}
	for _, c := range categories {
		t.registerCategory(c)
	}
	return t
}

// RegisterCategory adds c to the registry. Registering twice is a no-op.
func (t *Tracker) RegisterCategory(c core.Category) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registerCategory(c)
}

func (t *Tracker) registerCategory(c core.Category) {
	if c == "" {
		return
	}
	if _, ok := t.known[c]; ok {
		return
	}
	t.known[c] = struct{}{}
	t.categories = append(t.categories, c)
}

// Categories returns the registry in registration order.
func (t *Tracker) Categories() []core.Category {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]core.Category(nil), t.categories...)
}

// Register validates rule and stores it, replacing any rule with the same
// category and period.
func (t *Tracker) Register(rule core.BudgetRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.Thresholds = append([]float64(nil), rule.Thresholds...)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !rule.IsGlobal() {
		if _, ok := t.known[rule.Category]; !ok {
			return &core.NotFoundError{Kind: "category", Key: string(rule.Category)}
		}
	}
	for i, r := range t.rules {
		if r.Key() == rule.Key() {
			t.rules[i] = rule
			t.logger.Debug("Budget rule replaced", log.FieldRule, rule.Key())
			return nil
		}
	}
	t.rules = append(t.rules, rule)
	t.logger.Debug("Budget rule registered", log.FieldRule, rule.Key())
	return nil
}

// Remove deletes the rule for category and period.
func (t *Tracker) Remove(category core.Category, period core.Period) error {
	key := core.BudgetRule{Category: category, Period: period}.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.rules {
		if r.Key() == key {
			t.rules = append(t.rules[:i], t.rules[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{Kind: "budget rule", Key: key}
}

// Rules returns a copy of the rule set: global rules first, then category
// rules, each in registration order.
func (t *Tracker) Rules() []core.BudgetRule {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.BudgetRule, 0, len(t.rules))
	for _, global := range []bool{true, false} {
		for _, r := range t.rules {
			if r.IsGlobal() == global {
				r.Thresholds = append([]float64(nil), r.Thresholds...)
				out = append(out, r)
			}
		}
	}
	return out
}

// applicable returns the rules that cover category c, in Rules order.
func (t *Tracker) applicable(c core.Category) []core.BudgetRule {
	var out []core.BudgetRule
	for _, r := range t.Rules() {
		if r.Applies(c) {
			out = append(out, r)
		}
	}
	return out
}

// Evaluate returns the alerts that recording record on top of existing
// would trigger. A copy of record already in existing (same ID, same or
// newer version) is ignored so that re-evaluation does not count it
// twice. An older version of record in existing makes record a
// correction: the old version counts towards before, and only the
// thresholds crossed by the difference alert.
func (t *Tracker) Evaluate(record core.Expense, existing []core.Expense) []core.BudgetAlert {
	prev, corrected := previousVersion(record, existing)
	var alerts []core.BudgetAlert
	for _, rule := range t.applicable(record.Category) {
		window, err := core.WindowFor(rule.Period, record.Date)
		if err != nil {
			continue
		}
		others := windowTotal(rule, window, existing, record.ID)
		before := others
		if corrected && rule.Applies(prev.Category) && window.Contains(prev.Date) {
			before = before.Add(prev.Amount)
		}
		after := others.Add(record.Amount)
		for _, th := range rule.Thresholds {
			mark := rule.Limit.Fraction(th)
			if before.Cents < mark.Cents && mark.Cents <= after.Cents {
				alerts = append(alerts, core.BudgetAlert{
					Rule:            rule,
					Threshold:       th,
					ThresholdAmount: mark,
					Window:          window,
					Before:          before,
					After:           after,
					RecordID:        record.ID,
				})
			}
		}
	}
	return alerts
}

// previousVersion returns the newest record in existing that is an older
// version of record.
func previousVersion(record core.Expense, existing []core.Expense) (core.Expense, bool) {
	var prev core.Expense
	found := false
	for _, e := range existing {
		if e.ID != record.ID || e.Version >= record.Version {
			continue
		}
		if !found || e.Version > prev.Version {
			prev, found = e, true
		}
	}
	return prev, found
}

// EvaluateBatch evaluates records in date order, folding each one into the
// history before the next, so a bulk import alerts exactly like the same
// records recorded one at a time. Copies of batch records already in
// existing are dropped first; older versions stay and turn the batch
// record into a correction.
func (t *Tracker) EvaluateBatch(records, existing []core.Expense) []core.BudgetAlert {
	ordered := append([]core.Expense(nil), records...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Date.Before(ordered[j].Date)
	})
	pending := make(map[string]int, len(ordered))
	for _, r := range ordered {
		if v, ok := pending[r.ID]; !ok || r.Version < v {
			pending[r.ID] = r.Version
		}
	}
	history := make([]core.Expense, 0, len(existing)+len(ordered))
	for _, e := range existing {
		if v, ok := pending[e.ID]; ok && e.Version >= v {
			continue
		}
		history = append(history, e)
	}

	var alerts []core.BudgetAlert
	for _, r := range ordered {
		alerts = append(alerts, t.Evaluate(r, history)...)
		history = replaceByID(history, r)
	}
	return alerts
}

// replaceByID swaps the entry with r's ID for r, or appends r.
func replaceByID(history []core.Expense, r core.Expense) []core.Expense {
	for i := range history {
		if history[i].ID == r.ID {
			history[i] = r
			return history
		}
	}
	return append(history, r)
}

// Status reports spending against rule for the window containing asOf.
func (t *Tracker) Status(rule core.BudgetRule, records []core.Expense, asOf core.Date) (core.BudgetStatus, error) {
	window, err := core.WindowFor(rule.Period, asOf)
	if err != nil {
		return core.BudgetStatus{}, &core.ConfigurationError{Rule: rule.Key(), Err: err}
	}
	spent := windowTotal(rule, window, records, "")
	st := core.BudgetStatus{
		Rule:      rule,
		Window:    window,
		Spent:     spent,
		Remaining: rule.Limit.Sub(spent),
	}
	if rule.Limit.Cents > 0 {
		st.Percentage = float64(spent.Cents) / float64(rule.Limit.Cents) * 100
	}
	st.Level = levelFor(spent, rule.Limit)
	return st, nil
}

// StatusAll reports the status of every rule.
func (t *Tracker) StatusAll(records []core.Expense, asOf core.Date) []core.BudgetStatus {
	rules := t.Rules()
	out := make([]core.BudgetStatus, 0, len(rules))
	for _, r := range rules {
		st, err := t.Status(r, records, asOf)
		if err != nil {
			t.logger.Warn("Skipping budget rule", log.FieldRule, r.Key(), log.FieldError, err.Error())
			continue
		}
		out = append(out, st)
	}
	return out
}

func levelFor(spent, limit core.Money) core.BudgetLevel {
	switch {
	case spent.Cents >= limit.Cents:
		return core.LevelOverBudget
	case spent.Cents >= limit.Fraction(approachingRatio).Cents:
		return core.LevelApproaching
	case spent.Cents >= limit.Fraction(onTrackRatio).Cents:
		return core.LevelOnTrack
	default:
		return core.LevelUnder
	}
}

// windowTotal sums the records covered by rule inside window, skipping
// skipID when it is set.
func windowTotal(rule core.BudgetRule, window core.PeriodRange, records []core.Expense, skipID string) core.Money {
	var total core.Money
	for _, e := range records {
		if skipID != "" && e.ID == skipID {
			continue
		}
		if rule.Applies(e.Category) && window.Contains(e.Date) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// HistoryRange returns the smallest date range covering the windows of
// every applicable rule for a record dated d in category c. Callers use it
// to load just enough history for Evaluate.
func (t *Tracker) HistoryRange(c core.Category, d core.Date) (core.PeriodRange, bool) {
	var out core.PeriodRange
	found := false
	for _, r := range t.applicable(c) {
		w, err := core.WindowFor(r.Period, d)
		if err != nil {
			continue
		}
		if !found {
			out, found = core.NewPeriodRange(w.Start, w.End), true
			continue
		}
		if w.Start.Before(out.Start) {
			out.Start = w.Start
		}
		if w.End.After(out.End) {
			out.End = w.End
		}
	}
	return out, found
}
