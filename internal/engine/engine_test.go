package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ledgerlens/internal/core"
	"ledgerlens/internal/records/memory"
)

var clock = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (f *fakeNotifier) Publish(_ context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeNotifier) all() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *fakeNotifier) count(t core.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) ListRange(context.Context, string, core.Date, core.Date, core.Category) ([]core.Expense, error) {
	return nil, f.err
}

func newEngine(t *testing.T, mutate func(*Config)) (*Engine, *memory.Store, *fakeNotifier) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return clock }
	cfg.Categories = []core.Category{"food", "transport"}
	if mutate != nil {
		mutate(&cfg)
	}
	store := memory.New()
	n := &fakeNotifier{}
	e, err := New(cfg, store, store, n, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e, store, n
}

func raw(merchant, amount, date, category string) core.RawExpense {
	return core.RawExpense{Merchant: merchant, Amount: amount, Date: date, Category: category}
}

func mustRecord(t *testing.T, e *Engine, userID string, r core.RawExpense) *RecordResult {
	t.Helper()
	res, err := e.RecordExpense(context.Background(), userID, r)
	if err != nil {
		t.Fatalf("RecordExpense(%s): %v", r.Merchant, err)
	}
	return res
}

func march() core.PeriodRange {
	r, _ := core.WindowFor(core.Monthly, core.NewDate(2024, 3, 1))
	return r
}

func TestRecordExpense(t *testing.T) {
	e, store, n := newEngine(t, nil)
	res := mustRecord(t, e, "u1", raw("  Jollibee  Ayala ", "₱1,250.50", "2024-03-02", "Food"))
	if res.Status != StatusRecorded || res.Ref == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Expense.Merchant != "Jollibee Ayala" || res.Expense.Amount.Cents != 125050 || res.Expense.Category != "food" {
		t.Fatalf("record not normalized: %+v", res.Expense)
	}
	got, _ := store.ListRange(context.Background(), "u1", core.NewDate(2024, 3, 1), core.NewDate(2024, 4, 1), "")
	if len(got) != 1 || got[0].ID != res.Expense.ID {
		t.Fatalf("store = %+v", got)
	}
	e.Close()
	if n.count(core.EventExpenseRecorded) != 1 {
		t.Fatalf("expected one recorded event, got %+v", n.all())
	}
	if ev := n.all()[0]; ev.UserID != "u1" || !ev.OccurredAt.Equal(clock) || ev.Expense == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRecordExpenseValidation(t *testing.T) {
	e, _, n := newEngine(t, nil)
	tests := []struct {
		name  string
		user  string
		raw   core.RawExpense
		field string
	}{
		{"negative amount", "u1", raw("Starbucks", "-5.00", "2024-03-01", "food"), "amount"},
		{"empty merchant", "u1", raw("   ", "5.00", "2024-03-01", "food"), "merchant"},
		{"future date", "u1", raw("Starbucks", "5.00", "2024-06-01", "food"), "date"},
		{"missing user", " ", raw("Starbucks", "5.00", "2024-03-01", "food"), "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RecordExpense(context.Background(), tt.user, tt.raw)
			if !errors.Is(err, core.ErrValidation) || KindOf(err) != KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if f := core.ValidationField(err); f != tt.field {
				t.Fatalf("field = %q, want %q", f, tt.field)
			}
		})
	}
	e.Close()
	if len(n.all()) != 0 {
		t.Fatalf("failed writes must not publish")
	}
}

func TestRecordExpenseLikelyDuplicate(t *testing.T) {
	e, store, n := newEngine(t, nil)
	first := mustRecord(t, e, "u1", raw("Starbucks", "25.00", "2024-03-10", "food"))

	again := raw("STARBUCKS  ", "25.00", "2024-03-10", "food")
	res := mustRecord(t, e, "u1", again)
	if res.Status != StatusNeedsConfirmation {
		t.Fatalf("status = %s, want needs_confirmation", res.Status)
	}
	if len(res.Duplicates) != 1 || res.Duplicates[0].Existing.ID != first.Expense.ID || res.Duplicates[0].Score < 0.9 {
		t.Fatalf("duplicates = %+v", res.Duplicates)
	}
	got, _ := store.ListRange(context.Background(), "u1", core.NewDate(2024, 3, 1), core.NewDate(2024, 4, 1), "")
	if len(got) != 1 {
		t.Fatalf("unconfirmed duplicate must not be stored: %+v", got)
	}

	again.Confirmed = true
	res = mustRecord(t, e, "u1", again)
	if res.Status != StatusRecorded || len(res.Duplicates) != 1 {
		t.Fatalf("confirmed duplicate should be recorded and still reported: %+v", res)
	}
	e.Close()
	if n.count(core.EventDuplicateDetected) != 1 || n.count(core.EventExpenseRecorded) != 2 {
		t.Fatalf("events = %+v", n.all())
	}
}

func TestFindDuplicatesPreview(t *testing.T) {
	e, store, _ := newEngine(t, nil)
	mustRecord(t, e, "u1", raw("Grab", "180.00", "2024-03-05", "transport"))
	mustRecord(t, e, "u2", raw("Grab", "180.00", "2024-03-05", "transport"))

	pairs, err := e.FindDuplicates(context.Background(), "u1", raw("grab", "180", "2024-03-06", "transport"))
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Decision != core.LikelyDuplicate {
		t.Fatalf("pairs = %+v", pairs)
	}
	got, _ := store.ListRange(context.Background(), "u1", core.NewDate(2024, 3, 1), core.NewDate(2024, 4, 1), "")
	if len(got) != 1 {
		t.Fatalf("preview must not store anything")
	}
}

func TestRecordExpenseBudgetAlert(t *testing.T) {
	e, _, n := newEngine(t, nil)
	ctx := context.Background()
	if _, err := e.SetBudget(ctx, "u1", core.BudgetRule{Category: "Food", Period: core.Monthly, Limit: core.Cents(20000)}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	mustRecord(t, e, "u1", raw("Jollibee", "150.00", "2024-03-02", "food"))
	res := mustRecord(t, e, "u1", raw("Mang Inasal", "40.00", "2024-03-20", "food"))
	if len(res.Alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %+v", res.Alerts)
	}
	a := res.Alerts[0]
	if a.Threshold != 0.8 || a.Before.Cents != 15000 || a.After.Cents != 19000 {
		t.Fatalf("unexpected alert %+v", a)
	}
	// another user is unaffected by u1's rule
	if res := mustRecord(t, e, "u2", raw("Jollibee", "190.00", "2024-03-02", "food")); len(res.Alerts) != 0 {
		t.Fatalf("rules are per user: %+v", res.Alerts)
	}
	e.Close()
	if n.count(core.EventBudgetAlert) != 1 {
		t.Fatalf("expected one alert event, got %d", n.count(core.EventBudgetAlert))
	}
}

func TestDefaultRules(t *testing.T) {
	e, _, _ := newEngine(t, func(c *Config) {
		c.Rules = []core.BudgetRule{
			{Category: "bills", Period: core.Monthly, Limit: core.Cents(500000), Thresholds: []float64{1}},
			{Period: core.Weekly, Limit: core.Cents(100000), Thresholds: []float64{0.5, 1}},
		}
	})
	ctx := context.Background()
	rules, err := e.Budgets(ctx, "anyone")
	if err != nil {
		t.Fatalf("Budgets: %v", err)
	}
	if len(rules) != 2 || !rules[0].IsGlobal() || rules[1].Category != "bills" {
		t.Fatalf("rules = %+v", rules)
	}
	// a user rule with the same key overrides the default
	if _, err := e.SetBudget(ctx, "u1", core.BudgetRule{Category: "bills", Period: core.Monthly, Limit: core.Cents(100)}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	rules, _ = e.Budgets(ctx, "u1")
	if len(rules) != 2 || rules[1].Limit.Cents != 100 {
		t.Fatalf("override not applied: %+v", rules)
	}

	_, err = New(Config{Rules: []core.BudgetRule{{Category: "x", Period: "daily", Limit: core.Cents(1), Thresholds: []float64{1}}}}, memory.New(), memory.New(), nil, nil)
	if !errors.Is(err, core.ErrConfiguration) {
		t.Fatalf("invalid default rule must fail New, got %v", err)
	}
}

func TestBudgetCRUDErrors(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	ctx := context.Background()

	_, err := e.SetBudget(ctx, "u1", core.BudgetRule{Category: "gadgets", Period: core.Monthly, Limit: core.Cents(100)})
	if !errors.Is(err, core.ErrNotFound) || KindOf(err) != KindNotFound {
		t.Fatalf("unregistered category: %v", err)
	}
	_, err = e.SetBudget(ctx, "u1", core.BudgetRule{Category: "food", Period: core.Monthly, Limit: core.Cents(100), Thresholds: []float64{1, 0.5}})
	if !errors.Is(err, core.ErrThresholdOrder) || KindOf(err) != KindConfiguration {
		t.Fatalf("bad thresholds: %v", err)
	}
	if err := e.RemoveBudget(ctx, "u1", "food", core.Monthly); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("remove missing: %v", err)
	}
	if err := e.RemoveBudget(ctx, "u1", "food", "daily"); KindOf(err) != KindConfiguration {
		t.Fatalf("remove with bad period: %v", err)
	}

	e.RegisterCategory("Gadgets")
	if _, err := e.SetBudget(ctx, "u1", core.BudgetRule{Category: "gadgets", Period: core.Weekly, Limit: core.Cents(100)}); err != nil {
		t.Fatalf("SetBudget after RegisterCategory: %v", err)
	}
	if err := e.RemoveBudget(ctx, "u1", "GADGETS", core.Weekly); err != nil {
		t.Fatalf("RemoveBudget: %v", err)
	}
	if rules, _ := e.Budgets(ctx, "u1"); len(rules) != 0 {
		t.Fatalf("rule not removed: %+v", rules)
	}
}

func TestCheckBudget(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	ctx := context.Background()
	if st, err := e.CheckBudget(ctx, "u1", core.Date{}); err != nil || len(st) != 0 {
		t.Fatalf("no rules: %+v, %v", st, err)
	}
	if _, err := e.SetBudget(ctx, "u1", core.BudgetRule{Category: "food", Period: core.Monthly, Limit: core.Cents(20000)}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	if _, err := e.SetBudget(ctx, "u1", core.BudgetRule{Period: core.Weekly, Limit: core.Cents(10000)}); err != nil {
		t.Fatalf("SetBudget: %v", err)
	}
	mustRecord(t, e, "u1", raw("Jollibee", "170.00", "2024-03-04", "food"))
	mustRecord(t, e, "u1", raw("Grab", "30.00", "2024-03-26", "transport"))

	st, err := e.CheckBudget(ctx, "u1", core.Date{})
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if len(st) != 2 {
		t.Fatalf("statuses = %+v", st)
	}
	// 2024-03-31 is a Sunday: the week runs 03-25..03-31
	if !st[0].Rule.IsGlobal() || st[0].Spent.Cents != 3000 || st[0].Level != core.LevelUnder {
		t.Fatalf("weekly status = %+v", st[0])
	}
	if st[1].Spent.Cents != 17000 || st[1].Level != core.LevelApproaching || st[1].Remaining.Cents != 3000 {
		t.Fatalf("food status = %+v", st[1])
	}
}

func TestGetSummaryCacheInvalidation(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	ctx := context.Background()
	mustRecord(t, e, "u1", raw("Jollibee", "100.00", "2024-03-02", "food"))

	s, err := e.GetSummary(ctx, "u1", march())
	if err != nil || s.Total.Cents != 10000 || s.Count != 1 {
		t.Fatalf("summary = %+v, %v", s, err)
	}
	if e.summaries.Size() != 1 {
		t.Fatalf("summary should be cached")
	}
	mustRecord(t, e, "u1", raw("Grab", "50.00", "2024-03-03", "transport"))
	if e.summaries.Size() != 0 {
		t.Fatalf("recording must invalidate the user's summaries")
	}
	s, _ = e.GetSummary(ctx, "u1", march())
	if s.Total.Cents != 15000 || len(s.ByCategory) != 2 {
		t.Fatalf("stale summary %+v", s)
	}

	if _, err := e.GetSummary(ctx, "u1", core.PeriodRange{Start: core.NewDate(2024, 3, 5), End: core.NewDate(2024, 3, 5)}); KindOf(err) != KindValidation {
		t.Fatalf("empty period must be rejected, got %v", err)
	}
}

func TestGetInsights(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	ctx := context.Background()
	amounts := []string{"100.00", "120.00", "80.00", "110.00", "90.00", "100.00"}
	for i, a := range amounts {
		d := core.NewDate(2024, 1, 5).AddDays(i * 9)
		mustRecord(t, e, "u1", raw("Shop", a, d.String(), "food"))
	}
	spike := mustRecord(t, e, "u1", raw("Shop", "900.00", "2024-03-15", "food"))

	got, err := e.GetInsights(ctx, "u1", march())
	if err != nil {
		t.Fatalf("GetInsights: %v", err)
	}
	if len(got) == 0 || got[0].Kind != core.InsightSummary {
		t.Fatalf("first insight must be the summary: %+v", got)
	}
	last := got[len(got)-1]
	if last.Kind != core.InsightAnomaly || last.Anomaly.ExpenseID != spike.Expense.ID || last.Anomaly.Samples != 6 {
		t.Fatalf("expected the spike as anomaly, got %+v", last)
	}
	for _, in := range got {
		if !in.GeneratedAt.Equal(clock) {
			t.Fatalf("insights must use the engine clock")
		}
	}
}

func TestStoreFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return clock }
	store := &failingStore{Store: memory.New(), err: fmt.Errorf("disk on fire")}
	e, err := New(cfg, store, store, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	_, err = e.RecordExpense(context.Background(), "u1", raw("Grab", "10", "2024-03-01", ""))
	if KindOf(err) != KindStore || !errors.Is(err, store.err) {
		t.Fatalf("expected store error, got %v", err)
	}
	var engErr *Error
	if !errors.As(err, &engErr) || engErr.Op == "" {
		t.Fatalf("expected *Error with an op, got %T", err)
	}
	if _, err := e.GetSummary(context.Background(), "u1", march()); KindOf(err) != KindStore {
		t.Fatalf("summary store error: %v", err)
	}
	if _, err := e.GetInsights(context.Background(), "u1", march()); KindOf(err) != KindStore {
		t.Fatalf("insights store error: %v", err)
	}
}

func TestNotifierFailureDoesNotFailWrite(t *testing.T) {
	e, _, n := newEngine(t, nil)
	n.err = errors.New("broker down")
	res, err := e.RecordExpense(context.Background(), "u1", raw("Grab", "10", "2024-03-01", ""))
	if err != nil || res.Status != StatusRecorded {
		t.Fatalf("write must succeed, got %+v, %v", res, err)
	}
}

func TestConcurrentRecordSingleWriter(t *testing.T) {
	e, store, _ := newEngine(t, nil)
	const workers = 8
	var wg sync.WaitGroup
	statuses := make(chan RecordStatus, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.RecordExpense(context.Background(), "u1", raw("Starbucks", "25.00", "2024-03-10", "food"))
			if err != nil {
				t.Errorf("RecordExpense: %v", err)
				return
			}
			statuses <- res.Status
		}()
	}
	wg.Wait()
	close(statuses)

	recorded := 0
	for s := range statuses {
		if s == StatusRecorded {
			recorded++
		}
	}
	if recorded != 1 {
		t.Fatalf("exactly one concurrent copy may be recorded, got %d", recorded)
	}
	got, _ := store.ListRange(context.Background(), "u1", core.NewDate(2024, 3, 1), core.NewDate(2024, 4, 1), "")
	if len(got) != 1 {
		t.Fatalf("store has %d records", len(got))
	}
	if e.locks.size() != 0 {
		t.Fatalf("user locks leaked: %d", e.locks.size())
	}
}

func TestCategories(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	mustRecord(t, e, "u1", raw("Cinema", "300", "2024-03-01", "Fun"))
	got := e.Categories()
	want := []core.Category{"food", "transport", "fun"}
	if len(got) != len(want) {
		t.Fatalf("Categories = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Categories = %v, want %v", got, want)
		}
	}
}
