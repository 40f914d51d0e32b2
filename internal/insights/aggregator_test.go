package insights

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"ledgerlens/internal/core"
)

var clock = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func newAggregator() *Aggregator {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return clock }
	return New(cfg)
}

func rec(id, merchant string, cat core.Category, cents int64, d core.Date) core.Expense {
	return core.Expense{ID: id, Merchant: merchant, Category: cat, Amount: core.Cents(cents), Date: d, Version: 1}
}

func march() core.PeriodRange {
	r, _ := core.WindowFor(core.Monthly, core.NewDate(2024, 3, 1))
	return r
}

func TestSummarize(t *testing.T) {
	agg := newAggregator()
	records := []core.Expense{
		rec("1", "Jollibee", "food", 15000, core.NewDate(2024, 3, 2)),
		rec("2", "Grab", "transport", 20000, core.NewDate(2024, 3, 1)),
		rec("3", "JOLLIBEE", "food", 5000, core.NewDate(2024, 3, 30)),
		rec("4", "Outside", "food", 99999, core.NewDate(2024, 4, 1)),
		rec("5", "Mercury", "health", 1, core.NewDate(2024, 3, 15)),
	}
	s := agg.Summarize(march(), records)
	if s.Total.Cents != 40001 || s.Count != 4 {
		t.Fatalf("total=%d count=%d", s.Total.Cents, s.Count)
	}
	if s.Average.Cents != 10000 {
		t.Fatalf("average = %d", s.Average.Cents)
	}
	wantCats := []core.Category{"transport", "food", "health"}
	for i, c := range wantCats {
		if s.ByCategory[i].Category != c {
			t.Fatalf("ByCategory = %+v, want order %v", s.ByCategory, wantCats)
		}
	}
	if s.CategoryTotal("food").Cents != 20000 || s.CategoryTotal("gifts").Cents != 0 {
		t.Fatalf("CategoryTotal mismatch")
	}
	if len(s.TopMerchants) != 3 || s.TopMerchants[1].Merchant != "Jollibee" || s.TopMerchants[1].Count != 2 {
		t.Fatalf("TopMerchants = %+v", s.TopMerchants)
	}
	if s.TopMerchants[0].Merchant != "Grab" {
		t.Fatalf("tie on amount should sort by name: %+v", s.TopMerchants)
	}
	if s.FirstDate.String() != "2024-03-01" || s.LastDate.String() != "2024-03-30" {
		t.Fatalf("coverage = %s..%s", s.FirstDate, s.LastDate)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := newAggregator().Summarize(march(), nil)
	if s.Count != 0 || s.Total.Cents != 0 || s.Average.Cents != 0 || len(s.ByCategory) != 0 {
		t.Fatalf("unexpected empty summary %+v", s)
	}
}

func TestSummarizeDeterministic(t *testing.T) {
	agg := newAggregator()
	var records []core.Expense
	for i := 0; i < 40; i++ {
		cat := []core.Category{"food", "transport", "bills"}[i%3]
		records = append(records, rec(string(rune('a'+i)), "m"+string(rune('a'+i%7)), cat, int64(100*(i%9)), core.NewDate(2024, 3, 1+i%28)))
	}
	want := agg.Summarize(march(), records)
	r := rand.New(rand.NewSource(1))
	for n := 0; n < 10; n++ {
		shuffled := append([]core.Expense(nil), records...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		if got := agg.Summarize(march(), shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("summary depends on input order")
		}
	}
}

func TestTopMerchantsLimit(t *testing.T) {
	agg := newAggregator()
	var records []core.Expense
	for i := 0; i < 8; i++ {
		records = append(records, rec(string(rune('a'+i)), string(rune('A'+i)), "food", int64(100+i), core.NewDate(2024, 3, 3)))
	}
	s := agg.Summarize(march(), records)
	if len(s.TopMerchants) != 5 || s.TopMerchants[0].Merchant != "H" {
		t.Fatalf("TopMerchants = %+v", s.TopMerchants)
	}
}

func TestTrends(t *testing.T) {
	agg := newAggregator()
	current := []core.Expense{
		rec("c1", "a", "food", 20000, core.NewDate(2024, 3, 5)),
		rec("c2", "b", "transport", 9000, core.NewDate(2024, 3, 5)),
		rec("c3", "c", "bills", 11000, core.NewDate(2024, 3, 5)),
		rec("c4", "d", "gifts", 5000, core.NewDate(2024, 3, 5)),
	}
	history := []core.Expense{
		rec("p1", "a", "food", 10000, core.NewDate(2024, 2, 10)),
		rec("p2", "b", "transport", 20000, core.NewDate(2024, 2, 10)),
		rec("p3", "c", "bills", 10000, core.NewDate(2024, 2, 10)),
		rec("p4", "e", "fun", 1000, core.NewDate(2024, 2, 28)),
		rec("old", "a", "food", 900000, core.NewDate(2024, 1, 10)),
	}
	got := agg.Trends(march(), current, history)
	if len(got) != 3 {
		t.Fatalf("expected 3 trends, got %+v", got)
	}
	if got[0].Category != "transport" || got[0].Direction != core.TrendDrop || got[0].Delta.Cents != -11000 {
		t.Fatalf("first trend = %+v", got[0])
	}
	if got[1].Category != "food" || got[1].Direction != core.TrendSpike || got[1].Change != 1.0 {
		t.Fatalf("second trend = %+v", got[1])
	}
	if got[2].Category != "fun" || got[2].Direction != core.TrendDrop {
		t.Fatalf("third trend = %+v", got[2])
	}

	cfg := DefaultConfig()
	cfg.ReportNewCategories = true
	withNew := New(cfg).Trends(march(), current, history)
	found := false
	for _, tr := range withNew {
		if tr.Category == "gifts" && tr.Direction == core.TrendNew {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a new-category trend, got %+v", withNew)
	}
}

func TestTrendThresholdIsStrict(t *testing.T) {
	agg := newAggregator()
	current := []core.Expense{rec("c", "a", "food", 13000, core.NewDate(2024, 3, 5))}
	history := []core.Expense{rec("p", "a", "food", 10000, core.NewDate(2024, 2, 5))}
	if got := agg.Trends(march(), current, history); len(got) != 0 {
		t.Fatalf("30%% change must not exceed a 30%% threshold: %+v", got)
	}
}

func baseline(n int) []core.Expense {
	amounts := []int64{10000, 12000, 8000, 11000, 9000, 10000}
	var out []core.Expense
	for i := 0; i < n; i++ {
		out = append(out, rec(string(rune('h'+i)), "shop", "food", amounts[i%len(amounts)], core.NewDate(2024, 2, 1+i)))
	}
	return out
}

func TestAnomalyMinSamples(t *testing.T) {
	agg := newAggregator()
	spike := []core.Expense{rec("spike", "shop", "food", 50000, core.NewDate(2024, 3, 10))}
	if got := agg.Anomalies(march(), spike, baseline(4)); len(got) != 0 {
		t.Fatalf("4 samples must not be enough, got %+v", got)
	}
	got := agg.Anomalies(march(), spike, baseline(5))
	if len(got) != 1 || got[0].ExpenseID != "spike" || got[0].Samples != 5 {
		t.Fatalf("5 samples should flag the spike, got %+v", got)
	}
	if got[0].Mean.Cents != 10000 || got[0].ZScore <= 2 {
		t.Fatalf("unexpected anomaly stats %+v", got[0])
	}
}

func TestAnomalyIgnoresNormalAndFutureHistory(t *testing.T) {
	agg := newAggregator()
	current := []core.Expense{
		rec("normal", "shop", "food", 11500, core.NewDate(2024, 3, 10)),
		rec("other", "shop", "transport", 90000, core.NewDate(2024, 3, 10)),
	}
	history := baseline(6)
	// records at or after the period start never enter the baseline
	history = append(history, rec("late", "shop", "transport", 1, core.NewDate(2024, 3, 1)))
	if got := agg.Anomalies(march(), current, history); len(got) != 0 {
		t.Fatalf("expected no anomalies, got %+v", got)
	}
}

func TestGenerateInsightsOrder(t *testing.T) {
	agg := newAggregator()
	current := []core.Expense{
		rec("spike", "shop", "food", 90000, core.NewDate(2024, 3, 10)),
	}
	history := baseline(6)
	got := agg.GenerateInsights(march(), current, history)
	if len(got) != 3 {
		t.Fatalf("expected summary, trend and anomaly, got %d: %+v", len(got), got)
	}
	kinds := []core.InsightKind{core.InsightSummary, core.InsightTrend, core.InsightAnomaly}
	for i, k := range kinds {
		if got[i].Kind != k {
			t.Fatalf("insight %d kind = %s, want %s", i, got[i].Kind, k)
		}
		if !got[i].GeneratedAt.Equal(clock) {
			t.Fatalf("GeneratedAt must come from the clock")
		}
	}
	if got[0].Summary == nil || got[0].Trend != nil || got[1].Trend == nil || got[2].Anomaly == nil {
		t.Fatalf("payload does not match kind")
	}
	if got[0].Summary.Summary.Total.Cents != 90000 {
		t.Fatalf("summary total = %d", got[0].Summary.Summary.Total.Cents)
	}
}
