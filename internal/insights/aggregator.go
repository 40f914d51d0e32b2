// Package insights derives summaries, trends and anomalies from a record
// set. All functions are pure: the same records and clock give the same
// output.
package insights

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledgerlens/internal/core"
)

// Config holds the aggregation parameters.
type Config struct {
	// TrendThreshold is the relative change, against the previous period,
	// above which a category trend is reported.
	TrendThreshold float64
	// ReportNewCategories reports categories with no spending in the
	// previous period as TrendNew.
	ReportNewCategories bool
	// AnomalyK is the number of standard deviations above the mean that
	// flags a record.
	AnomalyK float64
	// MinSamples is the minimum history per category before anomalies are
	// considered.
	MinSamples   int
	TopMerchants int
	Now          func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TrendThreshold: 0.30,
		AnomalyK:       2.0,
		MinSamples:     5,
		TopMerchants:   5,
		Now:            time.Now,
	}
}

type Aggregator struct {
	cfg Config
}

func New(cfg Config) *Aggregator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TopMerchants <= 0 {
		cfg.TopMerchants = 5
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 1
	}
	return &Aggregator{cfg: cfg}
}

// Summarize aggregates the records that fall inside period. Records
// outside the period are ignored.
func (a *Aggregator) Summarize(period core.PeriodRange, records []core.Expense) core.Summary {
	in := inPeriod(period, records)
	s := core.Summary{
		Period:       period,
		ByCategory:   []core.CategoryAmount{},
		TopMerchants: []core.MerchantAmount{},
	}
	if len(in) == 0 {
		return s
	}

	catIdx := make(map[core.Category]int)
	merchants := make(map[string]*core.MerchantAmount)
	var merchantOrder []string
	for _, e := range in {
		s.Total = s.Total.Add(e.Amount)
		s.Count++

		i, ok := catIdx[e.Category]
		if !ok {
			i = len(s.ByCategory)
			catIdx[e.Category] = i
			s.ByCategory = append(s.ByCategory, core.CategoryAmount{Category: e.Category})
		}
		s.ByCategory[i].Amount = s.ByCategory[i].Amount.Add(e.Amount)
		s.ByCategory[i].Count++

		k := merchantKey(e)
		m, ok := merchants[k]
		if !ok {
			m = &core.MerchantAmount{Merchant: e.Merchant}
			merchants[k] = m
			merchantOrder = append(merchantOrder, k)
		}
		m.Amount = m.Amount.Add(e.Amount)
		m.Count++
	}
	s.FirstDate = in[0].Date
	s.LastDate = in[len(in)-1].Date
	s.Average = average(s.Total, s.Count)

	top := make([]core.MerchantAmount, 0, len(merchantOrder))
	for _, k := range merchantOrder {
		top = append(top, *merchants[k])
	}
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Amount.Cents != top[j].Amount.Cents {
			return top[i].Amount.Cents > top[j].Amount.Cents
		}
		return strings.ToLower(top[i].Merchant) < strings.ToLower(top[j].Merchant)
	})
	if len(top) > a.cfg.TopMerchants {
		top = top[:a.cfg.TopMerchants]
	}
	s.TopMerchants = top
	return s
}

// GenerateInsights returns, in order, one summary insight for period, the
// category trends against the previous period, and the anomalous records
// of the period. records supplies the period; history supplies the
// previous period and the anomaly baseline, and only its records dated
// before period.Start are used.
func (a *Aggregator) GenerateInsights(period core.PeriodRange, records, history []core.Expense) []core.Insight {
	now := a.cfg.Now()
	current := inPeriod(period, records)
	past := beforeDate(period.Start, history)

	out := []core.Insight{core.NewSummaryInsight(period, now, a.Summarize(period, current))}
	for _, t := range a.Trends(period, current, past) {
		out = append(out, core.NewTrendInsight(period, now, t))
	}
	for _, an := range a.Anomalies(period, current, past) {
		out = append(out, core.NewAnomalyInsight(period, now, an))
	}
	return out
}

// Trends compares category totals of period with those of
// period.Previous(). Results are ordered by absolute delta descending,
// then category.
func (a *Aggregator) Trends(period core.PeriodRange, records, history []core.Expense) []core.TrendPayload {
	cur := categoryTotals(inPeriod(period, records))
	prev := categoryTotals(inPeriod(period.Previous(), history))

	cats := append([]core.Category(nil), cur.order...)
	for _, c := range prev.order {
		if _, ok := cur.totals[c]; !ok {
			cats = append(cats, c)
		}
	}

	var out []core.TrendPayload
	for _, c := range cats {
		now, before := cur.totals[c], prev.totals[c]
		delta := now.Sub(before)
		t := core.TrendPayload{Category: c, Current: now, Previous: before, Delta: delta}
		switch {
		case before.Cents > 0:
			t.Change = float64(delta.Cents) / float64(before.Cents)
			if math.Abs(t.Change) <= a.cfg.TrendThreshold {
				continue
			}
			t.Direction = core.TrendSpike
			if delta.Cents < 0 {
				t.Direction = core.TrendDrop
			}
		case now.Cents > 0 && a.cfg.ReportNewCategories:
			t.Direction = core.TrendNew
		default:
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := abs(out[i].Delta.Cents), abs(out[j].Delta.Cents)
		if di != dj {
			return di > dj
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Anomalies flags records of period whose amount exceeds mean + K*stddev
// of the same category's amounts in history. Categories with fewer than
// MinSamples historical records are skipped. Results are ordered by
// z-score descending, then date, then ID.
func (a *Aggregator) Anomalies(period core.PeriodRange, records, history []core.Expense) []core.AnomalyPayload {
	baseline := make(map[core.Category][]float64)
	for _, e := range beforeDate(period.Start, history) {
		baseline[e.Category] = append(baseline[e.Category], float64(e.Amount.Cents))
	}
	stats := make(map[core.Category]stat, len(baseline))
	for c, xs := range baseline {
		if len(xs) >= a.cfg.MinSamples {
			stats[c] = describe(xs)
		}
	}

	var out []core.AnomalyPayload
	for _, e := range inPeriod(period, records) {
		st, ok := stats[e.Category]
		if !ok {
			continue
		}
		threshold := st.mean + a.cfg.AnomalyK*st.stddev
		amount := float64(e.Amount.Cents)
		if amount <= threshold {
			continue
		}
		var z float64
		if st.stddev > 0 {
			z = (amount - st.mean) / st.stddev
		}
		out = append(out, core.AnomalyPayload{
			ExpenseID: e.ID,
			Merchant:  e.Merchant,
			Category:  e.Category,
			Date:      e.Date,
			Amount:    e.Amount,
			Mean:      centsOf(st.mean),
			StdDev:    centsOf(st.stddev),
			Threshold: centsOf(threshold),
			ZScore:    z,
			Samples:   st.n,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ZScore != out[j].ZScore {
			return out[i].ZScore > out[j].ZScore
		}
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ExpenseID < out[j].ExpenseID
	})
	return out
}

type stat struct {
	n            int
	mean, stddev float64
}

// describe returns the mean and the population standard deviation.
func describe(xs []float64) stat {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return stat{n: len(xs), mean: mean, stddev: math.Sqrt(sq / float64(len(xs)))}
}

type totals struct {
	order  []core.Category
	totals map[core.Category]core.Money
}

func categoryTotals(records []core.Expense) totals {
	t := totals{totals: make(map[core.Category]core.Money)}
	for _, e := range records {
		if _, ok := t.totals[e.Category]; !ok {
			t.order = append(t.order, e.Category)
		}
		t.totals[e.Category] = t.totals[e.Category].Add(e.Amount)
	}
	return t
}

// inPeriod returns the records inside period sorted by date, then ID.
func inPeriod(period core.PeriodRange, records []core.Expense) []core.Expense {
	var out []core.Expense
	for _, e := range records {
		if period.Contains(e.Date) {
			out = append(out, e)
		}
	}
	sortRecords(out)
	return out
}

func beforeDate(d core.Date, records []core.Expense) []core.Expense {
	var out []core.Expense
	for _, e := range records {
		if e.Date.Before(d) {
			out = append(out, e)
		}
	}
	sortRecords(out)
	return out
}

func sortRecords(rs []core.Expense) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].Date.Equal(rs[j].Date) {
			return rs[i].Date.Before(rs[j].Date)
		}
		return rs[i].ID < rs[j].ID
	})
}

func merchantKey(e core.Expense) string {
	if e.MerchantKey != "" {
		return e.MerchantKey
	}
	return strings.ToLower(e.Merchant)
}

// average is total/count rounded half-up to cents.
func average(total core.Money, count int) core.Money {
	if count == 0 {
		return core.Money{}
	}
	v := decimal.NewFromInt(total.Cents).Div(decimal.NewFromInt(int64(count))).Round(0)
	return core.Money{Cents: v.IntPart()}
}

func centsOf(v float64) core.Money {
	return core.Money{Cents: decimal.NewFromFloat(v).Round(0).IntPart()}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
