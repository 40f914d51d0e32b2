package core

import "time"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category Category `json:"category"`
	Amount   Money    `json:"amount"`
	Count    int      `json:"count"`
}

// MerchantAmount represents an amount aggregated by merchant.
type MerchantAmount struct {
	Merchant string `json:"merchant"`
	Amount   Money  `json:"amount"`
	Count    int    `json:"count"`
}

// Summary is a compact overview of one period. ByCategory keeps the order
// in which categories were first seen.
type Summary struct {
	Period       PeriodRange      `json:"period"`
	Total        Money            `json:"total"`
	Count        int              `json:"count"`
	Average      Money            `json:"average"`
	ByCategory   []CategoryAmount `json:"by_category"`
	TopMerchants []MerchantAmount `json:"top_merchants"`
	FirstDate    Date             `json:"first_date"`
	LastDate     Date             `json:"last_date"`
}

// Clone returns a copy of s that shares no backing arrays with it.
func (s Summary) Clone() Summary {
	if s.ByCategory != nil {
		s.ByCategory = append(make([]CategoryAmount, 0, len(s.ByCategory)), s.ByCategory...)
	}
	if s.TopMerchants != nil {
		s.TopMerchants = append(make([]MerchantAmount, 0, len(s.TopMerchants)), s.TopMerchants...)
	}
	return s
}

// CategoryTotal returns the total for c, or zero when c is absent.
func (s Summary) CategoryTotal(c Category) Money {
	for _, ca := range s.ByCategory {
		if ca.Category == c {
			return ca.Amount
		}
	}
	return Money{}
}

type (
	InsightKind       string
	TrendDirection    string
	DuplicateDecision string
	BudgetLevel       string
)

const (
	InsightTrend   InsightKind = "trend"
	InsightAnomaly InsightKind = "anomaly"
	InsightSummary InsightKind = "summary"

	TrendSpike TrendDirection = "spike"
	TrendDrop  TrendDirection = "drop"
	TrendNew   TrendDirection = "new"

	LikelyDuplicate   DuplicateDecision = "likely_duplicate"
	PossibleDuplicate DuplicateDecision = "possible_duplicate"

	LevelOverBudget  BudgetLevel = "over_budget"
	LevelApproaching BudgetLevel = "approaching_limit"
	LevelOnTrack     BudgetLevel = "on_track"
	LevelUnder       BudgetLevel = "under_budget"
)

// TrendPayload compares one category against the preceding period.
type TrendPayload struct {
	Category  Category       `json:"category"`
	Current   Money          `json:"current"`
	Previous  Money          `json:"previous"`
	Delta     Money          `json:"delta"`
	Change    float64        `json:"change"` // relative to Previous; 0 for TrendNew
	Direction TrendDirection `json:"direction"`
}

// AnomalyPayload flags one record against its category history.
type AnomalyPayload struct {
	ExpenseID string   `json:"expense_id"`
	Merchant  string   `json:"merchant"`
	Category  Category `json:"category"`
	Date      Date     `json:"date"`
	Amount    Money    `json:"amount"`
	Mean      Money    `json:"mean"`
	StdDev    Money    `json:"stddev"`
	Threshold Money    `json:"threshold"`
	ZScore    float64  `json:"zscore"`
	Samples   int      `json:"samples"`
}

// SummaryPayload wraps the period summary.
type SummaryPayload struct {
	Summary Summary `json:"summary"`
}

// Insight is a closed tagged variant: exactly one payload is set and it
// matches Kind.
type Insight struct {
	Kind        InsightKind     `json:"kind"`
	Period      PeriodRange     `json:"period"`
	GeneratedAt time.Time       `json:"generated_at"`
	Trend       *TrendPayload   `json:"trend,omitempty"`
	Anomaly     *AnomalyPayload `json:"anomaly,omitempty"`
	Summary     *SummaryPayload `json:"summary,omitempty"`
}

func NewTrendInsight(period PeriodRange, at time.Time, p TrendPayload) Insight {
	return Insight{Kind: InsightTrend, Period: period, GeneratedAt: at, Trend: &p}
}

func NewAnomalyInsight(period PeriodRange, at time.Time, p AnomalyPayload) Insight {
	return Insight{Kind: InsightAnomaly, Period: period, GeneratedAt: at, Anomaly: &p}
}

func NewSummaryInsight(period PeriodRange, at time.Time, s Summary) Insight {
	return Insight{Kind: InsightSummary, Period: period, GeneratedAt: at, Summary: &SummaryPayload{Summary: s}}
}

// DuplicatePair is a derived, never persisted, comparison result.
type DuplicatePair struct {
	Candidate Expense           `json:"candidate"`
	Existing  Expense           `json:"existing"`
	Score     float64           `json:"score"`
	Decision  DuplicateDecision `json:"decision"`
}

// BudgetAlert is emitted once when a record pushes a rule's running total
// across one of its thresholds.
type BudgetAlert struct {
	Rule            BudgetRule  `json:"rule"`
	Threshold       float64     `json:"threshold"`
	ThresholdAmount Money       `json:"threshold_amount"`
	Window          PeriodRange `json:"window"`
	Before          Money       `json:"before"`
	After           Money       `json:"after"`
	RecordID        string      `json:"record_id"`
}

// BudgetStatus is the state of one rule's current window.
type BudgetStatus struct {
	Rule       BudgetRule  `json:"rule"`
	Window     PeriodRange `json:"window"`
	Spent      Money       `json:"spent"`
	Remaining  Money       `json:"remaining"`
	Percentage float64     `json:"percentage"`
	Level      BudgetLevel `json:"level"`
}
