package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ledgerlens/internal/core"
	"ledgerlens/internal/engine"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func rightAlign(t table.Writer, cols ...int) {
	configs := make([]table.ColumnConfig, 0, len(cols))
	for _, c := range cols {
		configs = append(configs, table.ColumnConfig{Number: c, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)
}

// PrintRecordResult renders the outcome of a record command.
func PrintRecordResult(w io.Writer, res *engine.RecordResult) {
	status := text.FgGreen.Sprint("RECORDED")
	if res.Status == engine.StatusNeedsConfirmation {
		status = text.FgYellow.Sprint("NEEDS CONFIRMATION")
	}
	e := res.Expense
	fmt.Fprintf(w, "%s  %s  %s  %s  %s  (id %s)\n", status, e.Date, e.Merchant, e.Amount, e.Category, e.ID)

	if len(res.Duplicates) > 0 {
		PrintDuplicates(w, res.Duplicates)
	}
	printAlerts(w, res.Alerts)
	if res.Status == engine.StatusNeedsConfirmation {
		fmt.Fprintln(w, "Re-run with --confirm to record it anyway.")
	}
}

func printAlerts(w io.Writer, alerts []core.BudgetAlert) {
	for _, a := range alerts {
		fmt.Fprintln(w, text.FgRed.Sprintf("Budget %s crossed %.0f%% (%s): %s -> %s of %s",
			a.Rule.Key(), a.Threshold*100, a.Window, a.Before, a.After, a.Rule.Limit))
	}
}

// PrintImportResult renders recorded and held records, then the alerts
// the batch triggered.
func PrintImportResult(w io.Writer, res *engine.ImportResult) {
	fmt.Fprintf(w, "Imported %d expenses, %d held as likely duplicates\n", len(res.Recorded), len(res.Held))
	if len(res.Recorded) > 0 || len(res.Held) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"Status", "Date", "Merchant", "Amount", "Category", "ID", "Matches"})
		add := func(r engine.RecordResult, status string) {
			matches := ""
			if len(r.Duplicates) > 0 {
				matches = fmt.Sprintf("%s (%.2f)", r.Duplicates[0].Existing.ID, r.Duplicates[0].Score)
			}
			e := r.Expense
			t.AppendRow(table.Row{status, e.Date.String(), e.Merchant, e.Amount.String(), string(e.Category), e.ID, matches})
		}
		for _, r := range res.Recorded {
			add(r, text.FgGreen.Sprint("recorded"))
		}
		for _, r := range res.Held {
			add(r, text.FgYellow.Sprint("held"))
		}
		rightAlign(t, 4)
		t.Render()
	}
	printAlerts(w, res.Alerts)
	if len(res.Held) > 0 {
		fmt.Fprintln(w, "Set confirmed: true on held entries and import them again to record them anyway.")
	}
}

// PrintDuplicates renders flagged pairs, best match first.
func PrintDuplicates(w io.Writer, pairs []core.DuplicatePair) {
	if len(pairs) == 0 {
		fmt.Fprintln(w, "No duplicates found.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Score", "Decision", "Date", "Merchant", "Amount", "ID"})
	for _, p := range pairs {
		decision := text.FgYellow.Sprint(string(p.Decision))
		if p.Decision == core.LikelyDuplicate {
			decision = text.FgRed.Sprint(string(p.Decision))
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("%.2f", p.Score),
			decision,
			p.Existing.Date.String(),
			p.Existing.Merchant,
			p.Existing.Amount.String(),
			p.Existing.ID,
		})
	}
	rightAlign(t, 1, 5)
	t.Render()
}

// PrintSummary renders category totals followed by top merchants.
func PrintSummary(w io.Writer, s core.Summary) {
	fmt.Fprintf(w, "Period %s: %d expenses, total %s, average %s\n", s.Period, s.Count, s.Total, s.Average)
	if s.Count == 0 {
		return
	}
	fmt.Fprintf(w, "Coverage %s to %s\n", s.FirstDate, s.LastDate)

	t := newTable(w)
	t.AppendHeader(table.Row{"Category", "Count", "Amount", "Share"})
	for _, c := range s.ByCategory {
		share := float64(c.Amount.Cents) / float64(s.Total.Cents) * 100
		if s.Total.Cents == 0 {
			share = 0
		}
		t.AppendRow(table.Row{string(c.Category), c.Count, c.Amount.String(), fmt.Sprintf("%.1f%%", share)})
	}
	t.AppendSeparator()
	t.AppendFooter(table.Row{text.Bold.Sprint("Total"), s.Count, text.Bold.Sprint(s.Total.String()), ""})
	rightAlign(t, 2, 3, 4)
	t.Render()

	if len(s.TopMerchants) == 0 {
		return
	}
	m := newTable(w)
	m.AppendHeader(table.Row{"Top merchant", "Count", "Amount"})
	for _, tm := range s.TopMerchants {
		m.AppendRow(table.Row{tm.Merchant, tm.Count, tm.Amount.String()})
	}
	rightAlign(m, 2, 3)
	m.Render()
}

// PrintBudgetStatus renders one row per rule.
func PrintBudgetStatus(w io.Writer, statuses []core.BudgetStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, "No budget rules set.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Rule", "Window", "Limit", "Spent", "Remaining", "Used", "Level"})
	for _, st := range statuses {
		t.AppendRow(table.Row{
			st.Rule.Key(),
			st.Window.String(),
			st.Rule.Limit.String(),
			st.Spent.String(),
			st.Remaining.String(),
			fmt.Sprintf("%.1f%%", st.Percentage),
			levelColor(st.Level).Sprint(string(st.Level)),
		})
	}
	rightAlign(t, 3, 4, 5, 6)
	t.Render()
}

func levelColor(l core.BudgetLevel) text.Colors {
	switch l {
	case core.LevelOverBudget:
		return text.Colors{text.FgRed, text.Bold}
	case core.LevelApproaching:
		return text.Colors{text.FgYellow}
	case core.LevelOnTrack:
		return text.Colors{text.FgCyan}
	default:
		return text.Colors{text.FgGreen}
	}
}

// PrintRules renders the rules in effect.
func PrintRules(w io.Writer, rules []core.BudgetRule) {
	if len(rules) == 0 {
		fmt.Fprintln(w, "No budget rules set.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Category", "Period", "Limit", "Thresholds"})
	for _, r := range rules {
		cat := string(r.Category)
		if r.IsGlobal() {
			cat = text.Italic.Sprint("all")
		}
		t.AppendRow(table.Row{cat, string(r.Period), r.Limit.String(), fmt.Sprint(r.Thresholds)})
	}
	rightAlign(t, 3)
	t.Render()
}

// PrintInsights renders the summary line, then trends and anomalies.
func PrintInsights(w io.Writer, insights []core.Insight) {
	var trends, anomalies []core.Insight
	for _, in := range insights {
		switch in.Kind {
		case core.InsightSummary:
			s := in.Summary.Summary
			fmt.Fprintf(w, "Period %s: %d expenses, total %s\n", s.Period, s.Count, s.Total)
		case core.InsightTrend:
			trends = append(trends, in)
		case core.InsightAnomaly:
			anomalies = append(anomalies, in)
		}
	}

	if len(trends) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"Trend", "Category", "Previous", "Current", "Change"})
		for _, in := range trends {
			tr := in.Trend
			change := fmt.Sprintf("%+.0f%%", tr.Change*100)
			if tr.Direction == core.TrendNew {
				change = "new"
			}
			t.AppendRow(table.Row{string(tr.Direction), string(tr.Category), tr.Previous.String(), tr.Current.String(), change})
		}
		rightAlign(t, 3, 4, 5)
		t.Render()
	}

	if len(anomalies) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"Anomaly", "Date", "Merchant", "Category", "Amount", "Typical", "z"})
		for _, in := range anomalies {
			a := in.Anomaly
			t.AppendRow(table.Row{a.ExpenseID, a.Date.String(), a.Merchant, string(a.Category), a.Amount.String(), a.Mean.String(), fmt.Sprintf("%.1f", a.ZScore)})
		}
		rightAlign(t, 5, 6, 7)
		t.Render()
	}

	if len(trends) == 0 && len(anomalies) == 0 {
		fmt.Fprintln(w, "No trends or anomalies.")
	}
}
