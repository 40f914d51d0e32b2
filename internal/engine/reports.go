package engine

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"

	"ledgerlens/internal/core"
	"ledgerlens/internal/log"
)

// GetSummary aggregates userID's records in period. Results are cached
// until the user records again; concurrent identical requests share one
// store read.
func (e *Engine) GetSummary(ctx context.Context, userID string, period core.PeriodRange) (core.Summary, error) {
	const op = log.OpSummary
	if err := checkUser(userID); err != nil {
		return core.Summary{}, wrap(op, err)
	}
	if err := checkPeriod(period); err != nil {
		return core.Summary{}, wrap(op, err)
	}

	key := summaryKey(userID, period)
	if s, ok := e.summaries.Get(key); ok {
		return s.Clone(), nil
	}

	gen := e.generation(userID)
	v, err, _ := e.flight.Do(key+"|"+strconv.FormatUint(gen, 10), func() (any, error) {
		records, err := e.listRange(ctx, userID, period)
		if err != nil {
			return nil, err
		}
		s := e.aggregator.Summarize(period, records)
		if e.generation(userID) == gen {
			e.summaries.Set(key, s)
		}
		return s, nil
	})
	if err != nil {
		return core.Summary{}, wrap(op, err)
	}
	return v.(core.Summary).Clone(), nil
}

// CheckBudget reports every rule that applies to userID for the windows
// containing asOf. A zero asOf means today.
func (e *Engine) CheckBudget(ctx context.Context, userID string, asOf core.Date) ([]core.BudgetStatus, error) {
	const op = log.OpBudget
	if err := checkUser(userID); err != nil {
		return nil, wrap(op, err)
	}
	if asOf.IsZero() {
		asOf = e.today()
	}
	tracker, err := e.trackerFor(ctx, userID)
	if err != nil {
		return nil, wrap(op, err)
	}
	rules := tracker.Rules()
	if len(rules) == 0 {
		return []core.BudgetStatus{}, nil
	}

	var span core.PeriodRange
	for i, r := range rules {
		w, err := core.WindowFor(r.Period, asOf)
		if err != nil {
			return nil, wrap(op, &core.ConfigurationError{Rule: r.Key(), Err: err})
		}
		if i == 0 {
			span = w
			continue
		}
		span = union(span, w)
	}
	records, err := e.listRange(ctx, userID, span)
	if err != nil {
		return nil, wrap(op, err)
	}
	return tracker.StatusAll(records, asOf), nil
}

// GetInsights returns the summary, trend and anomaly insights of period
// for userID. The current period, the previous period and the anomaly
// baseline are loaded concurrently.
func (e *Engine) GetInsights(ctx context.Context, userID string, period core.PeriodRange) ([]core.Insight, error) {
	const op = log.OpInsights
	if err := checkUser(userID); err != nil {
		return nil, wrap(op, err)
	}
	if err := checkPeriod(period); err != nil {
		return nil, wrap(op, err)
	}

	prev := period.Previous()
	baseline := core.NewPeriodRange(period.Start.AddDays(-e.historyDays), prev.Start)

	var current, previous, older []core.Expense
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = e.listRange(gctx, userID, period)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = e.listRange(gctx, userID, prev)
		return err
	})
	if baseline.Start.Before(baseline.End) {
		g.Go(func() error {
			var err error
			older, err = e.listRange(gctx, userID, baseline)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, wrap(op, err)
	}

	history := append(older, previous...)
	return e.aggregator.GenerateInsights(period, current, history), nil
}

func checkPeriod(p core.PeriodRange) error {
	if err := p.Start.Validate(); err != nil {
		return &core.ValidationError{Field: "period", Value: p.String(), Err: err}
	}
	if !p.Start.Before(p.End) {
		return &core.ValidationError{Field: "period", Value: p.String(), Err: core.ErrInvalidPeriod}
	}
	return nil
}

func summaryKey(userID string, period core.PeriodRange) string {
	return userID + "|" + period.String()
}

// invalidate drops userID's cached summaries and bumps the user's
// generation so in-flight loads do not repopulate the cache with stale
// totals. Called under the user's write lock.
func (e *Engine) invalidate(userID string) {
	e.genMu.Lock()
	e.gens[userID]++
	e.genMu.Unlock()
	if n := e.summaries.DeletePrefix(userID + "|"); n > 0 {
		e.logger.Debug("Cached summaries invalidated", log.FieldUserID, userID, log.FieldCount, n)
	}
}

func (e *Engine) generation(userID string) uint64 {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	return e.gens[userID]
}
