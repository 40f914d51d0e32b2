package engine

import (
	"context"
	"fmt"

	"ledgerlens/internal/budget"
	"ledgerlens/internal/core"
	"ledgerlens/internal/log"
	"ledgerlens/internal/normalize"
)

// SetBudget validates rule and saves it for userID, replacing the rule
// with the same category and period. Thresholds default to
// budget.DefaultThresholds.
func (e *Engine) SetBudget(ctx context.Context, userID string, rule core.BudgetRule) (core.BudgetRule, error) {
	const op = log.OpSetRule
	if err := checkUser(userID); err != nil {
		return core.BudgetRule{}, wrap(op, err)
	}
	if rule.Category != "" {
		rule.Category = normalize.CategoryOf(string(rule.Category))
	}
	if len(rule.Thresholds) == 0 {
		rule.Thresholds = append([]float64(nil), budget.DefaultThresholds...)
	}
	if err := e.registry().Register(rule); err != nil {
		return core.BudgetRule{}, wrap(op, err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.rules.SaveRule(sctx, userID, rule); err != nil {
		return core.BudgetRule{}, wrap(op, fmt.Errorf("save rule %s: %w", rule.Key(), err))
	}
	e.loggerFor(ctx).InfoContext(ctx, "Budget rule saved", log.FieldUserID, userID, log.FieldRule, rule.Key())
	return rule, nil
}

// RemoveBudget deletes the rule userID saved for category and period.
// Default rules from configuration cannot be removed per user.
func (e *Engine) RemoveBudget(ctx context.Context, userID string, category core.Category, period core.Period) error {
	const op = log.OpRemoveRule
	if err := checkUser(userID); err != nil {
		return wrap(op, err)
	}
	if err := period.Validate(); err != nil {
		return wrap(op, &core.ConfigurationError{Rule: string(category) + "/" + string(period), Err: err})
	}
	if category != "" {
		category = normalize.CategoryOf(string(category))
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.rules.DeleteRule(sctx, userID, category, period); err != nil {
		return wrap(op, err)
	}
	e.loggerFor(ctx).InfoContext(ctx, "Budget rule removed", log.FieldUserID, userID,
		log.FieldRule, core.BudgetRule{Category: category, Period: period}.Key())
	return nil
}

// Budgets returns the rules in effect for userID: global rules first,
// then category rules.
func (e *Engine) Budgets(ctx context.Context, userID string) ([]core.BudgetRule, error) {
	if err := checkUser(userID); err != nil {
		return nil, wrap(log.OpBudget, err)
	}
	t, err := e.trackerFor(ctx, userID)
	if err != nil {
		return nil, wrap(log.OpBudget, err)
	}
	return t.Rules(), nil
}

// registry returns a tracker with the category registry and no rules.
func (e *Engine) registry() *budget.Tracker {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()
	return budget.NewTracker(e.categories, e.logger)
}

// trackerFor builds the tracker for userID: default rules overlaid by the
// user's saved rules.
func (e *Engine) trackerFor(ctx context.Context, userID string) (*budget.Tracker, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	saved, err := e.rules.ListRules(sctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	t := e.registry()
	for _, r := range e.defaults {
		if err := t.Register(r); err != nil {
			return nil, err
		}
	}
	for _, r := range saved {
		if !r.IsGlobal() {
			t.RegisterCategory(r.Category)
		}
		if err := t.Register(r); err != nil {
			e.loggerFor(ctx).WarnContext(ctx, "Skipping stored budget rule",
				log.FieldUserID, userID, log.FieldRule, r.Key(), log.FieldError, err.Error())
		}
	}
	return t, nil
}
