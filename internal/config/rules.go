package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ledgerlens/internal/core"
	"ledgerlens/internal/normalize"
)

// RulesFile is the YAML layout of BUDGET_RULES_FILE:
//
//	categories: [food, transport]
//	rules:
//	  - category: food
//	    period: monthly
//	    limit: "8,000.00"
//	    thresholds: [0.5, 0.8, 1.0]
//	  - period: weekly   # no category: global rule
//	    limit: 5000
type RulesFile struct {
	Categories []string    `yaml:"categories"`
	Rules      []RuleEntry `yaml:"rules"`
}

type RuleEntry struct {
	Category   string    `yaml:"category"`
	Period     string    `yaml:"period"`
	Limit      string    `yaml:"limit"`
	Thresholds []float64 `yaml:"thresholds"`
}

// Budgets is the parsed and validated content of a rules file.
type Budgets struct {
	Categories []core.Category
	Rules      []core.BudgetRule
}

// LoadRulesFile reads and validates a rules file. Categories named by a
// rule are added to the category list.
func LoadRulesFile(path string, defaultThresholds []float64) (*Budgets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data, defaultThresholds)
}

// ParseRules parses the YAML content of a rules file.
func ParseRules(data []byte, defaultThresholds []float64) (*Budgets, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	b := &Budgets{}
	seen := make(map[core.Category]bool)
	addCategory := func(c core.Category) {
		if c != "" && !seen[c] {
			seen[c] = true
			b.Categories = append(b.Categories, c)
		}
	}
	for _, name := range file.Categories {
		addCategory(normalize.CategoryOf(name))
	}

	var errs []error
	for i, entry := range file.Rules {
		rule, err := entry.toRule(defaultThresholds)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i+1, err))
			continue
		}
		addCategory(rule.Category)
		b.Rules = append(b.Rules, rule)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return b, nil
}

func (e RuleEntry) toRule(defaultThresholds []float64) (core.BudgetRule, error) {
	rule := core.BudgetRule{
		Period:     core.Period(e.Period),
		Thresholds: e.Thresholds,
	}
	if e.Category != "" {
		rule.Category = normalize.CategoryOf(e.Category)
	}
	if len(rule.Thresholds) == 0 {
		rule.Thresholds = append([]float64(nil), defaultThresholds...)
	}
	limit, err := core.ParseAmount(e.Limit)
	if err != nil {
		return core.BudgetRule{}, &core.ConfigurationError{Rule: rule.Key(), Err: err}
	}
	rule.Limit = limit
	if err := rule.Validate(); err != nil {
		return core.BudgetRule{}, err
	}
	return rule, nil
}
