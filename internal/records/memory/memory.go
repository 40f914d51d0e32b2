package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"ledgerlens/internal/core"
)

// Store keeps records and rules in process memory. Appending a record
// whose ID is already stored for the user replaces it when the new
// Version is higher.
type Store struct {
	mu    sync.RWMutex
	seq   int
	items map[string][]core.Expense
	rules map[string][]core.BudgetRule
}

func New() *Store {
	return &Store{
		items: make(map[string][]core.Expense),
		rules: make(map[string][]core.BudgetRule),
	}
}

// Append stores the expense and returns a synthetic reference.
func (s *Store) Append(_ context.Context, userID string, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	items := s.items[userID]
	for i, existing := range items {
		if existing.ID != e.ID {
			continue
		}
		if e.Version <= existing.Version {
			return "", &core.ValidationError{Field: "version", Value: strconv.Itoa(e.Version), Err: core.ErrStaleVersion}
		}
		items[i] = e
		return fmt.Sprintf("mem:%d", s.seq), nil
	}
	s.items[userID] = append(items, e)
	return fmt.Sprintf("mem:%d", s.seq), nil
}

// ListRange returns matching records sorted by date, then ID.
func (s *Store) ListRange(ctx context.Context, userID string, from, to core.Date, category core.Category) ([]core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Expense
	for _, e := range s.items[userID] {
		if e.Date.Before(from) || !e.Date.Before(to) {
			continue
		}
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Get(ctx context.Context, userID, id string) (core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return core.Expense{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.items[userID] {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, &core.NotFoundError{Kind: "expense", Key: id}
}

// SaveRule stores rule, replacing any rule with the same key.
func (s *Store) SaveRule(_ context.Context, userID string, rule core.BudgetRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.Thresholds = append([]float64(nil), rule.Thresholds...)
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := s.rules[userID]
	for i, r := range rules {
		if r.Key() == rule.Key() {
			rules[i] = rule
			return nil
		}
	}
	s.rules[userID] = append(rules, rule)
	return nil
}

func (s *Store) DeleteRule(_ context.Context, userID string, category core.Category, period core.Period) error {
	key := core.BudgetRule{Category: category, Period: period}.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	rules := s.rules[userID]
	for i, r := range rules {
		if r.Key() == key {
			s.rules[userID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{Kind: "budget rule", Key: key}
}

func (s *Store) ListRules(_ context.Context, userID string) ([]core.BudgetRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.BudgetRule, 0, len(s.rules[userID]))
	for _, r := range s.rules[userID] {
		r.Thresholds = append([]float64(nil), r.Thresholds...)
		out = append(out, r)
	}
	return out, nil
}
