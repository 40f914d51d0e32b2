// Package records defines the ports the engine uses to reach expense
// storage. Implementations live in records/memory and storage.
package records

import (
	"context"

	"ledgerlens/internal/core"
)

// Ports for outbound adapters.
type (
	Writer interface {
		// Append stores e for userID and returns a store reference.
		Append(ctx context.Context, userID string, e core.Expense) (ref string, err error)
	}

	Reader interface {
		// ListRange returns the records of userID dated in [from, to).
		// An empty category matches every category.
		ListRange(ctx context.Context, userID string, from, to core.Date, category core.Category) ([]core.Expense, error)
		// Get returns the stored version of record id, or a
		// *core.NotFoundError.
		Get(ctx context.Context, userID, id string) (core.Expense, error)
	}

	Store interface {
		Reader
		Writer
	}

	// RuleStore persists budget rules per user.
	RuleStore interface {
		SaveRule(ctx context.Context, userID string, rule core.BudgetRule) error
		DeleteRule(ctx context.Context, userID string, category core.Category, period core.Period) error
		ListRules(ctx context.Context, userID string) ([]core.BudgetRule, error)
	}
)
