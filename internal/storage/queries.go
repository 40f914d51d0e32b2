package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Expense is a row of the expenses table.
type Expense struct {
	UserID      string
	ID          string
	Merchant    string
	MerchantKey string
	AmountCents int64
	Category    string
	Date        string
	Source      string
	Version     int64
}

// BudgetRule is a row of the budget_rules table.
type BudgetRule struct {
	UserID     string
	Category   string
	Period     string
	LimitCents int64
	Thresholds string
}

const upsertExpense = `
INSERT INTO expenses (user_id, id, merchant, merchant_key, amount_cents, category, date, source, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, id) DO UPDATE SET
    merchant = excluded.merchant,
    merchant_key = excluded.merchant_key,
    amount_cents = excluded.amount_cents,
    category = excluded.category,
    date = excluded.date,
    source = excluded.source,
    version = excluded.version,
    updated_at = CURRENT_TIMESTAMP
WHERE excluded.version > expenses.version
`

// UpsertExpense inserts a row or replaces it when the version is newer.
// It returns the number of affected rows.
func (q *Queries) UpsertExpense(ctx context.Context, arg Expense) (int64, error) {
	res, err := q.db.ExecContext(ctx, upsertExpense,
		arg.UserID,
		arg.ID,
		arg.Merchant,
		arg.MerchantKey,
		arg.AmountCents,
		arg.Category,
		arg.Date,
		arg.Source,
		arg.Version,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listExpensesInRange = `
SELECT user_id, id, merchant, merchant_key, amount_cents, category, date, source, version
FROM expenses
WHERE user_id = ? AND date >= ? AND date < ? AND (? = '' OR category = ?)
ORDER BY date, id
`

type ListExpensesInRangeParams struct {
	UserID   string
	From     string
	To       string
	Category string
}

func (q *Queries) ListExpensesInRange(ctx context.Context, arg ListExpensesInRangeParams) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesInRange,
		arg.UserID,
		arg.From,
		arg.To,
		arg.Category,
		arg.Category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		var i Expense
		if err := rows.Scan(
			&i.UserID,
			&i.ID,
			&i.Merchant,
			&i.MerchantKey,
			&i.AmountCents,
			&i.Category,
			&i.Date,
			&i.Source,
			&i.Version,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getExpense = `
SELECT user_id, id, merchant, merchant_key, amount_cents, category, date, source, version
FROM expenses
WHERE user_id = ? AND id = ?
`

func (q *Queries) GetExpense(ctx context.Context, userID, id string) (Expense, error) {
	row := q.db.QueryRowContext(ctx, getExpense, userID, id)
	var i Expense
	err := row.Scan(
		&i.UserID,
		&i.ID,
		&i.Merchant,
		&i.MerchantKey,
		&i.AmountCents,
		&i.Category,
		&i.Date,
		&i.Source,
		&i.Version,
	)
	return i, err
}

const upsertBudgetRule = `
INSERT INTO budget_rules (user_id, category, period, limit_cents, thresholds, position)
VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM budget_rules WHERE user_id = ?))
ON CONFLICT (user_id, category, period) DO UPDATE SET
    limit_cents = excluded.limit_cents,
    thresholds = excluded.thresholds
`

func (q *Queries) UpsertBudgetRule(ctx context.Context, arg BudgetRule) error {
	_, err := q.db.ExecContext(ctx, upsertBudgetRule,
		arg.UserID,
		arg.Category,
		arg.Period,
		arg.LimitCents,
		arg.Thresholds,
		arg.UserID,
	)
	return err
}

const deleteBudgetRule = `
DELETE FROM budget_rules WHERE user_id = ? AND category = ? AND period = ?
`

func (q *Queries) DeleteBudgetRule(ctx context.Context, userID, category, period string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteBudgetRule, userID, category, period)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listBudgetRules = `
SELECT user_id, category, period, limit_cents, thresholds
FROM budget_rules
WHERE user_id = ?
ORDER BY position
`

func (q *Queries) ListBudgetRules(ctx context.Context, userID string) ([]BudgetRule, error) {
	rows, err := q.db.QueryContext(ctx, listBudgetRules, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BudgetRule
	for rows.Next() {
		var i BudgetRule
		if err := rows.Scan(
			&i.UserID,
			&i.Category,
			&i.Period,
			&i.LimitCents,
			&i.Thresholds,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
