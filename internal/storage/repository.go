package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"ledgerlens/internal/core"
	"ledgerlens/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores records and budget rules in a SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Append implements records.Writer. A record already stored under the same
// ID is replaced only by a newer version.
func (r *SQLiteRepository) Append(ctx context.Context, userID string, e core.Expense) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	n, err := r.queries.UpsertExpense(ctx, Expense{
		UserID:      userID,
		ID:          e.ID,
		Merchant:    e.Merchant,
		MerchantKey: e.MerchantKey,
		AmountCents: e.Amount.Cents,
		Category:    string(e.Category),
		Date:        e.Date.String(),
		Source:      string(e.Source),
		Version:     int64(e.Version),
	})
	if err != nil {
		return "", fmt.Errorf("upsert expense: %w", err)
	}
	if n == 0 {
		return "", &core.ValidationError{Field: "version", Value: strconv.Itoa(e.Version), Err: core.ErrStaleVersion}
	}

	r.logger.DebugContext(ctx, "Expense saved to SQLite",
		log.FieldUserID, userID,
		log.FieldExpenseID, e.ID,
		log.FieldAmountCents, e.Amount.Cents,
		log.FieldDate, e.Date.String())

	return "sqlite:" + e.ID, nil
}

// ListRange implements records.Reader.
func (r *SQLiteRepository) ListRange(ctx context.Context, userID string, from, to core.Date, category core.Category) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesInRange(ctx, ListExpensesInRangeParams{
		UserID:   userID,
		From:     from.String(),
		To:       to.String(),
		Category: string(category),
	})
	if err != nil {
		return nil, fmt.Errorf("list expenses in range: %w", err)
	}

	expenses := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toCoreExpense(row)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

// Get implements records.Reader.
func (r *SQLiteRepository) Get(ctx context.Context, userID, id string) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, &core.NotFoundError{Kind: "expense", Key: id}
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return toCoreExpense(row)
}

func toCoreExpense(row Expense) (core.Expense, error) {
	d, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s has malformed date %q: %w", row.ID, row.Date, err)
	}
	return core.Expense{
		ID:          row.ID,
		Merchant:    row.Merchant,
		MerchantKey: row.MerchantKey,
		Amount:      core.Money{Cents: row.AmountCents},
		Category:    core.Category(row.Category),
		Date:        d,
		Source:      core.Source(row.Source),
		Version:     int(row.Version),
	}, nil
}

// SaveRule implements records.RuleStore.
func (r *SQLiteRepository) SaveRule(ctx context.Context, userID string, rule core.BudgetRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	thresholds, err := json.Marshal(rule.Thresholds)
	if err != nil {
		return fmt.Errorf("encode thresholds: %w", err)
	}
	err = r.queries.UpsertBudgetRule(ctx, BudgetRule{
		UserID:     userID,
		Category:   string(rule.Category),
		Period:     string(rule.Period),
		LimitCents: rule.Limit.Cents,
		Thresholds: string(thresholds),
	})
	if err != nil {
		return fmt.Errorf("upsert budget rule: %w", err)
	}
	return nil
}

// DeleteRule implements records.RuleStore.
func (r *SQLiteRepository) DeleteRule(ctx context.Context, userID string, category core.Category, period core.Period) error {
	n, err := r.queries.DeleteBudgetRule(ctx, userID, string(category), string(period))
	if err != nil {
		return fmt.Errorf("delete budget rule: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{Kind: "budget rule", Key: core.BudgetRule{Category: category, Period: period}.Key()}
	}
	return nil
}

// ListRules implements records.RuleStore.
func (r *SQLiteRepository) ListRules(ctx context.Context, userID string) ([]core.BudgetRule, error) {
	rows, err := r.queries.ListBudgetRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budget rules: %w", err)
	}
	rules := make([]core.BudgetRule, 0, len(rows))
	for _, row := range rows {
		var thresholds []float64
		if err := json.Unmarshal([]byte(row.Thresholds), &thresholds); err != nil {
			return nil, fmt.Errorf("decode thresholds of %s/%s: %w", row.Category, row.Period, err)
		}
		rules = append(rules, core.BudgetRule{
			Category:   core.Category(row.Category),
			Period:     core.Period(row.Period),
			Limit:      core.Money{Cents: row.LimitCents},
			Thresholds: thresholds,
		})
	}
	return rules, nil
}
