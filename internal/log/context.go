package log

import (
	"context"
	"log/slog"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithContext returns a copy of ctx carrying logger.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	return FromContextOr(ctx, &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	})
}

// FromContextOr returns the logger carried by ctx, or fallback when ctx
// has none.
func FromContextOr(ctx context.Context, fallback *Logger) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok && logger != nil {
		return logger
	}
	return fallback
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogExpenseRecorded logs a successfully appended expense
func (sl *StructuredLogger) LogExpenseRecorded(ctx context.Context, userID, id, merchant string, amountCents int64, category, date, ref string) {
	fields := NewFields().
		WithUser(userID).
		WithExpense(id, merchant, amountCents, category, date).
		WithOperation(OpRecord).
		WithComponent(ComponentEngine).
		ToSlice()

	fields = append(fields, FieldStoreRef, ref)

	sl.logger.InfoContext(ctx, "Expense recorded", fields...)
}

// LogBudgetAlert logs a crossed budget threshold
func (sl *StructuredLogger) LogBudgetAlert(ctx context.Context, userID, rule string, threshold float64, beforeCents, afterCents int64) {
	fields := NewFields().
		WithUser(userID).
		WithAlert(rule, threshold, beforeCents, afterCents).
		WithComponent(ComponentBudget)

	sl.logger.WarnContext(ctx, "Budget threshold crossed", fields.ToSlice()...)
}

// LogDuplicate logs a flagged duplicate pair
func (sl *StructuredLogger) LogDuplicate(ctx context.Context, userID, candidateID, existingID string, score float64, decision string) {
	fields := NewFields().
		WithUser(userID).
		WithDuplicate(existingID, score, decision).
		WithComponent(ComponentDuplicates)
	fields[FieldExpenseID] = candidateID

	sl.logger.InfoContext(ctx, "Possible duplicate expense", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
