package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldUserID      = "user_id"
	FieldDuration    = "duration_ms"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldExpenseID   = "expense_id"
	FieldMerchant    = "merchant"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldDate        = "date"
	FieldSource      = "source"
	FieldPeriod      = "period"
	FieldRule        = "rule"
	FieldThreshold   = "threshold"
	FieldBeforeCents = "before_cents"
	FieldAfterCents  = "after_cents"
	FieldScore       = "score"
	FieldDecision    = "decision"
	FieldExistingID  = "existing_id"
	FieldCount       = "count"
	FieldStoreRef    = "store_ref"
	FieldEventType   = "event_type"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentEngine     = "engine"
	ComponentNormalize  = "normalize"
	ComponentDuplicates = "duplicates"
	ComponentBudget     = "budget"
	ComponentInsights   = "insights"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentCache      = "cache"
	ComponentBackend    = "backend"
	ComponentCLI        = "cli"
)

// Operations defines standard operation names
const (
	OpRecord     = "record_expense"
	OpCorrect    = "correct_expense"
	OpImport     = "import_expenses"
	OpSummary    = "get_summary"
	OpBudget     = "check_budget"
	OpInsights   = "get_insights"
	OpDuplicates = "find_duplicates"
	OpSetRule    = "set_budget"
	OpRemoveRule = "remove_budget"
	OpAppend     = "append"
	OpList       = "list"
	OpPublish    = "publish"
	OpValidate   = "validate"
	OpParse      = "parse"
	OpMigrate    = "migrate"
	OpShutdown   = "shutdown"
	OpStartup    = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithUser adds the user ID field
func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category field
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithExpense adds expense-related fields
func (f LogFields) WithExpense(id, merchant string, amountCents int64, category, date string) LogFields {
	f[FieldExpenseID] = id
	f[FieldMerchant] = merchant
	f[FieldAmountCents] = amountCents
	f[FieldCategory] = category
	f[FieldDate] = date
	return f
}

// WithAlert adds budget alert fields
func (f LogFields) WithAlert(rule string, threshold float64, beforeCents, afterCents int64) LogFields {
	f[FieldRule] = rule
	f[FieldThreshold] = threshold
	f[FieldBeforeCents] = beforeCents
	f[FieldAfterCents] = afterCents
	return f
}

// WithDuplicate adds duplicate detection fields
func (f LogFields) WithDuplicate(existingID string, score float64, decision string) LogFields {
	f[FieldExistingID] = existingID
	f[FieldScore] = score
	f[FieldDecision] = decision
	return f
}

// WithPeriod adds the period field
func (f LogFields) WithPeriod(period string) LogFields {
	f[FieldPeriod] = period
	return f
}

// WithDuration adds the duration field in milliseconds
func (f LogFields) WithDuration(ms int64) LogFields {
	f[FieldDuration] = ms
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
