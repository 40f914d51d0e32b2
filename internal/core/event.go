package core

import "time"

type EventType string

const (
	EventExpenseRecorded   EventType = "expense.recorded"
	EventBudgetAlert       EventType = "budget.alert"
	EventDuplicateDetected EventType = "duplicate.detected"
)

// Event is published after a write. Exactly one payload is set and it
// matches Type.
type Event struct {
	Type       EventType      `json:"type"`
	UserID     string         `json:"user_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Expense    *Expense       `json:"expense,omitempty"`
	Alert      *BudgetAlert   `json:"alert,omitempty"`
	Duplicate  *DuplicatePair `json:"duplicate,omitempty"`
}
