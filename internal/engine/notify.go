package engine

import (
	"context"

	"ledgerlens/internal/core"
	"ledgerlens/internal/log"
)

type Event = core.Event

// Notifier receives events after a write has been committed. Delivery
// runs on the engine's own goroutine; failures are logged and never fail
// the write.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// queuedEvent keeps the caller's context values, not its deadline, so
// the context logger follows the event to delivery.
type queuedEvent struct {
	ctx   context.Context
	event Event
}

// publish queues events for delivery without blocking. Events that do
// not fit in the queue, or arrive after Close, are dropped and logged.
func (e *Engine) publish(ctx context.Context, events []Event) {
	if e.outbox == nil || len(events) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)

	e.outboxMu.RLock()
	defer e.outboxMu.RUnlock()
	for _, ev := range events {
		if e.outboxClosed {
			e.dropped(ctx, ev, "Engine closed, dropping event")
			continue
		}
		select {
		case e.outbox <- queuedEvent{ctx: detached, event: ev}:
		default:
			e.dropped(ctx, ev, "Event queue full, dropping event")
		}
	}
}

func (e *Engine) dropped(ctx context.Context, ev Event, msg string) {
	e.loggerFor(ctx).WarnContext(ctx, msg,
		log.FieldUserID, ev.UserID,
		log.FieldEventType, string(ev.Type))
}

// deliver hands queued events to the notifier until the queue is closed.
func (e *Engine) deliver() {
	defer close(e.drained)
	for q := range e.outbox {
		ctx, cancel := context.WithTimeout(q.ctx, e.publishTimeout)
		err := e.notifier.Publish(ctx, q.event)
		cancel()
		if err != nil {
			e.audit(q.ctx).LogError(q.ctx, "Failed to publish event", err, log.ComponentEngine, log.OpPublish,
				log.NewFields().WithUser(q.event.UserID).WithErrorType(log.ErrorTypeNetwork))
		}
	}
}

// recordEvents expands one committed record into its events, all stamped
// like base: the record itself, then its alerts, then its duplicates.
func recordEvents(base Event, exp core.Expense, alerts []core.BudgetAlert, dups []core.DuplicatePair) []Event {
	events := make([]Event, 0, 1+len(alerts)+len(dups))
	rec := base
	rec.Type, rec.Expense = core.EventExpenseRecorded, &exp
	events = append(events, rec)
	for i := range alerts {
		ev := base
		ev.Type, ev.Alert = core.EventBudgetAlert, &alerts[i]
		events = append(events, ev)
	}
	for i := range dups {
		ev := base
		ev.Type, ev.Duplicate = core.EventDuplicateDetected, &dups[i]
		events = append(events, ev)
	}
	return events
}
