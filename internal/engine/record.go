package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ledgerlens/internal/core"
	"ledgerlens/internal/duplicates"
	"ledgerlens/internal/log"
)

type RecordStatus string

const (
	StatusRecorded          RecordStatus = "recorded"
	StatusNeedsConfirmation RecordStatus = "needs_confirmation"
)

// RecordResult describes what RecordExpense did. When Status is
// StatusNeedsConfirmation nothing was stored and Alerts is empty.
type RecordResult struct {
	Status     RecordStatus         `json:"status"`
	Expense    core.Expense         `json:"expense"`
	Ref        string               `json:"ref,omitempty"`
	Duplicates []core.DuplicatePair `json:"duplicates,omitempty"`
	Alerts     []core.BudgetAlert   `json:"alerts,omitempty"`
}

// ImportResult describes an ImportExpenses batch. Alerts covers the
// whole batch; each recorded entry carries its own duplicates.
type ImportResult struct {
	Recorded []RecordResult     `json:"recorded"`
	Held     []RecordResult     `json:"held,omitempty"`
	Alerts   []core.BudgetAlert `json:"alerts,omitempty"`
}

// RecordExpense normalizes raw and appends it for userID. A likely
// duplicate stops the append unless raw.Confirmed is set. Budget alerts
// are computed against the records stored before this one.
func (e *Engine) RecordExpense(ctx context.Context, userID string, raw core.RawExpense) (*RecordResult, error) {
	const op = log.OpRecord
	if err := checkUser(userID); err != nil {
		return nil, wrap(op, err)
	}
	exp, err := e.normalizer.Normalize(raw)
	if err != nil {
		return nil, wrap(op, err)
	}

	unlock := e.locks.lock(userID)
	res, err := e.commit(ctx, userID, exp, raw.Confirmed)
	unlock()
	if err != nil {
		e.audit(ctx).LogError(ctx, "Failed to record expense", err, log.ComponentEngine, op,
			log.NewFields().WithUser(userID).WithExpense(exp.ID, exp.Merchant, exp.Amount.Cents, string(exp.Category), exp.Date.String()))
		return nil, wrap(op, err)
	}

	e.announce(ctx, userID, res)
	if res.Status == StatusRecorded {
		e.publish(ctx, recordEvents(e.event(userID), res.Expense, res.Alerts, res.Duplicates))
	}
	return res, nil
}

// CorrectExpense applies the non-empty fields of patch to the stored
// record id and stores the result as its next version. Budget alerts
// fire only for thresholds the change itself crosses. patch.Confirmed
// acknowledges a likely duplicate the change would create.
func (e *Engine) CorrectExpense(ctx context.Context, userID, id string, patch core.RawExpense) (*RecordResult, error) {
	const op = log.OpCorrect
	if err := checkUser(userID); err != nil {
		return nil, wrap(op, err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, wrap(op, &core.ValidationError{Field: "id", Err: core.ErrEmptyID})
	}

	unlock := e.locks.lock(userID)
	res, err := e.correctLocked(ctx, userID, id, patch)
	unlock()
	if err != nil {
		fields := log.NewFields().WithUser(userID)
		fields[log.FieldExpenseID] = id
		e.audit(ctx).LogError(ctx, "Failed to correct expense", err, log.ComponentEngine, op, fields)
		return nil, wrap(op, err)
	}

	e.announce(ctx, userID, res)
	if res.Status == StatusRecorded {
		e.publish(ctx, recordEvents(e.event(userID), res.Expense, res.Alerts, res.Duplicates))
	}
	return res, nil
}

func (e *Engine) correctLocked(ctx context.Context, userID, id string, patch core.RawExpense) (*RecordResult, error) {
	sctx, cancel := e.storeCtx(ctx)
	prev, err := e.store.Get(sctx, userID, id)
	cancel()
	if err != nil {
		return nil, err
	}
	exp, err := e.normalizer.Correct(prev, patch)
	if err != nil {
		return nil, err
	}
	return e.commit(ctx, userID, exp, patch.Confirmed)
}

// commit runs read, detect, append and evaluate for exp. The caller holds
// the user's write lock.
func (e *Engine) commit(ctx context.Context, userID string, exp core.Expense, confirmed bool) (*RecordResult, error) {
	tracker, err := e.trackerFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	window := e.duplicateRange(exp.Date)
	if r, ok := tracker.HistoryRange(exp.Category, exp.Date); ok {
		window = union(window, r)
	}
	existing, err := e.listRange(ctx, userID, window)
	if err != nil {
		return nil, err
	}

	res := &RecordResult{
		Expense:    exp,
		Duplicates: e.detector.FindDuplicates(exp, existing),
	}
	if duplicates.HasLikely(res.Duplicates) && !confirmed {
		res.Status = StatusNeedsConfirmation
		return res, nil
	}

	sctx, cancel := e.storeCtx(ctx)
	ref, err := e.store.Append(sctx, userID, exp)
	cancel()
	if err != nil {
		return nil, err
	}
	res.Status = StatusRecorded
	res.Ref = ref
	res.Alerts = tracker.Evaluate(exp, existing)
	e.invalidate(userID)
	return res, nil
}

type staged struct {
	exp       core.Expense
	confirmed bool
}

// ImportExpenses records a batch for userID. Every raw record is
// normalized before anything is stored, so one invalid record fails the
// whole batch. Records are then checked in date order against the stored
// records and the batch records before them; likely duplicates without
// Confirmed are held back. Budget alerts match recording the stored
// records one at a time. A store failure part way leaves the records
// appended before it in place.
func (e *Engine) ImportExpenses(ctx context.Context, userID string, raws []core.RawExpense) (*ImportResult, error) {
	const op = log.OpImport
	if err := checkUser(userID); err != nil {
		return nil, wrap(op, err)
	}
	batch := make([]staged, 0, len(raws))
	ids := make(map[string]bool, len(raws))
	for i, raw := range raws {
		exp, err := e.normalizer.Normalize(raw)
		if err != nil {
			return nil, wrap(op, fmt.Errorf("record %d: %w", i+1, err))
		}
		if ids[exp.ID] {
			return nil, wrap(op, fmt.Errorf("record %d: %w", i+1,
				&core.ValidationError{Field: "id", Value: exp.ID, Err: core.ErrRepeatedID}))
		}
		ids[exp.ID] = true
		batch = append(batch, staged{exp: exp, confirmed: raw.Confirmed})
	}
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].exp.Date.Before(batch[j].exp.Date)
	})

	unlock := e.locks.lock(userID)
	res, err := e.importLocked(ctx, userID, batch)
	unlock()
	if err != nil {
		e.audit(ctx).LogError(ctx, "Failed to import expenses", err, log.ComponentEngine, op,
			log.NewFields().WithUser(userID))
		return nil, wrap(op, err)
	}

	base := e.event(userID)
	var events []Event
	for i := range res.Recorded {
		r := &res.Recorded[i]
		e.announce(ctx, userID, r)
		events = append(events, recordEvents(base, r.Expense, nil, r.Duplicates)...)
	}
	for i := range res.Held {
		e.announce(ctx, userID, &res.Held[i])
	}
	for _, a := range res.Alerts {
		e.audit(ctx).LogBudgetAlert(ctx, userID, a.Rule.Key(), a.Threshold, a.Before.Cents, a.After.Cents)
		ev := base
		alert := a
		ev.Type, ev.Alert = core.EventBudgetAlert, &alert
		events = append(events, ev)
	}
	e.publish(ctx, events)

	fields := log.NewFields().WithUser(userID).WithOperation(op)
	fields[log.FieldCount] = len(res.Recorded)
	e.loggerFor(ctx).InfoContext(ctx, "Expenses imported", append(fields.ToSlice(), "held", len(res.Held))...)
	return res, nil
}

func (e *Engine) importLocked(ctx context.Context, userID string, batch []staged) (*ImportResult, error) {
	res := &ImportResult{Recorded: []RecordResult{}}
	if len(batch) == 0 {
		return res, nil
	}
	tracker, err := e.trackerFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	window := e.duplicateRange(batch[0].exp.Date)
	for _, s := range batch {
		window = union(window, e.duplicateRange(s.exp.Date))
		if r, ok := tracker.HistoryRange(s.exp.Category, s.exp.Date); ok {
			window = union(window, r)
		}
	}
	existing, err := e.listRange(ctx, userID, window)
	if err != nil {
		return nil, err
	}

	seen := append([]core.Expense(nil), existing...)
	var stored []core.Expense
	for _, s := range batch {
		dups := e.detector.FindDuplicates(s.exp, seen)
		if duplicates.HasLikely(dups) && !s.confirmed {
			res.Held = append(res.Held, RecordResult{Status: StatusNeedsConfirmation, Expense: s.exp, Duplicates: dups})
			continue
		}
		sctx, cancel := e.storeCtx(ctx)
		ref, err := e.store.Append(sctx, userID, s.exp)
		cancel()
		if err != nil {
			if len(stored) > 0 {
				e.invalidate(userID)
			}
			return nil, fmt.Errorf("append %s: %w", s.exp.ID, err)
		}
		res.Recorded = append(res.Recorded, RecordResult{Status: StatusRecorded, Expense: s.exp, Ref: ref, Duplicates: dups})
		stored = append(stored, s.exp)
		seen = upsert(seen, s.exp)
	}

	if len(stored) > 0 {
		res.Alerts = tracker.EvaluateBatch(stored, existing)
		e.invalidate(userID)
	}
	return res, nil
}

// announce logs what a record, correction or import entry did.
func (e *Engine) announce(ctx context.Context, userID string, res *RecordResult) {
	audit := e.audit(ctx)
	exp := res.Expense
	for _, p := range res.Duplicates {
		audit.LogDuplicate(ctx, userID, exp.ID, p.Existing.ID, p.Score, string(p.Decision))
	}
	if res.Status != StatusRecorded {
		return
	}
	audit.LogExpenseRecorded(ctx, userID, exp.ID, exp.Merchant, exp.Amount.Cents, string(exp.Category), exp.Date.String(), res.Ref)
	for _, a := range res.Alerts {
		audit.LogBudgetAlert(ctx, userID, a.Rule.Key(), a.Threshold, a.Before.Cents, a.After.Cents)
	}
}

func (e *Engine) event(userID string) Event {
	return Event{UserID: userID, OccurredAt: e.now()}
}

// FindDuplicates previews the duplicates raw would have if it were
// recorded now. Nothing is stored.
func (e *Engine) FindDuplicates(ctx context.Context, userID string, raw core.RawExpense) ([]core.DuplicatePair, error) {
	const op = log.OpDuplicates
	if err := checkUser(userID); err != nil {
		return nil, wrap(op, err)
	}
	exp, err := e.normalizer.Normalize(raw)
	if err != nil {
		return nil, wrap(op, err)
	}
	existing, err := e.listRange(ctx, userID, e.duplicateRange(exp.Date))
	if err != nil {
		return nil, wrap(op, err)
	}
	return e.detector.FindDuplicates(exp, existing), nil
}

// duplicateRange is the detector window as a half-open range.
func (e *Engine) duplicateRange(d core.Date) core.PeriodRange {
	from, to := e.detector.Window(d)
	return core.NewPeriodRange(from, to.AddDays(1))
}

func union(a, b core.PeriodRange) core.PeriodRange {
	out := a
	if b.Start.Before(out.Start) {
		out.Start = b.Start
	}
	if b.End.After(out.End) {
		out.End = b.End
	}
	out.Kind = ""
	return out
}

// upsert replaces the record with exp's ID, or appends exp.
func upsert(records []core.Expense, exp core.Expense) []core.Expense {
	for i := range records {
		if records[i].ID == exp.ID {
			records[i] = exp
			return records
		}
	}
	return append(records, exp)
}

func checkUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return &core.ValidationError{Field: "user_id", Err: core.ErrEmptyID}
	}
	return nil
}
