// Package worker consumes ledger events and mirrors expenses into the
// household spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/metrics"
	"kakeibo/internal/ports"
)

type (
	// ExpenseMirror receives copies of expense ledger changes.
	ExpenseMirror interface {
		AppendExpense(ctx context.Context, e core.ExpenseRecord) (string, error)
		DeleteExpense(ctx context.Context, id int64) error
	}

	// BudgetSource is where the household edits its weekly budgets.
	BudgetSource interface {
		ReadBudgets(ctx context.Context) ([]core.Budget, error)
	}
)

// MirrorWorker handles ledger events from AMQP. Expense events are copied to
// the mirror; every other event is acknowledged without work.
type MirrorWorker struct {
	mirror  ExpenseMirror
	budgets BudgetSource
	store   ports.BudgetWriter
	metrics *metrics.Metrics
	logger  *log.Logger
}

// NewMirrorWorker creates a worker. budgets and store may both be nil, in
// which case RefreshBudgets is a no-op.
func NewMirrorWorker(mirror ExpenseMirror, budgets BudgetSource, store ports.BudgetWriter, m *metrics.Metrics, logger *log.Logger) *MirrorWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &MirrorWorker{
		mirror:  mirror,
		budgets: budgets,
		store:   store,
		metrics: m,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent is an amqp.Handler. Malformed payloads are permanent failures;
// mirror errors are returned as is so the broker requeues the message.
func (w *MirrorWorker) HandleEvent(ctx context.Context, event *amqp.Event) error {
	err := w.handle(ctx, event)
	w.metrics.EventHandled(string(event.Type), outcome(err))
	if errors.Is(err, errSkipped) {
		return nil
	}
	return err
}

func (w *MirrorWorker) handle(ctx context.Context, event *amqp.Event) error {
	switch event.Type {
	case amqp.EventExpenseRecorded:
		var p amqp.ExpenseRecordedPayload
		if err := event.Decode(&p); err != nil {
			return amqp.Permanent(err)
		}
		return w.handleExpenseRecorded(ctx, p.Expense)

	case amqp.EventExpenseDeleted:
		var p amqp.RecordDeletedPayload
		if err := event.Decode(&p); err != nil {
			return amqp.Permanent(err)
		}
		if p.ID <= 0 {
			return amqp.Permanent(fmt.Errorf("expense.deleted without id"))
		}
		return w.handleExpenseDeleted(ctx, p.ID)

	case amqp.EventChoreRecorded, amqp.EventChoreDeleted,
		amqp.EventDrawCompleted, amqp.EventDrawFailed, amqp.EventRewardUsed:
		w.logger.DebugContext(ctx, "Ignoring event", log.FieldEventType, event.Type, "event_id", event.ID)
		return errSkipped

	default:
		return amqp.Permanent(fmt.Errorf("unknown event type %q", event.Type))
	}
}

func (w *MirrorWorker) handleExpenseRecorded(ctx context.Context, e core.ExpenseRecord) error {
	if err := e.Validate(); err != nil {
		return amqp.Permanent(err)
	}
	ref, err := w.mirror.AppendExpense(ctx, e)
	if err != nil {
		return fmt.Errorf("mirror expense %d: %w", e.ID, err)
	}
	w.logger.InfoContext(ctx, "Mirrored expense",
		log.FieldRecordID, e.ID,
		log.FieldCategory, e.Category,
		log.FieldAmount, e.Amount,
		log.FieldSheetsRowRef, ref)
	return nil
}

func (w *MirrorWorker) handleExpenseDeleted(ctx context.Context, id int64) error {
	if err := w.mirror.DeleteExpense(ctx, id); err != nil {
		return fmt.Errorf("delete mirrored expense %d: %w", id, err)
	}
	w.logger.InfoContext(ctx, "Deleted mirrored expense", log.FieldRecordID, id)
	return nil
}

// RefreshBudgets copies the budgets from the source into the store.
func (w *MirrorWorker) RefreshBudgets(ctx context.Context) error {
	if w.budgets == nil || w.store == nil {
		return nil
	}
	budgets, err := w.budgets.ReadBudgets(ctx)
	if err != nil {
		return fmt.Errorf("read budgets: %w", err)
	}
	if len(budgets) == 0 {
		w.logger.WarnContext(ctx, "Budget source returned no rows, keeping current budgets")
		return nil
	}
	if err := w.store.UpsertBudgets(ctx, budgets); err != nil {
		return fmt.Errorf("store budgets: %w", err)
	}
	w.logger.InfoContext(ctx, "Budgets refreshed", "count", len(budgets))
	return nil
}

// RunBudgetRefresh refreshes immediately and then every interval until ctx
// is done. Failures are logged and retried on the next tick.
func (w *MirrorWorker) RunBudgetRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.RefreshBudgets(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "Budget refresh failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var errSkipped = errors.New("skipped")

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errSkipped):
		return "skipped"
	case amqp.IsPermanent(err):
		return "dropped"
	default:
		return "retry"
	}
}
