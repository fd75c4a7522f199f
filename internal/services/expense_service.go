package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/fiscal"
	"kakeibo/internal/log"
	"kakeibo/internal/ports"
)

const (
	msgExpenseListFailed   = "履歴の取得に失敗しました"
	msgExpenseRecordFailed = "支出の記録に失敗しました"
	msgExpenseDeleteFailed = "記録の削除に失敗しました"
)

// ExpenseService records expenses locally and publishes them for the
// spreadsheet mirror.
type ExpenseService struct {
	ledger ports.ExpenseLedger
	opts   Options
}

func NewExpenseService(ledger ports.ExpenseLedger, opts Options) *ExpenseService {
	return &ExpenseService{
		ledger: ledger,
		opts:   opts.resolve(log.ComponentExpense),
	}
}

// Record validates and stores one expense. A zero CreatedAt means now.
func (s *ExpenseService) Record(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.Category = strings.TrimSpace(e.Category)
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.opts.Now()
	}

	saved, err := s.ledger.InsertExpense(ctx, e)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to record expense",
			log.NewFields().WithExpense(0, e.Category, e.Amount).WithError(err).ToSlice()...)
		return core.ExpenseRecord{}, &core.DependencyError{Op: "record expense", Message: msgExpenseRecordFailed, Err: err}
	}

	s.opts.Logger.InfoContext(ctx, "Expense recorded",
		log.NewFields().WithExpense(saved.ID, saved.Category, saved.Amount).ToSlice()...)
	s.opts.Metrics.ExpenseRecorded(saved.Category, saved.Amount)
	s.opts.publish(ctx, amqp.EventExpenseRecorded, amqp.ExpenseRecordedPayload{Expense: saved})
	return saved, nil
}

// ExpenseListing is the expenses of a fiscal month, or of one week of it.
type ExpenseListing struct {
	Period  fiscal.MonthPeriod
	Range   fiscal.Range
	Week    int // 0 for the whole period
	Records []core.ExpenseRecord
}

// List returns the expenses of the fiscal month containing ref, oldest
// first. A week in 1..5 narrows the range to that week, clamped to the
// period end. Any other week lists the whole period.
func (s *ExpenseService) List(ctx context.Context, ref time.Time, week int) (ExpenseListing, error) {
	period := fiscal.MonthRange(ref)
	listing := ExpenseListing{Period: period, Range: period.Range}
	if r, ok := fiscal.WeekOfPeriod(period, week); ok {
		listing.Range = r
		listing.Week = week
	}

	records, err := s.ledger.ListExpenses(ctx, listing.Range.Start, listing.Range.End)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to list expenses", log.FieldError, err)
		return ExpenseListing{}, &core.DependencyError{Op: "list expenses", Message: msgExpenseListFailed, Err: err}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	listing.Records = records
	return listing, nil
}

// Delete removes one expense. A missing row is a NotFoundError.
func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return core.Invalid("id", core.MsgInvalidID)
	}
	if err := s.ledger.DeleteExpense(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		s.opts.Logger.ErrorContext(ctx, "Failed to delete expense", log.FieldRecordID, id, log.FieldError, err)
		return &core.DependencyError{Op: "delete expense", Message: msgExpenseDeleteFailed, Err: err}
	}

	s.opts.Logger.InfoContext(ctx, "Expense deleted", log.FieldRecordID, id)
	s.opts.publish(ctx, amqp.EventExpenseDeleted, amqp.RecordDeletedPayload{ID: id})
	return nil
}
