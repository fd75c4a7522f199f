package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/aggregate"
	"kakeibo/internal/core"
	"kakeibo/internal/fiscal"
	"kakeibo/internal/log"
	"kakeibo/internal/ports"
)

const (
	msgBudgetFetchFailed  = "予算の取得に失敗"
	msgExpenseFetchFailed = "支出記録の取得に失敗"
)

// Summary is the budget dashboard for the fiscal week and month of a day.
type Summary struct {
	Today      time.Time
	Week       fiscal.Range
	Month      fiscal.MonthPeriod
	WeekNumber int
	Budgets    []core.Budget
	Usage      aggregate.Result
	Statuses   []aggregate.Status
}

// SummaryService aggregates expenses against the weekly budgets.
type SummaryService struct {
	budgets  ports.BudgetReader
	expenses ports.ExpenseLedger
	opts     Options
}

func NewSummaryService(budgets ports.BudgetReader, expenses ports.ExpenseLedger, opts Options) *SummaryService {
	return &SummaryService{
		budgets:  budgets,
		expenses: expenses,
		opts:     opts.resolve(log.ComponentSummary),
	}
}

// Summarize reads budgets and the month's expenses concurrently and
// aggregates them for the week and month containing today.
func (s *SummaryService) Summarize(ctx context.Context, today time.Time) (Summary, error) {
	if today.IsZero() {
		today = s.opts.Now()
	}
	week := fiscal.WeekRange(today)
	month := fiscal.MonthRange(today)

	var (
		budgets []core.Budget
		records []core.ExpenseRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.budgets.ListBudgets(gctx)
		if err != nil {
			return &core.DependencyError{Op: "list budgets", Message: msgBudgetFetchFailed, Err: err}
		}
		budgets = b
		return nil
	})
	g.Go(func() error {
		r, err := s.expenses.ListExpenses(gctx, month.Start, month.End)
		if err != nil {
			return &core.DependencyError{Op: "list expenses", Message: msgExpenseFetchFailed, Err: err}
		}
		records = r
		return nil
	})
	if err := g.Wait(); err != nil {
		s.opts.Logger.ErrorContext(ctx, "Failed to build summary", log.FieldError, err)
		return Summary{}, err
	}

	usage := aggregate.Aggregate(records, week, month.Range)
	return Summary{
		Today:      today,
		Week:       week,
		Month:      month,
		WeekNumber: fiscal.WeekNumber(month, week.Start),
		Budgets:    budgets,
		Usage:      usage,
		Statuses:   aggregate.Statuses(usage, budgets),
	}, nil
}
