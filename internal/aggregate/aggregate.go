// Package aggregate sums expense records into fiscal-period usage.
package aggregate

import (
	"kakeibo/internal/core"
	"kakeibo/internal/fiscal"
)

// TrackedCategories are the only categories summed against a budget.
var TrackedCategories = []string{core.CategoryFood, core.CategoryDailyGoods}

func tracked(category string) bool {
	for _, c := range TrackedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Totals maps a tracked category to its summed amount. Both tracked
// categories are always present.
type Totals map[string]int64

func newTotals() Totals {
	t := make(Totals, len(TrackedCategories))
	for _, c := range TrackedCategories {
		t[c] = 0
	}
	return t
}

// Result holds weekly and monthly usage per tracked category.
type Result struct {
	WeeklyByCategory  Totals `json:"weekly_by_category"`
	MonthlyByCategory Totals `json:"monthly_by_category"`
}

// Aggregate makes a single pass over records. Records inside month are
// summed monthly, and those also inside week are summed weekly. week is
// expected to sit inside month but that is not checked.
func Aggregate(records []core.ExpenseRecord, week, month fiscal.Range) Result {
	res := Result{WeeklyByCategory: newTotals(), MonthlyByCategory: newTotals()}
	for _, r := range records {
		if !tracked(r.Category) || !month.Contains(r.CreatedAt) {
			continue
		}
		res.MonthlyByCategory[r.Category] += r.Amount
		if week.Contains(r.CreatedAt) {
			res.WeeklyByCategory[r.Category] += r.Amount
		}
	}
	return res
}

// OverBudget reports whether weekly usage exceeds the weekly budget.
func OverBudget(weeklyUsage, weeklyBudget int64) bool {
	return weeklyUsage > weeklyBudget
}

// BudgetAmount returns the configured amount for category, or 0.
func BudgetAmount(budgets []core.Budget, category string) int64 {
	for _, b := range budgets {
		if b.Category == category {
			return b.Amount
		}
	}
	return 0
}

// Status is the per-category view surfaced to callers.
type Status struct {
	Category     string `json:"category"`
	Budget       int64  `json:"budget"`
	WeeklyUsage  int64  `json:"weekly_usage"`
	MonthlyUsage int64  `json:"monthly_usage"`
	OverBudget   bool   `json:"over_budget"`
}

// Statuses pairs each tracked category with its budget.
func Statuses(res Result, budgets []core.Budget) []Status {
	out := make([]Status, 0, len(TrackedCategories))
	for _, c := range TrackedCategories {
		budget := BudgetAmount(budgets, c)
		weekly := res.WeeklyByCategory[c]
		out = append(out, Status{
			Category:     c,
			Budget:       budget,
			WeeklyUsage:  weekly,
			MonthlyUsage: res.MonthlyByCategory[c],
			OverBudget:   OverBudget(weekly, budget),
		})
	}
	return out
}
