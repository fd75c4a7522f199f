package google

import (
	"fmt"
	"strconv"
	"strings"

	"kakeibo/internal/core"
)

// TimestampLayout is how timestamps are written to the sheet. With
// USER_ENTERED input Sheets stores it as a date-time value.
const TimestampLayout = "2006/01/02 15:04:05"

// budgetOrder is the category of each budget row when column A is blank.
var budgetOrder = []string{core.CategoryFood, core.CategoryDailyGoods}

func expenseRow(e core.ExpenseRecord) []any {
	return []any{e.CreatedAt.Format(TimestampLayout), e.Category, e.Amount, e.ID}
}

// findExpenseRow returns the zero-based row index whose column D holds id.
func findExpenseRow(values [][]any, id int64) (int, bool) {
	want := strconv.FormatInt(id, 10)
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) < 4 {
			continue
		}
		if cols[3] == want {
			return i, true
		}
	}
	return 0, false
}

// parseBudgets reads rows of (category, amount). A blank category takes the
// row's position in budgetOrder.
func parseBudgets(values [][]any) ([]core.Budget, error) {
	var out []core.Budget
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) < 2 || cols[1] == "" {
			continue
		}
		category := cols[0]
		if category == "" {
			if i >= len(budgetOrder) {
				continue
			}
			category = budgetOrder[i]
		}
		amount, ok := parseYen(cols[1])
		if !ok {
			return nil, fmt.Errorf("budget %s: invalid amount %q", category, cols[1])
		}
		out = append(out, core.Budget{Category: category, Amount: amount})
	}
	return out, nil
}

// parseYen accepts plain integers and formatted values such as "¥15,000".
func parseYen(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "¥")
	s = strings.TrimPrefix(s, "￥")
	s = strings.TrimSuffix(s, "円")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, n >= 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64(f + 0.5), true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
