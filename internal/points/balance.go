// Package points computes assignee balances from the chore ledger.
//
// There is no stored running total: a balance is always the sum of
// score*multiplier over every record of the assignee.
package points

import (
	"sort"

	"github.com/shopspring/decimal"

	"kakeibo/internal/core"
)

// Precision is the number of decimal places kept after summing. Split
// scores such as 10/3 would otherwise leave float residue.
const Precision = 6

// Balance is one assignee's point total.
type Balance struct {
	Assignee string
	Points   decimal.Decimal
	Records  int
}

// Float returns the balance as a float64 for JSON responses.
func (b Balance) Float() float64 {
	return b.Points.InexactFloat64()
}

// CanAfford reports whether the balance covers cost.
func (b Balance) CanAfford(cost int) bool {
	return b.Points.GreaterThanOrEqual(decimal.NewFromInt(int64(cost)))
}

func contribution(r core.ChoreRecord) decimal.Decimal {
	return decimal.NewFromFloat(r.Score).Mul(decimal.NewFromInt(int64(r.Multiplier)))
}

// Totals scans records and returns every assignee's balance, sorted by key.
func Totals(records []core.ChoreRecord) []Balance {
	sums := map[string]decimal.Decimal{}
	counts := map[string]int{}
	for _, r := range records {
		sums[r.Assignee] = sums[r.Assignee].Add(contribution(r))
		counts[r.Assignee]++
	}

	out := make([]Balance, 0, len(sums))
	for a, sum := range sums {
		out = append(out, Balance{Assignee: a, Points: sum.Round(Precision), Records: counts[a]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Assignee < out[j].Assignee })
	return out
}

// Of returns the balance of a single assignee.
func Of(records []core.ChoreRecord, assignee string) Balance {
	sum := decimal.Zero
	n := 0
	for _, r := range records {
		if r.Assignee != assignee {
			continue
		}
		sum = sum.Add(contribution(r))
		n++
	}
	return Balance{Assignee: assignee, Points: sum.Round(Precision), Records: n}
}
