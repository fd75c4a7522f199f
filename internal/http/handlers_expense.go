package http

import (
	"net/http"

	"kakeibo/internal/aggregate"
	"kakeibo/internal/core"
)

const msgExpenseDeleted = "削除に成功しました。"

type expenseRequest struct {
	Category string  `json:"category"`
	Amount   flexInt `json:"amount"`
}

// expenseRow is one history line. Row carries the record id.
type expenseRow struct {
	Row       int64  `json:"row"`
	Timestamp int64  `json:"timestamp"`
	Category  string `json:"category"`
	Amount    int64  `json:"amount"`
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref, err := parseDate(q.Get("month"), s.deps.Location, s.deps.Now())
	if err != nil {
		writeError(w, r, core.Invalid("month", msgInvalidDate))
		return
	}

	listing, err := s.deps.Expenses.List(r.Context(), ref, parseWeek(q.Get("week")))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows := make([]expenseRow, len(listing.Records))
	for i, e := range listing.Records {
		rows[i] = expenseRow{
			Row:       e.ID,
			Timestamp: e.CreatedAt.UnixMilli(),
			Category:  e.Category,
			Amount:    e.Amount,
		}
	}
	writeJSON(w, r, http.StatusOK, rows)
}

func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Amount.Valid {
		writeError(w, r, core.Invalid("amount", core.MsgExpenseInvalid))
		return
	}

	saved, err := s.deps.Expenses.Record(r.Context(), core.ExpenseRecord{
		Category: req.Category,
		Amount:   req.Amount.Value,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, saved)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, r, core.Invalid("id", core.MsgInvalidID))
		return
	}
	if err := s.deps.Expenses.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, messageResponse{Message: msgExpenseDeleted})
}

// initialData is the budget dashboard. Times are Unix milliseconds.
type initialData struct {
	FoodBudget             int64 `json:"foodBudget"`
	DailyGoodsBudget       int64 `json:"dailyGoodsBudget"`
	WeeklyFoodUsage        int64 `json:"weeklyFoodUsage"`
	WeeklyDailyGoodsUsage  int64 `json:"weeklyDailyGoodsUsage"`
	MonthlyFoodUsage       int64 `json:"monthlyFoodUsage"`
	MonthlyDailyGoodsUsage int64 `json:"monthlyDailyGoodsUsage"`
	NumberOfWeeks          int   `json:"numberOfWeeks"`
	WeekNumber             int   `json:"weekNumber"`
	TodayTime              int64 `json:"todayTime"`
	StartOfWeekTime        int64 `json:"startOfWeekTime"`
	EndOfWeekTime          int64 `json:"endOfWeekTime"`
	StartOfMonthTime       int64 `json:"startOfMonthTime"`
	EndOfMonthTime         int64 `json:"endOfMonthTime"`
	OverBudgetFood         bool  `json:"overBudgetFood"`
	OverBudgetDailyGoods   bool  `json:"overBudgetDailyGoods"`
}

func (s *Server) handleInitialData(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Summary.Summarize(r.Context(), s.deps.Now().In(s.deps.Location))
	if err != nil {
		writeError(w, r, err)
		return
	}

	food := aggregate.BudgetAmount(sum.Budgets, core.CategoryFood)
	goods := aggregate.BudgetAmount(sum.Budgets, core.CategoryDailyGoods)
	weekly, monthly := sum.Usage.WeeklyByCategory, sum.Usage.MonthlyByCategory

	writeJSON(w, r, http.StatusOK, initialData{
		FoodBudget:             food,
		DailyGoodsBudget:       goods,
		WeeklyFoodUsage:        weekly[core.CategoryFood],
		WeeklyDailyGoodsUsage:  weekly[core.CategoryDailyGoods],
		MonthlyFoodUsage:       monthly[core.CategoryFood],
		MonthlyDailyGoodsUsage: monthly[core.CategoryDailyGoods],
		NumberOfWeeks:          sum.Month.WeeksInPeriod,
		WeekNumber:             sum.WeekNumber,
		TodayTime:              sum.Today.UnixMilli(),
		StartOfWeekTime:        sum.Week.Start.UnixMilli(),
		EndOfWeekTime:          sum.Week.End.UnixMilli(),
		StartOfMonthTime:       sum.Month.Start.UnixMilli(),
		EndOfMonthTime:         sum.Month.End.UnixMilli(),
		OverBudgetFood:         aggregate.OverBudget(weekly[core.CategoryFood], food),
		OverBudgetDailyGoods:   aggregate.OverBudget(weekly[core.CategoryDailyGoods], goods),
	})
}

func (s *Server) handleMasterChores(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Master.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []core.MasterCategory{}
	}
	writeJSON(w, r, http.StatusOK, cats)
}

func (s *Server) handleMasterSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Master.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, snap)
}
