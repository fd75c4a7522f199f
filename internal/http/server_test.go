package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"kakeibo/internal/core"
	"kakeibo/internal/gacha"
	"kakeibo/internal/metrics"
	"kakeibo/internal/scoring"
	"kakeibo/internal/seed"
	"kakeibo/internal/services"
	"kakeibo/internal/storage/memory"
)

// roll is a constant random source for the score and draw engines.
type roll float64

func (r roll) Float64() float64 { return float64(r) }

type testServer struct {
	*Server
	store *memory.Store
	now   time.Time
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()

	catalog, err := seed.Default()
	if err != nil {
		t.Fatalf("seed.Default: %v", err)
	}
	ts := &testServer{
		store: memory.NewSeeded(catalog),
		now:   time.Date(2025, 10, 16, 12, 0, 0, 0, time.Local),
	}
	opts := services.Options{Now: func() time.Time { return ts.now }}

	master := services.NewMasterService(ts.store, "kakeibo", time.Minute, opts)
	chores := services.NewChoreService(ts.store, master, scoring.NewEngine(roll(0.5)), 0, opts)
	coordinator := services.NewRewardCoordinator(ts.store, ts.store, ts.store, ts.store, gacha.NewEngine(roll(0)), 100, opts)

	srv, err := NewServer(Config{Addr: ":0", RateLimitPerMinute: rateLimit}, Deps{
		Chores:   chores,
		Expenses: services.NewExpenseService(ts.store, opts),
		Summary:  services.NewSummaryService(ts.store, ts.store, opts),
		Master:   master,
		Gacha:    services.NewGachaService(coordinator, chores, master, ts.store, ts.store, false, opts),
		Pinger:   ts.store,
		Metrics:  metrics.New(),
		Now:      opts.Now,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts.Server = srv
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorResponse](t, rr).Error
}

func (ts *testServer) credit(t *testing.T, assignee string, pts float64) {
	t.Helper()
	_, err := ts.store.InsertChores(context.Background(), []core.ChoreRecord{{
		CreatedAt: ts.now.Add(-time.Hour), Category: "掃除", Task: "部屋", Score: pts, Multiplier: 1, Assignee: assignee,
	}})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, 0)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := ts.do(t, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
	}

	ts.store.FailOn("Ping", errors.New("disk gone"))
	if rr := ts.do(t, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing store = %d", rr.Code)
	}
}

func TestMiddlewareChain(t *testing.T) {
	ts := newTestServer(t, 0)

	rr := ts.do(t, http.MethodGet, "/api/chores", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	rr = ts.do(t, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `kakeibo_http_requests_total{code="200",method="GET",route="GET /api/chores"}`) {
		t.Errorf("metrics missing request counter:\n%s", rr.Body.String())
	}
}

func TestShutdownStopsLimiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	ts := newTestServer(t, 0)
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// a second call is a no-op
	if err := ts.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	ts := newTestServer(t, 1)

	body := `{"category":"食費","amount":100}`
	if rr := ts.do(t, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
		t.Fatalf("first POST = %d %s", rr.Code, rr.Body.String())
	}
	rr := ts.do(t, http.MethodPost, "/api/expenses", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST = %d", rr.Code)
	}
	if !strings.Contains(errorOf(t, rr), "Rate limit") {
		t.Errorf("body = %s", rr.Body.String())
	}
	if rr := ts.do(t, http.MethodGet, "/api/expenses", ""); rr.Code != http.StatusOK {
		t.Errorf("GET should not be limited, got %d", rr.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", core.Invalid("amount", core.MsgExpenseInvalid), 400, core.MsgExpenseInvalid},
		{"not found", &core.NotFoundError{Kind: "expense", ID: "9"}, 404, "expense not found: 9"},
		{"already used", core.ErrAlreadyUsed, 409, "reward already used"},
		{"in progress", core.ErrDrawInProgress, 409, "draw already in progress"},
		{"insufficient", core.ErrInsufficientPoints, 400, core.MsgInsufficientPoints},
		{"unknown assignee", core.UnknownAssignee("assignee", "ghost"), 400, "unknown assignee: ghost"},
		{"dependency hides cause", &core.DependencyError{Op: "list", Message: "取得に失敗", Err: core.ErrNotFound}, 500, "取得に失敗"},
		{"unknown", errors.New("boom"), 500, msgInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusFor(tt.err)
			if status != tt.status || msg != tt.msg {
				t.Errorf("statusFor = (%d, %q), want (%d, %q)", status, msg, tt.status, tt.msg)
			}
		})
	}
}

func TestChores(t *testing.T) {
	ts := newTestServer(t, 0)

	rr := ts.do(t, http.MethodPost, "/api/chores",
		`{"category":"食事","task":"料理(夜)","base_score":4,"assignees":["keisuke","けいこ"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("POST status = %d %s", rr.Code, rr.Body.String())
	}
	recorded := decode[[]services.RecordedChore](t, rr)
	if len(recorded) != 2 {
		t.Fatalf("recorded %d rows", len(recorded))
	}
	for _, c := range recorded {
		if c.Score != 2 || c.Multiplier != 1 || c.MultiplierMessage != "" {
			t.Errorf("row = %+v", c)
		}
	}
	if recorded[1].Assignee != "keiko" {
		t.Errorf("display name not resolved: %q", recorded[1].Assignee)
	}

	list := decode[[]core.ChoreRecord](t, ts.do(t, http.MethodGet, "/api/chores?limit=1", ""))
	if len(list) != 1 {
		t.Errorf("limit=1 returned %d", len(list))
	}

	totals := decode[balancesResponse](t, ts.do(t, http.MethodGet, "/api/chores/totals", ""))
	if totals.Cost != 100 || len(totals.Balances) != 2 || totals.Balances[0].Points != 2 {
		t.Errorf("totals = %+v", totals)
	}

	rr = ts.do(t, http.MethodDelete, "/api/chores?id="+jsonID(recorded[0].ID), "")
	if rr.Code != http.StatusOK || !decode[successResponse](t, rr).Success {
		t.Errorf("DELETE = %d %s", rr.Code, rr.Body.String())
	}
}

func TestChoreErrors(t *testing.T) {
	ts := newTestServer(t, 0)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		msg    string
	}{
		{"missing task", http.MethodPost, "/api/chores", `{"category":"食事","assignees":["keiko"]}`, 400, core.MsgCategoryTaskRequired},
		{"no assignees", http.MethodPost, "/api/chores", `{"category":"食事","task":"料理(夜)"}`, 400, core.MsgAssigneesRequired},
		{"bad json", http.MethodPost, "/api/chores", `{"category":`, 400, msgInvalidBody},
		{"bad created_at", http.MethodPost, "/api/chores", `{"category":"食事","task":"t","assignees":["keiko"],"created_at":"yesterday"}`, 400, msgInvalidDate},
		{"fractional multiplier", http.MethodPost, "/api/chores", `{"category":"食事","task":"料理(夜)","assignees":["keiko"],"multiplier":1.5}`, 400, msgInvalidMultiplier},
		{"non-numeric multiplier", http.MethodPost, "/api/chores", `{"category":"食事","task":"料理(夜)","assignees":["keiko"],"multiplier":"x2"}`, 400, msgInvalidMultiplier},
		{"bad limit", http.MethodGet, "/api/chores?limit=-3", "", 400, msgInvalidLimit},
		{"delete without id", http.MethodDelete, "/api/chores", "", 400, core.MsgIDRequired},
		{"delete malformed id", http.MethodDelete, "/api/chores?id=abc", "", 400, core.MsgInvalidID},
		{"delete missing row", http.MethodDelete, "/api/chores?id=999", "", 404, "chore record not found: 999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if got := errorOf(t, rr); got != tt.msg {
				t.Errorf("error = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestChoreListFailure(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.store.FailOn("ListRecentChores", errors.New("db locked"))

	rr := ts.do(t, http.MethodGet, "/api/chores", "")
	if rr.Code != http.StatusInternalServerError || errorOf(t, rr) != "家事ログの取得に失敗しました" {
		t.Errorf("got %d %s", rr.Code, rr.Body.String())
	}
}

func TestDailyBonus(t *testing.T) {
	ts := newTestServer(t, 0)

	a := decode[services.DailyBonusView](t, ts.do(t, http.MethodGet, "/api/chores/daily-bonus?date=2025-10-16", ""))
	b := decode[services.DailyBonusView](t, ts.do(t, http.MethodGet, "/api/chores/daily-bonus?date=2025-10-16", ""))
	if a.TaskID == "" || a.TaskName == "" {
		t.Fatalf("bonus = %+v", a)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("bonus not stable within a day (-first +second):\n%s", diff)
	}

	if rr := ts.do(t, http.MethodGet, "/api/chores/daily-bonus?date=16/10/2025", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d", rr.Code)
	}
}

func TestExpenses(t *testing.T) {
	ts := newTestServer(t, 0)

	// "980" arrives as a string from some forms
	for _, body := range []string{`{"category":"食費","amount":"980"}`, `{"category":"日用品","amount":300}`} {
		if rr := ts.do(t, http.MethodPost, "/api/expenses", body); rr.Code != http.StatusCreated {
			t.Fatalf("POST %s = %d %s", body, rr.Code, rr.Body.String())
		}
	}

	rows := decode[[]expenseRow](t, ts.do(t, http.MethodGet, "/api/expenses?month=2025-10-16&week=all", ""))
	if len(rows) != 2 || rows[0].Amount != 980 || rows[0].Timestamp != ts.now.UnixMilli() {
		t.Fatalf("rows = %+v", rows)
	}

	// 2025-10-16 sits in week 2 of the period that starts Saturday 10-04.
	if rows := decode[[]expenseRow](t, ts.do(t, http.MethodGet, "/api/expenses?month=2025-10-16&week=1", "")); len(rows) != 0 {
		t.Errorf("week 1 rows = %+v", rows)
	}
	if rows := decode[[]expenseRow](t, ts.do(t, http.MethodGet, "/api/expenses?month=2025-10-16&week=2", "")); len(rows) != 2 {
		t.Errorf("week 2 rows = %+v", rows)
	}

	rr := ts.do(t, http.MethodDelete, "/api/expenses/"+jsonID(rows[0].Row), "")
	if rr.Code != http.StatusOK || decode[messageResponse](t, rr).Message != msgExpenseDeleted {
		t.Errorf("DELETE = %d %s", rr.Code, rr.Body.String())
	}
}

func TestExpenseErrors(t *testing.T) {
	ts := newTestServer(t, 0)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		msg    string
	}{
		{"fractional amount", http.MethodPost, "/api/expenses", `{"category":"食費","amount":1.5}`, 400, core.MsgExpenseInvalid},
		{"zero amount", http.MethodPost, "/api/expenses", `{"category":"食費","amount":0}`, 400, core.MsgExpenseInvalid},
		{"text amount", http.MethodPost, "/api/expenses", `{"category":"食費","amount":"abc"}`, 400, core.MsgExpenseInvalid},
		{"missing category", http.MethodPost, "/api/expenses", `{"amount":100}`, 400, core.MsgExpenseInvalid},
		{"bad month", http.MethodGet, "/api/expenses?month=soon", "", 400, msgInvalidDate},
		{"non-numeric id", http.MethodDelete, "/api/expenses/abc", "", 400, core.MsgInvalidID},
		{"missing row", http.MethodDelete, "/api/expenses/404", "", 404, "expense record not found: 404"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if got := errorOf(t, rr); got != tt.msg {
				t.Errorf("error = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestInitialData(t *testing.T) {
	ts := newTestServer(t, 0)
	ctx := context.Background()
	for _, e := range []core.ExpenseRecord{
		{CreatedAt: ts.now, Category: core.CategoryFood, Amount: 16000},
		{CreatedAt: time.Date(2025, 10, 5, 9, 0, 0, 0, time.Local), Category: core.CategoryDailyGoods, Amount: 500},
	} {
		if _, err := ts.store.InsertExpense(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got := decode[initialData](t, ts.do(t, http.MethodGet, "/api/initial-data", ""))
	want := initialData{
		FoodBudget:             15000,
		DailyGoodsBudget:       3000,
		WeeklyFoodUsage:        16000,
		WeeklyDailyGoodsUsage:  0,
		MonthlyFoodUsage:       16000,
		MonthlyDailyGoodsUsage: 500,
		NumberOfWeeks:          4,
		WeekNumber:             2,
		TodayTime:              ts.now.UnixMilli(),
		StartOfWeekTime:        time.Date(2025, 10, 11, 0, 0, 0, 0, time.Local).UnixMilli(),
		EndOfWeekTime:          time.Date(2025, 10, 17, 23, 59, 59, 999_000_000, time.Local).UnixMilli(),
		StartOfMonthTime:       time.Date(2025, 10, 4, 0, 0, 0, 0, time.Local).UnixMilli(),
		EndOfMonthTime:         time.Date(2025, 10, 31, 23, 59, 59, 999_000_000, time.Local).UnixMilli(),
		OverBudgetFood:         true,
		OverBudgetDailyGoods:   false,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("initial-data mismatch (-want +got):\n%s", diff)
	}
}

func TestMasterChores(t *testing.T) {
	ts := newTestServer(t, 0)

	cats := decode[[]core.MasterCategory](t, ts.do(t, http.MethodGet, "/api/initial-data/chores", ""))
	if len(cats) != 5 || cats[0].Name != "食事" || len(cats[0].Tasks) != 5 {
		t.Fatalf("categories = %+v", cats)
	}

	snap := decode[services.Snapshot](t, ts.do(t, http.MethodGet, "/api/master", ""))
	if len(snap.Assignees) != 2 || len(snap.Categories) != 5 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMasterChoresFailure(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.store.FailOn("ListMasterCategories", errors.New("db locked"))

	rr := ts.do(t, http.MethodGet, "/api/initial-data/chores", "")
	if rr.Code != http.StatusInternalServerError || errorOf(t, rr) != "マスターデータの取得に失敗しました" {
		t.Errorf("got %d %s", rr.Code, rr.Body.String())
	}
}

func TestGachaFlow(t *testing.T) {
	ts := newTestServer(t, 0)

	rr := ts.do(t, http.MethodPost, "/api/gacha/draw", `{"assignee":"keiko"}`)
	if rr.Code != http.StatusBadRequest || errorOf(t, rr) != core.MsgInsufficientPoints {
		t.Fatalf("draw without points = %d %s", rr.Code, rr.Body.String())
	}

	ts.credit(t, "keiko", 150)
	rr = ts.do(t, http.MethodPost, "/api/gacha/draw", `{"assignee":"keiko"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("draw = %d %s", rr.Code, rr.Body.String())
	}
	won := decode[drawResponse](t, rr)
	if won.Name != "金券(100円)" || won.AttemptID == "" || won.InventoryID == 0 {
		t.Errorf("won = %+v", won)
	}

	items := decode[[]core.InventoryItem](t, ts.do(t, http.MethodGet, "/api/gacha/inventory", ""))
	if len(items) != 1 || items[0].Prize == nil || items[0].Prize.Name != won.Name {
		t.Fatalf("inventory = %+v", items)
	}

	use := `{"inventory_id":` + jsonID(items[0].ID) + `}`
	if rr := ts.do(t, http.MethodPost, "/api/gacha/use", use); rr.Code != http.StatusOK {
		t.Fatalf("use = %d %s", rr.Code, rr.Body.String())
	}
	if rr := ts.do(t, http.MethodPost, "/api/gacha/use", use); rr.Code != http.StatusConflict {
		t.Errorf("second use = %d", rr.Code)
	}
	if items := decode[[]core.InventoryItem](t, ts.do(t, http.MethodGet, "/api/gacha/inventory", "")); len(items) != 0 {
		t.Errorf("used item still listed: %+v", items)
	}
}

func TestGachaIdempotentDraw(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.credit(t, "keisuke", 100)

	const key = "8f14e45f-ceea-4e7a-9f6e-6b1c3d2a0b11"
	req := httptest.NewRequest(http.MethodPost, "/api/gacha/draw", strings.NewReader(`{"assignee":"けいすけ"}`))
	req.Header.Set(HeaderIdempotencyKey, key)
	first := httptest.NewRecorder()
	ts.Handler.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first draw = %d %s", first.Code, first.Body.String())
	}

	// the balance is now 0, so only a replay can succeed
	rr := ts.do(t, http.MethodPost, "/api/gacha/draw", `{"assignee":"keisuke","request_id":"`+key+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("replay = %d %s", rr.Code, rr.Body.String())
	}
	replay := decode[drawResponse](t, rr)
	if !replay.Replayed || replay.AttemptID != decode[drawResponse](t, first).AttemptID {
		t.Errorf("replay = %+v", replay)
	}
}

func TestGachaErrors(t *testing.T) {
	ts := newTestServer(t, 0)

	tests := []struct {
		name   string
		target string
		body   string
		status int
		msg    string
	}{
		{"no assignee", "/api/gacha/draw", `{}`, 400, core.MsgAssigneeRequired},
		{"bad request id", "/api/gacha/draw", `{"assignee":"keiko","request_id":"abc"}`, 400, core.MsgInvalidRequestID},
		{"no inventory id", "/api/gacha/use", `{}`, 400, core.MsgInventoryIDRequired},
		{"unknown item", "/api/gacha/use", `{"inventory_id":"77"}`, 404, "inventory item not found: 77"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if got := errorOf(t, rr); got != tt.msg {
				t.Errorf("error = %q, want %q", got, tt.msg)
			}
		})
	}
}

func TestInventoryFailure(t *testing.T) {
	ts := newTestServer(t, 0)
	ts.store.FailOn("ListUnusedItems", errors.New("db locked"))

	rr := ts.do(t, http.MethodGet, "/api/gacha/inventory", "")
	if rr.Code != http.StatusInternalServerError || errorOf(t, rr) != "Failed to fetch inventory" {
		t.Errorf("got %d %s", rr.Code, rr.Body.String())
	}
}
