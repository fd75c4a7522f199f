package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()
	m.ChoreRecorded("食事", "keiko", 1.5)
	m.ChoreRecorded("ガチャ", "keiko", -100)
	m.LuckyTier("lucky")
	m.LuckyTier("")
	m.ExpenseRecorded("食費", 1200)
	m.DrawFinished("granted", "SR")
	m.EventPublished("chore.recorded", nil)
	m.EventPublished("chore.recorded", errors.New("down"))

	out := scrape(t, m)
	for _, want := range []string{
		`kakeibo_points_awarded_total{assignee="keiko"} 1.5`,
		`kakeibo_chore_records_total{category="ガチャ"} 1`,
		`kakeibo_expense_amount_yen_total{category="食費"} 1200`,
		`kakeibo_events_published_total{result="error",type="chore.recorded"} 1`,
		`kakeibo_lucky_multiplier_total{tier="lucky"} 1`,
		`kakeibo_gacha_draws_total{rarity="SR",state="granted"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if strings.Contains(out, `tier=""`) {
		t.Error("empty tier must not create a series")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ChoreRecorded("x", "y", 1)
	m.DrawFinished("granted", "N")
	m.ObserveHTTP("/", "GET", 200, time.Millisecond)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/chores", http.MethodPost, 201, 20*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`kakeibo_http_requests_total{code="201",method="POST",route="/api/chores"} 1`,
		"kakeibo_http_request_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
