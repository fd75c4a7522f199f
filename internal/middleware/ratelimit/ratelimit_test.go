package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)}
}

func TestLimiter_Allow(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := newClock()
	rl := NewLimiter(Config{RequestsPerMinute: 2, Now: clk.Now})
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should pass", i+1)
		}
	}

	clk.advance(20 * time.Second)
	ok, wait := rl.Allow("10.0.0.1")
	if ok {
		t.Fatal("third request should be limited")
	}
	if wait != 40*time.Second {
		t.Errorf("wait = %v, want 40s", wait)
	}
	if ok, _ := rl.Allow("10.0.0.2"); !ok {
		t.Error("other clients have their own budget")
	}

	m := rl.GetMetrics()
	if m.Rejected != 1 || m.ClientCount != 2 {
		t.Errorf("metrics = %+v", m)
	}

	clk.advance(40 * time.Second)
	if ok, _ := rl.Allow("10.0.0.1"); !ok {
		t.Error("a new window should open after a minute")
	}
}

func TestLimiter_SweepForgetsIdleClients(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := newClock()
	rl := NewLimiter(Config{Now: clk.Now})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	clk.advance(30 * time.Second)
	rl.Allow("10.0.0.2")

	clk.advance(45 * time.Second)
	rl.sweep()
	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("ActiveClients = %d, want 1", got)
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
}

func TestLimiter_MiddlewareOnlyCountsConfiguredMethods(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := newClock()
	rl := NewLimiter(Config{RequestsPerMinute: 1, Now: clk.Now})
	defer rl.Stop()

	ip := func(*http.Request) string { return "192.168.1.5" }
	h := rl.Middleware(ip, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		method     string
		want       int
		retryAfter string
	}{
		{http.MethodPost, http.StatusNoContent, ""},
		{http.MethodGet, http.StatusNoContent, ""},
		{http.MethodGet, http.StatusNoContent, ""},
		{http.MethodDelete, http.StatusTooManyRequests, "60"},
		{http.MethodPost, http.StatusTooManyRequests, "60"},
	}
	for i, tt := range tests {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(tt.method, "/api/chores", nil))
		if rr.Code != tt.want {
			t.Errorf("request %d (%s): status = %d, want %d", i, tt.method, rr.Code, tt.want)
		}
		if got := rr.Header().Get("Retry-After"); got != tt.retryAfter {
			t.Errorf("request %d: Retry-After = %q, want %q", i, got, tt.retryAfter)
		}
	}
}
