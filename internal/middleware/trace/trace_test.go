package trace

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kakeibo/internal/log"
)

func newLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Level: slog.LevelDebug, Format: log.FormatJSON, Output: buf})
}

// lastLine decodes the last JSON log line.
func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	return m
}

func TestMiddleware_GeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(nil, newLogger(&buf), nil)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		if log.FromContext(r.Context()) == nil {
			t.Error("no logger in context")
		}
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/chores", nil))

	got := rr.Header().Get(HeaderRequestID)
	if !strings.HasPrefix(got, "req_") || len(got) != 20 {
		t.Errorf("generated id = %q", got)
	}
	if seen != got {
		t.Errorf("context id %q != header id %q", seen, got)
	}
}

func TestMiddleware_KeepsValidIncomingID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"valid", "abc-123_XYZ", true},
		{"bad characters", "abc 123<script>", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMiddleware(nil, nil, nil)
			h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(HeaderRequestID, tt.incoming)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if got := rr.Header().Get(HeaderRequestID) == tt.incoming; got != tt.keep {
				t.Errorf("kept = %v, want %v (header %q)", got, tt.keep, rr.Header().Get(HeaderRequestID))
			}
		})
	}
}

func TestMiddleware_ObservesMatchedRoute(t *testing.T) {
	var buf bytes.Buffer
	type observation struct {
		route, method string
		code          int
	}
	var got []observation
	observe := func(route, method string, code int, _ time.Duration) {
		got = append(got, observation{route, method, code})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/expenses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	extractIP := func(*http.Request) string { return "10.1.1.1" }
	h := NewMiddleware(extractIP, newLogger(&buf), observe).Middleware(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/expenses/42", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	want := []observation{
		{"DELETE /api/expenses/{id}", http.MethodDelete, http.StatusNotFound},
		{"unmatched", http.MethodGet, http.StatusNotFound},
	}
	if len(got) != len(want) {
		t.Fatalf("observations = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("observation %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	line := lastLine(t, &buf)
	if line["level"] != "WARN" || line["route"] != "unmatched" || line[log.FieldClientIP] != "10.1.1.1" {
		t.Errorf("completion log = %v", line)
	}
	if line[log.FieldComponent] != log.ComponentTrace {
		t.Errorf("component = %v", line[log.FieldComponent])
	}
}

func TestMiddleware_Metrics(t *testing.T) {
	m := NewMiddleware(nil, nil, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 3; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	if got := m.GetMetrics().TotalRequests; got != 3 {
		t.Errorf("TotalRequests = %d", got)
	}
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &statusWriter{ResponseWriter: rr, code: http.StatusOK}
	_, _ = rw.Write([]byte("x"))
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.code != http.StatusOK {
		t.Errorf("code = %d", rw.code)
	}
}
