// Package trace assigns request ids and logs every request.
package trace

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/log"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const maxIncomingID = 64

type requestIDKey struct{}

// ObserveFunc receives the matched route pattern, status and latency of a
// finished request.
type ObserveFunc func(route, method string, code int, elapsed time.Duration)

// Middleware tags each request with an id and a logger, and reports it
// once the handler returns.
type Middleware struct {
	extractIP func(*http.Request) string
	logger    *log.Logger
	observe   ObserveFunc

	served     atomic.Int64
	lastMicros atomic.Int64
}

// Metrics is a point-in-time view of the middleware counters.
type Metrics struct {
	TotalRequests    int64
	LastResponseTime int64 // microseconds
}

// NewMiddleware wires the tracer. extractIP and observe may be nil.
func NewMiddleware(extractIP func(*http.Request) string, logger *log.Logger, observe ObserveFunc) *Middleware {
	if logger == nil {
		logger = log.Discard()
	}
	return &Middleware{
		extractIP: extractIP,
		logger:    logger.WithComponent(log.ComponentTrace),
		observe:   observe,
	}
}

// Middleware keeps a well-formed incoming X-Request-ID and mints one
// otherwise. The id is echoed on the response and bound to the request
// logger handlers get from log.FromContext.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var clientIP string
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		id, ok := incomingRequestID(r)
		if !ok {
			id = GenerateRequestID()
		}
		w.Header().Set(HeaderRequestID, id)

		reqLogger := m.logger.With(log.FieldRequestID, id)
		ctx := log.NewContext(context.WithValue(r.Context(), requestIDKey{}, id), reqLogger)
		r = r.WithContext(ctx)
		reqLogger.DebugContext(ctx, "HTTP request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)

		m.served.Add(1)
		m.lastMicros.Store(elapsed.Microseconds())
		if m.observe != nil {
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.observe(route, r.Method, sw.code, elapsed)
		}
		reqLogger.RequestCompleted(ctx, r, sw.code, elapsed, clientIP)
	})
}

// statusWriter remembers the first status written.
type statusWriter struct {
	http.ResponseWriter
	code    int
	written bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.written {
		sw.code = code
		sw.written = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.written = true
	return sw.ResponseWriter.Write(b)
}

// incomingRequestID accepts ids of letters, digits, '-' and '_' only.
func incomingRequestID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
	if id == "" || len(id) > maxIncomingID {
		return "", false
	}
	valid := strings.IndexFunc(id, func(c rune) bool {
		switch {
		case c == '-', c == '_':
		case '0' <= c && c <= '9', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		default:
			return true
		}
		return false
	}) < 0
	return id, valid
}

// GenerateRequestID returns "req_" and 16 hex digits.
func GenerateRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// GetRequestID returns the id the middleware bound to ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:    m.served.Load(),
		LastResponseTime: m.lastMicros.Load(),
	}
}
