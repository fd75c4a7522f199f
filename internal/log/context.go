package log

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type loggerKey struct{}

// NewContext returns a copy of ctx carrying l.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the request logger, or one over slog.Default when
// ctx carries none.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}

// ComponentMiddleware retags the request logger with component.
func ComponentMiddleware(component string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := FromContext(r.Context()).WithComponent(component)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

func levelForStatus(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// RequestCompleted logs a finished request. Requests no route matched are
// logged under the route "unmatched".
func (l *Logger) RequestCompleted(ctx context.Context, r *http.Request, code int, elapsed time.Duration, clientIP string) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	f := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(code, elapsed.Milliseconds(), code < 400).
		WithClientIP(clientIP)
	f[FieldRoute] = route
	l.Log(ctx, levelForStatus(code), "HTTP request completed", f.ToSlice()...)
}

// DrawFinished logs where a gacha draw ended up. Anything short of a grant
// is an error.
func (l *Logger) DrawFinished(ctx context.Context, attemptID, assignee, state, prizeName string) {
	f := NewFields().WithDraw(attemptID, assignee, state).WithOperation(OpDraw).WithComponent(ComponentGacha)
	f[FieldPrizeName] = prizeName

	level := slog.LevelInfo
	if state != "granted" {
		level = slog.LevelError
	}
	l.Logger.Log(ctx, level, "Gacha draw finished", f.ToSlice()...)
}

// Failure logs err at Error with the operation that failed. extra may be nil.
func (l *Logger) Failure(ctx context.Context, msg string, err error, op string, extra LogFields) {
	if extra == nil {
		extra = NewFields()
	}
	f := extra.WithError(err).WithOperation(op).WithComponent(l.component)
	l.Logger.ErrorContext(ctx, msg, f.ToSlice()...)
}
