// Package http serves the household ledger as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"kakeibo/internal/log"
	"kakeibo/internal/metrics"
	"kakeibo/internal/middleware/ratelimit"
	"kakeibo/internal/middleware/security"
	"kakeibo/internal/middleware/trace"
	"kakeibo/internal/ports"
	"kakeibo/internal/services"
)

// Deps are the services behind the handlers. Metrics and Pinger may be nil.
type Deps struct {
	Chores   *services.ChoreService
	Expenses *services.ExpenseService
	Summary  *services.SummaryService
	Master   *services.MasterService
	Gacha    *services.GachaService
	Pinger   ports.Pinger
	Metrics  *metrics.Metrics
	Logger   *log.Logger

	// Location reads dates sent without a zone. Defaults to time.Local.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

// Config holds the listener settings.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	// TrustedProxies are extra CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// Server is the API server. It owns the rate limiter goroutine, so stop it
// with Shutdown.
type Server struct {
	http.Server

	deps         Deps
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		deps:     deps,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		detector: detector,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
	}

	var observe trace.ObserveFunc
	if deps.Metrics != nil {
		observe = deps.Metrics.ObserveHTTP
	}
	s.tracer = trace.NewMiddleware(detector.ExtractClientIP, deps.Logger, observe)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	mux.Handle("GET /api/chores", s.api(s.handleListChores))
	mux.Handle("POST /api/chores", s.api(s.handleRecordChore))
	mux.Handle("DELETE /api/chores", s.api(s.handleDeleteChore))
	mux.Handle("GET /api/chores/totals", s.api(s.handleBalances))
	mux.Handle("GET /api/chores/daily-bonus", s.api(s.handleDailyBonus))

	mux.Handle("GET /api/expenses", s.api(s.handleListExpenses))
	mux.Handle("POST /api/expenses", s.api(s.handleRecordExpense))
	mux.Handle("DELETE /api/expenses/{id}", s.api(s.handleDeleteExpense))

	mux.Handle("GET /api/initial-data", s.api(s.handleInitialData))
	mux.Handle("GET /api/initial-data/chores", s.api(s.handleMasterChores))
	mux.Handle("GET /api/master", s.api(s.handleMasterSnapshot))

	mux.Handle("POST /api/gacha/draw", s.api(s.handleDraw))
	mux.Handle("GET /api/gacha/inventory", s.api(s.handleInventory))
	mux.Handle("POST /api/gacha/use", s.api(s.handleUseReward))

	// The tracer reads the matched pattern from the request the mux saw, so
	// nothing between the two may replace the request.
	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited)(h)
	h = s.detector.Middleware(s.deps.Logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.tracer.Middleware(h)
}

// api tags the request logger with the http component once the mux has
// matched a route.
func (s *Server) api(fn http.HandlerFunc) http.Handler {
	return log.ComponentMiddleware(log.ComponentHTTP)(fn)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "Rate limit exceeded. Please try again later."})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Close stops the rate limiter and closes the listener immediately.
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.Server.Close()
}
