// Package ratelimit throttles writes per client IP.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const window = time.Minute

// Limiter counts requests per client in fixed one-minute windows. A
// client's window opens with its first counted request.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string]*clientWindow
	limit    int
	methods  map[string]bool
	now      func() time.Time
	rejected atomic.Int64

	sweepEvery time.Duration
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once
}

type clientWindow struct {
	opened time.Time
	count  int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
	// Methods are the HTTP methods counted against the limit. Other
	// methods pass through untouched.
	Methods []string
	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig limits writes to 60 a minute.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
		Methods:           []string{http.MethodPost, http.MethodDelete},
	}
}

// NewLimiter starts the sweeper goroutine. Call Stop to release it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = def.Methods
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Limiter{
		windows:    make(map[string]*clientWindow),
		limit:      cfg.RequestsPerMinute,
		methods:    make(map[string]bool, len(cfg.Methods)),
		now:        cfg.Now,
		sweepEvery: cfg.CleanupInterval,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, m := range cfg.Methods {
		l.methods[m] = true
	}
	go l.sweepLoop()
	return l
}

// Allow counts one request from client. When the budget is spent it
// returns false and how long until the window reopens.
func (l *Limiter) Allow(client string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[client]
	if !ok || now.Sub(w.opened) >= window {
		l.windows[client] = &clientWindow{opened: now, count: 1}
		return true, 0
	}
	if w.count >= l.limit {
		l.rejected.Add(1)
		return false, w.opened.Add(window).Sub(now)
	}
	w.count++
	return true, 0
}

func (l *Limiter) sweepLoop() {
	defer close(l.stopped)

	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops clients whose window has closed.
func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for client, w := range l.windows {
		if now.Sub(w.opened) >= window {
			delete(l.windows, client)
		}
	}
}

// ActiveClients returns the number of clients with an open window.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop ends the sweeper and waits for it. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
		<-l.stopped
	})
}

// Metrics is a point-in-time view of the limiter.
type Metrics struct {
	Rejected    int64
	ClientCount int
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		Rejected:    l.rejected.Load(),
		ClientCount: l.ActiveClients(),
	}
}

// Middleware counts the configured methods per client. Rejected requests
// get Retry-After in whole seconds and are handed to onLimit, or a plain
// 429 when onLimit is nil.
func (l *Limiter) Middleware(extractIP func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.methods[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(extractIP(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onLimit == nil {
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			onLimit(w, r)
		})
	}
}
