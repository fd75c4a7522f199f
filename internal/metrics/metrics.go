// Package metrics exposes Prometheus collectors for the ledger and the HTTP
// surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kakeibo"

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ChoresRecorded  *prometheus.CounterVec
	PointsAwarded   *prometheus.CounterVec
	LuckyTiers      *prometheus.CounterVec
	ExpensesTotal   *prometheus.CounterVec
	Draws           *prometheus.CounterVec
	GrantRecoveries *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	EventsHandled   *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ChoresRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chore_records_total",
			Help:      "Chore ledger rows written, by category.",
		}, []string{"category"}),
		PointsAwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Points credited (score times multiplier), by assignee.",
		}, []string{"assignee"}),
		LuckyTiers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lucky_multiplier_total",
			Help:      "Chore submissions that hit a lucky multiplier tier.",
		}, []string{"tier"}),
		ExpensesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expense_amount_yen_total",
			Help:      "Recorded expense amounts in yen, by category.",
		}, []string{"category"}),
		Draws: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gacha_draws_total",
			Help:      "Gacha draws by final state and prize rarity.",
		}, []string{"state", "rarity"}),
		GrantRecoveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gacha_grant_recoveries_total",
			Help:      "Grant recovery attempts by outcome.",
		}, []string{"outcome"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Ledger events handed to the broker, by type and result.",
		}, []string{"type", "result"}),
		EventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_handled_total",
			Help:      "Ledger events consumed by the mirror worker, by type and outcome.",
		}, []string{"type", "outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Registry returns the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ChoreRecorded(category, assignee string, points float64) {
	if m == nil {
		return
	}
	m.ChoresRecorded.WithLabelValues(category).Inc()
	if points > 0 {
		m.PointsAwarded.WithLabelValues(assignee).Add(points)
	}
}

func (m *Metrics) LuckyTier(tier string) {
	if m == nil || tier == "" {
		return
	}
	m.LuckyTiers.WithLabelValues(tier).Inc()
}

func (m *Metrics) ExpenseRecorded(category string, amount int64) {
	if m == nil {
		return
	}
	m.ExpensesTotal.WithLabelValues(category).Add(float64(amount))
}

func (m *Metrics) DrawFinished(state, rarity string) {
	if m == nil {
		return
	}
	m.Draws.WithLabelValues(state, rarity).Inc()
}

func (m *Metrics) GrantRecovery(outcome string) {
	if m == nil {
		return
	}
	m.GrantRecoveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, result).Inc()
}

// EventHandled counts a consumed event. Outcome is "ok", "skipped",
// "retry" or "dropped".
func (m *Metrics) EventHandled(eventType, outcome string) {
	if m == nil {
		return
	}
	m.EventsHandled.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
