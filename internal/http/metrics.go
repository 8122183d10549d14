package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tally/internal/core"
)

// Metrics holds the Prometheus collectors of one server. Each server owns a
// registry so tests can build servers side by side.
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	actionCount     *prometheus.CounterVec
}

// NewMetrics creates and registers the request and action collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requests_total",
				Help: "How many HTTP requests processed, partitioned by status code and HTTP method.",
			},
			[]string{"code", "method", "url"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "request_duration_seconds",
				Help: "The HTTP request latencies in seconds.",
			},
			[]string{"code", "method", "url"},
		),
		actionCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_actions_total",
				Help: "Ledger actions partitioned by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
	}
	m.registry.MustRegister(m.requestCount, m.requestDuration, m.actionCount)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "uptime_seconds",
		Help: "Seconds since the server started.",
	}, func() float64 { return time.Since(m.started).Seconds() }))
	return m
}

// Record counts an action outcome. It lets Metrics serve as an activity sink.
func (m *Metrics) Record(_ context.Context, a core.Activity) error {
	m.actionCount.WithLabelValues(string(a.Action), string(a.Outcome)).Inc()
	return nil
}

// ObserveRequest updates the request counters for a finished request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.requestCount.WithLabelValues(code, method, route).Inc()
	m.requestDuration.WithLabelValues(code, method, route).Observe(elapsed.Seconds())
}

// Gauge registers a gauge read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) error {
	if err := m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)); err != nil {
		return fmt.Errorf("could not register %s with Prometheus: %w", name, err)
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
