package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics on a private Prometheus registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	connectAttempts *prometheus.CounterVec
	sessionState    *prometheus.GaugeVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram

	transactions *prometheus.CounterVec
	transacting  prometheus.Gauge

	quotes *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers all collectors under namespace.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,

		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Wallet connection attempts by result",
			},
			[]string{"result"},
		),
		sessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_state",
				Help:      "1 for the current wallet session state, 0 otherwise",
			},
			[]string{"state"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refreshes_total",
				Help:      "Chain state refresh cycles by result",
			},
			[]string{"result"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of chain state refresh cycles",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Transactions by kind and final status",
			},
			[]string{"kind", "status"},
		),
		transacting: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transacting",
				Help:      "1 while a purchase or stake is in progress",
			},
		),
		quotes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quotes_total",
				Help:      "Purchase quote estimates by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.connectAttempts,
		m.sessionState,
		m.refreshes,
		m.refreshDuration,
		m.transactions,
		m.transacting,
		m.quotes,
	)
	m.SetSessionState("disconnected")
	return m
}

func (m *PrometheusMetrics) IncConnectAttempts(result string) {
	m.connectAttempts.WithLabelValues(result).Inc()
}

// SetSessionState marks state as current and clears the others.
func (m *PrometheusMetrics) SetSessionState(state string) {
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.sessionState.WithLabelValues(s).Set(v)
	}
}

func (m *PrometheusMetrics) IncRefreshes(result string) {
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) ObserveRefreshDuration(d time.Duration) {
	m.refreshDuration.Observe(d.Seconds())
}

func (m *PrometheusMetrics) IncTransactions(kind, status string) {
	m.transactions.WithLabelValues(kind, status).Inc()
}

func (m *PrometheusMetrics) SetTransacting(active bool) {
	if active {
		m.transacting.Set(1)
	} else {
		m.transacting.Set(0)
	}
}

func (m *PrometheusMetrics) IncQuotes(result string) {
	m.quotes.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

var _ Metrics = (*PrometheusMetrics)(nil)
