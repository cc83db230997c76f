package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ftserver"

// Metrics groups the collectors the server updates. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Bytes       *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Connections prometheus.Gauge
	RootEvents  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by operation and final status.",
		}, []string{"op", "status"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Payload bytes moved, by direction.",
		}, []string{"direction"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from accept to close, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connections currently being handled.",
		}),
		RootEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "root_events_total",
			Help:      "Filesystem events observed under the root directory.",
		}, []string{"op"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.Bytes, m.Duration, m.Connections, m.RootEvents)
	return m
}

func (m *Metrics) ObserveRequest(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, status).Inc()
	m.Duration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) AddBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.Bytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) RootEvent(op string) {
	if m == nil {
		return
	}
	m.RootEvents.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
