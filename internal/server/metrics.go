package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the hub's Prometheus collectors on a registry of its own, so
// several hubs can live in one process (tests do this).
type Metrics struct {
	registry    *prometheus.Registry
	connections prometheus.Gauge
	intents     *prometheus.CounterVec
	rejected    prometheus.Counter
	dropped     prometheus.Counter
}

// NewMetrics creates the collectors and registers them together with the Go
// runtime collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomcast_connections",
			Help: "Number of live WebSocket connections.",
		}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomcast_intents_total",
			Help: "Client intents handed to the dispatcher, by event name.",
		}, []string{"event"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_rejected_frames_total",
			Help: "Inbound frames dropped because they were malformed or rate limited.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomcast_dropped_deliveries_total",
			Help: "Outbound events dropped because a client's send buffer was full.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.connections,
		m.intents,
		m.rejected,
		m.dropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) setConnections(n int) {
	m.connections.Set(float64(n))
}

func (m *Metrics) intentReceived(event string) {
	m.intents.WithLabelValues(event).Inc()
}

func (m *Metrics) frameRejected() {
	m.rejected.Inc()
}

func (m *Metrics) deliveryDropped() {
	m.dropped.Inc()
}
