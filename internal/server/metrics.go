package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the server's Prometheus collectors. Each Server carries
// its own registry so multiple instances can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	sessions        prometheus.Gauge
	messages        prometheus.Counter
	privateMessages prometheus.Counter
	chunksRelayed   prometheus.Counter
	errorsEmitted   prometheus.Counter
	transfersReaped prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "huddle",
			Name:      "active_sessions",
			Help:      "Number of registered sessions.",
		}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "messages_total",
			Help:      "Public messages broadcast.",
		}),
		privateMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "private_messages_total",
			Help:      "Private messages routed.",
		}),
		chunksRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "file_chunks_total",
			Help:      "File chunks relayed.",
		}),
		errorsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "errors_total",
			Help:      "Error events emitted to clients.",
		}),
		transfersReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "huddle",
			Name:      "transfers_reaped_total",
			Help:      "Idle transfer records reclaimed.",
		}),
	}
	m.registry.MustRegister(
		m.sessions,
		m.messages,
		m.privateMessages,
		m.chunksRelayed,
		m.errorsEmitted,
		m.transfersReaped,
	)
	return m
}

// Handler exposes the collectors for scraping.
func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
