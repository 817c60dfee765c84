package api

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the transport layer's Prometheus instruments.
type Metrics struct {
	connectedClients prometheus.Gauge
	activeViewers    prometheus.Gauge
	noticesSent      prometheus.Counter
}

// NewMetrics creates and registers the transport metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stablecore",
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Owner WebSocket connections currently open",
		}),
		activeViewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stablecore",
			Subsystem: "api",
			Name:      "stream_viewers",
			Help:      "MJPEG viewer responses currently streaming",
		}),
		noticesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stablecore",
			Subsystem: "api",
			Name:      "notices_sent_total",
			Help:      "Domain notices delivered to owner connections",
		}),
	}
	reg.MustRegister(m.connectedClients, m.activeViewers, m.noticesSent)
	return m
}
