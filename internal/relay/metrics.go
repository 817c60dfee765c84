package relay

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the relay's Prometheus instruments.
type Metrics struct {
	framesReceived prometheus.Counter
	framesDropped  prometheus.Counter
	notices        prometheus.Counter
	activeCameras  prometheus.Gauge
}

// NewMetrics creates and registers the relay metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stablecore",
			Subsystem: "relay",
			Name:      "frames_received_total",
			Help:      "Camera frames accepted into a buffer slot",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stablecore",
			Subsystem: "relay",
			Name:      "frames_dropped_total",
			Help:      "Camera frames rejected by the framing marker check",
		}),
		notices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stablecore",
			Subsystem: "relay",
			Name:      "notices_total",
			Help:      "Frame notices published to subscribers after throttling",
		}),
		activeCameras: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stablecore",
			Subsystem: "relay",
			Name:      "active_cameras",
			Help:      "Cameras currently holding a buffered frame",
		}),
	}
	reg.MustRegister(m.framesReceived, m.framesDropped, m.notices, m.activeCameras)
	return m
}
