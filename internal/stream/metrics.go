package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "bughunt"
	metricsSubsystem = "ws"
)

// Metrics tracks state subscribers. A nil *Metrics records nothing.
type Metrics struct {
	connections prometheus.Gauge
	sent        prometheus.Counter
	dropped     prometheus.Counter
}

// NewMetrics builds unregistered collectors named bughunt_ws_*.
func NewMetrics() *Metrics {
	return &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "connections",
			Help:      "Open state WebSocket subscriptions",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "events_sent_total",
			Help:      "State events queued for subscribers",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "subscribers_dropped_total",
			Help:      "Subscribers disconnected for falling behind",
		}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.connections, m.sent, m.dropped}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) setConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

func (m *Metrics) incPublished() {
	if m != nil {
		m.sent.Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.dropped.Inc()
	}
}
