package game

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exported metric names.
const (
	MetricClicks    = "bughunt_clicks_total"
	MetricMutations = "bughunt_store_mutations_total"
	MetricScenes    = "bughunt_scenes"
	MetricBugs      = "bughunt_bugs"
)

// Click outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeNoTarget = "no_target"
)

// Metrics counts clicks and store mutations. A nil *Metrics records
// nothing.
type Metrics struct {
	clicks    *prometheus.CounterVec
	mutations *prometheus.CounterVec
	scenes    prometheus.Gauge
	bugs      prometheus.Gauge
}

// NewMetrics builds the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		clicks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricClicks,
				Help: "Total number of player clicks by outcome",
			},
			[]string{"outcome"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMutations,
				Help: "Total number of scene and bug mutations by operation and result",
			},
			[]string{"op", "result"},
		),
		scenes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricScenes,
			Help: "Number of scenes currently loaded",
		}),
		bugs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricBugs,
			Help: "Number of bugs currently loaded",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors lists the collectors owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.clicks,
		m.mutations,
		m.scenes,
		m.bugs,
	}
}

func (m *Metrics) observeClick(outcome string) {
	if m == nil {
		return
	}
	m.clicks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeMutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) setCounts(scenes, bugs int) {
	if m == nil {
		return
	}
	m.scenes.Set(float64(scenes))
	m.bugs.Set(float64(bugs))
}
