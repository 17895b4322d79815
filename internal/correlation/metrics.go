package correlation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the registry state to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	pending  prometheus.Gauge
	resolves *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "purchase_order",
			Subsystem: "correlation",
			Name:      "pending_requests",
			Help:      "Number of requests waiting for a correlated reply",
		}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "purchase_order",
			Subsystem: "correlation",
			Name:      "resolutions_total",
			Help:      "Resolved correlation entries by outcome",
		}, []string{"outcome"}),
	}

	if err := registerer.Register(m.pending); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		m.pending = are.ExistingCollector.(prometheus.Gauge)
	}
	if err := registerer.Register(m.resolves); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		m.resolves = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return m, nil
}

func (m *Metrics) pendingInc() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

func (m *Metrics) resolved(outcome Outcome) {
	if m == nil {
		return
	}
	m.pending.Dec()
	m.resolves.WithLabelValues(string(outcome)).Inc()
}
