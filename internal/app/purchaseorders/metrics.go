package purchaseorders

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK        = "ok"
	outcomeInvalid   = "invalid"
	outcomeTimeout   = "timeout"
	outcomeTransport = "transport"
	outcomeCancelled = "cancelled"
)

type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics registers the edge counters. A nil *Metrics records nothing.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "purchase_order",
		Subsystem: "edge",
		Name:      "requests_total",
		Help:      "Purchase orders handled by the edge service, by outcome.",
	}, []string{"outcome"})

	if err := registerer.Register(requests); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		requests = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &Metrics{requests: requests}, nil
}

func (m *Metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}
