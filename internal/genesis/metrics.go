package genesis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks bridge activity. PersistenceWarnings is the operator signal
// for durable-store trouble that webhook senders never see.
type Metrics struct {
	FeesInitiated       *prometheus.CounterVec
	Webhooks            *prometheus.CounterVec
	PersistenceWarnings prometheus.Counter
	PioneersInitialized prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FeesInitiated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pigateway_genesis_fees_initiated_total",
			Help: "Fee payments initiated by kind.",
		}, []string{"kind"}),
		Webhooks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pigateway_genesis_webhooks_total",
			Help: "Webhook deliveries by result.",
		}, []string{"result"}),
		PersistenceWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "pigateway_genesis_persistence_warnings_total",
			Help: "Durable store write failures downgraded to warnings.",
		}),
		PioneersInitialized: factory.NewCounter(prometheus.CounterOpts{
			Name: "pigateway_genesis_pioneers_initialized_total",
			Help: "Pioneer initializations performed.",
		}),
	}
}

// NewNopMetrics returns metrics bound to a throwaway registry, for tests.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
