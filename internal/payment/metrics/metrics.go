package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pigateway/internal/payment"
)

// Metrics tracks payment ledger activity.
type Metrics struct {
	created         prometheus.Counter
	transitions     *prometheus.CounterVec
	completedVolume prometheus.Counter
	verifications   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		created: factory.NewCounter(prometheus.CounterOpts{
			Name: "pigateway_payments_created_total",
			Help: "Payment records created.",
		}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pigateway_payment_transitions_total",
			Help: "Payment status transitions by target status.",
		}, []string{"status"}),
		completedVolume: factory.NewCounter(prometheus.CounterOpts{
			Name: "pigateway_payments_completed_volume_pi",
			Help: "Total Pi volume of completed payments.",
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pigateway_payment_verifications_total",
			Help: "Payment verification attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveCreated() {
	m.created.Inc()
}

func (m *Metrics) ObserveTransition(status payment.Status) {
	m.transitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveCompletedVolume(amount float64) {
	m.completedVolume.Add(amount)
}

func (m *Metrics) ObserveVerification(outcome string) {
	m.verifications.WithLabelValues(outcome).Inc()
}
