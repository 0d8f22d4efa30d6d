package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Subscription outcomes.
const (
	OutcomeSaved    = "saved"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	SubscriptionsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with r.
func New(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubscriptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsletter_subscriptions_total",
				Help: "Subscription requests by outcome",
			},
			[]string{"outcome"}, // saved|rejected|failed
		),
	}
	r.MustRegister(m.SubscriptionsTotal)
	return m
}

func (m *Metrics) ObserveSubscription(outcome string) {
	m.SubscriptionsTotal.WithLabelValues(outcome).Inc()
}
