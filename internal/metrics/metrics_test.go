package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveSubscription(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSubscription(OutcomeSaved)
	m.ObserveSubscription(OutcomeSaved)
	m.ObserveSubscription(OutcomeRejected)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SubscriptionsTotal.WithLabelValues(OutcomeSaved)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionsTotal.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SubscriptionsTotal.WithLabelValues(OutcomeFailed)))
}

func TestNewRegistersPerRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
