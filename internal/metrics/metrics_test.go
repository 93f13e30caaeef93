package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Registration("ok")
	m.Registration("ok")
	m.Registration("capacity_exceeded")
	m.Settlement("webhook", "settled", 20*time.Millisecond)
	m.Oversold()
	m.SignatureRejected("square")
	m.NotifyFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.registrations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.settlements.WithLabelValues("webhook", "settled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oversold))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signatureRejections.WithLabelValues("square")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifyFailures))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Registration("ok")
		m.Settlement("redirect", "duplicate", time.Second)
		m.Oversold()
		m.SignatureRejected("stripe")
		m.NotifyFailed()
	})
}
