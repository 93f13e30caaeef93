// Package metrics holds the Prometheus collectors of the ticketing core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tickets"

type Metrics struct {
	registrations       *prometheus.CounterVec
	settlements         *prometheus.CounterVec
	settlementDuration  *prometheus.HistogramVec
	oversold            prometheus.Counter
	signatureRejections *prometheus.CounterVec
	notifyFailures      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		registrations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Registration attempts by outcome",
			},
			[]string{"outcome"},
		),
		settlements: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlements_total",
				Help:      "Settlement attempts by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		settlementDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "settlement_duration_seconds",
				Help:      "Time from completion signal to settled result",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"trigger"},
		),
		oversold: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oversold_anomalies_total",
				Help:      "Paid checkouts that could not be registered for lack of capacity",
			},
		),
		signatureRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_signature_rejections_total",
				Help:      "Webhook deliveries rejected for an invalid signature",
			},
			[]string{"provider"},
		),
		notifyFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "organizer_notification_failures_total",
				Help:      "Organizer webhook notifications that failed",
			},
		),
	}
}

func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Settlement(trigger, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(trigger, outcome).Inc()
	m.settlementDuration.WithLabelValues(trigger).Observe(took.Seconds())
}

func (m *Metrics) Oversold() {
	if m == nil {
		return
	}
	m.oversold.Inc()
}

func (m *Metrics) SignatureRejected(provider string) {
	if m == nil {
		return
	}
	m.signatureRejections.WithLabelValues(provider).Inc()
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
