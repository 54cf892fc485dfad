package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes recorded by OutboxMetrics.
const (
	PublishDelivered    = "delivered"
	PublishRetried      = "retried"
	PublishDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the outbox publisher.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batches prometheus.Histogram
}

// NewOutboxMetrics registers the publisher metrics on reg. A nil registerer
// yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_total",
		Help: "Outbox rows handled by event type and outcome.",
	}, []string{"event_type", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Time spent waiting on pub/sub acknowledgement per topic.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	batches := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_size",
		Help:    "Rows fetched per publisher poll.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
	reg.MustRegister(events, latency, batches)
	return &OutboxMetrics{events: events, latency: latency, batches: batches}
}

func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

func (m *OutboxMetrics) ObservePublish(topic string, took time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.WithLabelValues(normalizeLabel(topic)).Observe(took.Seconds())
}

func (m *OutboxMetrics) ObserveBatch(size int) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(float64(size))
}
