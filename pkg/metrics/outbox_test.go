package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveBatch(3)
	m.ObserveEvent("booking_created", PublishDelivered)
	m.ObserveEvent("booking_created", PublishDelivered)
	m.ObserveEvent("assignment_created", PublishDeadLettered)
	m.ObservePublish("ac-assignment-events", 40*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	delivered, err := fetchCounterValue(mfs, "outbox_publish_total", "event_type", "booking_created")
	require.NoError(t, err)
	require.Equal(t, 2.0, delivered)

	dead, err := fetchCounterValue(mfs, "outbox_publish_total", "outcome", PublishDeadLettered)
	require.NoError(t, err)
	require.Equal(t, 1.0, dead)

	took, err := fetchHistogramSum(mfs, "outbox_publish_duration_seconds", "topic", "ac-assignment-events")
	require.NoError(t, err)
	require.InDelta(t, 0.04, took, 1e-9)
}

func TestNilOutboxMetricsIsNoop(t *testing.T) {
	var m *OutboxMetrics
	m.ObserveBatch(1)
	m.ObserveEvent("x", PublishRetried)
	NewOutboxMetrics(nil).ObservePublish("t", time.Second)
}
