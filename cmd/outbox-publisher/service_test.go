package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/metrics"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
	"github.com/autocare/autocare-backend/pkg/outbox/registry"
)

const assignmentsTopic = "assignments-topic"

func outboxRow(t *testing.T, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, attempts int) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       body,
		AttemptCount:  attempts,
	}
}

func resolvesTo(topic string, payload any) *fakeRegistry {
	return &fakeRegistry{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: topic},
		Payload:    payload,
	}}
}

func newTestService(t *testing.T, repo *fakeRepo, pub publisher, reg registryResolver, dlq *fakeDLQRepo, maxAttempts int) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Config: &config.Config{Outbox: config.OutboxConfig{
			BatchSize:      2,
			PollIntervalMS: 100,
			MaxAttempts:    maxAttempts,
		}},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return service
}

func TestProcessBatchKeepsGoingAfterTransientFailure(t *testing.T) {
	first := outboxRow(t, enums.EventAssignmentCreated, enums.AggregateAssignment, 0)
	second := outboxRow(t, enums.EventAssignmentCreated, enums.AggregateAssignment, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, resolvesTo(assignmentsTopic, &payloads.AssignmentEvent{}), &fakeDLQRepo{}, 5)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	require.Equal(t, []uuid.UUID{second.ID}, repo.published)
	require.Empty(t, repo.terminal)
}

func TestProcessBatchReportsIdleWhenEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, 5)
	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestPublishedMessageCarriesRoutingAttributes(t *testing.T) {
	row := outboxRow(t, enums.EventBookingUnassignable, enums.AggregateBooking, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, resolvesTo(assignmentsTopic, &payloads.BookingEvent{}), &fakeDLQRepo{}, 5)

	var topics []string
	service.publisherFactory = func(topic string) publisher {
		topics = append(topics, topic)
		return pub
	}

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{assignmentsTopic}, topics)
	require.Len(t, pub.sent, 1)
	require.Equal(t, []byte(row.Payload), pub.sent[0].Data)

	attrs := pub.sent[0].Attributes
	require.Equal(t, string(enums.EventBookingUnassignable), attrs["event_type"])
	require.Equal(t, string(enums.AggregateBooking), attrs["aggregate_type"])
	require.Equal(t, row.AggregateID.String(), attrs["aggregate_id"])
	require.Equal(t, row.ID.String(), attrs["event_id"])
	require.Equal(t, "1", attrs["event_version"], "missing version defaults to 1")
	require.Equal(t, []uuid.UUID{row.ID}, repo.published)
}

func TestProcessBatchDeadLetters(t *testing.T) {
	cases := []struct {
		name     string
		attempts int
		registry registryResolver
		pub      publisher
		reason   enums.OutboxDLQErrorReason
		message  string
	}{
		{
			name:     "registry rejects payload",
			registry: &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))},
			pub:      &fakePublisher{},
			reason:   enums.OutboxDLQReasonNonRetryable,
			message:  "invalid payload",
		},
		{
			name:     "envelope does not decode",
			registry: &fakeRegistry{err: registry.NonRetryableError{Err: errors.New("decode envelope"), Reason: enums.OutboxDLQReasonDecodeFailed}},
			pub:      &fakePublisher{},
			reason:   enums.OutboxDLQReasonDecodeFailed,
			message:  "decode envelope",
		},
		{
			name:     "no publisher for topic",
			registry: resolvesTo("missing-topic", &payloads.ProviderVerifiedEvent{}),
			pub:      nil,
			reason:   enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:     "attempts exhausted",
			attempts: 1,
			registry: resolvesTo(assignmentsTopic, &payloads.AssignmentEvent{}),
			pub:      &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}},
			reason:   enums.OutboxDLQReasonMaxAttempts,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := outboxRow(t, enums.EventAssignmentCreated, enums.AggregateAssignment, tc.attempts)
			repo := &fakeRepo{events: []models.OutboxEvent{row}}
			dlq := &fakeDLQRepo{}
			service := newTestService(t, repo, tc.pub, tc.registry, dlq, 2)
			reg := prometheus.NewRegistry()
			service.metrics = metrics.NewOutboxMetrics(reg)

			processed, err := service.processBatch(context.Background())
			require.NoError(t, err)
			require.True(t, processed)

			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			require.Equal(t, row.ID, entry.EventID)
			require.Equal(t, tc.reason, entry.ErrorReason)
			require.JSONEq(t, string(row.Payload), string(entry.Payload))
			if tc.message != "" {
				require.NotNil(t, entry.ErrorMessage)
				require.Equal(t, tc.message, *entry.ErrorMessage)
			}
			require.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
			require.Empty(t, repo.published)

			require.Equal(t, 1.0, publishCount(t, reg, metrics.PublishDeadLettered))
		})
	}
}

func TestProcessBatchRollsBackWhenBookkeepingFails(t *testing.T) {
	row := outboxRow(t, enums.EventAssignmentCreated, enums.AggregateAssignment, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}, markErr: errors.New("db gone")}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, resolvesTo(assignmentsTopic, &payloads.AssignmentEvent{}), &fakeDLQRepo{}, 5)

	_, err := service.processBatch(context.Background())
	require.ErrorContains(t, err, "mark published")
	require.ErrorContains(t, err, "db gone")
}

func TestNewServiceNamesMissingDependency(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     fakeDB{},
		PubSub: fakePubSubClient{},
	})
	require.EqualError(t, err, "outbox repository is required")
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, nil, &fakeRegistry{}, &fakeDLQRepo{}, 0)
	require.Equal(t, defaultMaxAttempts, service.maxAttempts)
	require.Equal(t, 2, service.batchSize)
	require.Equal(t, 100*time.Millisecond, service.pollInterval)
}

func TestRunStopsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, nil, &fakeRegistry{}, &fakeDLQRepo{}, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, service.Run(ctx), context.Canceled)
}

func TestNextBackoffDoublesUpToCap(t *testing.T) {
	base := 500 * time.Millisecond
	require.Equal(t, time.Second, nextBackoff(0, base, maxBackoff))
	require.Equal(t, maxBackoff, nextBackoff(8*time.Second, base, maxBackoff))

	jittered := withJitter(base)
	require.GreaterOrEqual(t, jittered, base)
	require.Less(t, jittered, base+jitterWindow)
}

func publishCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != "outbox_publish_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return f.markErr
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return f.markErr
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct{ err error }

func (f fakePublishResult) Get(context.Context) (string, error) { return "server-id", f.err }

// fakeRegistry resolves every row to the same descriptor, echoing the row's
// identity into the envelope the way the real registry does.
type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil || f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope = outbox.PayloadEnvelope{EventID: event.ID.String(), OccurredAt: time.Now()}
	return &resolved, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
