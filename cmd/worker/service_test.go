package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/logger"
)

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type blockingConsumer struct{ stopped chan struct{} }

func (c *blockingConsumer) Run(ctx context.Context) error {
	<-ctx.Done()
	close(c.stopped)
	return ctx.Err()
}

type failingConsumer struct{}

func (failingConsumer) Run(context.Context) error { return errors.New("subscription deleted") }

func newWorkerService(t *testing.T, db pinger, consumers map[string]consumer) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{},
		Logger:    logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:        db,
		Redis:     okPinger{},
		PubSub:    okPinger{},
		Consumers: consumers,
	})
	require.NoError(t, err)
	return svc
}

func TestServiceRunStopsSiblingsWhenConsumerFails(t *testing.T) {
	sibling := &blockingConsumer{stopped: make(chan struct{})}
	svc := newWorkerService(t, okPinger{}, map[string]consumer{
		"assignments-sub":  failingConsumer{},
		"notification-sub": sibling,
	})

	err := svc.Run(context.Background())
	require.ErrorContains(t, err, "subscription deleted")
	select {
	case <-sibling.stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling consumer was not canceled")
	}
}

func TestServiceRunReturnsOnCancel(t *testing.T) {
	running := &blockingConsumer{stopped: make(chan struct{})}
	svc := newWorkerService(t, okPinger{}, map[string]consumer{"assignments-sub": running})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestServiceRunFailsReadiness(t *testing.T) {
	svc := newWorkerService(t, okPinger{err: errors.New("connection refused")}, map[string]consumer{
		"assignments-sub": failingConsumer{},
	})
	require.ErrorContains(t, svc.Run(context.Background()), "database ping failed")
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard}),
		DB:     okPinger{},
		Redis:  okPinger{},
		PubSub: okPinger{},
	})
	require.Error(t, err)
}
