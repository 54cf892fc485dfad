package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/pkg/logger"
)

func TestNotificationCleanupJobUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	repo := &fakeNotificationRepo{batches: []int64{3}}
	job := newNotificationCleanupJob(t, NotificationCleanupJobParams{Repository: repo})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.cutoff.Equal(now.Add(-defaultNotificationRetention)))
	require.Equal(t, []int{defaultNotificationBatch}, repo.limits)
}

func TestNotificationCleanupJobHonoursConfiguredRetention(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	repo := &fakeNotificationRepo{}
	job := newNotificationCleanupJob(t, NotificationCleanupJobParams{Repository: repo, Retention: 72 * time.Hour})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.True(t, repo.cutoff.Equal(time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)))
}

func TestNotificationCleanupJobLoopsUntilShortBatch(t *testing.T) {
	repo := &fakeNotificationRepo{batches: []int64{10, 10, 4}}
	job := newNotificationCleanupJob(t, NotificationCleanupJobParams{Repository: repo, BatchSize: 10})

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.limits, 3)
}

func TestNotificationCleanupJobCapsBatchesPerRun(t *testing.T) {
	repo := &fakeNotificationRepo{always: 5}
	job := newNotificationCleanupJob(t, NotificationCleanupJobParams{Repository: repo, BatchSize: 5})

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.limits, maxNotificationBatches)
}

func TestNotificationCleanupJobPropagatesErrors(t *testing.T) {
	repo := &fakeNotificationRepo{err: errors.New("boom")}
	job := newNotificationCleanupJob(t, NotificationCleanupJobParams{Repository: repo})

	require.ErrorContains(t, job.Run(context.Background()), "boom")
}

func TestNotificationCleanupJobStopsOnCancel(t *testing.T) {
	repo := &fakeNotificationRepo{}
	job := newNotificationCleanupJob(t, NotificationCleanupJobParams{Repository: repo})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, job.Run(ctx), context.Canceled)
	require.Empty(t, repo.limits)
}

func newNotificationCleanupJob(t *testing.T, params NotificationCleanupJobParams) *notificationCleanupJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test"})
	params.DB = passthroughTx{}
	job, err := NewNotificationCleanupJob(params)
	require.NoError(t, err)
	concrete, ok := job.(*notificationCleanupJob)
	require.True(t, ok, "unexpected job type %T", job)
	return concrete
}

// fakeNotificationRepo returns batches in order, then always (default 0).
type fakeNotificationRepo struct {
	cutoff  time.Time
	limits  []int
	batches []int64
	always  int64
	err     error
}

func (f *fakeNotificationRepo) DeleteReadOlderThan(_ context.Context, _ *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	f.cutoff = cutoff
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) > 0 {
		n := f.batches[0]
		f.batches = f.batches[1:]
		return n, nil
	}
	return f.always, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
