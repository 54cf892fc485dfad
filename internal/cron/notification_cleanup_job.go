package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/autocare/autocare-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultNotificationBatch     = 1000
	// maxNotificationBatches bounds one run; leftovers go to the next tick.
	maxNotificationBatches = 50
)

// NotificationCleanupJobParams configure the job that prunes read notifications.
type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notificationsCleanupRepo
	Retention  time.Duration
	BatchSize  int
}

type notificationsCleanupRepo interface {
	DeleteReadOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("notifications repository required")
	}
	job := &notificationCleanupJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		retention: params.Retention,
		batch:     params.BatchSize,
		now:       time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultNotificationRetention
	}
	if job.batch <= 0 {
		job.batch = defaultNotificationBatch
	}
	return job, nil
}

type notificationCleanupJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      notificationsCleanupRepo
	retention time.Duration
	batch     int
	now       func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

// Run deletes in short transactions so the notifications table is never
// locked for the whole sweep.
func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for batches < maxNotificationBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			deleted, err = j.repo.DeleteReadOlderThan(ctx, tx, cutoff, j.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("notification cleanup: %w", err)
		}
		batches++
		total += deleted
		if deleted < int64(j.batch) {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"batches":      batches,
		"rows_deleted": total,
	}), "notification cleanup complete")
	return nil
}
