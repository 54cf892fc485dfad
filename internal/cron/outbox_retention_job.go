package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/autocare/autocare-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	outboxMinAttempts      = 5
)

// OutboxRetentionJobParams configure the job that purges delivered and
// abandoned outbox rows. DeadLetters is optional; when set, dead letters
// whose event row is gone are pruned in the same transaction.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	DeadLetters deadLetterRetentionRepo
	Retention   time.Duration
	MinAttempts int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

type deadLetterRetentionRepo interface {
	DeleteOrphanedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		events:      params.Repository,
		deadLetters: params.DeadLetters,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	events      outboxRetentionRepo
	deadLetters deadLetterRetentionRepo
	retention   time.Duration
	minAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var events, letters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts); err != nil {
			return fmt.Errorf("purge events: %w", err)
		}
		if j.deadLetters == nil {
			return nil
		}
		if letters, err = j.deadLetters.DeleteOrphanedBefore(ctx, tx, cutoff); err != nil {
			return fmt.Errorf("purge dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":               cutoff,
		"min_attempts":         j.minAttempts,
		"events_deleted":       events,
		"dead_letters_deleted": letters,
	}), "outbox retention cleanup complete")
	return nil
}
