package cron

import (
	"context"
	"fmt"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/pkg/logger"
)

const defaultRematchBatchSize = 100

type RematchJobParams struct {
	Logger    *logger.Logger
	Matcher   rematcher
	BatchSize int
}

type rematcher interface {
	Rematch(ctx context.Context, limit int) (assignments.RematchSummary, error)
}

// NewRematchJob builds the job that retries matching for pending bookings
// left without an active assignment.
func NewRematchJob(params RematchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Matcher == nil {
		return nil, fmt.Errorf("assignment service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRematchBatchSize
	}
	return &rematchJob{
		logg:      params.Logger,
		matcher:   params.Matcher,
		batchSize: batch,
	}, nil
}

type rematchJob struct {
	logg      *logger.Logger
	matcher   rematcher
	batchSize int
}

func (j *rematchJob) Name() string { return "booking-rematch" }

func (j *rematchJob) Run(ctx context.Context) error {
	summary, err := j.matcher.Rematch(ctx, j.batchSize)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batch_size":   j.batchSize,
		"scanned":      summary.Scanned,
		"assigned":     summary.Assigned,
		"pending":      summary.Pending,
		"unassignable": summary.Unassignable,
		"skipped":      summary.Skipped,
	})
	if err != nil {
		return fmt.Errorf("booking rematch: %w", err)
	}
	if summary.Scanned == 0 {
		j.logg.Debug(logCtx, "no bookings awaiting a provider")
		return nil
	}
	j.logg.Info(logCtx, "booking rematch complete")
	return nil
}
