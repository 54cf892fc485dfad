package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/metrics"
)

const defaultTick = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Tick is how often due jobs are checked. Each job's own cadence is set
	// when it is registered.
	Tick time.Duration
	Now  func() time.Time
}

// Service wakes up every tick and runs the jobs that are due. Each job takes
// its own lock so a slow cleanup never delays rematching.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time

	lastStart map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:      params.Logger,
		registry:  registry,
		lock:      params.Lock,
		metrics:   params.Metrics,
		tick:      tick,
		now:       now,
		lastStart: map[string]time.Time{},
	}, nil
}

// Run checks for due jobs immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.runDue(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Service) runDue(ctx context.Context) {
	for _, entry := range s.registry.due(s.now(), s.lastStart) {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, entry.job)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	locked, err := s.lock.Acquire(jobCtx, name)
	if err != nil {
		s.logg.Error(jobCtx, "cron lock acquire failed", err)
		return
	}
	if !locked {
		s.logg.Debug(jobCtx, "job held by another instance")
		s.metrics.IncSkipped(name)
		return
	}
	defer func() {
		if relErr := s.lock.Release(jobCtx, name); relErr != nil {
			s.logg.Error(jobCtx, "failed to release cron lock", relErr)
		}
	}()

	s.lastStart[name] = s.now()
	began := time.Now()
	err = job.Run(jobCtx)
	took := time.Since(began)
	s.metrics.ObserveRun(name, took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "job completed")
}
