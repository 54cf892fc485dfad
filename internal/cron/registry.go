package cron

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Job is a scheduled task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type schedule struct {
	job   Job
	every time.Duration
}

// Registry holds jobs with their cadence. A zero cadence runs the job on
// every tick of the service.
type Registry struct {
	entries []schedule
}

func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

func (r *Registry) Register(job Job) {
	r.RegisterEvery(job, 0)
}

// RegisterEvery adds job to run at most once per every.
func (r *Registry) RegisterEvery(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.entries = append(r.entries, schedule{job: job, every: every})
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// due returns the jobs whose cadence has elapsed since their last start.
func (r *Registry) due(now time.Time, lastStart map[string]time.Time) []schedule {
	var out []schedule
	for _, e := range r.entries {
		last, ran := lastStart[e.job.Name()]
		if !ran || e.every == 0 || now.Sub(last) >= e.every {
			out = append(out, e)
		}
	}
	return out
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
