package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/internal/geo"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/metrics"
)

// Request describes the booking a provider is being located for.
type Request struct {
	BookingID uuid.UUID
	// Location is nil when the booking has no coordinates.
	Location *geo.Point
	Exclude  []uuid.UUID
}

// LocatorOptions carries the locator's tunables and collaborators.
type LocatorOptions struct {
	StaleAfter time.Duration
	Logger     *logger.Logger
	Metrics    *metrics.MatchingMetrics
	Clock      func() time.Time
}

// Locator finds the best eligible provider for a booking under a Policy.
type Locator struct {
	source     CandidateSource
	policy     Policy
	staleAfter time.Duration
	logg       *logger.Logger
	metrics    *metrics.MatchingMetrics
	now        func() time.Time
}

// NewLocator wires a locator.
func NewLocator(source CandidateSource, policy Policy, opts LocatorOptions) (*Locator, error) {
	if source == nil {
		return nil, errors.New("candidate source required")
	}
	if policy == nil {
		return nil, errors.New("matching policy required")
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Locator{
		source:     source,
		policy:     policy,
		staleAfter: opts.StaleAfter,
		logg:       opts.Logger,
		metrics:    opts.Metrics,
		now:        now,
	}, nil
}

// Policy returns the active ranking policy.
func (l *Locator) Policy() Policy {
	return l.policy
}

// LocateBestProvider returns the best candidate, or nil when nobody qualifies or the
// booking has no coordinates.
func (l *Locator) LocateBestProvider(ctx context.Context, req Request) (*Candidate, error) {
	ranked, err := l.Rank(ctx, req)
	if err != nil || len(ranked) == 0 {
		return nil, err
	}
	best := ranked[0]
	return &best, nil
}

// Rank returns every qualifying candidate ordered best first.
func (l *Locator) Rank(ctx context.Context, req Request) ([]Candidate, error) {
	started := l.now()
	policy := string(l.policy.Name())

	if req.Location == nil {
		l.warnMissingLocation(ctx, req.BookingID)
		l.metrics.ObserveLookup(policy, metrics.OutcomeNoLocation, 0, l.now().Sub(started))
		return nil, nil
	}
	if !req.Location.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking coordinates out of range")
	}

	filter := ProviderFilter{
		Near:     req.Location,
		RadiusKm: l.policy.RadiusKm(),
		Exclude:  req.Exclude,
	}
	if l.staleAfter > 0 {
		freshSince := started.Add(-l.staleAfter)
		filter.FreshSince = &freshSince
	}

	providers, err := l.source.EligibleProviders(ctx, filter)
	if err != nil {
		l.metrics.ObserveLookup(policy, metrics.OutcomeError, 0, l.now().Sub(started))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load eligible providers")
	}

	excluded := make(map[uuid.UUID]struct{}, len(req.Exclude))
	for _, id := range req.Exclude {
		excluded[id] = struct{}{}
	}
	candidates := make([]Candidate, 0, len(providers))
	for _, p := range providers {
		if _, skip := excluded[p.ID]; skip {
			continue
		}
		if !Eligible(p, started, l.staleAfter) {
			continue
		}
		candidates = append(candidates, candidateFromProvider(p, *req.Location))
	}

	if l.policy.UsesWorkload() && len(candidates) > 0 {
		ids := make([]uuid.UUID, 0, len(candidates))
		for _, c := range candidates {
			ids = append(ids, c.ProviderID)
		}
		counts, err := l.source.ActiveJobCounts(ctx, ids)
		if err != nil {
			l.metrics.ObserveLookup(policy, metrics.OutcomeError, 0, l.now().Sub(started))
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active assignments")
		}
		for i := range candidates {
			candidates[i].ActiveJobs = counts[candidates[i].ProviderID]
		}
	}

	ranked := l.policy.Rank(candidates)
	outcome := metrics.OutcomeMatched
	if len(ranked) == 0 {
		outcome = metrics.OutcomeNoCandidate
	}
	l.metrics.ObserveLookup(policy, outcome, len(ranked), l.now().Sub(started))
	return ranked, nil
}

func (l *Locator) warnMissingLocation(ctx context.Context, bookingID uuid.UUID) {
	if l.logg == nil {
		return
	}
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"booking_id": bookingID.String(),
		"reason":     "missing_coordinates",
	})
	l.logg.Warn(logCtx, "booking has no coordinates, skipping provider match")
}
