package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Match outcomes recorded by MatchingMetrics.
const (
	OutcomeMatched     = "matched"
	OutcomeNoCandidate = "no_candidate"
	OutcomeNoLocation  = "no_location"
	OutcomeError       = "error"
)

// MatchingMetrics tracks provider lookups and assignment transitions.
type MatchingMetrics struct {
	attempts    *prometheus.CounterVec
	candidates  *prometheus.HistogramVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	claimMisses prometheus.Counter
}

// NewMatchingMetrics registers the matching metrics on reg. A nil registerer
// yields a no-op recorder.
func NewMatchingMetrics(reg prometheus.Registerer) *MatchingMetrics {
	if reg == nil {
		return &MatchingMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_attempts_total",
		Help: "Provider lookups by policy and outcome.",
	}, []string{"policy", "outcome"})
	candidates := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matching_candidates",
		Help:    "Eligible providers inside the policy radius per lookup.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"policy"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matching_duration_seconds",
		Help:    "Duration of provider lookups in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"policy"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assignment_transitions_total",
		Help: "Assignment lifecycle transitions by target status.",
	}, []string{"status"})
	claimMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assignment_claim_conflicts_total",
		Help: "Provider claims lost to a concurrent assignment.",
	})
	reg.MustRegister(attempts, candidates, latency, transitions, claimMisses)
	return &MatchingMetrics{
		attempts:    attempts,
		candidates:  candidates,
		latency:     latency,
		transitions: transitions,
		claimMisses: claimMisses,
	}
}

// ObserveLookup records one locator run.
func (m *MatchingMetrics) ObserveLookup(policy, outcome string, candidates int, took time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	policy = normalizeLabel(policy)
	m.attempts.WithLabelValues(policy, outcome).Inc()
	m.candidates.WithLabelValues(policy).Observe(float64(candidates))
	m.latency.WithLabelValues(policy).Observe(took.Seconds())
}

// IncTransition counts an assignment moving into status.
func (m *MatchingMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncClaimConflict counts a lost compare-and-set provider claim.
func (m *MatchingMetrics) IncClaimConflict() {
	if m == nil || m.claimMisses == nil {
		return
	}
	m.claimMisses.Inc()
}
