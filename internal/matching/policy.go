package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/enums"
)

const maxRating = 5.0

// Policy filters candidates to its search radius and orders them best first.
type Policy interface {
	Name() enums.MatchingPolicy
	RadiusKm() float64
	// UsesWorkload reports whether Rank reads Candidate.ActiveJobs.
	UsesWorkload() bool
	Rank(candidates []Candidate) []Candidate
}

// NearestFirst picks the closest provider, preferring the higher rating on
// equal distance.
type NearestFirst struct {
	MaxRadiusKm float64
}

func (NearestFirst) Name() enums.MatchingPolicy { return enums.MatchingPolicyNearestFirst }
func (p NearestFirst) RadiusKm() float64 { return p.MaxRadiusKm }
func (NearestFirst) UsesWorkload() bool { return false }

func (p NearestFirst) Rank(candidates []Candidate) []Candidate {
	out := withinRadius(candidates, p.MaxRadiusKm)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		return a.ProviderID.String() < b.ProviderID.String()
	})
	return out
}

// Weights are the coefficients of the WeightedScore terms.
type Weights struct {
	Distance float64
	Rating   float64
	Workload float64
}

// DefaultWeights favour proximity, then rating, then an idle provider.
var DefaultWeights = Weights{Distance: 0.5, Rating: 0.3, Workload: 0.2}

// WeightedScore blends proximity, rating and current workload:
//
//	score = wd/(d+1) + wr*rating/5 + ww/(active+1)
type WeightedScore struct {
	MaxRadiusKm float64
	Weights     Weights
}

func (WeightedScore) Name() enums.MatchingPolicy { return enums.MatchingPolicyWeightedScore }
func (p WeightedScore) RadiusKm() float64 { return p.MaxRadiusKm }
func (WeightedScore) UsesWorkload() bool { return true }

// Score computes the weighted score of a single candidate.
func (p WeightedScore) Score(c Candidate) float64 {
	w := p.Weights
	return w.Distance/(c.DistanceKm+1) +
		w.Rating*c.Rating/maxRating +
		w.Workload/float64(c.ActiveJobs+1)
}

func (p WeightedScore) Rank(candidates []Candidate) []Candidate {
	out := withinRadius(candidates, p.MaxRadiusKm)
	for i := range out {
		out[i].Score = p.Score(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ProviderID.String() < b.ProviderID.String()
	})
	return out
}

func withinRadius(candidates []Candidate, radiusKm float64) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.DistanceKm <= radiusKm {
			out = append(out, c)
		}
	}
	return out
}

// PolicyFromConfig builds the configured policy.
func PolicyFromConfig(cfg config.MatchingConfig) (Policy, error) {
	name, err := enums.ParseMatchingPolicy(strings.ToLower(strings.TrimSpace(cfg.Policy)))
	if err != nil {
		return nil, err
	}
	switch name {
	case enums.MatchingPolicyNearestFirst:
		return NearestFirst{MaxRadiusKm: cfg.NearestRadiusKm}, nil
	case enums.MatchingPolicyWeightedScore:
		return WeightedScore{
			MaxRadiusKm: cfg.WeightedRadiusKm,
			Weights: Weights{
				Distance: cfg.DistanceWeight,
				Rating:   cfg.RatingWeight,
				Workload: cfg.WorkloadWeight,
			},
		}, nil
	}
	return nil, fmt.Errorf("unsupported matching policy %q", name)
}
