package enums

import "fmt"

// MatchingPolicy selects how the provider locator ranks candidates.
type MatchingPolicy string

const (
	MatchingPolicyNearestFirst  MatchingPolicy = "nearest_first"
	MatchingPolicyWeightedScore MatchingPolicy = "weighted_score"
)

var validMatchingPolicys = []MatchingPolicy{
	MatchingPolicyNearestFirst,
	MatchingPolicyWeightedScore,
}

func (m MatchingPolicy) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MatchingPolicy.
func (m MatchingPolicy) IsValid() bool {
	for _, candidate := range validMatchingPolicys {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMatchingPolicy converts raw input into a MatchingPolicy.
func ParseMatchingPolicy(value string) (MatchingPolicy, error) {
	for _, candidate := range validMatchingPolicys {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid matching policy %q", value)
}
