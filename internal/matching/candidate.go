package matching

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

// Candidate is a provider considered for a booking along with the values the
// policies rank on.
type Candidate struct {
	ProviderID   uuid.UUID `json:"provider_id"`
	Name         string    `json:"name"`
	Rating       float64   `json:"rating"`
	Location     geo.Point `json:"location"`
	ClaimVersion int64     `json:"-"`
	DistanceKm   float64   `json:"distance_km"`
	ActiveJobs   int       `json:"active_jobs"`
	// Score is only populated by WeightedScore.
	Score float64 `json:"score,omitempty"`
}

func candidateFromProvider(p models.ServiceProvider, target geo.Point) Candidate {
	loc := geo.Point{Lat: *p.CurrentLatitude, Lng: *p.CurrentLongitude}
	return Candidate{
		ProviderID:   p.ID,
		Name:         p.Name,
		Rating:       p.Rating.InexactFloat64(),
		Location:     loc,
		ClaimVersion: p.ClaimVersion,
		DistanceKm:   geo.Distance(target, loc),
	}
}

// Eligible reports whether a provider may be offered new work at now. A zero
// staleAfter disables the location freshness check.
func Eligible(p models.ServiceProvider, now time.Time, staleAfter time.Duration) bool {
	if !p.IsAvailable || p.VerificationStatus != enums.VerificationStatusVerified || !p.HasLocation() {
		return false
	}
	if staleAfter <= 0 {
		return true
	}
	if p.LocationUpdatedAt == nil {
		return false
	}
	return now.Sub(*p.LocationUpdatedAt) <= staleAfter
}
