package providers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

// JobBucket groups assignment statuses the way the provider app tabs them.
type JobBucket string

const (
	JobBucketPending JobBucket = "pending"
	JobBucketActive  JobBucket = "active"
	JobBucketHistory JobBucket = "history"
)

// Statuses returns the assignment statuses in the bucket.
func (b JobBucket) Statuses() ([]enums.AssignmentStatus, bool) {
	switch b {
	case JobBucketPending, "":
		return []enums.AssignmentStatus{enums.AssignmentStatusAssigned}, true
	case JobBucketActive:
		return []enums.AssignmentStatus{
			enums.AssignmentStatusAccepted,
			enums.AssignmentStatusEnRoute,
			enums.AssignmentStatusInProgress,
		}, true
	case JobBucketHistory:
		return enums.HistoryAssignmentStatuses, true
	default:
		return nil, false
	}
}

type Location struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Profile is the provider's own view of their account.
type Profile struct {
	ID                 uuid.UUID                `json:"id"`
	UserID             uuid.UUID                `json:"user_id"`
	EmployeeID         string                   `json:"employee_id"`
	Name               string                   `json:"name"`
	Phone              string                   `json:"phone"`
	Email              *string                  `json:"email,omitempty"`
	Specialization     enums.Specialization     `json:"specialization"`
	ExperienceYears    int                      `json:"experience_years"`
	IsAvailable        bool                     `json:"is_available"`
	VerificationStatus enums.VerificationStatus `json:"verification_status"`
	Rating             decimal.Decimal          `json:"rating"`
	TotalJobsCompleted int                      `json:"total_jobs_completed"`
	TotalEarnings      decimal.Decimal          `json:"total_earnings"`
	CurrentLocation    *Location                `json:"current_location,omitempty"`
	ServiceAreaIDs     []uuid.UUID              `json:"service_area_ids"`
	CreatedAt          time.Time                `json:"created_at"`
}

func profileFromModel(p *models.ServiceProvider, areaIDs []uuid.UUID) *Profile {
	out := &Profile{
		ID:                 p.ID,
		UserID:             p.UserID,
		EmployeeID:         p.EmployeeID,
		Name:               p.Name,
		Phone:              p.Phone,
		Email:              p.Email,
		Specialization:     p.Specialization,
		ExperienceYears:    p.ExperienceYears,
		IsAvailable:        p.IsAvailable,
		VerificationStatus: p.VerificationStatus,
		Rating:             p.Rating,
		TotalJobsCompleted: p.TotalJobsCompleted,
		TotalEarnings:      p.TotalEarnings,
		ServiceAreaIDs:     areaIDs,
		CreatedAt:          p.CreatedAt,
	}
	if out.ServiceAreaIDs == nil {
		out.ServiceAreaIDs = []uuid.UUID{}
	}
	if p.HasLocation() {
		out.CurrentLocation = &Location{
			Latitude:  *p.CurrentLatitude,
			Longitude: *p.CurrentLongitude,
			UpdatedAt: p.LocationUpdatedAt,
		}
	}
	return out
}

// RegisterInput creates the provider profile of a freshly created provider user.
type RegisterInput struct {
	UserID          uuid.UUID
	Mobile          string
	Name            string
	Email           *string
	Specialization  string
	ExperienceYears int
}

// ProfileInput is a partial profile update; nil fields are untouched.
type ProfileInput struct {
	Name            *string
	Email           *string
	Specialization  *string
	ExperienceYears *int
	ServiceAreaIDs  *[]uuid.UUID
}

type LocationInput struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters *float64
}

type VerificationInput struct {
	ProviderID uuid.UUID
	Status     string
	AdminID    uuid.UUID
}

type NearbyQuery struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
	Limit     int
}

type NearbyProvider struct {
	ProviderID     uuid.UUID            `json:"provider_id"`
	Name           string               `json:"name"`
	Specialization enums.Specialization `json:"specialization"`
	Rating         decimal.Decimal      `json:"rating"`
	Location       Location             `json:"location"`
	DistanceKm     float64              `json:"distance_km"`
}
