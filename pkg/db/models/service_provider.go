package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/autocare/autocare-backend/pkg/enums"
)

// ServiceProvider is the field technician profile attached to a provider account.
// CurrentLatitude/CurrentLongitude mirror the latest ProviderLocation row.
type ServiceProvider struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	EmployeeID         string                   `gorm:"column:employee_id;not null;uniqueIndex"`
	Name               string                   `gorm:"column:name;not null"`
	Phone              string                   `gorm:"column:phone;not null"`
	Email              *string                  `gorm:"column:email"`
	Specialization     enums.Specialization     `gorm:"column:specialization;type:provider_specialization;not null"`
	ExperienceYears    int                      `gorm:"column:experience_years;not null"`
	CurrentLatitude    *float64                 `gorm:"column:current_latitude"`
	CurrentLongitude   *float64                 `gorm:"column:current_longitude"`
	LocationUpdatedAt  *time.Time               `gorm:"column:location_updated_at"`
	IsAvailable        bool                     `gorm:"column:is_available;not null"`
	VerificationStatus enums.VerificationStatus `gorm:"column:verification_status;type:provider_verification_status;not null"`
	Rating             decimal.Decimal          `gorm:"column:rating;type:numeric(2,1);not null"`
	TotalJobsCompleted int                      `gorm:"column:total_jobs_completed;not null"`
	TotalEarnings      decimal.Decimal          `gorm:"column:total_earnings;type:numeric(12,2);not null"`
	ClaimVersion       int64                    `gorm:"column:claim_version;not null"`
	LastAssignedAt     *time.Time               `gorm:"column:last_assigned_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// HasLocation reports whether the provider has ever reported a position.
func (p ServiceProvider) HasLocation() bool {
	return p.CurrentLatitude != nil && p.CurrentLongitude != nil
}

// ProviderServiceArea is the declarative coverage join between providers and areas.
type ProviderServiceArea struct {
	ProviderID    uuid.UUID `gorm:"column:provider_id;type:uuid;primaryKey"`
	ServiceAreaID uuid.UUID `gorm:"column:service_area_id;type:uuid;primaryKey"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

// ProviderLocation is one timestamped position report.
type ProviderLocation struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderID     uuid.UUID `gorm:"column:provider_id;type:uuid;not null"`
	Latitude       float64   `gorm:"column:latitude;not null"`
	Longitude      float64   `gorm:"column:longitude;not null"`
	AccuracyMeters *float64  `gorm:"column:accuracy_m"`
	RecordedAt     time.Time `gorm:"column:recorded_at;not null"`
}
