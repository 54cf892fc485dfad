package addresses

import (
	"time"

	"github.com/google/uuid"

	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

// AddressDTO is the API representation of a saved address.
type AddressDTO struct {
	ID          uuid.UUID         `json:"id"`
	AddressType enums.AddressType `json:"address_type"`
	Line1       string            `json:"address_line1"`
	Line2       *string           `json:"address_line2,omitempty"`
	Landmark    *string           `json:"landmark,omitempty"`
	City        string            `json:"city"`
	State       string            `json:"state"`
	Pincode     string            `json:"pincode"`
	Latitude    *float64          `json:"latitude,omitempty"`
	Longitude   *float64          `json:"longitude,omitempty"`
	IsDefault   bool              `json:"is_default"`
	FullAddress string            `json:"full_address"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Input is used for both create and update. On update nil fields are left
// unchanged; on create Line1, City, State and Pincode are required.
type Input struct {
	AddressType *string  `json:"address_type,omitempty"`
	Line1       *string  `json:"address_line1,omitempty"`
	Line2       *string  `json:"address_line2,omitempty"`
	Landmark    *string  `json:"landmark,omitempty"`
	City        *string  `json:"city,omitempty"`
	State       *string  `json:"state,omitempty"`
	Pincode     *string  `json:"pincode,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	IsDefault   *bool    `json:"is_default,omitempty"`
}

func FromModel(a *models.Address) *AddressDTO {
	if a == nil {
		return nil
	}
	return &AddressDTO{
		ID:          a.ID,
		AddressType: a.AddressType,
		Line1:       a.Line1,
		Line2:       a.Line2,
		Landmark:    a.Landmark,
		City:        a.City,
		State:       a.State,
		Pincode:     a.Pincode,
		Latitude:    a.Latitude,
		Longitude:   a.Longitude,
		IsDefault:   a.IsDefault,
		FullAddress: a.FullAddress(),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}
