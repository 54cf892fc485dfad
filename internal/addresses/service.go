package addresses

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/internal/serviceareas"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

const maxLineLength = 255

var pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type coverageChecker interface {
	CheckCoverage(ctx context.Context, point geo.Point) (*serviceareas.Coverage, error)
}

// Service manages a customer's saved addresses.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, input Input) (*AddressDTO, error)
	List(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*AddressDTO, error)
	Update(ctx context.Context, userID, id uuid.UUID, input Input) (*AddressDTO, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	SetDefault(ctx context.Context, userID, id uuid.UUID) (*AddressDTO, error)
}

type Deps struct {
	Repo     *Repository
	Tx       txRunner
	Coverage coverageChecker
	Logger   *logger.Logger
}

type service struct {
	repo     *Repository
	tx       txRunner
	coverage coverageChecker
	logg     *logger.Logger
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("addresses repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Coverage == nil {
		return nil, fmt.Errorf("coverage checker required")
	}
	return &service{repo: deps.Repo, tx: deps.Tx, coverage: deps.Coverage, logg: deps.Logger}, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, input Input) (*AddressDTO, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	address := &models.Address{UserID: userID, AddressType: enums.AddressTypeHome}
	required := []struct {
		field string
		value *string
	}{
		{"address_line1", input.Line1},
		{"city", input.City},
		{"state", input.State},
		{"pincode", input.Pincode},
	}
	for _, r := range required {
		if r.value == nil || strings.TrimSpace(*r.value) == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", r.field)
		}
	}
	if (input.Latitude == nil) != (input.Longitude == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "latitude and longitude must be provided together")
	}
	if err := apply(address, input); err != nil {
		return nil, err
	}
	if err := s.checkCoverage(ctx, address); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountByUser(ctx, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count addresses")
		}
		address.IsDefault = count == 0 || (input.IsDefault != nil && *input.IsDefault)
		if address.IsDefault {
			if err := repo.ClearDefault(ctx, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
		}
		if err := repo.Create(ctx, address); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, address, "address created")
	return FromModel(address), nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]AddressDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list addresses")
	}
	out := make([]AddressDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (*AddressDTO, error) {
	address, err := s.load(ctx, s.repo, userID, id)
	if err != nil {
		return nil, err
	}
	return FromModel(address), nil
}

func (s *service) Update(ctx context.Context, userID, id uuid.UUID, input Input) (*AddressDTO, error) {
	var updated *models.Address
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		address, err := s.load(ctx, repo, userID, id)
		if err != nil {
			return err
		}
		movedPoint := input.Latitude != nil || input.Longitude != nil
		if err := apply(address, input); err != nil {
			return err
		}
		if movedPoint {
			if !address.HasCoordinates() {
				return pkgerrors.New(pkgerrors.CodeValidation, "latitude and longitude must be provided together")
			}
			if err := s.checkCoverage(ctx, address); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"address_type":  address.AddressType,
			"address_line1": address.Line1,
			"address_line2": address.Line2,
			"landmark":      address.Landmark,
			"city":          address.City,
			"state":         address.State,
			"pincode":       address.Pincode,
			"latitude":      address.Latitude,
			"longitude":     address.Longitude,
		}
		if input.IsDefault != nil && *input.IsDefault && !address.IsDefault {
			if err := repo.ClearDefault(ctx, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
			}
			updates["is_default"] = true
			address.IsDefault = true
		}
		if err := repo.Update(ctx, id, userID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update address")
		}
		updated, err = s.load(ctx, repo, userID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, updated, "address updated")
	return FromModel(updated), nil
}

// Delete removes the address. When the default is removed the newest
// remaining address becomes the default.
func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		address, err := s.load(ctx, repo, userID, id)
		if err != nil {
			return err
		}
		if _, err := repo.Delete(ctx, id, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete address")
		}
		if !address.IsDefault {
			return nil
		}
		next, err := repo.Newest(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load next default address")
		}
		if err := repo.MarkDefault(ctx, next.ID, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote default address")
		}
		return nil
	})
}

func (s *service) SetDefault(ctx context.Context, userID, id uuid.UUID) (*AddressDTO, error) {
	var address *models.Address
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		address, err = s.load(ctx, repo, userID, id)
		if err != nil {
			return err
		}
		if address.IsDefault {
			return nil
		}
		if err := repo.ClearDefault(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default address")
		}
		if err := repo.MarkDefault(ctx, id, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set default address")
		}
		address.IsDefault = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, address, "default address changed")
	return FromModel(address), nil
}

func (s *service) load(ctx context.Context, repo *Repository, userID, id uuid.UUID) (*models.Address, error) {
	address, err := repo.FindForUser(ctx, id, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return address, nil
}

func (s *service) checkCoverage(ctx context.Context, address *models.Address) error {
	if !address.HasCoordinates() {
		return nil
	}
	coverage, err := s.coverage.CheckCoverage(ctx, geo.Point{Lat: *address.Latitude, Lng: *address.Longitude})
	if err != nil {
		return err
	}
	if coverage.Available {
		return nil
	}
	if name, km, ok := coverage.NearestName(); ok {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "address is outside our service areas; nearest service area is %s (%.1f km away)", name, km)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "address is outside our service areas")
}

// apply copies the non-nil input fields onto address after validating them.
func apply(address *models.Address, input Input) error {
	if input.AddressType != nil {
		parsed, err := enums.ParseAddressType(strings.TrimSpace(*input.AddressType))
		if err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "address_type must be home, work or other")
		}
		address.AddressType = parsed
	}
	if input.Line1 != nil {
		line1 := strings.TrimSpace(*input.Line1)
		if line1 == "" || len(line1) > maxLineLength {
			return pkgerrors.New(pkgerrors.CodeValidation, "address_line1 is required")
		}
		address.Line1 = line1
	}
	if input.Line2 != nil {
		address.Line2 = optional(*input.Line2)
	}
	if input.Landmark != nil {
		address.Landmark = optional(*input.Landmark)
	}
	if input.City != nil {
		if address.City = strings.TrimSpace(*input.City); address.City == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "city is required")
		}
	}
	if input.State != nil {
		if address.State = strings.TrimSpace(*input.State); address.State == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "state is required")
		}
	}
	if input.Pincode != nil {
		pincode := strings.TrimSpace(*input.Pincode)
		if !pincodePattern.MatchString(pincode) {
			return pkgerrors.New(pkgerrors.CodeValidation, "pincode must be 6 digits")
		}
		address.Pincode = pincode
	}
	if input.Latitude != nil {
		address.Latitude = input.Latitude
	}
	if input.Longitude != nil {
		address.Longitude = input.Longitude
	}
	if address.HasCoordinates() && !geo.ValidCoordinates(*address.Latitude, *address.Longitude) {
		return pkgerrors.New(pkgerrors.CodeValidation, "latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	return nil
}

func optional(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func (s *service) log(ctx context.Context, address *models.Address, msg string) {
	if s.logg == nil || address == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"address_id": address.ID.String(),
		"user_id":    address.UserID.String(),
		"is_default": address.IsDefault,
	})
	s.logg.Info(logCtx, msg)
}
