package serviceareas

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/geo"
	dbpkg "github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/db/models"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

const (
	DefaultRadiusKm = 30
	MaxRadiusKm     = 500
	nearestLimit    = 3
)

type areaStore interface {
	Create(ctx context.Context, area *models.ServiceArea) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ServiceArea, error)
	List(ctx context.Context, activeOnly bool) ([]models.ServiceArea, error)
	Update(ctx context.Context, area *models.ServiceArea) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// Service manages coverage geofences and answers coverage queries.
type Service interface {
	Create(ctx context.Context, input AreaInput) (*models.ServiceArea, error)
	Update(ctx context.Context, id uuid.UUID, input AreaInput) (*models.ServiceArea, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.ServiceArea, error)
	List(ctx context.Context, activeOnly bool) ([]models.ServiceArea, error)
	CheckCoverage(ctx context.Context, point geo.Point) (*Coverage, error)
}

// AreaInput carries create and update fields. Nil fields keep their current
// value on update.
type AreaInput struct {
	Name            *string
	Description     *string
	CenterLatitude  *float64
	CenterLongitude *float64
	RadiusKm        *float64
	IsActive        *bool
}

// AreaDistance pairs an area with the distance from the queried point to its center.
type AreaDistance struct {
	Area       models.ServiceArea
	DistanceKm float64
}

// Coverage answers whether a point is serviceable. With no active areas
// every point is covered.
type Coverage struct {
	Available bool
	CoveredBy []AreaDistance
	Nearest   []AreaDistance
}

// NearestName returns the closest area name and distance for error messages.
func (c Coverage) NearestName() (string, float64, bool) {
	if len(c.Nearest) == 0 {
		return "", 0, false
	}
	return c.Nearest[0].Area.Name, c.Nearest[0].DistanceKm, true
}

type service struct {
	repo          areaStore
	defaultRadius float64
	logg          *logger.Logger
}

// NewService builds the service; defaultRadiusKm applies to areas created
// without a radius and falls back to DefaultRadiusKm when not positive.
func NewService(repo areaStore, defaultRadiusKm float64, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("service area repository required")
	}
	if defaultRadiusKm <= 0 || defaultRadiusKm > MaxRadiusKm {
		defaultRadiusKm = DefaultRadiusKm
	}
	return &service{repo: repo, defaultRadius: defaultRadiusKm, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input AreaInput) (*models.ServiceArea, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if input.CenterLatitude == nil || input.CenterLongitude == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "center coordinates are required")
	}
	area := &models.ServiceArea{RadiusKm: s.defaultRadius, IsActive: true}
	if err := apply(area, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, area); err != nil {
		if dbpkg.IsUniqueViolation(err, "service_areas_name_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "service area name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create service area")
	}
	s.logArea(ctx, area, "service area created")
	return area, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input AreaInput) (*models.ServiceArea, error) {
	area, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(area, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, area); err != nil {
		if dbpkg.IsUniqueViolation(err, "service_areas_name_key") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "service area name already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update service area")
	}
	s.logArea(ctx, area, "service area updated")
	return area, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "service area id required")
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete service area")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "service area not found")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ServiceArea, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service area id required")
	}
	area, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "service area not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load service area")
	}
	return area, nil
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]models.ServiceArea, error) {
	areas, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list service areas")
	}
	return areas, nil
}

func (s *service) CheckCoverage(ctx context.Context, point geo.Point) (*Coverage, error) {
	if !point.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid coordinates")
	}
	areas, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list service areas")
	}
	return Evaluate(areas, point), nil
}

// Evaluate computes coverage of point against the given active areas.
func Evaluate(areas []models.ServiceArea, point geo.Point) *Coverage {
	coverage := &Coverage{}
	if len(areas) == 0 {
		coverage.Available = true
		return coverage
	}

	ranked := make([]AreaDistance, 0, len(areas))
	for _, area := range areas {
		circle := geo.Circle{
			Center:   geo.Point{Lat: area.CenterLatitude, Lng: area.CenterLongitude},
			RadiusKm: area.RadiusKm,
		}
		d := geo.Distance(circle.Center, point)
		entry := AreaDistance{Area: area, DistanceKm: math.Round(d*100) / 100}
		if circle.Contains(point) {
			coverage.CoveredBy = append(coverage.CoveredBy, entry)
		}
		ranked = append(ranked, entry)
	}
	coverage.Available = len(coverage.CoveredBy) > 0
	if coverage.Available {
		return coverage
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].DistanceKm < ranked[j].DistanceKm })
	if len(ranked) > nearestLimit {
		ranked = ranked[:nearestLimit]
	}
	coverage.Nearest = ranked
	return coverage
}

func apply(area *models.ServiceArea, input AreaInput) error {
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
		}
		area.Name = name
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		area.Description = &desc
	}
	if input.CenterLatitude != nil {
		area.CenterLatitude = *input.CenterLatitude
	}
	if input.CenterLongitude != nil {
		area.CenterLongitude = *input.CenterLongitude
	}
	if !geo.ValidCoordinates(area.CenterLatitude, area.CenterLongitude) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid center coordinates")
	}
	if input.RadiusKm != nil {
		area.RadiusKm = *input.RadiusKm
	}
	if area.RadiusKm <= 0 || area.RadiusKm > MaxRadiusKm {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "radius must be between 0 and %d km", MaxRadiusKm)
	}
	if input.IsActive != nil {
		area.IsActive = *input.IsActive
	}
	return nil
}

func (s *service) logArea(ctx context.Context, area *models.ServiceArea, msg string) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"service_area_id": area.ID.String(),
		"name":            area.Name,
		"radius_km":       area.RadiusKm,
		"active":          area.IsActive,
	})
	s.logg.Info(ctx, msg)
}
