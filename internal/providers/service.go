package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
	"github.com/autocare/autocare-backend/pkg/pagination"
)

const (
	maxExperienceYears = 60
	defaultNearbyKm    = 10
	maxNearbyKm        = 100
	defaultNearbyLimit = 20
	maxNearbyLimit     = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type geoIndexer interface {
	Upsert(ctx context.Context, providerID uuid.UUID, p geo.Point) error
	Remove(ctx context.Context, providerID uuid.UUID) error
	Search(ctx context.Context, p geo.Point, radiusKm float64, limit int) ([]GeoHit, error)
}

type jobLister interface {
	ListForProvider(ctx context.Context, params assignments.ListParams) (*assignments.ListResult, error)
}

// Service manages provider accounts and their live position.
type Service interface {
	Register(ctx context.Context, tx *gorm.DB, input RegisterInput) (*models.ServiceProvider, error)
	Profile(ctx context.Context, providerID uuid.UUID) (*Profile, error)
	UpdateProfile(ctx context.Context, providerID uuid.UUID, input ProfileInput) (*Profile, error)
	UpdateLocation(ctx context.Context, providerID uuid.UUID, input LocationInput) (*Location, error)
	ToggleAvailability(ctx context.Context, providerID uuid.UUID) (*Profile, error)
	Assignments(ctx context.Context, providerID uuid.UUID, bucket string, page pagination.Params) (*assignments.ListResult, error)
	SetVerification(ctx context.Context, input VerificationInput) (*Profile, error)
	Nearby(ctx context.Context, query NearbyQuery) ([]NearbyProvider, error)
}

type Deps struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	// Geo is optional; without it nearby search scans the table.
	Geo    geoIndexer
	Jobs   jobLister
	Logger *logger.Logger
	Clock  func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	geo    geoIndexer
	jobs   jobLister
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("providers repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("assignment lister required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   deps.Repo,
		tx:     deps.Tx,
		outbox: deps.Outbox,
		geo:    deps.Geo,
		jobs:   deps.Jobs,
		logg:   deps.Logger,
		now:    now,
	}, nil
}

// Register creates the profile inside the caller's transaction. New providers
// start unavailable and pending verification.
func (s *service) Register(ctx context.Context, tx *gorm.DB, input RegisterInput) (*models.ServiceProvider, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	specialization := enums.SpecializationGeneral
	if raw := strings.TrimSpace(input.Specialization); raw != "" {
		parsed, err := enums.ParseSpecialization(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid specialization")
		}
		specialization = parsed
	}
	if input.ExperienceYears < 0 || input.ExperienceYears > maxExperienceYears {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "experience_years must be between 0 and %d", maxExperienceYears)
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	seq, err := repo.NextEmployeeNumber(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate employee id")
	}
	provider := &models.ServiceProvider{
		UserID:             input.UserID,
		EmployeeID:         fmt.Sprintf("SP%06d", seq),
		Name:               name,
		Phone:              input.Mobile,
		Email:              email,
		Specialization:     specialization,
		ExperienceYears:    input.ExperienceYears,
		IsAvailable:        false,
		VerificationStatus: enums.VerificationStatusPending,
		Rating:             decimal.Zero,
		TotalEarnings:      decimal.Zero,
	}
	if err := repo.Create(ctx, provider); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create provider")
	}
	return provider, nil
}

func (s *service) Profile(ctx context.Context, providerID uuid.UUID) (*Profile, error) {
	provider, err := s.load(ctx, s.repo, providerID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, provider)
}

func (s *service) UpdateProfile(ctx context.Context, providerID uuid.UUID, input ProfileInput) (*Profile, error) {
	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Email != nil {
		email, err := normalizeEmail(input.Email)
		if err != nil {
			return nil, err
		}
		updates["email"] = email
	}
	if input.Specialization != nil {
		parsed, err := enums.ParseSpecialization(strings.TrimSpace(*input.Specialization))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid specialization")
		}
		updates["specialization"] = parsed
	}
	if input.ExperienceYears != nil {
		years := *input.ExperienceYears
		if years < 0 || years > maxExperienceYears {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "experience_years must be between 0 and %d", maxExperienceYears)
		}
		updates["experience_years"] = years
	}

	var provider *models.ServiceProvider
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if provider, err = s.load(ctx, repo, providerID); err != nil {
			return err
		}
		if err := repo.Update(ctx, providerID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update provider")
		}
		if input.ServiceAreaIDs != nil {
			ids := dedupe(*input.ServiceAreaIDs)
			found, err := repo.CountServiceAreas(ctx, ids)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check service areas")
			}
			if found != int64(len(ids)) {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown service area id")
			}
			if err := repo.ReplaceServiceAreas(ctx, providerID, ids); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update service areas")
			}
		}
		provider, err = repo.FindByID(ctx, providerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload provider")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, provider)
}

func (s *service) UpdateLocation(ctx context.Context, providerID uuid.UUID, input LocationInput) (*Location, error) {
	point := geo.Point{Lat: input.Latitude, Lng: input.Longitude}
	if !point.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid GPS coordinates")
	}
	if input.AccuracyMeters != nil && *input.AccuracyMeters < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "accuracy must not be negative")
	}

	recorded := s.now().UTC()
	var provider *models.ServiceProvider
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if provider, err = s.load(ctx, repo, providerID); err != nil {
			return err
		}
		err = repo.RecordLocation(ctx, &models.ProviderLocation{
			ProviderID:     providerID,
			Latitude:       point.Lat,
			Longitude:      point.Lng,
			AccuracyMeters: input.AccuracyMeters,
			RecordedAt:     recorded,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record location")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if provider.IsAvailable && provider.VerificationStatus == enums.VerificationStatusVerified {
		s.syncGeo(ctx, providerID, &point)
	}
	return &Location{Latitude: point.Lat, Longitude: point.Lng, UpdatedAt: &recorded}, nil
}

func (s *service) ToggleAvailability(ctx context.Context, providerID uuid.UUID) (*Profile, error) {
	var provider *models.ServiceProvider
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if provider, err = s.load(ctx, repo, providerID); err != nil {
			return err
		}
		provider.IsAvailable = !provider.IsAvailable
		if err := repo.Update(ctx, providerID, map[string]any{"is_available": provider.IsAvailable}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle availability")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncGeo(ctx, providerID, indexablePoint(provider))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"provider_id":  providerID.String(),
			"is_available": provider.IsAvailable,
		})
		s.logg.Info(logCtx, "provider availability changed")
	}
	return s.profile(ctx, provider)
}

func (s *service) Assignments(ctx context.Context, providerID uuid.UUID, bucket string, page pagination.Params) (*assignments.ListResult, error) {
	statuses, ok := JobBucket(strings.ToLower(strings.TrimSpace(bucket))).Statuses()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be pending, active or history")
	}
	return s.jobs.ListForProvider(ctx, assignments.ListParams{
		ProviderID: providerID,
		Statuses:   statuses,
		Pagination: page,
	})
}

func (s *service) SetVerification(ctx context.Context, input VerificationInput) (*Profile, error) {
	status, err := enums.ParseVerificationStatus(strings.ToLower(strings.TrimSpace(input.Status)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid verification status")
	}

	var provider *models.ServiceProvider
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if provider, err = s.load(ctx, repo, input.ProviderID); err != nil {
			return err
		}
		if provider.VerificationStatus == status {
			return nil
		}
		if err := repo.Update(ctx, provider.ID, map[string]any{"verification_status": status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update verification")
		}
		provider.VerificationStatus = status

		occurred := s.now().UTC()
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProviderVerified,
			AggregateType: enums.AggregateServiceProvider,
			AggregateID:   provider.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: string(enums.UserTypeAdmin)},
			OccurredAt:    occurred,
			Data: payloads.ProviderVerifiedEvent{
				ProviderID: provider.ID,
				UserID:     provider.UserID,
				Status:     status,
				OccurredAt: occurred,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.syncGeo(ctx, provider.ID, indexablePoint(provider))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"provider_id": provider.ID.String(),
			"status":      status,
		})
		s.logg.Info(logCtx, "provider verification updated")
	}
	return s.profile(ctx, provider)
}

func (s *service) Nearby(ctx context.Context, query NearbyQuery) ([]NearbyProvider, error) {
	center := geo.Point{Lat: query.Latitude, Lng: query.Longitude}
	if !center.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid GPS coordinates")
	}
	radius := query.RadiusKm
	if radius <= 0 {
		radius = defaultNearbyKm
	}
	if radius > maxNearbyKm {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "radius_km must not exceed %d", maxNearbyKm)
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultNearbyLimit
	}
	if limit > maxNearbyLimit {
		limit = maxNearbyLimit
	}

	if s.geo != nil {
		hits, err := s.geo.Search(ctx, center, radius, limit)
		if err == nil {
			return s.hydrate(ctx, hits)
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "geo index search failed; scanning providers")
		}
	}
	return s.scanNearby(ctx, center, radius, limit)
}

func (s *service) hydrate(ctx context.Context, hits []GeoHit) ([]NearbyProvider, error) {
	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ProviderID)
	}
	rows, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load providers")
	}
	byID := make(map[uuid.UUID]models.ServiceProvider, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	out := make([]NearbyProvider, 0, len(hits))
	for _, h := range hits {
		p, ok := byID[h.ProviderID]
		if !ok || !p.IsAvailable || p.VerificationStatus != enums.VerificationStatusVerified || !p.HasLocation() {
			continue
		}
		out = append(out, nearbyFrom(p, h.DistanceKm))
	}
	return out, nil
}

func (s *service) scanNearby(ctx context.Context, center geo.Point, radius float64, limit int) ([]NearbyProvider, error) {
	rows, err := s.repo.ListWithLocation(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load providers")
	}
	out := make([]NearbyProvider, 0)
	for _, p := range rows {
		d := geo.Distance(center, geo.Point{Lat: *p.CurrentLatitude, Lng: *p.CurrentLongitude})
		if d <= radius {
			out = append(out, nearbyFrom(p, d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].ProviderID.String() < out[j].ProviderID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// syncGeo upserts the provider when p is set and removes it otherwise. The
// database stays authoritative, so index failures are only logged.
func (s *service) syncGeo(ctx context.Context, providerID uuid.UUID, p *geo.Point) {
	if s.geo == nil {
		return
	}
	var err error
	if p != nil {
		err = s.geo.Upsert(ctx, providerID, *p)
	} else {
		err = s.geo.Remove(ctx, providerID)
	}
	if err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithField(ctx, "provider_id", providerID.String()), "sync provider geo index", err)
	}
}

func (s *service) load(ctx context.Context, repo Repository, providerID uuid.UUID) (*models.ServiceProvider, error) {
	if providerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "provider context missing")
	}
	provider, err := repo.FindByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}
	return provider, nil
}

func (s *service) profile(ctx context.Context, provider *models.ServiceProvider) (*Profile, error) {
	areaIDs, err := s.repo.ServiceAreaIDs(ctx, provider.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load service areas")
	}
	return profileFromModel(provider, areaIDs), nil
}

// indexablePoint is the provider's position when it belongs in the geo index.
func indexablePoint(p *models.ServiceProvider) *geo.Point {
	if !p.IsAvailable || p.VerificationStatus != enums.VerificationStatusVerified || !p.HasLocation() {
		return nil
	}
	return &geo.Point{Lat: *p.CurrentLatitude, Lng: *p.CurrentLongitude}
}

func nearbyFrom(p models.ServiceProvider, distanceKm float64) NearbyProvider {
	return NearbyProvider{
		ProviderID:     p.ID,
		Name:           p.Name,
		Specialization: p.Specialization,
		Rating:         p.Rating,
		Location: Location{
			Latitude:  *p.CurrentLatitude,
			Longitude: *p.CurrentLongitude,
			UpdatedAt: p.LocationUpdatedAt,
		},
		DistanceKm: math.Round(distanceKm*100) / 100,
	}
}

func normalizeEmail(raw *string) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	email := strings.ToLower(strings.TrimSpace(*raw))
	if email == "" {
		return nil, nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email address")
	}
	return &email, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
