package matching

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/autocare/autocare-backend/internal/repo/sqlitetest"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
)

func insertProvider(t *testing.T, repo *Repository, mutate func(p *models.ServiceProvider)) models.ServiceProvider {
	t.Helper()
	p := providerAt(1, 4)
	p.UserID = uuid.New()
	p.EmployeeID = "SP" + p.ID.String()[:6]
	p.Phone = "9876543210"
	p.Specialization = enums.SpecializationGeneral
	if mutate != nil {
		mutate(&p)
	}
	require.NoError(t, repo.db.Create(&p).Error)
	return p
}

func TestRepositoryEligibleProvidersEndToEnd(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	near := insertProvider(t, repo, nil)
	far := insertProvider(t, repo, func(p *models.ServiceProvider) {
		lat := bookingAt.Lat + 8/111.195
		p.CurrentLatitude = &lat
	})
	insertProvider(t, repo, func(p *models.ServiceProvider) { p.IsAvailable = false })
	insertProvider(t, repo, func(p *models.ServiceProvider) {
		p.VerificationStatus = enums.VerificationStatusSuspended
	})
	insertProvider(t, repo, func(p *models.ServiceProvider) {
		p.CurrentLatitude, p.CurrentLongitude = nil, nil
	})
	insertProvider(t, repo, func(p *models.ServiceProvider) {
		lat := bookingAt.Lat + 3
		p.CurrentLatitude = &lat
	})

	providers, err := repo.EligibleProviders(ctx, ProviderFilter{Near: &bookingAt, RadiusKm: 10})
	require.NoError(t, err)
	ids := []uuid.UUID{}
	for _, p := range providers {
		ids = append(ids, p.ID)
	}
	require.ElementsMatch(t, []uuid.UUID{near.ID, far.ID}, ids)

	loc, err := NewLocator(repo, NearestFirst{MaxRadiusKm: 10}, LocatorOptions{Clock: func() time.Time { return testNow }})
	require.NoError(t, err)
	best, err := loc.LocateBestProvider(ctx, Request{Location: &bookingAt})
	require.NoError(t, err)
	require.Equal(t, near.ID, best.ProviderID)
	require.True(t, decimal.NewFromFloat(best.Rating).Equal(decimal.NewFromInt(4)))

	best, err = loc.LocateBestProvider(ctx, Request{Location: &bookingAt, Exclude: []uuid.UUID{near.ID}})
	require.NoError(t, err)
	require.Equal(t, far.ID, best.ProviderID)
}

func TestRepositoryFreshSinceFilter(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)

	fresh := insertProvider(t, repo, nil)
	insertProvider(t, repo, func(p *models.ServiceProvider) {
		old := testNow.Add(-3 * time.Hour)
		p.LocationUpdatedAt = &old
	})

	since := testNow.Add(-30 * time.Minute)
	providers, err := repo.EligibleProviders(context.Background(), ProviderFilter{FreshSince: &since})
	require.NoError(t, err)
	require.Len(t, providers, 1)
	require.Equal(t, fresh.ID, providers[0].ID)
}

func TestRepositoryActiveJobCounts(t *testing.T) {
	conn := sqlitetest.Open(t)
	repo := NewRepository(conn)
	providerID := uuid.New()
	other := uuid.New()

	for _, status := range []enums.AssignmentStatus{
		enums.AssignmentStatusAssigned,
		enums.AssignmentStatusAccepted,
		enums.AssignmentStatusInProgress,
		enums.AssignmentStatusEnRoute,
		enums.AssignmentStatusCompleted,
		enums.AssignmentStatusRejected,
	} {
		require.NoError(t, conn.Create(&models.ServiceAssignment{
			ID:         uuid.New(),
			BookingID:  uuid.New(),
			ProviderID: providerID,
			Status:     status,
		}).Error)
	}

	counts, err := repo.ActiveJobCounts(context.Background(), []uuid.UUID{providerID, other})
	require.NoError(t, err)
	require.Equal(t, 3, counts[providerID])
	require.Zero(t, counts[other])
}
