package serviceareas

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/internal/repo/sqlitetest"
	"github.com/autocare/autocare-backend/pkg/db/models"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
)

var bengaluru = geo.Point{Lat: 12.9716, Lng: 77.5946}

func ptr[T any](v T) *T { return &v }

func area(name string, lat, lng, radius float64) models.ServiceArea {
	return models.ServiceArea{ID: uuid.New(), Name: name, CenterLatitude: lat, CenterLongitude: lng, RadiusKm: radius, IsActive: true}
}

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(NewRepository(sqlitetest.Open(t)), 0, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return svc
}

func TestEvaluateOpenWorldWithoutAreas(t *testing.T) {
	coverage := Evaluate(nil, bengaluru)
	require.True(t, coverage.Available)
	require.Empty(t, coverage.CoveredBy)
	require.Empty(t, coverage.Nearest)
}

func TestEvaluateBoundaryIsInclusive(t *testing.T) {
	edge := geo.Point{Lat: bengaluru.Lat + 10/111.195, Lng: bengaluru.Lng}
	d := geo.Distance(bengaluru, edge)

	coverage := Evaluate([]models.ServiceArea{area("central", bengaluru.Lat, bengaluru.Lng, d)}, edge)
	require.True(t, coverage.Available)
	require.Len(t, coverage.CoveredBy, 1)
}

func TestEvaluateReportsThreeNearestWhenUncovered(t *testing.T) {
	areas := []models.ServiceArea{
		area("north", bengaluru.Lat+0.5, bengaluru.Lng, 5),
		area("south", bengaluru.Lat-0.2, bengaluru.Lng, 5),
		area("east", bengaluru.Lat, bengaluru.Lng+0.3, 5),
		area("far", bengaluru.Lat+3, bengaluru.Lng, 5),
	}
	coverage := Evaluate(areas, bengaluru)
	require.False(t, coverage.Available)
	require.Len(t, coverage.Nearest, 3)
	require.Equal(t, "south", coverage.Nearest[0].Area.Name)
	require.Equal(t, "east", coverage.Nearest[1].Area.Name)
	require.Equal(t, "north", coverage.Nearest[2].Area.Name)

	name, km, ok := coverage.NearestName()
	require.True(t, ok)
	require.Equal(t, "south", name)
	require.InDelta(t, 22.24, km, 0.01)
}

func TestEvaluateListsEveryCoveringArea(t *testing.T) {
	areas := []models.ServiceArea{
		area("city", bengaluru.Lat, bengaluru.Lng, 30),
		area("metro", bengaluru.Lat+0.1, bengaluru.Lng, 50),
		area("mysuru", 12.2958, 76.6394, 20),
	}
	coverage := Evaluate(areas, bengaluru)
	require.True(t, coverage.Available)
	require.Len(t, coverage.CoveredBy, 2)
	require.Empty(t, coverage.Nearest)
}

func TestServiceCreateAppliesDefaultsAndValidates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, AreaInput{Name: ptr(" Koramangala "), CenterLatitude: ptr(12.9352), CenterLongitude: ptr(77.6245)})
	require.NoError(t, err)
	require.Equal(t, "Koramangala", created.Name)
	require.Equal(t, float64(DefaultRadiusKm), created.RadiusKm)
	require.True(t, created.IsActive)

	_, err = svc.Create(ctx, AreaInput{Name: ptr("Koramangala"), CenterLatitude: ptr(12.9), CenterLongitude: ptr(77.6)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = svc.Create(ctx, AreaInput{Name: ptr("Too big"), CenterLatitude: ptr(12.9), CenterLongitude: ptr(77.6), RadiusKm: ptr(501.0)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Create(ctx, AreaInput{Name: ptr("Nowhere"), CenterLatitude: ptr(91.0), CenterLongitude: ptr(77.6)})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestServiceCoverageIgnoresInactiveAreas(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, AreaInput{Name: ptr("Mysuru"), CenterLatitude: ptr(12.2958), CenterLongitude: ptr(76.6394), RadiusKm: ptr(20.0)})
	require.NoError(t, err)

	coverage, err := svc.CheckCoverage(ctx, bengaluru)
	require.NoError(t, err)
	require.False(t, coverage.Available)
	require.Len(t, coverage.Nearest, 1)

	_, err = svc.Update(ctx, created.ID, AreaInput{IsActive: ptr(false)})
	require.NoError(t, err)

	coverage, err = svc.CheckCoverage(ctx, bengaluru)
	require.NoError(t, err)
	require.True(t, coverage.Available)

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Empty(t, active)
	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestServiceDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, AreaInput{Name: ptr("HSR"), CenterLatitude: ptr(12.91), CenterLongitude: ptr(77.64)})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	err = svc.Delete(ctx, created.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Get(ctx, created.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
