package bookings

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/internal/repo/sqlitetest"
	"github.com/autocare/autocare-backend/internal/serviceareas"
	"github.com/autocare/autocare-backend/pkg/config"
	dbpkg "github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/outbox"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type stubCoverage struct {
	areas []models.ServiceArea
	err   error
}

func (s stubCoverage) CheckCoverage(ctx context.Context, point geo.Point) (*serviceareas.Coverage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return serviceareas.Evaluate(s.areas, point), nil
}

type fakeAssigner struct {
	outcome   *assignments.AssignOutcome
	err       error
	autoCalls []uuid.UUID
	active    *models.ServiceAssignment
	cancel    *assignments.Event
	cancelled []uuid.UUID
	published []assignments.Event
}

func (f *fakeAssigner) AutoAssign(ctx context.Context, bookingID uuid.UUID) (*assignments.AssignOutcome, error) {
	f.autoCalls = append(f.autoCalls, bookingID)
	if f.err != nil {
		return nil, f.err
	}
	if f.outcome != nil {
		return f.outcome, nil
	}
	return &assignments.AssignOutcome{BookingStatus: enums.BookingStatusPending, MatchAttempts: 1}, nil
}

func (f *fakeAssigner) ActiveForBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceAssignment, error) {
	return f.active, nil
}

func (f *fakeAssigner) CancelActive(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) (*assignments.Event, error) {
	f.cancelled = append(f.cancelled, bookingID)
	return f.cancel, nil
}

func (f *fakeAssigner) Publish(ctx context.Context, events ...assignments.Event) {
	f.published = append(f.published, events...)
}

type harness struct {
	db       *gorm.DB
	svc      Service
	assigner *fakeAssigner
}

func newHarness(t *testing.T, coverage CoverageChecker) *harness {
	t.Helper()
	conn := sqlitetest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if coverage == nil {
		coverage = stubCoverage{}
	}
	h := &harness{db: conn, assigner: &fakeAssigner{}}
	svc, err := NewService(Deps{
		Repo:     NewRepository(conn),
		Tx:       dbpkg.NewFromConn(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Coverage: coverage,
		Assigner: h.assigner,
		Config:   config.BookingConfig{Timezone: "UTC", AutoAssign: true},
		Logger:   logg,
		Clock:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func validInput(userID uuid.UUID) CreateInput {
	lat, lng := 12.9716, 77.5946
	return CreateInput{
		UserID:         userID,
		VehicleType:    "car",
		Date:           "2026-03-04",
		TimeSlot:       "10:00 AM",
		Latitude:       &lat,
		Longitude:      &lng,
		ServiceAddress: "12 MG Road, Bengaluru",
	}
}

func TestCreateBookingRunsAutoAssign(t *testing.T) {
	h := newHarness(t, nil)
	assignment := &models.ServiceAssignment{ID: uuid.New(), Status: enums.AssignmentStatusAssigned}
	h.assigner.outcome = &assignments.AssignOutcome{Assignment: assignment, BookingStatus: enums.BookingStatusConfirmed}

	result, err := h.svc.Create(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusConfirmed, result.Booking.Status)
	require.Equal(t, assignment, result.Assignment)
	require.Equal(t, []uuid.UUID{result.Booking.ID}, h.assigner.autoCalls)

	var events []models.OutboxEvent
	require.NoError(t, h.db.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventBookingCreated, events[0].EventType)
	require.Equal(t, result.Booking.ID, events[0].AggregateID)
}

func TestCreateBookingSurvivesAssignFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.assigner.err = errors.New("redis down")

	result, err := h.svc.Create(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusPending, result.Booking.Status)
	require.Nil(t, result.Assignment)
}

func TestCreateBookingValidation(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()
	cases := map[string]func(in *CreateInput){
		"vehicle":     func(in *CreateInput) { in.VehicleType = "truck" },
		"past date":   func(in *CreateInput) { in.Date = "2026-03-01" },
		"bad date":    func(in *CreateInput) { in.Date = "04/03/2026" },
		"slot":        func(in *CreateInput) { in.TimeSlot = "09:30 PM" },
		"no coords":   func(in *CreateInput) { in.Latitude = nil },
		"range":       func(in *CreateInput) { lat := 95.0; in.Latitude = &lat },
		"no address":  func(in *CreateInput) { in.ServiceAddress = "  " },
		"foreign ref": func(in *CreateInput) { id := uuid.New(); in.AddressID = &id },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput(user)
			mutate(&in)
			_, err := h.svc.Create(context.Background(), in)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestCreateBookingTodayIsAllowed(t *testing.T) {
	h := newHarness(t, nil)
	in := validInput(uuid.New())
	in.Date = "2026-03-02"
	_, err := h.svc.Create(context.Background(), in)
	require.NoError(t, err)
}

func TestCreateBookingOutsideCoverageNamesNearestArea(t *testing.T) {
	mysuru := models.ServiceArea{ID: uuid.New(), Name: "Mysuru", CenterLatitude: 12.2958, CenterLongitude: 76.6394, RadiusKm: 20, IsActive: true}
	h := newHarness(t, stubCoverage{areas: []models.ServiceArea{mysuru}})

	_, err := h.svc.Create(context.Background(), validInput(uuid.New()))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Contains(t, err.Error(), "Mysuru")
}

func TestCreateBookingRejectsDuplicateSlot(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()

	_, err := h.svc.Create(context.Background(), validInput(user))
	require.NoError(t, err)
	_, err = h.svc.Create(context.Background(), validInput(user))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	other := validInput(user)
	other.TimeSlot = "11:00 AM"
	_, err = h.svc.Create(context.Background(), other)
	require.NoError(t, err)
}

func TestCreateBookingUsesSavedAddress(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()
	address := models.Address{
		ID:          uuid.New(),
		UserID:      user,
		AddressType: enums.AddressTypeHome,
		Line1:       "221 Residency Road",
		City:        "Bengaluru",
		State:       "Karnataka",
		Pincode:     "560025",
	}
	require.NoError(t, h.db.Create(&address).Error)

	in := validInput(user)
	in.ServiceAddress = ""
	in.AddressID = &address.ID
	result, err := h.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "221 Residency Road, Bengaluru, Karnataka, 560025", result.Booking.ServiceAddress)
}

func TestCancelBookingCascadesToAssignment(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()
	created, err := h.svc.Create(context.Background(), validInput(user))
	require.NoError(t, err)
	h.assigner.cancel = &assignments.Event{Kind: assignments.EventAssignmentCancelled, BookingID: created.Booking.ID}

	cancelled, err := h.svc.Cancel(context.Background(), CancelInput{UserID: user, BookingID: created.Booking.ID, Reason: "plans changed"})
	require.NoError(t, err)
	require.Equal(t, enums.BookingStatusCancelled, cancelled.Status)
	require.Equal(t, []uuid.UUID{created.Booking.ID}, h.assigner.cancelled)
	require.Len(t, h.assigner.published, 1)

	_, err = h.svc.Cancel(context.Background(), CancelInput{UserID: user, BookingID: created.Booking.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.Cancel(context.Background(), CancelInput{UserID: uuid.New(), BookingID: created.Booking.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelBookingOnServiceDayIsRefused(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()
	in := validInput(user)
	in.Date = "2026-03-02"
	created, err := h.svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, err = h.svc.Cancel(context.Background(), CancelInput{UserID: user, BookingID: created.Booking.ID})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAvailableTimeSlotsExcludesOwnOpenBookings(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()
	_, err := h.svc.Create(context.Background(), validInput(user))
	require.NoError(t, err)
	_, err = h.svc.Create(context.Background(), validInput(uuid.New()))
	require.NoError(t, err)

	slots, err := h.svc.AvailableTimeSlots(context.Background(), user, "2026-03-04")
	require.NoError(t, err)
	require.Equal(t, []string{"10:00 AM"}, slots.BookedSlots)
	require.Equal(t, len(TimeSlots)-1, slots.TotalAvailable)
	require.NotContains(t, slots.AvailableSlots, "10:00 AM")

	_, err = h.svc.AvailableTimeSlots(context.Background(), user, "tomorrow")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStatsAggregatesUserBookings(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()
	for _, slot := range []string{"09:00 AM", "10:00 AM", "11:00 AM"} {
		in := validInput(user)
		in.TimeSlot = slot
		_, err := h.svc.Create(context.Background(), in)
		require.NoError(t, err)
	}
	moved := validInput(user)
	moved.TimeSlot = "12:00 PM"
	lat := 12.99
	moved.Latitude = &lat
	created, err := h.svc.Create(context.Background(), moved)
	require.NoError(t, err)
	_, err = h.svc.Cancel(context.Background(), CancelInput{UserID: user, BookingID: created.Booking.ID})
	require.NoError(t, err)

	stats, err := h.svc.Stats(context.Background(), user)
	require.NoError(t, err)
	require.EqualValues(t, 4, stats.Total)
	require.EqualValues(t, 3, stats.Pending)
	require.EqualValues(t, 1, stats.Cancelled)
	require.EqualValues(t, 2, stats.UniqueLocations)
	require.Empty(t, stats.MostUsedAddresses)
}

func TestListBookingsFiltersByStatus(t *testing.T) {
	h := newHarness(t, nil)
	user := uuid.New()
	first, err := h.svc.Create(context.Background(), validInput(user))
	require.NoError(t, err)
	second := validInput(user)
	second.TimeSlot = "01:00 PM"
	_, err = h.svc.Create(context.Background(), second)
	require.NoError(t, err)
	_, err = h.svc.Cancel(context.Background(), CancelInput{UserID: user, BookingID: first.Booking.ID})
	require.NoError(t, err)

	all, err := h.svc.List(context.Background(), ListParams{UserID: user})
	require.NoError(t, err)
	require.Len(t, all.Bookings, 2)

	cancelled, err := h.svc.List(context.Background(), ListParams{UserID: user, Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled.Bookings, 1)
	require.Equal(t, first.Booking.ID, cancelled.Bookings[0].ID)

	_, err = h.svc.List(context.Background(), ListParams{UserID: user, Status: "lost"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
