package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/internal/serviceareas"
	"github.com/autocare/autocare-backend/pkg/config"
	dbpkg "github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
	"github.com/autocare/autocare-backend/pkg/pagination"
)

const dateLayout = "2006-01-02"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CoverageChecker answers whether a point is inside an active service area.
type CoverageChecker interface {
	CheckCoverage(ctx context.Context, point geo.Point) (*serviceareas.Coverage, error)
}

// Assigner is the slice of the assignment lifecycle manager bookings drive.
type Assigner interface {
	AutoAssign(ctx context.Context, bookingID uuid.UUID) (*assignments.AssignOutcome, error)
	ActiveForBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceAssignment, error)
	CancelActive(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) (*assignments.Event, error)
	Publish(ctx context.Context, events ...assignments.Event)
}

// Service manages customer bookings.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Get(ctx context.Context, userID, bookingID uuid.UUID) (*Detail, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Booking, error)
	AvailableTimeSlots(ctx context.Context, userID uuid.UUID, date string) (*TimeSlotAvailability, error)
	Stats(ctx context.Context, userID uuid.UUID) (*Stats, error)
}

type Deps struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Coverage CoverageChecker
	Assigner Assigner
	Config   config.BookingConfig
	Logger   *logger.Logger
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	coverage CoverageChecker
	assigner Assigner
	cfg      config.BookingConfig
	loc      *time.Location
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Coverage == nil {
		return nil, fmt.Errorf("coverage checker required")
	}
	if deps.Assigner == nil {
		return nil, fmt.Errorf("assigner required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     deps.Repo,
		tx:       deps.Tx,
		outbox:   deps.Outbox,
		coverage: deps.Coverage,
		assigner: deps.Assigner,
		cfg:      deps.Config,
		loc:      deps.Config.Location(),
		logg:     deps.Logger,
		now:      now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	vehicle, err := enums.ParseVehicleType(strings.ToLower(strings.TrimSpace(input.VehicleType)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vehicle_type must be car or bike")
	}
	date, err := s.parseDate(input.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(s.today()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot book service for past dates")
	}
	slot := strings.TrimSpace(input.TimeSlot)
	if !ValidTimeSlot(slot) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid time slot").
			WithDetails(map[string]any{"allowed": TimeSlots})
	}
	if input.Latitude == nil || input.Longitude == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "latitude and longitude are required")
	}
	point := geo.Point{Lat: *input.Latitude, Lng: *input.Longitude}
	if !point.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid GPS coordinates")
	}

	serviceAddress := strings.TrimSpace(input.ServiceAddress)
	if input.AddressID != nil {
		address, err := s.repo.FindAddress(ctx, *input.AddressID, input.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid address selection")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
		}
		if serviceAddress == "" {
			serviceAddress = address.FullAddress()
		}
	}
	if serviceAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "service address is required")
	}

	coverage, err := s.coverage.CheckCoverage(ctx, point)
	if err != nil {
		return nil, err
	}
	if !coverage.Available {
		msg := "location is outside our service areas"
		if name, km, ok := coverage.NearestName(); ok {
			msg = fmt.Sprintf("location is outside our service areas; nearest service area is %s (%.1f km away)", name, km)
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msg)
	}

	taken, err := s.repo.HasOpenSlot(ctx, input.UserID, date, slot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing bookings")
	}
	if taken {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "you already have a booking for this date and time slot")
	}

	lat, lng := point.Lat, point.Lng
	booking := &models.Booking{
		UserID:         input.UserID,
		VehicleType:    vehicle,
		BookingDate:    date,
		TimeSlot:       slot,
		Status:         enums.BookingStatusPending,
		Notes:          trimmedOrNil(input.Notes),
		Latitude:       &lat,
		Longitude:      &lng,
		ServiceAddress: serviceAddress,
		AddressID:      input.AddressID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, booking); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_bookings_user_open_slot") {
				return pkgerrors.New(pkgerrors.CodeConflict, "you already have a booking for this date and time slot")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
		}
		return s.emitBookingEvent(ctx, tx, enums.EventBookingCreated, booking, "")
	})
	if err != nil {
		return nil, err
	}

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithFields(ctx, map[string]any{
			"booking_id": booking.ID.String(),
			"user_id":    input.UserID.String(),
			"date":       input.Date,
			"time_slot":  slot,
		})
		s.logg.Info(logCtx, "booking created")
	}

	result := &CreateResult{Booking: booking}
	if !s.cfg.AutoAssign {
		return result, nil
	}
	outcome, err := s.assigner.AutoAssign(ctx, booking.ID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(logCtx, "auto assignment failed; booking left for rematch", err)
		}
		return result, nil
	}
	booking.Status = outcome.BookingStatus
	booking.MatchAttempts = outcome.MatchAttempts
	result.Assignment = outcome.Assignment
	return result, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	var status *enums.BookingStatus
	if raw := strings.TrimSpace(params.Status); raw != "" {
		parsed, err := enums.ParseBookingStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		status = &parsed
	}
	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, listQuery{
		UserID: params.UserID,
		Status: status,
		Limit:  params.Pagination.Limit,
		Cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}
	result := &ListResult{Bookings: rows}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, userID, bookingID uuid.UUID) (*Detail, error) {
	booking, err := s.load(ctx, s.repo, userID, bookingID)
	if err != nil {
		return nil, err
	}
	active, err := s.assigner.ActiveForBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{Booking: *booking, Assignment: active}, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Booking, error) {
	booking, err := s.load(ctx, s.repo, input.UserID, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot cancel a %s booking", booking.Status)
	}
	if !booking.BookingDate.After(s.today()) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "bookings can only be cancelled before the service date")
	}

	reason := strings.TrimSpace(input.Reason)
	var cascaded *assignments.Event
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		ok, err := repo.MarkCancelled(ctx, booking.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel booking")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking changed concurrently")
		}
		booking.Status = enums.BookingStatusCancelled
		booking.CancelledAt = &now

		cascaded, err = s.assigner.CancelActive(ctx, tx, booking.ID, reason)
		if err != nil {
			return err
		}
		return s.emitBookingEvent(ctx, tx, enums.EventBookingCancelled, booking, reason)
	})
	if err != nil {
		return nil, err
	}
	if cascaded != nil {
		s.assigner.Publish(ctx, *cascaded)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"booking_id": booking.ID.String(),
			"user_id":    booking.UserID.String(),
			"cascaded":   cascaded != nil,
		})
		s.logg.Info(logCtx, "booking cancelled")
	}
	return booking, nil
}

func (s *service) AvailableTimeSlots(ctx context.Context, userID uuid.UUID, date string) (*TimeSlotAvailability, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	parsed, err := s.parseDate(date)
	if err != nil {
		return nil, err
	}
	taken, err := s.repo.TakenSlots(ctx, userID, parsed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booked slots")
	}
	available := availableSlots(taken)
	return &TimeSlotAvailability{
		Date:           parsed.Format(dateLayout),
		AvailableSlots: available,
		BookedSlots:    taken,
		TotalAvailable: len(available),
	}, nil
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	counts, err := s.repo.StatusCounts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count bookings")
	}
	locations, err := s.repo.UniqueLocations(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count booking locations")
	}
	usage, err := s.repo.AddressUsage(ctx, userID, 5)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address usage")
	}

	stats := &Stats{
		Pending:           counts[enums.BookingStatusPending],
		Confirmed:         counts[enums.BookingStatusConfirmed],
		Completed:         counts[enums.BookingStatusCompleted],
		Cancelled:         counts[enums.BookingStatusCancelled],
		Unassignable:      counts[enums.BookingStatusUnassignable],
		UniqueLocations:   locations,
		MostUsedAddresses: usage,
	}
	for _, n := range counts {
		stats.Total += n
	}
	if stats.MostUsedAddresses == nil {
		stats.MostUsedAddresses = []AddressUsage{}
	}
	return stats, nil
}

func (s *service) emitBookingEvent(ctx context.Context, tx *gorm.DB, kind enums.OutboxEventType, booking *models.Booking, reason string) error {
	occurred := s.now().UTC()
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     kind,
		AggregateType: enums.AggregateBooking,
		AggregateID:   booking.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: booking.UserID, Role: string(enums.UserTypeCustomer)},
		OccurredAt:    occurred,
		Data: payloads.BookingEvent{
			Kind:          kind,
			BookingID:     booking.ID,
			UserID:        booking.UserID,
			Status:        booking.Status,
			BookingDate:   booking.BookingDate.Format(dateLayout),
			TimeSlot:      booking.TimeSlot,
			MatchAttempts: booking.MatchAttempts,
			Reason:        reason,
			OccurredAt:    occurred,
		},
	})
}

func (s *service) load(ctx context.Context, repo Repository, userID, bookingID uuid.UUID) (*models.Booking, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := repo.FindForUser(ctx, bookingID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

// parseDate reads a YYYY-MM-DD calendar date; the result is midnight UTC so
// it compares equal to the stored date column.
func (s *service) parseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid date format, use YYYY-MM-DD")
	}
	return parsed.UTC(), nil
}

// today is the current calendar date in the booking timezone.
func (s *service) today() time.Time {
	local := s.now().In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
