package assignments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/autocare/autocare-backend/internal/geo"
	"github.com/autocare/autocare-backend/internal/matching"
	"github.com/autocare/autocare-backend/pkg/config"
	dbpkg "github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	pkgerrors "github.com/autocare/autocare-backend/pkg/errors"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/metrics"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/outbox/payloads"
	"github.com/autocare/autocare-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ProviderRanker orders eligible providers for a booking, best first.
type ProviderRanker interface {
	Rank(ctx context.Context, req matching.Request) ([]matching.Candidate, error)
}

// BookingLocker serializes matching work per booking across processes.
type BookingLocker interface {
	LockKey(scope, id string) string
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Service is the assignment lifecycle manager.
type Service interface {
	AutoAssign(ctx context.Context, bookingID uuid.UUID) (*AssignOutcome, error)
	CreateAssignment(ctx context.Context, bookingID, providerID uuid.UUID) (*models.ServiceAssignment, error)
	Accept(ctx context.Context, input ActionInput) (*models.ServiceAssignment, error)
	Reject(ctx context.Context, input RejectInput) (*RejectResult, error)
	MarkEnRoute(ctx context.Context, input ActionInput) (*models.ServiceAssignment, error)
	Start(ctx context.Context, input ActionInput) (*models.ServiceAssignment, error)
	Complete(ctx context.Context, input CompleteInput) (*models.ServiceAssignment, error)
	Cancel(ctx context.Context, input CancelInput) (*models.ServiceAssignment, error)
	CancelActive(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) (*Event, error)
	Publish(ctx context.Context, events ...Event)
	Get(ctx context.Context, id uuid.UUID) (*models.ServiceAssignment, error)
	ActiveForBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceAssignment, error)
	ListForProvider(ctx context.Context, params ListParams) (*ListResult, error)
	Rematch(ctx context.Context, limit int) (RematchSummary, error)
}

// Deps groups the collaborators of the lifecycle manager.
type Deps struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Ranker   ProviderRanker
	Locker   BookingLocker
	Notifier Notifier
	Config   config.MatchingConfig
	Logger   *logger.Logger
	Metrics  *metrics.MatchingMetrics
	Clock    func() time.Time
}

// ActionInput identifies an assignment and the provider acting on it.
type ActionInput struct {
	AssignmentID uuid.UUID
	ProviderID   uuid.UUID
	ActorUserID  uuid.UUID
}

type RejectInput struct {
	ActionInput
	Reason string
}

type CompleteInput struct {
	ActionInput
	Notes *string
}

// CancelInput cancels one assignment on behalf of an operator. The booking
// returns to pending so the rematch job can pick it up again.
type CancelInput struct {
	AssignmentID uuid.UUID
	ActorUserID  uuid.UUID
	Reason       string
}

// AssignOutcome reports what a matching run did to a booking. Assignment is
// nil when no provider could be claimed.
type AssignOutcome struct {
	Assignment    *models.ServiceAssignment
	Candidate     *matching.Candidate
	BookingStatus enums.BookingStatus
	MatchAttempts int
}

type RejectResult struct {
	Rejected      *models.ServiceAssignment
	Replacement   *models.ServiceAssignment
	BookingStatus enums.BookingStatus
}

type ListParams struct {
	ProviderID uuid.UUID
	Statuses   []enums.AssignmentStatus
	Pagination pagination.Params
}

// Job is an assignment together with the booking it serves.
type Job struct {
	Assignment models.ServiceAssignment
	Booking    *models.Booking
}

type ListResult struct {
	Jobs       []Job
	NextCursor string
}

type RematchSummary struct {
	Scanned      int
	Assigned     int
	Pending      int
	Unassignable int
	Skipped      int
}

const bookingLockScope = "booking"

var errClaimLost = errors.New("provider claim lost")

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	ranker   ProviderRanker
	locker   BookingLocker
	notifier Notifier
	cfg      config.MatchingConfig
	logg     *logger.Logger
	metrics  *metrics.MatchingMetrics
	now      func() time.Time
}

// NewService builds the lifecycle manager. Locker and Notifier are optional.
func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("assignments repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if deps.Ranker == nil {
		return nil, fmt.Errorf("provider ranker required")
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     deps.Repo,
		tx:       deps.Tx,
		outbox:   deps.Outbox,
		ranker:   deps.Ranker,
		locker:   deps.Locker,
		notifier: notifier,
		cfg:      deps.Config,
		logg:     deps.Logger,
		metrics:  deps.Metrics,
		now:      now,
	}, nil
}

func (s *service) AutoAssign(ctx context.Context, bookingID uuid.UUID) (*AssignOutcome, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	unlock, err := s.lockBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, s.repo, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not awaiting a provider").
			WithDetails(map[string]any{"status": booking.Status})
	}
	active, err := s.repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
	}
	if active != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking already has an active assignment")
	}

	exclude, err := s.repo.RejectedProviderIDs(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rejected providers")
	}
	return s.matchLocked(ctx, booking, exclude)
}

// CreateAssignment assigns a specific provider to a booking, bypassing the
// ranking but not the eligibility checks or the provider claim.
func (s *service) CreateAssignment(ctx context.Context, bookingID, providerID uuid.UUID) (*models.ServiceAssignment, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if providerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}
	unlock, err := s.lockBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, s.repo, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking is closed").
			WithDetails(map[string]any{"status": booking.Status})
	}
	active, err := s.repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
	}
	if active != nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking already has an active assignment")
	}

	provider, err := s.repo.FindProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}
	if !matching.Eligible(*provider, s.now(), s.cfg.LocationStaleAfter) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "provider is not eligible for assignment")
	}

	candidate := matching.Candidate{
		ProviderID:   provider.ID,
		Name:         provider.Name,
		Rating:       provider.Rating.InexactFloat64(),
		ClaimVersion: provider.ClaimVersion,
		Location:     geo.Point{Lat: *provider.CurrentLatitude, Lng: *provider.CurrentLongitude},
	}
	if booking.HasCoordinates() {
		candidate.DistanceKm = geo.Distance(geo.Point{Lat: *booking.Latitude, Lng: *booking.Longitude}, candidate.Location)
	}
	created, event, err := s.createAssignment(ctx, bookingID, candidate)
	if errors.Is(err, errClaimLost) {
		s.metrics.IncClaimConflict()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "provider was claimed concurrently")
	}
	if err != nil {
		return nil, err
	}
	s.Publish(ctx, event)
	return created, nil
}

// matchLocked runs one automatic match for a booking whose lock is held.
// A miss bumps match_attempts and parks the booking as pending, or as
// unassignable once the configured cap is reached.
func (s *service) matchLocked(ctx context.Context, booking *models.Booking, exclude []uuid.UUID) (*AssignOutcome, error) {
	created, candidate, event, err := s.claimBest(ctx, booking, exclude)
	if err != nil {
		return nil, err
	}
	if created != nil {
		s.Publish(ctx, event)
		return &AssignOutcome{
			Assignment:    created,
			Candidate:     candidate,
			BookingStatus: enums.BookingStatusConfirmed,
			MatchAttempts: booking.MatchAttempts,
		}, nil
	}
	return s.recordMiss(ctx, booking)
}

func (s *service) claimBest(ctx context.Context, booking *models.Booking, exclude []uuid.UUID) (*models.ServiceAssignment, *matching.Candidate, Event, error) {
	req := matching.Request{BookingID: booking.ID, Exclude: exclude}
	if booking.HasCoordinates() {
		req.Location = &geo.Point{Lat: *booking.Latitude, Lng: *booking.Longitude}
	}
	ranked, err := s.ranker.Rank(ctx, req)
	if err != nil {
		return nil, nil, Event{}, err
	}

	for i := range ranked {
		candidate := ranked[i]
		created, event, err := s.createAssignment(ctx, booking.ID, candidate)
		if errors.Is(err, errClaimLost) {
			s.metrics.IncClaimConflict()
			if s.logg != nil {
				logCtx := s.logg.WithFields(ctx, map[string]any{
					"booking_id":  booking.ID.String(),
					"provider_id": candidate.ProviderID.String(),
				})
				s.logg.Debug(logCtx, "provider claim lost, trying next candidate")
			}
			continue
		}
		if err != nil {
			return nil, nil, Event{}, err
		}
		return created, &candidate, event, nil
	}
	return nil, nil, Event{}, nil
}

func (s *service) createAssignment(ctx context.Context, bookingID uuid.UUID, candidate matching.Candidate) (*models.ServiceAssignment, Event, error) {
	now := s.now().UTC()
	distance := candidate.DistanceKm
	eta := geo.EstimateArrival(now, distance, s.cfg.AverageSpeedKmh, s.cfg.ArrivalBuffer)

	var (
		created *models.ServiceAssignment
		event   Event
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		booking, err := s.loadBooking(ctx, repo, bookingID)
		if err != nil {
			return err
		}
		if booking.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is closed")
		}

		claimed, err := repo.ClaimProvider(ctx, providerClaim{
			ProviderID:      candidate.ProviderID,
			ExpectedVersion: candidate.ClaimVersion,
			MaxActive:       s.cfg.MaxActivePerProvider,
			Now:             now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim provider")
		}
		if !claimed {
			return errClaimLost
		}

		assignment := &models.ServiceAssignment{
			BookingID:        bookingID,
			ProviderID:       candidate.ProviderID,
			Status:           enums.AssignmentStatusAssigned,
			DistanceKm:       &distance,
			AssignedAt:       &now,
			EstimatedArrival: &eta,
		}
		if err := repo.Create(ctx, assignment); err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_service_assignments_booking_active") {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "booking already has an active assignment")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create assignment")
		}
		if err := repo.UpdateBooking(ctx, bookingID, map[string]any{"status": enums.BookingStatusConfirmed}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm booking")
		}

		provider, err := repo.FindProvider(ctx, candidate.ProviderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
		}
		event = s.eventFor(EventAssignmentCreated, assignment, booking, provider, nil)
		if err := s.emit(ctx, tx, event); err != nil {
			return err
		}
		created = assignment
		return nil
	})
	if err != nil {
		return nil, Event{}, err
	}
	s.metrics.IncTransition(string(enums.AssignmentStatusAssigned))
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"booking_id":    bookingID.String(),
			"assignment_id": created.ID.String(),
			"provider_id":   candidate.ProviderID.String(),
			"distance_km":   distance,
		})
		s.logg.Info(logCtx, "provider assigned")
	}
	return created, event, nil
}

func (s *service) recordMiss(ctx context.Context, booking *models.Booking) (*AssignOutcome, error) {
	outcome := &AssignOutcome{BookingStatus: enums.BookingStatusPending}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		attempts, err := repo.RecordMatchMiss(ctx, booking.ID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record match attempt")
		}
		outcome.MatchAttempts = attempts

		status := enums.BookingStatusPending
		if s.cfg.MaxMatchAttempts > 0 && attempts >= s.cfg.MaxMatchAttempts {
			status = enums.BookingStatusUnassignable
		}
		outcome.BookingStatus = status
		if err := repo.UpdateBooking(ctx, booking.ID, map[string]any{"status": status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
		}
		if status != enums.BookingStatusUnassignable {
			return nil
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBookingUnassignable,
			AggregateType: enums.AggregateBooking,
			AggregateID:   booking.ID,
			Version:       1,
			Data: payloads.BookingEvent{
				Kind:          enums.EventBookingUnassignable,
				BookingID:     booking.ID,
				UserID:        booking.UserID,
				Status:        status,
				BookingDate:   booking.BookingDate.Format("2006-01-02"),
				TimeSlot:      booking.TimeSlot,
				MatchAttempts: attempts,
				OccurredAt:    s.now().UTC(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"booking_id":     booking.ID.String(),
			"match_attempts": outcome.MatchAttempts,
			"booking_status": outcome.BookingStatus,
		})
		s.logg.Warn(logCtx, "no provider available for booking")
	}
	return outcome, nil
}

func (s *service) Accept(ctx context.Context, input ActionInput) (*models.ServiceAssignment, error) {
	return s.transition(ctx, input, transition{
		from:    []enums.AssignmentStatus{enums.AssignmentStatusAssigned},
		to:      enums.AssignmentStatusAccepted,
		event:   EventAssignmentAccepted,
		booking: enums.BookingStatusConfirmed,
		stamp: func(a *models.ServiceAssignment, now time.Time, updates map[string]any) {
			a.AcceptedAt = &now
			updates["accepted_at"] = now
		},
	})
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*RejectResult, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason required")
	}
	if err := validateAction(input.ActionInput); err != nil {
		return nil, err
	}

	current, err := s.loadAssignment(ctx, s.repo, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockBooking(ctx, current.BookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// The booking is reopened with the rejection so a failed rematch below
	// still leaves it visible to the rematch sweep.
	rejected, err := s.transition(ctx, input.ActionInput, transition{
		from:    []enums.AssignmentStatus{enums.AssignmentStatusAssigned},
		to:      enums.AssignmentStatusRejected,
		event:   EventAssignmentRejected,
		booking: enums.BookingStatusPending,
		reason:  &reason,
		stamp: func(a *models.ServiceAssignment, now time.Time, updates map[string]any) {
			a.RejectedAt = &now
			a.RejectionReason = &reason
			updates["rejected_at"] = now
			updates["rejection_reason"] = reason
		},
	})
	if err != nil {
		return nil, err
	}

	result := &RejectResult{Rejected: rejected}
	booking, err := s.loadBooking(ctx, s.repo, rejected.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		result.BookingStatus = booking.Status
		return result, nil
	}
	outcome, err := s.rematchAfterReject(ctx, booking)
	if err != nil {
		// The rejection is committed; the rematch cron retries the booking.
		result.BookingStatus = enums.BookingStatusPending
		if s.logg != nil {
			logCtx := s.logg.WithBookingID(ctx, booking.ID.String())
			s.logg.Error(logCtx, "rematch after rejection failed", err)
		}
		return result, nil
	}
	result.Replacement = outcome.Assignment
	result.BookingStatus = outcome.BookingStatus
	return result, nil
}

func (s *service) rematchAfterReject(ctx context.Context, booking *models.Booking) (*AssignOutcome, error) {
	exclude, err := s.repo.RejectedProviderIDs(ctx, booking.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rejected providers")
	}
	return s.matchLocked(ctx, booking, exclude)
}

func (s *service) MarkEnRoute(ctx context.Context, input ActionInput) (*models.ServiceAssignment, error) {
	return s.transition(ctx, input, transition{
		from:  []enums.AssignmentStatus{enums.AssignmentStatusAccepted},
		to:    enums.AssignmentStatusEnRoute,
		event: EventProviderEnRoute,
	})
}

func (s *service) Start(ctx context.Context, input ActionInput) (*models.ServiceAssignment, error) {
	return s.transition(ctx, input, transition{
		from:  []enums.AssignmentStatus{enums.AssignmentStatusAccepted, enums.AssignmentStatusEnRoute},
		to:    enums.AssignmentStatusInProgress,
		event: EventServiceStarted,
		stamp: func(a *models.ServiceAssignment, now time.Time, updates map[string]any) {
			a.StartedAt = &now
			updates["started_at"] = now
			if a.ActualArrival == nil {
				a.ActualArrival = &now
				updates["actual_arrival"] = now
			}
		},
	})
}

func (s *service) Complete(ctx context.Context, input CompleteInput) (*models.ServiceAssignment, error) {
	return s.transition(ctx, input.ActionInput, transition{
		from:    []enums.AssignmentStatus{enums.AssignmentStatusInProgress},
		to:      enums.AssignmentStatusCompleted,
		event:   EventServiceCompleted,
		booking: enums.BookingStatusCompleted,
		stamp: func(a *models.ServiceAssignment, now time.Time, updates map[string]any) {
			a.CompletedAt = &now
			updates["completed_at"] = now
			if input.Notes != nil {
				notes := strings.TrimSpace(*input.Notes)
				a.ProviderNotes = &notes
				updates["provider_notes"] = notes
			}
		},
		after: func(ctx context.Context, repo Repository, a *models.ServiceAssignment) error {
			if err := repo.IncrementCompletedJobs(ctx, a.ProviderID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment completed jobs")
			}
			return nil
		},
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.ServiceAssignment, error) {
	if input.AssignmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment id required")
	}
	current, err := s.loadAssignment(ctx, s.repo, input.AssignmentID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockBooking(ctx, current.BookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		cancelled *models.ServiceAssignment
		event     *Event
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		assignment, err := s.loadAssignment(ctx, repo, input.AssignmentID)
		if err != nil {
			return err
		}
		if !assignment.Status.IsActive() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot cancel assignment in status %s", assignment.Status)
		}
		event, err = s.CancelActive(ctx, tx, assignment.BookingID, input.Reason)
		if err != nil {
			return err
		}
		if err := repo.UpdateBooking(ctx, assignment.BookingID, map[string]any{"status": enums.BookingStatusPending}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen booking")
		}
		cancelled, err = s.loadAssignment(ctx, repo, assignment.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if event != nil {
		s.Publish(ctx, *event)
	}
	return cancelled, nil
}

// CancelActive cancels the booking's active assignment inside the caller's
// transaction. The returned event must be passed to Publish after commit.
func (s *service) CancelActive(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, reason string) (*Event, error) {
	repo := s.repo.WithTx(tx)
	active, err := repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
	}
	if active == nil {
		return nil, nil
	}
	booking, err := s.loadBooking(ctx, repo, bookingID)
	if err != nil {
		return nil, err
	}
	provider, err := repo.FindProvider(ctx, active.ProviderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}

	now := s.now().UTC()
	from := active.Status
	ok, err := repo.Transition(ctx, active.ID, from, map[string]any{
		"status":       enums.AssignmentStatusCancelled,
		"cancelled_at": now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel assignment")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "assignment changed concurrently")
	}
	active.Status = enums.AssignmentStatusCancelled
	active.CancelledAt = &now

	var reasonPtr *string
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		reasonPtr = &trimmed
	}
	event := s.eventFor(EventAssignmentCancelled, active, booking, provider, reasonPtr)
	if err := s.emit(ctx, tx, event); err != nil {
		return nil, err
	}
	s.metrics.IncTransition(string(enums.AssignmentStatusCancelled))
	return &event, nil
}

// Publish hands events to the notifier. Delivery is best effort; failures
// are logged and never undo the committed transition.
func (s *service) Publish(ctx context.Context, events ...Event) {
	for _, event := range events {
		if err := s.notifier.Notify(ctx, event); err != nil && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"event":         event.Kind,
				"assignment_id": event.AssignmentID.String(),
				"booking_id":    event.BookingID.String(),
			})
			s.logg.Error(logCtx, "assignment notification failed", err)
		}
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ServiceAssignment, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "assignment id required")
	}
	return s.loadAssignment(ctx, s.repo, id)
}

func (s *service) ActiveForBooking(ctx context.Context, bookingID uuid.UUID) (*models.ServiceAssignment, error) {
	active, err := s.repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
	}
	return active, nil
}

func (s *service) ListForProvider(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ProviderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "provider context missing")
	}
	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListByProvider(ctx, listByProviderParams{
		ProviderID: params.ProviderID,
		Statuses:   params.Statuses,
		Limit:      params.Pagination.Limit,
		Cursor:     cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.BookingID)
	}
	bookings, err := s.repo.FindBookings(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bookings")
	}
	byID := make(map[uuid.UUID]*models.Booking, len(bookings))
	for i := range bookings {
		byID[bookings[i].ID] = &bookings[i]
	}

	result := &ListResult{Jobs: make([]Job, 0, len(rows))}
	for _, row := range rows {
		result.Jobs = append(result.Jobs, Job{Assignment: row, Booking: byID[row.BookingID]})
	}
	if next != nil {
		result.NextCursor = pagination.EncodeCursor(*next)
	}
	return result, nil
}

// Rematch retries pending bookings that have no active assignment. Bookings
// locked by another worker are skipped for this run.
func (s *service) Rematch(ctx context.Context, limit int) (RematchSummary, error) {
	var summary RematchSummary
	bookings, err := s.repo.ListRematchCandidates(ctx, limit)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rematch candidates")
	}

	for _, candidate := range bookings {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Scanned++

		outcome, err := s.rematchOne(ctx, candidate.ID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) || pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
				summary.Skipped++
				continue
			}
			return summary, err
		}
		switch {
		case outcome == nil:
			summary.Skipped++
		case outcome.Assignment != nil:
			summary.Assigned++
		case outcome.BookingStatus == enums.BookingStatusUnassignable:
			summary.Unassignable++
		default:
			summary.Pending++
		}
	}
	return summary, nil
}

func (s *service) rematchOne(ctx context.Context, bookingID uuid.UUID) (*AssignOutcome, error) {
	unlock, err := s.lockBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	booking, err := s.loadBooking(ctx, s.repo, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != enums.BookingStatusPending {
		return nil, nil
	}
	active, err := s.repo.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active assignment")
	}
	if active != nil {
		return nil, nil
	}
	exclude, err := s.repo.RejectedProviderIDs(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load rejected providers")
	}
	return s.matchLocked(ctx, booking, exclude)
}

type transition struct {
	from    []enums.AssignmentStatus
	to      enums.AssignmentStatus
	event   enums.OutboxEventType
	booking enums.BookingStatus
	reason  *string
	stamp   func(a *models.ServiceAssignment, now time.Time, updates map[string]any)
	after   func(ctx context.Context, repo Repository, a *models.ServiceAssignment) error
}

func (s *service) transition(ctx context.Context, input ActionInput, t transition) (*models.ServiceAssignment, error) {
	if err := validateAction(input); err != nil {
		return nil, err
	}

	var (
		updated *models.ServiceAssignment
		event   Event
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		assignment, err := s.loadAssignment(ctx, repo, input.AssignmentID)
		if err != nil {
			return err
		}
		if assignment.ProviderID != input.ProviderID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
		}
		if !statusIn(assignment.Status, t.from) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move assignment from %s to %s", assignment.Status, t.to).
				WithDetails(map[string]any{"current": assignment.Status, "expected": t.from})
		}

		now := s.now().UTC()
		updates := map[string]any{"status": t.to}
		if t.stamp != nil {
			t.stamp(assignment, now, updates)
		}
		from := assignment.Status
		ok, err := repo.Transition(ctx, assignment.ID, from, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update assignment")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "assignment changed concurrently")
		}
		assignment.Status = t.to

		booking, err := s.loadBooking(ctx, repo, assignment.BookingID)
		if err != nil {
			return err
		}
		if t.booking != "" && booking.Status != t.booking && !booking.Status.IsTerminal() {
			if err := repo.UpdateBooking(ctx, booking.ID, map[string]any{"status": t.booking}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking status")
			}
			booking.Status = t.booking
		}
		if t.after != nil {
			if err := t.after(ctx, repo, assignment); err != nil {
				return err
			}
		}

		provider, err := repo.FindProvider(ctx, assignment.ProviderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
		}
		event = s.eventFor(t.event, assignment, booking, provider, t.reason)
		if err := s.emit(ctx, tx, event); err != nil {
			return err
		}
		updated = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(t.to))
	logCtx := s.logg.WithAssignmentID(ctx, updated.ID.String())
	logCtx = s.logg.WithBookingID(logCtx, updated.BookingID.String())
	logCtx = s.logg.WithProviderID(logCtx, updated.ProviderID.String())
	s.logg.Info(s.logg.WithField(logCtx, "status", updated.Status), "assignment status updated")
	s.Publish(ctx, event)
	return updated, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event Event) error {
	providerID := event.ProviderID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event.Kind,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   event.AssignmentID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: event.ProviderUserID, ProviderID: &providerID, Role: string(enums.UserTypeProvider)},
		Data:          event,
		OccurredAt:    event.OccurredAt,
	})
}

func (s *service) eventFor(kind enums.OutboxEventType, a *models.ServiceAssignment, booking *models.Booking, provider *models.ServiceProvider, reason *string) Event {
	return Event{
		Kind:             kind,
		AssignmentID:     a.ID,
		BookingID:        a.BookingID,
		CustomerUserID:   booking.UserID,
		ProviderID:       a.ProviderID,
		ProviderUserID:   provider.UserID,
		ProviderName:     provider.Name,
		Status:           a.Status,
		DistanceKm:       a.DistanceKm,
		EstimatedArrival: a.EstimatedArrival,
		Reason:           reason,
		OccurredAt:       s.now().UTC(),
	}
}

func (s *service) lockBooking(ctx context.Context, bookingID uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := s.locker.LockKey(bookingLockScope, bookingID.String())
	token := uuid.NewString()
	ttl := s.cfg.BookingLockTTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	acquired, err := s.locker.AcquireLock(ctx, key, token, ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire booking lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking is being matched")
	}
	return func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "booking_id", bookingID.String()), "release booking lock failed: "+err.Error())
		}
	}, nil
}

func (s *service) loadAssignment(ctx context.Context, repo Repository, id uuid.UUID) (*models.ServiceAssignment, error) {
	assignment, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}
	return assignment, nil
}

func (s *service) loadBooking(ctx context.Context, repo Repository, id uuid.UUID) (*models.Booking, error) {
	booking, err := repo.FindBooking(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

func validateAction(input ActionInput) error {
	if input.AssignmentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "assignment id required")
	}
	if input.ProviderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "provider context missing")
	}
	return nil
}

func statusIn(status enums.AssignmentStatus, allowed []enums.AssignmentStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}
