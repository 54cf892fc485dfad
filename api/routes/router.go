package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autocare/autocare-backend/api/controllers"
	"github.com/autocare/autocare-backend/api/middleware"
	"github.com/autocare/autocare-backend/internal/addresses"
	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/auth"
	"github.com/autocare/autocare-backend/internal/bookings"
	"github.com/autocare/autocare-backend/internal/notifications"
	"github.com/autocare/autocare-backend/internal/providers"
	"github.com/autocare/autocare-backend/internal/realtime"
	"github.com/autocare/autocare-backend/internal/serviceareas"
	"github.com/autocare/autocare-backend/internal/users"
	"github.com/autocare/autocare-backend/pkg/auth/session"
	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/db/models"
	"github.com/autocare/autocare-backend/pkg/enums"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/metrics"
	"github.com/autocare/autocare-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(ctx context.Context, oldAccessID string, userID uuid.UUID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// Services groups the domain services exposed over HTTP. A nil service
// still gets its routes; the handlers answer 500. Metrics may be nil.
type Services struct {
	Metrics *metrics.HTTPMetrics

	Auth         auth.Service
	Register     auth.RegisterService
	Users        users.Service
	Addresses    addresses.Service
	ServiceAreas serviceareas.Service
	Bookings     bookings.Service
	Providers    providers.Service
	Assignments  assignments.Service
	Notify       notifications.Service
	DeadLetters  controllers.DeadLetterService
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	sessions sessionManager,
	hub *realtime.Hub,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	// Recoverer sits inside Logging so a recovered panic is still logged and counted as a 500.
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg, svc.Metrics),
		middleware.Recoverer(logg, svc.Metrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	sendOTPPolicy := middleware.NewAuthRateLimitPolicy(
		"otp_send",
		cfg.AuthRateLimit.OTPSendWindow,
		cfg.AuthRateLimit.OTPSendIPLimit,
		cfg.AuthRateLimit.OTPSendMobileLimit,
	)
	verifyOTPPolicy := middleware.NewAuthRateLimitPolicy(
		"otp_verify",
		cfg.AuthRateLimit.OTPVerifyWindow,
		cfg.AuthRateLimit.OTPVerifyIPLimit,
		cfg.AuthRateLimit.OTPVerifyMobileLimit,
	)

	readiness := map[string]controllers.Pinger{"postgres": dbP}
	var (
		limiter middleware.RateLimiterStore
		idem    redis.IdempotencyStore
	)
	if redisClient != nil {
		readiness["redis"] = redisClient
		limiter = redisClient
		idem = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(sendOTPPolicy, limiter, logg)).Post("/send-otp", controllers.AuthSendOTP(svc.Auth, logg))
		r.With(middleware.AuthRateLimit(verifyOTPPolicy, limiter, logg)).Post("/verify-otp", controllers.AuthVerifyOTP(svc.Auth, logg))
		r.With(middleware.AuthRateLimit(sendOTPPolicy, limiter, logg)).Post("/provider/register", controllers.AuthRegisterProvider(svc.Register, logg))
		r.Post("/refresh", controllers.AuthRefresh(sessions, cfg.JWT, logg))
		r.Post("/logout", controllers.AuthLogout(sessions, cfg.JWT, logg))
	})

	r.Route("/api/v1/providers/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(sendOTPPolicy, limiter, logg)).Post("/register", controllers.AuthRegisterProvider(svc.Register, logg))
		r.With(middleware.AuthRateLimit(sendOTPPolicy, limiter, logg)).Post("/login", controllers.ProviderSendOTP(svc.Auth, logg))
		r.With(middleware.AuthRateLimit(verifyOTPPolicy, limiter, logg)).Post("/verify-otp", controllers.ProviderVerifyOTP(svc.Auth, logg))
	})

	r.Route("/api/v1/service-areas", func(r chi.Router) {
		r.Get("/", controllers.ServiceAreaList(svc.ServiceAreas, true, logg))
		r.Get("/check", controllers.ServiceAreaCheck(svc.ServiceAreas, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.Idempotency(idem, logg))

		r.Get("/ws", controllers.RealtimeConnect(hub, cfg.CORS.AllowedOrigins, logg))

		r.Get("/users/me", controllers.UserProfile(svc.Users, logg))
		r.Put("/users/me", controllers.UserUpdateProfile(svc.Users, logg))
		r.Patch("/users/me", controllers.UserUpdateProfile(svc.Users, logg))

		r.Get("/addresses", controllers.AddressList(svc.Addresses, logg))
		r.Post("/addresses", controllers.AddressCreate(svc.Addresses, logg))
		r.Get("/addresses/{addressId}", controllers.AddressGet(svc.Addresses, logg))
		r.Put("/addresses/{addressId}", controllers.AddressUpdate(svc.Addresses, logg))
		r.Delete("/addresses/{addressId}", controllers.AddressDelete(svc.Addresses, logg))
		r.Post("/addresses/{addressId}/default", controllers.AddressSetDefault(svc.Addresses, logg))

		r.Get("/bookings", controllers.BookingList(svc.Bookings, logg))
		r.Post("/bookings", controllers.BookingCreate(svc.Bookings, logg))
		r.Get("/bookings/time-slots", controllers.BookingTimeSlots(svc.Bookings, logg))
		r.Get("/bookings/stats", controllers.BookingStats(svc.Bookings, logg))
		r.Get("/bookings/{bookingId}", controllers.BookingDetail(svc.Bookings, logg))
		r.Post("/bookings/{bookingId}/cancel", controllers.BookingCancel(svc.Bookings, logg))

		r.Get("/notifications", controllers.ListNotifications(svc.Notify, logg))
		r.Post("/notifications/read-all", controllers.MarkAllNotificationsRead(svc.Notify, logg))
		r.Post("/notifications/{notificationId}/read", controllers.MarkNotificationRead(svc.Notify, logg))

		r.Route("/provider", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.UserTypeProvider)))
			r.Get("/profile", controllers.ProviderProfile(svc.Providers, logg))
			r.Put("/profile", controllers.ProviderUpdateProfile(svc.Providers, logg))
			r.Patch("/profile", controllers.ProviderUpdateProfile(svc.Providers, logg))
			r.Post("/location", controllers.ProviderUpdateLocation(svc.Providers, logg))
			r.Put("/location", controllers.ProviderUpdateLocation(svc.Providers, logg))
			r.Post("/availability/toggle", controllers.ProviderToggleAvailability(svc.Providers, logg))
			r.Get("/assignments", controllers.ProviderAssignments(svc.Providers, logg))
			r.Get("/jobs/available", controllers.ProviderAvailableJobs(svc.Providers, logg))
			r.Get("/assignments/{assignmentId}", controllers.ProviderAssignmentDetail(svc.Assignments, logg))
			r.Post("/assignments/{assignmentId}/accept", controllers.ProviderAssignmentAction(assignmentAction(svc.Assignments, transitionAccept), logg))
			r.Post("/assignments/{assignmentId}/reject", controllers.ProviderAssignmentReject(svc.Assignments, logg))
			r.Post("/assignments/{assignmentId}/action", controllers.ProviderAssignmentDecision(svc.Assignments, logg))
			r.Post("/assignments/{assignmentId}/en-route", controllers.ProviderAssignmentAction(assignmentAction(svc.Assignments, transitionEnRoute), logg))
			r.Post("/assignments/{assignmentId}/start", controllers.ProviderAssignmentAction(assignmentAction(svc.Assignments, transitionStart), logg))
			r.Post("/assignments/{assignmentId}/complete", controllers.ProviderAssignmentComplete(svc.Assignments, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, string(enums.UserTypeAdmin)))
			r.Get("/service-areas", controllers.ServiceAreaList(svc.ServiceAreas, false, logg))
			r.Post("/service-areas", controllers.AdminServiceAreaCreate(svc.ServiceAreas, logg))
			r.Patch("/service-areas/{areaId}", controllers.AdminServiceAreaUpdate(svc.ServiceAreas, logg))
			r.Delete("/service-areas/{areaId}", controllers.AdminServiceAreaDelete(svc.ServiceAreas, logg))
			r.Get("/providers/nearby", controllers.AdminNearbyProviders(svc.Providers, logg))
			r.Post("/providers/{providerId}/verification", controllers.AdminVerifyProvider(svc.Providers, logg))
			r.Post("/assignments", controllers.AdminAssignProvider(svc.Assignments, logg))
			r.Post("/assignments/{assignmentId}/cancel", controllers.AdminCancelAssignment(svc.Assignments, logg))
			r.Post("/rematch", controllers.AdminRematch(svc.Assignments, cfg.Cron.RematchBatchSize, logg))
			r.Get("/outbox/dead-letters", controllers.AdminDeadLetters(svc.DeadLetters, logg))
			r.Post("/outbox/dead-letters/{eventId}/replay", controllers.AdminReplayDeadLetter(svc.DeadLetters, logg))
		})
	})

	return r
}

type transitionKind int

const (
	transitionAccept transitionKind = iota
	transitionEnRoute
	transitionStart
)

// assignmentAction resolves the lifecycle method lazily so a nil service
// yields a nil action instead of a panic at wiring time.
func assignmentAction(svc assignments.Service, kind transitionKind) func(context.Context, assignments.ActionInput) (*models.ServiceAssignment, error) {
	if svc == nil {
		return nil
	}
	switch kind {
	case transitionAccept:
		return svc.Accept
	case transitionEnRoute:
		return svc.MarkEnRoute
	default:
		return svc.Start
	}
}
