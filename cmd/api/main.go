package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/autocare/autocare-backend/api/routes"
	"github.com/autocare/autocare-backend/internal/addresses"
	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/auth"
	"github.com/autocare/autocare-backend/internal/bookings"
	"github.com/autocare/autocare-backend/internal/matching"
	"github.com/autocare/autocare-backend/internal/notifications"
	"github.com/autocare/autocare-backend/internal/providers"
	"github.com/autocare/autocare-backend/internal/realtime"
	"github.com/autocare/autocare-backend/internal/serviceareas"
	"github.com/autocare/autocare-backend/internal/users"
	"github.com/autocare/autocare-backend/pkg/auth/session"
	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/metrics"
	"github.com/autocare/autocare-backend/pkg/migrate"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	gormDB := dbClient.DB()
	outboxRepo := outbox.NewRepository(gormDB)
	outboxService := outbox.NewService(outboxRepo, logg)
	deadLetters := outbox.NewDeadLetters(dbClient, outboxRepo, outbox.NewDLQRepository(gormDB), logg)
	hub := realtime.NewHub(logg)

	areaService, err := serviceareas.NewService(serviceareas.NewRepository(gormDB), float64(cfg.Booking.DefaultAreaRadius), logg)
	if err != nil {
		logg.Error(ctx, "failed to create service area service", err)
		os.Exit(1)
	}

	userRepo := users.NewRepository(gormDB)
	userService, err := users.NewService(userRepo, logg)
	if err != nil {
		logg.Error(ctx, "failed to create users service", err)
		os.Exit(1)
	}

	addressService, err := addresses.NewService(addresses.Deps{
		Repo:     addresses.NewRepository(gormDB),
		Tx:       dbClient,
		Coverage: areaService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create address service", err)
		os.Exit(1)
	}

	matchingMetrics := metrics.NewMatchingMetrics(prometheus.DefaultRegisterer)
	policy, err := matching.PolicyFromConfig(cfg.Matching)
	if err != nil {
		logg.Error(ctx, "invalid matching policy", err)
		os.Exit(1)
	}
	locator, err := matching.NewLocator(matching.NewRepository(gormDB), policy, matching.LocatorOptions{
		StaleAfter: cfg.Matching.LocationStaleAfter,
		Logger:     logg,
		Metrics:    matchingMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create provider locator", err)
		os.Exit(1)
	}

	assignmentService, err := assignments.NewService(assignments.Deps{
		Repo:     assignments.NewRepository(gormDB),
		Tx:       dbClient,
		Outbox:   outboxService,
		Ranker:   locator,
		Locker:   redisClient,
		Notifier: notifications.NewFanout(hub),
		Config:   cfg.Matching,
		Logger:   logg,
		Metrics:  matchingMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create assignment service", err)
		os.Exit(1)
	}

	providerRepo := providers.NewRepository(gormDB)
	providerService, err := providers.NewService(providers.Deps{
		Repo:   providerRepo,
		Tx:     dbClient,
		Outbox: outboxService,
		Geo:    providers.NewGeoIndex(redisClient),
		Jobs:   assignmentService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create provider service", err)
		os.Exit(1)
	}

	bookingService, err := bookings.NewService(bookings.Deps{
		Repo:     bookings.NewRepository(gormDB),
		Tx:       dbClient,
		Outbox:   outboxService,
		Coverage: areaService,
		Assigner: assignmentService,
		Config:   cfg.Booking,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create booking service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		Providers:      providerRepo,
		OTPStore:       redisClient,
		Sender:         auth.NewLogSender(logg, !cfg.App.IsProd()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		OTPConfig:      cfg.OTP,
		ExposeOTP:      cfg.OTP.ExposeInResponse && !cfg.App.IsProd(),
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:  dbClient,
		Providers: providerService,
		OTP:       authService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create register service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(gormDB))
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("HOSTNAME")
	if id == "" {
		id = "local"
	}
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, sessionManager, hub, routes.Services{
			Metrics:      metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
			Auth:         authService,
			Register:     registerService,
			Users:        userService,
			Addresses:    addressService,
			ServiceAreas: areaService,
			Bookings:     bookingService,
			Providers:    providerService,
			Assignments:  assignmentService,
			Notify:       notificationService,
			DeadLetters:  deadLetters,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "graceful shutdown failed", err)
		}
	}
}
