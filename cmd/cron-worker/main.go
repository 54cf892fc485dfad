package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/autocare/autocare-backend/internal/assignments"
	"github.com/autocare/autocare-backend/internal/cron"
	"github.com/autocare/autocare-backend/internal/matching"
	"github.com/autocare/autocare-backend/internal/notifications"
	"github.com/autocare/autocare-backend/pkg/config"
	"github.com/autocare/autocare-backend/pkg/db"
	"github.com/autocare/autocare-backend/pkg/logger"
	"github.com/autocare/autocare-backend/pkg/metrics"
	"github.com/autocare/autocare-backend/pkg/migrate"
	"github.com/autocare/autocare-backend/pkg/outbox"
	"github.com/autocare/autocare-backend/pkg/redis"
)

const lockPrefixFormat = "ac:cron:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	matchingMetrics := metrics.NewMatchingMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockPrefix(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	policy, err := matching.PolicyFromConfig(cfg.Matching)
	if err != nil {
		logg.Error(context.Background(), "invalid matching policy", err)
		os.Exit(1)
	}
	locator, err := matching.NewLocator(matching.NewRepository(dbClient.DB()), policy, matching.LocatorOptions{
		StaleAfter: cfg.Matching.LocationStaleAfter,
		Logger:     logg,
		Metrics:    matchingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create provider locator", err)
		os.Exit(1)
	}
	outboxRepo := outbox.NewRepository(dbClient.DB())
	// notifications reach users through the outbox; the websocket hub lives in the api process
	assignmentService, err := assignments.NewService(assignments.Deps{
		Repo:    assignments.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Ranker:  locator,
		Locker:  redisClient,
		Config:  cfg.Matching,
		Logger:  logg,
		Metrics: matchingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment service", err)
		os.Exit(1)
	}

	rematchJob, err := cron.NewRematchJob(cron.RematchJobParams{
		Logger:    logg,
		Matcher:   assignmentService,
		BatchSize: cfg.Cron.RematchBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create rematch job", err)
		os.Exit(1)
	}
	notificationCleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.NotificationRetention,
		BatchSize:  cfg.Cron.CleanupBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}
	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		DeadLetters: outbox.NewDLQRepository(dbClient.DB()),
		Retention:   cfg.Cron.OutboxPublishedRetention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registry.RegisterEvery(rematchJob, cfg.Cron.RematchEvery)
	registry.RegisterEvery(notificationCleanupJob, cfg.Cron.CleanupEvery)
	registry.RegisterEvery(outboxRetentionJob, cfg.Cron.CleanupEvery)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Tick:     cfg.Cron.Tick,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg)
	})
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockPrefix(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockPrefixFormat, env)
}
