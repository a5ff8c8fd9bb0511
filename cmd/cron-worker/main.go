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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tabkeeper-backend/internal/allocator"
	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/internal/cron"
	"github.com/angelmondragon/tabkeeper-backend/pkg/config"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/metrics"
	"github.com/angelmondragon/tabkeeper-backend/pkg/migrate"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
	"github.com/angelmondragon/tabkeeper-backend/pkg/redis"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

const serviceName = "tally-cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(context.Background(), "cron worker shutting down gracefully")
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		return err
	}

	params := cron.ServiceParams{
		Logger:      logg,
		LockID:      cfg.App.Env,
		Interval:    cfg.Cron.Interval,
		LockTimeout: cfg.Cron.LockTimeout,
	}

	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(context.Background(), cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		locker, lockErr := redis.NewLocker(redisClient, cfg.Cron.Interval, cfg.Ledger.LockRetryInterval, logg)
		if lockErr != nil {
			return lockErr
		}
		params.Locker = locker
	} else {
		logg.Warn(context.Background(), "redis not configured; cron cycles run without a lock")
	}

	conn := dbClient.DB()
	catalogRepo := catalog.NewRepository(conn)
	projector, err := allocator.NewService(batches.NewRepository(conn), catalogRepo)
	if err != nil {
		return err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionParams{
		Tx:                  dbClient,
		Outbox:              outbox.NewRepository(conn),
		DeadLetters:         outbox.NewDLQRepository(conn),
		PublishedRetention:  time.Duration(cfg.Cron.OutboxRetentionDays) * 24 * time.Hour,
		DeadLetterRetention: time.Duration(cfg.Cron.DeadLetterRetentionDays) * 24 * time.Hour,
		Clock:               types.SystemClock,
	})
	if err != nil {
		return err
	}
	pricing, err := cron.NewPriceProjectionJob(cron.PriceProjectionParams{
		Tx:        dbClient,
		Catalog:   catalogRepo,
		Projector: projector,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	params.Registry = cron.NewRegistry(retention, pricing)
	params.Metrics = metrics.NewCronJobMetrics(reg)
	service, err := cron.NewService(params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	runErr := service.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "metrics listener shutdown failed", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
