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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tabkeeper-backend/api/routes"
	"github.com/angelmondragon/tabkeeper-backend/internal/allocator"
	"github.com/angelmondragon/tabkeeper-backend/internal/balances"
	"github.com/angelmondragon/tabkeeper-backend/internal/batches"
	"github.com/angelmondragon/tabkeeper-backend/internal/catalog"
	"github.com/angelmondragon/tabkeeper-backend/internal/ledger"
	"github.com/angelmondragon/tabkeeper-backend/internal/payments"
	"github.com/angelmondragon/tabkeeper-backend/pkg/config"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/metrics"
	"github.com/angelmondragon/tabkeeper-backend/pkg/migrate"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
	"github.com/angelmondragon/tabkeeper-backend/pkg/redis"
	"github.com/angelmondragon/tabkeeper-backend/pkg/types"
)

const (
	serviceName     = "tally-api"
	shutdownTimeout = 10 * time.Second
)

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
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	// Redis is optional: without it writes are not replayed by the idempotency
	// middleware and product locks stay in the database.
	var (
		redisPinger redis.Pinger
		idemStore   redis.IdempotencyStore
		locker      redis.Locker
	)
	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(bootCtx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		redisPinger, idemStore = redisClient, redisClient

		if cfg.Ledger.DistributedLocks {
			redisLocker, lockErr := redis.NewLocker(redisClient, cfg.Ledger.LockTTL, cfg.Ledger.LockRetryInterval, logg)
			if lockErr != nil {
				return lockErr
			}
			locker = redisLocker
		}
	} else {
		logg.Warn(bootCtx, "redis disabled; idempotent replay and distributed locks are off")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(reg)

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	clock := types.SystemClock
	batchRepo := batches.NewRepository(conn)
	catalogRepo := catalog.NewRepository(conn)
	paymentRepo := payments.NewRepository(conn)

	alloc, err := allocator.NewService(batchRepo, catalogRepo)
	if err != nil {
		return err
	}
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:      ledger.NewRepository(conn),
		Batches:   batchRepo,
		Catalog:   catalogRepo,
		Allocator: alloc,
		Tx:        dbClient,
		Outbox:    emitter,
		Locker:    locker,
		Metrics:   ledgerMetrics,
		Logger:    logg,
		Clock:     clock,
		Config:    cfg.Ledger,
	})
	if err != nil {
		return err
	}
	batchSvc, err := batches.NewService(batches.ServiceParams{
		Repo:      batchRepo,
		Catalog:   catalogRepo,
		Projector: alloc,
		Tx:        dbClient,
		Outbox:    emitter,
		Logger:    logg,
		Clock:     clock,
	})
	if err != nil {
		return err
	}
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:    paymentRepo,
		Catalog: catalogRepo,
		Tx:      dbClient,
		Outbox:  emitter,
		Logger:  logg,
		Clock:   clock,
	})
	if err != nil {
		return err
	}
	balanceSvc, err := balances.NewService(balances.ServiceParams{
		Repo:     balances.NewRepository(conn),
		Payments: paymentRepo,
		Catalog:  catalogRepo,
		Tx:       dbClient,
		Outbox:   emitter,
		Metrics:  ledgerMetrics,
		Logger:   logg,
		Clock:    clock,
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	ctx := logg.WithFields(bootCtx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"undo_scope": cfg.Ledger.UndoScope,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisPinger, idemStore, reg, routes.Services{
			Ledger:   ledgerSvc,
			Batches:  batchSvc,
			Planner:  alloc,
			Balances: balanceSvc,
			Payments: paymentSvc,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
