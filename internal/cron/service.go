package cron

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
	"github.com/angelmondragon/tabkeeper-backend/pkg/logger"
	"github.com/angelmondragon/tabkeeper-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/tabkeeper-backend/pkg/redis"
)

const (
	defaultInterval    = time.Hour
	defaultLockTimeout = 2 * time.Second

	lockScope = "cron"
)

// ServiceParams configure the cron service. A nil Locker runs every cycle unguarded,
// which is only safe with a single worker.
type ServiceParams struct {
	Logger      *logger.Logger
	Registry    *Registry
	Locker      pkgredis.Locker
	LockID      string
	Metrics     *metrics.CronJobMetrics
	Interval    time.Duration
	LockTimeout time.Duration
	Clock       func() time.Time
}

// Service executes registered cron jobs on a fixed cadence.
type Service struct {
	logg        *logger.Logger
	registry    *Registry
	locker      pkgredis.Locker
	lockID      string
	metrics     *metrics.CronJobMetrics
	interval    time.Duration
	lockTimeout time.Duration
	clock       func() time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	lockTimeout := params.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	lockID := params.LockID
	if lockID == "" {
		lockID = "default"
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		logg:        params.Logger,
		registry:    registry,
		locker:      params.Locker,
		lockID:      lockID,
		metrics:     params.Metrics,
		interval:    interval,
		lockTimeout: lockTimeout,
		clock:       clock,
	}, nil
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	if s.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
		release, err := s.locker.Lock(lockCtx, lockScope, s.lockID)
		cancel()
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
				return nil
			}
			return fmt.Errorf("lock acquire: %w", err)
		}
		defer release()
	}

	s.logg.Info(ctx, "scheduled run starting")
	for _, job := range s.registry.Jobs() {
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{
		"job":   job.Name(),
		"event": "cron.job",
	})
	s.logg.Info(jobCtx, "job start")
	start := s.clock()
	rows, err := job.Run(jobCtx)
	duration := s.clock().Sub(start)
	s.metrics.Observe(job.Name(), rows, duration, err)
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": duration.Milliseconds(),
		"rows":        rows,
	})
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}
