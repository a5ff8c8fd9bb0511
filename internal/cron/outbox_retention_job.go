package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	OutboxRetentionJobName = "outbox_retention"

	defaultPublishedRetention  = 30 * 24 * time.Hour
	defaultDeadLetterRetention = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionParams configure the outbox retention job.
type OutboxRetentionParams struct {
	Tx                  txRunner
	Outbox              publishedPruner
	DeadLetters         deadLetterPruner
	PublishedRetention  time.Duration
	DeadLetterRetention time.Duration
	Clock               func() time.Time
}

// OutboxRetentionJob deletes delivered outbox events and stale dead letters.
// Unpublished events are never touched.
type OutboxRetentionJob struct {
	tx                  txRunner
	outbox              publishedPruner
	deadLetters         deadLetterPruner
	publishedRetention  time.Duration
	deadLetterRetention time.Duration
	clock               func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionParams) (*OutboxRetentionJob, error) {
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox repository required")
	}
	published := params.PublishedRetention
	if published <= 0 {
		published = defaultPublishedRetention
	}
	deadLetter := params.DeadLetterRetention
	if deadLetter <= 0 {
		deadLetter = defaultDeadLetterRetention
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &OutboxRetentionJob{
		tx:                  params.Tx,
		outbox:              params.Outbox,
		deadLetters:         params.DeadLetters,
		publishedRetention:  published,
		deadLetterRetention: deadLetter,
		clock:               clock,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return OutboxRetentionJobName }

func (j *OutboxRetentionJob) Run(ctx context.Context) (int64, error) {
	now := j.clock().UTC()
	var total int64
	err := j.tx.WithTx(ctx, func(tx *gorm.DB) error {
		deleted, err := j.outbox.DeletePublishedBefore(ctx, tx, now.Add(-j.publishedRetention))
		if err != nil {
			return err
		}
		total += deleted
		if j.deadLetters == nil {
			return nil
		}
		deleted, err = j.deadLetters.DeleteFailedBefore(ctx, tx, now.Add(-j.deadLetterRetention))
		if err != nil {
			return err
		}
		total += deleted
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
