package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/tabkeeper-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tabkeeper-backend/pkg/db/models"
	"github.com/angelmondragon/tabkeeper-backend/pkg/enums"
	"github.com/angelmondragon/tabkeeper-backend/pkg/outbox"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client, conn := dbtest.Client(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, nil)

	aggregateID := uuid.New()
	userID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   aggregateID,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data:          map[string]string{"amount": "4.00"},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, aggregateID, rows[0].AggregateID)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, userID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"amount":"4.00"}`, string(envelope.Data))

	pending, err := repo.CountPending()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	client, conn := dbtest.Client(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventBatchAdded,
			AggregateType: enums.AggregateBatch,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownTypesAndMissingTx(t *testing.T) {
	svc := outbox.NewService(outbox.NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, outbox.DomainEvent{})
	require.Error(t, err)

	_, conn := dbtest.Client(t)
	err = svc.Emit(context.Background(), conn, outbox.DomainEvent{
		EventType:     enums.OutboxEventType("nope"),
		AggregateType: enums.AggregateBatch,
	})
	require.Error(t, err)
}

func TestPublishBookkeeping(t *testing.T) {
	client, conn := dbtest.Client(t)
	repo := outbox.NewRepository(conn)
	svc := outbox.NewService(repo, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventBatchAdded,
				AggregateType: enums.AggregateBatch,
				AggregateID:   uuid.New(),
				Data:          map[string]int{"n": i},
			})
		}))
	}

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 2)
		if err != nil {
			return err
		}
		require.Len(t, rows, 3)
		if err := repo.MarkPublishedTx(tx, rows[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, rows[1].ID, errors.New("redis down")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, rows[2].ID, errors.New("bad payload"), 2)
	}))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 2)
		if err != nil {
			return err
		}
		require.Len(t, rows, 1)
		assert.Equal(t, 1, rows[0].AttemptCount)
		require.NotNil(t, rows[0].LastError)
		assert.Equal(t, "redis down", *rows[0].LastError)
		return nil
	}))
}

func TestDLQInsertIsIdempotentPerEvent(t *testing.T) {
	client, conn := dbtest.Client(t)
	dlq := outbox.NewDLQRepository(conn)
	msg := "decode payload"
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventTabSettled,
		AggregateType: enums.AggregateUser,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			return dlq.InsertTx(tx, entry)
		}))
	}

	rows, err := dlq.List(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, entry.EventID, rows[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, rows[0].ErrorReason)
}
