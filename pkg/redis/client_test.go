package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/tabkeeper-backend/pkg/errors"
)

func TestIdempotencyRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.IdempotencyKey("POST|/api/v1/purchases", "abc")
	ok, err := client.SetNX(ctx, key, "first", time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "second", time.Hour)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to lose, ok=%v err=%v", ok, err)
	}
	got, err := client.Get(ctx, key)
	if err != nil || got != "first" {
		t.Fatalf("expected stored value first, got %q err=%v", got, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}

	if err := client.Publish(context.Background(), "tally.events", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(mock.published["tally.events"]) != 1 {
		t.Fatalf("expected one published message, got %d", len(mock.published["tally.events"]))
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "tally:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.LockKey("product", "p1"); got != "tally:lock:product:p1" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("", "id"); got != "tally:idempotency:id" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestLockerMapsNotObtainedToConflict(t *testing.T) {
	locker := newLocker(obtainerFunc(func(context.Context, string, time.Duration, *redislock.Options) (*redislock.Lock, error) {
		return nil, redislock.ErrNotObtained
	}), (&Client{}).LockKey, time.Second, time.Millisecond, nil)

	release, err := locker.Lock(context.Background(), "product", "p1")
	if release != nil {
		t.Fatal("expected no release func on failure")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLockerMapsBackendFailureToDependency(t *testing.T) {
	var gotKey string
	locker := newLocker(obtainerFunc(func(_ context.Context, key string, _ time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
		gotKey = key
		return nil, errors.New("connection refused")
	}), (&Client{}).LockKey, 0, 0, nil)

	_, err := locker.Lock(context.Background(), "product", "p1")
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if gotKey != "tally:lock:product:p1" {
		t.Fatalf("unexpected lock key %s", gotKey)
	}
	if locker.ttl != 10*time.Second || locker.interval != 50*time.Millisecond {
		t.Fatalf("expected defaults, got ttl=%s interval=%s", locker.ttl, locker.interval)
	}
}

type obtainerFunc func(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)

func (f obtainerFunc) Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error) {
	return f(ctx, key, ttl, opt)
}

type mockCmdable struct {
	data      map[string]string
	published map[string][]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:      make(map[string]string),
		published: make(map[string][]string),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published[channel] = append(m.published[channel], fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}
