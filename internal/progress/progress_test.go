package progress

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fleetify/api/internal/importer"
)

func exerciseTracker(t *testing.T, tracker Tracker) {
	t.Helper()
	ctx := context.Background()
	runID := uuid.New()

	if _, err := tracker.Get(ctx, runID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any update, got %v", err)
	}
	if err := tracker.Set(ctx, runID, importer.Progress{Processed: 1, Total: 4, Percent: 25}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := tracker.Set(ctx, runID, importer.Progress{Processed: 2, Total: 4, Percent: 50}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := tracker.Get(ctx, runID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != (importer.Progress{Processed: 2, Total: 4, Percent: 50}) {
		t.Fatalf("expected the latest progress, got %+v", got)
	}
}

func TestMemoryTracker(t *testing.T) {
	exerciseTracker(t, NewMemory())
}

func TestRedisTracker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("ping redis: %v", err)
	}

	tracker := NewRedis(client, time.Minute)
	exerciseTracker(t, tracker)

	runID := uuid.New()
	if err := tracker.Set(context.Background(), runID, importer.Progress{Processed: 1, Total: 1, Percent: 100}); err != nil {
		t.Fatalf("set: %v", err)
	}
	ttl, err := client.TTL(context.Background(), Key(runID)).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected a ttl of at most a minute, got %s (%v)", ttl, err)
	}
}
