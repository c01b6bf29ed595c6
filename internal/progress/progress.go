// Package progress keeps the live progress of import runs so that status
// requests can report it while a worker is still processing rows.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fleetify/api/internal/importer"
)

var ErrNotFound = errors.New("no progress recorded")

type Tracker interface {
	Set(ctx context.Context, runID uuid.UUID, p importer.Progress) error
	Get(ctx context.Context, runID uuid.UUID) (importer.Progress, error)
}

// Redis stores progress as JSON under import:progress:<run id>.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func Key(runID uuid.UUID) string {
	return "import:progress:" + runID.String()
}

func (r *Redis) Set(ctx context.Context, runID uuid.UUID, p importer.Progress) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := r.client.Set(ctx, Key(runID), encoded, r.ttl).Err(); err != nil {
		return fmt.Errorf("store progress: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, runID uuid.UUID) (importer.Progress, error) {
	raw, err := r.client.Get(ctx, Key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return importer.Progress{}, ErrNotFound
	}
	if err != nil {
		return importer.Progress{}, fmt.Errorf("load progress: %w", err)
	}
	var p importer.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return importer.Progress{}, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}

// Memory is a process-local Tracker for tests and single-process use.
type Memory struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]importer.Progress
}

func NewMemory() *Memory {
	return &Memory{runs: map[uuid.UUID]importer.Progress{}}
}

func (m *Memory) Set(ctx context.Context, runID uuid.UUID, p importer.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[runID] = p
	return nil
}

func (m *Memory) Get(ctx context.Context, runID uuid.UUID) (importer.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.runs[runID]
	if !ok {
		return importer.Progress{}, ErrNotFound
	}
	return p, nil
}
