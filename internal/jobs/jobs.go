// Package jobs queues import runs on asynq and executes them in the worker.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/fleetify/api/internal/runs"
)

const (
	TypeImportRun = "import:run"
	QueueImports  = "imports"
)

type ImportPayload struct {
	RunID    uuid.UUID `json:"runId"`
	TenantID uuid.UUID `json:"tenantId"`
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewImportTask builds the task for a queued run. Imports are not retried:
// a half-applied run must be inspected, not replayed.
func NewImportTask(payload ImportPayload, timeout time.Duration) (*asynq.Task, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode import payload: %w", err)
	}
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.Queue(QueueImports), asynq.TaskID(payload.RunID.String())}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeImportRun, encoded, opts...), nil
}

func EnqueueImport(ctx context.Context, q Enqueuer, payload ImportPayload, timeout time.Duration) error {
	task, err := NewImportTask(payload, timeout)
	if err != nil {
		return err
	}
	if _, err := q.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue import run %s: %w", payload.RunID, err)
	}
	return nil
}

type Handler struct {
	runs     *runs.Repository
	executor *runs.Executor
	logger   *slog.Logger
}

func NewHandler(repo *runs.Repository, executor *runs.Executor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{runs: repo, executor: executor, logger: logger}
}

func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload ImportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode import payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RunID == uuid.Nil || payload.TenantID == uuid.Nil {
		return fmt.Errorf("import payload without run or tenant: %w", asynq.SkipRetry)
	}

	run, err := h.runs.Get(ctx, payload.TenantID, payload.RunID)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if run.Status.Finished() {
		h.logger.Info("import_run_already_finished", "run_id", run.ID.String(), "status", string(run.Status))
		return nil
	}
	job, err := h.runs.Job(ctx, payload.TenantID, payload.RunID)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	h.logger.Info("import_run_started", "run_id", run.ID.String(), "tenant_id", run.TenantID.String(), "kind", run.Kind, "rows", len(job.Rows))
	done, err := h.executor.Execute(ctx, run, job)
	if errors.Is(err, runs.ErrFinished) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("import run %s: %v: %w", run.ID, err, asynq.SkipRetry)
	}
	h.logger.Info("import_run_finished", "run_id", done.ID.String(), "status", string(done.Status))
	return nil
}

func Register(mux *asynq.ServeMux, h *Handler) {
	mux.Handle(TypeImportRun, h)
}
