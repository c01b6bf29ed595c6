package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/progress"
	"github.com/fleetify/api/internal/runs"
	"github.com/fleetify/api/internal/store"
)

type recordingQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: uuid.NewString(), Queue: QueueImports, Type: task.Type()}, nil
}

func newHandler(t *testing.T) (*Handler, *runs.Repository, store.Store, *progress.Memory) {
	t.Helper()
	catalog, err := importer.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	s := store.NewMemory()
	tracker := progress.NewMemory()
	repo := runs.NewRepository(s)
	exec := runs.NewExecutor(repo, importer.New(s, catalog), tracker, nil)
	return NewHandler(repo, exec, nil), repo, s, tracker
}

func TestEnqueueImport(t *testing.T) {
	q := &recordingQueue{}
	payload := ImportPayload{RunID: uuid.New(), TenantID: uuid.New()}
	if err := EnqueueImport(context.Background(), q, payload, time.Minute); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(q.tasks) != 1 || q.tasks[0].Type() != TypeImportRun {
		t.Fatalf("expected one import task, got %v", q.tasks)
	}
	var decoded ImportPayload
	if err := json.Unmarshal(q.tasks[0].Payload(), &decoded); err != nil || decoded != payload {
		t.Fatalf("payload did not round trip: %+v %v", decoded, err)
	}

	q.err = errors.New("redis down")
	if err := EnqueueImport(context.Background(), q, payload, 0); err == nil {
		t.Fatalf("expected enqueue failure to surface")
	}
}

func TestProcessTaskRunsQueuedImport(t *testing.T) {
	ctx := context.Background()
	h, repo, s, tracker := newHandler(t)
	tenantID := uuid.New()
	job := importer.Job{
		Kind:    "payments",
		UserID:  uuid.New(),
		Options: importer.Options{TargetTenantID: tenantID.String()},
		Rows: []importer.Row{
			{Number: 2, Values: map[string]string{"amount": "10", "payment_date": "2025-01-15"}},
			{Number: 3, Values: map[string]string{"amount": "20", "payment_date": "2025-01-16"}},
		},
	}
	run, err := repo.Create(ctx, tenantID, job, true)
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	task, err := NewImportTask(ImportPayload{RunID: run.ID, TenantID: tenantID}, 0)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(ctx, task); err != nil {
		t.Fatalf("process: %v", err)
	}

	done, err := repo.Get(ctx, tenantID, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if done.Status != runs.StatusCompleted || done.Result.Successful != 2 {
		t.Fatalf("unexpected run %+v", done)
	}
	payments, _ := s.Find(ctx, tenantID, "payments", store.Filter{})
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(payments))
	}
	if p, err := tracker.Get(ctx, run.ID); err != nil || p.Percent != 100 {
		t.Fatalf("expected final progress, got %+v %v", p, err)
	}

	if err := h.ProcessTask(ctx, task); err != nil {
		t.Fatalf("a finished run should be acknowledged, got %v", err)
	}
	if payments, _ := s.Find(ctx, tenantID, "payments", store.Filter{}); len(payments) != 2 {
		t.Fatalf("rerun must not import again, got %d payments", len(payments))
	}
}

func TestProcessTaskSkipsRetryOnBadInput(t *testing.T) {
	h, _, _, _ := newHandler(t)
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "malformed", payload: []byte(`{"runId":`)},
		{name: "missing ids", payload: []byte(`{}`)},
		{name: "unknown run", payload: []byte(`{"runId":"` + uuid.NewString() + `","tenantId":"` + uuid.NewString() + `"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.ProcessTask(context.Background(), asynq.NewTask(TypeImportRun, tt.payload))
			if !errors.Is(err, asynq.SkipRetry) {
				t.Fatalf("expected SkipRetry, got %v", err)
			}
		})
	}
}
