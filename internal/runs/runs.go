// Package runs persists import runs: what was requested, how far it got
// and the final result, so that queued imports can be picked up by a
// worker and every run can be inspected afterwards.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/store"
)

const Entity = "import_runs"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Finished reports whether the run can no longer change.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeApply  Mode = "apply"
)

func ModeFor(opts importer.Options) Mode {
	if opts.DryRun {
		return ModeDryRun
	}
	return ModeApply
}

var ErrFinished = errors.New("import run already finished")

type Run struct {
	ID         uuid.UUID          `json:"id"`
	TenantID   uuid.UUID          `json:"tenantId"`
	Kind       string             `json:"kind"`
	Mode       Mode               `json:"mode"`
	Status     Status             `json:"status"`
	Options    importer.Options   `json:"options"`
	RowsTotal  int                `json:"rowsTotal"`
	Result     *importer.Result   `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedBy  uuid.UUID          `json:"createdBy"`
	Progress   *importer.Progress `json:"progress,omitempty"`
	StartedAt  *time.Time         `json:"startedAt,omitempty"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type Repository struct {
	store store.Store
	now   func() time.Time
}

func NewRepository(s store.Store) *Repository {
	return &Repository{store: s, now: time.Now}
}

// Create stores a queued run for job. With keepRows the rows are stored
// too, so that a worker can load them with Job.
func (r *Repository) Create(ctx context.Context, tenantID uuid.UUID, job importer.Job, keepRows bool) (Run, error) {
	data := store.Data{
		"kind":       job.Kind,
		"mode":       string(ModeFor(job.Options)),
		"status":     string(StatusQueued),
		"options":    job.Options,
		"rows_total": len(job.Rows),
		"created_by": job.UserID.String(),
	}
	if keepRows {
		data["rows"] = job.Rows
	}
	rec, err := r.store.Create(ctx, tenantID, Entity, store.Record{Data: data})
	if err != nil {
		return Run{}, fmt.Errorf("create import run: %w", err)
	}
	return fromRecord(rec)
}

func (r *Repository) Get(ctx context.Context, tenantID, id uuid.UUID) (Run, error) {
	rec, err := r.store.Get(ctx, tenantID, Entity, id)
	if err != nil {
		return Run{}, fmt.Errorf("load import run: %w", err)
	}
	return fromRecord(rec)
}

// Job rebuilds the importer job of a run created with stored rows.
func (r *Repository) Job(ctx context.Context, tenantID, id uuid.UUID) (importer.Job, error) {
	rec, err := r.store.Get(ctx, tenantID, Entity, id)
	if err != nil {
		return importer.Job{}, fmt.Errorf("load import run: %w", err)
	}
	run, err := fromRecord(rec)
	if err != nil {
		return importer.Job{}, err
	}
	var rows []importer.Row
	if err := rec.Data.Decode("rows", &rows); err != nil && !errors.Is(err, store.ErrNotFound) {
		return importer.Job{}, fmt.Errorf("decode run rows: %w", err)
	}
	return importer.Job{Kind: run.Kind, UserID: run.CreatedBy, Options: run.Options, Rows: rows}, nil
}

func (r *Repository) MarkRunning(ctx context.Context, tenantID, id uuid.UUID) (Run, error) {
	var out Run
	err := r.store.InTx(ctx, func(tx store.Store) error {
		rec, err := tx.Get(ctx, tenantID, Entity, id)
		if err != nil {
			return fmt.Errorf("load import run: %w", err)
		}
		if Status(rec.Data.Text("status")).Finished() {
			return ErrFinished
		}
		updated, err := tx.Update(ctx, tenantID, Entity, id, store.Data{
			"status":     string(StatusRunning),
			"started_at": r.now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("start import run: %w", err)
		}
		out, err = fromRecord(updated)
		return err
	})
	return out, err
}

// Complete stores the result. Stored rows are dropped once the run is done.
func (r *Repository) Complete(ctx context.Context, tenantID, id uuid.UUID, result *importer.Result) (Run, error) {
	return r.finish(ctx, tenantID, id, store.Data{
		"status": string(StatusCompleted),
		"result": result,
	})
}

func (r *Repository) Fail(ctx context.Context, tenantID, id uuid.UUID, reason string) (Run, error) {
	return r.finish(ctx, tenantID, id, store.Data{
		"status": string(StatusFailed),
		"error":  reason,
	})
}

func (r *Repository) finish(ctx context.Context, tenantID, id uuid.UUID, data store.Data) (Run, error) {
	data["rows"] = nil
	data["finished_at"] = r.now().UTC().Format(time.RFC3339Nano)
	rec, err := r.store.Update(ctx, tenantID, Entity, id, data)
	if err != nil {
		return Run{}, fmt.Errorf("finish import run: %w", err)
	}
	return fromRecord(rec)
}

func fromRecord(rec store.Record) (Run, error) {
	run := Run{
		ID:        rec.ID,
		TenantID:  rec.TenantID,
		Kind:      rec.Data.Text("kind"),
		Mode:      Mode(rec.Data.Text("mode")),
		Status:    Status(rec.Data.Text("status")),
		RowsTotal: int(rec.Data.Decimal("rows_total").IntPart()),
		Error:     rec.Data.Text("error"),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	run.CreatedBy, _ = rec.Data.UUID("created_by")
	if err := rec.Data.Decode("options", &run.Options); err != nil && !errors.Is(err, store.ErrNotFound) {
		return Run{}, err
	}
	var result importer.Result
	switch err := rec.Data.Decode("result", &result); {
	case err == nil:
		run.Result = &result
	case !errors.Is(err, store.ErrNotFound):
		return Run{}, err
	}
	run.StartedAt = timestamp(rec.Data, "started_at")
	run.FinishedAt = timestamp(rec.Data, "finished_at")
	return run, nil
}

func timestamp(d store.Data, key string) *time.Time {
	raw := d.Text(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}
