package runs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/progress"
)

// Executor drives a stored run through the importer and records the outcome.
type Executor struct {
	runs     *Repository
	importer *importer.Importer
	tracker  progress.Tracker
	logger   *slog.Logger
}

func NewExecutor(repo *Repository, im *importer.Importer, tracker progress.Tracker, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{runs: repo, importer: im, tracker: tracker, logger: logger}
}

// Execute runs job for the stored run. The returned Run is the final
// record; the error is non-nil only when the run could not be completed,
// in which case the run has been marked failed where possible.
func (e *Executor) Execute(ctx context.Context, run Run, job importer.Job) (Run, error) {
	started, err := e.runs.MarkRunning(ctx, run.TenantID, run.ID)
	if err != nil {
		return run, err
	}

	result, err := e.importer.Run(ctx, job, e.reporter(ctx, run.ID))
	// The outcome is recorded even when the caller has gone away.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		failed, ferr := e.runs.Fail(persistCtx, run.TenantID, run.ID, err.Error())
		if ferr != nil {
			e.logger.Error("import_run_fail_not_recorded", "run_id", run.ID.String(), "error", ferr)
			return started, errors.Join(err, ferr)
		}
		return failed, err
	}

	completed, err := e.runs.Complete(persistCtx, run.TenantID, run.ID, result)
	if err != nil {
		return started, fmt.Errorf("record import result: %w", err)
	}
	if e.tracker != nil {
		final := importer.Progress{Processed: result.Total, Total: result.Total, Percent: 100}
		if err := e.tracker.Set(persistCtx, run.ID, final); err != nil {
			e.logger.Warn("import_progress_not_stored", "run_id", run.ID.String(), "error", err)
		}
	}
	return completed, nil
}

func (e *Executor) reporter(ctx context.Context, runID uuid.UUID) importer.ProgressFunc {
	if e.tracker == nil {
		return nil
	}
	return func(p importer.Progress) {
		if err := e.tracker.Set(ctx, runID, p); err != nil {
			e.logger.Warn("import_progress_not_stored", "run_id", runID.String(), "error", err)
		}
	}
}

// WithProgress fills in the live progress of an unfinished run.
func (e *Executor) WithProgress(ctx context.Context, run Run) Run {
	if e.tracker == nil {
		return run
	}
	p, err := e.tracker.Get(ctx, run.ID)
	if err != nil {
		if !errors.Is(err, progress.ErrNotFound) {
			e.logger.Warn("import_progress_not_loaded", "run_id", run.ID.String(), "error", err)
		}
		return run
	}
	run.Progress = &p
	return run
}
