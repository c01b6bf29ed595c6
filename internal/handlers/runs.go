package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/fleetify/api/internal/httpx"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/runs"
	"github.com/fleetify/api/internal/store"
)

func (s *Server) GetImportRun(w http.ResponseWriter, r *http.Request, runID openapi_types.UUID) {
	run, ok := s.loadRun(w, r, runID)
	if !ok {
		return
	}
	if !run.Status.Finished() {
		run = s.Executor.WithProgress(r.Context(), run)
	}
	httpx.WriteJSON(w, http.StatusOK, run)
}

// GetImportRunErrors downloads the failed rows of a finished run as CSV.
func (s *Server) GetImportRunErrors(w http.ResponseWriter, r *http.Request, runID openapi_types.UUID) {
	run, ok := s.loadRun(w, r, runID)
	if !ok {
		return
	}
	if run.Result == nil {
		httpx.WriteError(w, r, http.StatusConflict, "import_run_not_finished", "Import run has no result yet", map[string]any{"status": run.Status})
		return
	}

	var buf bytes.Buffer
	if err := importer.WriteErrorReport(&buf, run.Result.Outcomes); err != nil {
		httpx.WriteInternal(w, r, s.Logger, "import_report_failed", "Failed to build error report", err, "run_id", run.ID.String())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"import-%s-errors.csv\"", run.ID))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request, runID openapi_types.UUID) (runs.Run, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return runs.Run{}, false
	}
	run, err := s.Runs.Get(r.Context(), actor.TenantID, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, r, http.StatusNotFound, "import_run_not_found", "Import run not found", nil)
			return runs.Run{}, false
		}
		httpx.WriteInternal(w, r, s.Logger, "import_run_load_failed", "Failed to load import run", err)
		return runs.Run{}, false
	}
	return run, true
}
