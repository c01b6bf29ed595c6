package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/httpx"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/jobs"
	"github.com/fleetify/api/internal/middleware"
	"github.com/fleetify/api/internal/runs"
	"github.com/fleetify/api/internal/sheets"
)

type importRequest struct {
	Options importer.Options `json:"options"`
	Rows    []importer.Row   `json:"rows"`
}

type importResponse struct {
	Run    runs.Run         `json:"run"`
	Result *importer.Result `json:"result"`
}

type kindSummary struct {
	Name       string              `json:"name"`
	Label      string              `json:"label"`
	LabelAr    string              `json:"labelAr,omitempty"`
	NaturalKey string              `json:"naturalKey"`
	Columns    []string            `json:"columns"`
	Required   []string            `json:"required"`
	References []referenceSummary  `json:"references"`
	Enums      map[string][]string `json:"enums,omitempty"`
}

type referenceSummary struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Required   bool   `json:"required"`
	AutoCreate bool   `json:"autoCreate"`
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (s *Server) ListImportKinds(w http.ResponseWriter, r *http.Request) {
	catalog := s.Importer.Catalog()
	out := make([]kindSummary, 0, len(catalog.Kinds))
	for _, kind := range catalog.Kinds {
		summary := kindSummary{
			Name:       kind.Name,
			Label:      kind.Label,
			LabelAr:    kind.LabelAr,
			NaturalKey: kind.NaturalKey,
			Columns:    kind.Columns(),
			Required:   []string{},
			References: []referenceSummary{},
		}
		for _, field := range kind.Fields {
			if field.Required {
				summary.Required = append(summary.Required, field.Name)
			}
			if field.Type == importer.FieldEnum {
				if enum, ok := catalog.Enum(field.Enum); ok {
					if summary.Enums == nil {
						summary.Enums = map[string][]string{}
					}
					summary.Enums[field.Name] = enum.Codes()
				}
			}
		}
		for _, ref := range kind.References {
			summary.References = append(summary.References, referenceSummary{
				Name: ref.Name, Kind: ref.Kind, Required: ref.Required, AutoCreate: ref.AutoCreate,
			})
		}
		out = append(out, summary)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"kinds": out})
}

// RunImport imports the rows of the request body and answers with the
// finished run.
func (s *Server) RunImport(w http.ResponseWriter, r *http.Request, kind string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	s.runImport(w, r, actor, kind, req)
}

// UploadImport reads the rows from a CSV or XLSX file in a multipart form.
func (s *Server) UploadImport(w http.ResponseWriter, r *http.Request, kind string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	req, appErr := s.parseUpload(r)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}
	s.runImport(w, r, actor, kind, req)
}

func (s *Server) runImport(w http.ResponseWriter, r *http.Request, actor middleware.Actor, kind string, req importRequest) {
	job, tenantID, appErr := s.prepareJob(actor, kind, req)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	run, err := s.Runs.Create(r.Context(), tenantID, job, false)
	if err != nil {
		httpx.WriteInternal(w, r, s.Logger, "import_run_create_failed", "Failed to create import run", err)
		return
	}
	s.auditRun(r, actor, run, "imports.started", map[string]any{
		"kind":      job.Kind,
		"mode":      string(run.Mode),
		"rowsTotal": len(job.Rows),
	})

	finished, err := s.Executor.Execute(r.Context(), run, job)
	if err != nil {
		var cfgErr *importer.ConfigError
		if errors.As(err, &cfgErr) {
			httpx.WriteError(w, r, http.StatusBadRequest, "invalid_import", cfgErr.Reason, map[string]any{"importRunId": run.ID})
			return
		}
		s.Logger.Error("import_run_failed", "run_id", run.ID.String(), "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, r, http.StatusInternalServerError, "import_failed", "Import run failed", map[string]any{"importRunId": run.ID})
		return
	}

	s.auditRun(r, actor, finished, "imports.completed", map[string]any{
		"kind":       job.Kind,
		"mode":       string(finished.Mode),
		"successful": finished.Result.Successful,
		"failed":     finished.Result.Failed,
		"skipped":    finished.Result.Skipped,
		"cancelled":  finished.Result.Cancelled,
	})

	result := finished.Result
	finished.Result = nil
	httpx.WriteJSON(w, http.StatusOK, importResponse{Run: finished, Result: result})
}

// QueueImport stores the rows with a queued run and hands it to the worker.
func (s *Server) QueueImport(w http.ResponseWriter, r *http.Request, kind string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if s.Queue == nil {
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "async_unavailable", "Background imports are not configured", nil)
		return
	}
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	job, tenantID, appErr := s.prepareJob(actor, kind, req)
	if appErr != nil {
		httpx.WriteError(w, r, appErr.Status, appErr.Code, appErr.Message, appErr.Details)
		return
	}

	run, err := s.Runs.Create(r.Context(), tenantID, job, true)
	if err != nil {
		httpx.WriteInternal(w, r, s.Logger, "import_run_create_failed", "Failed to create import run", err)
		return
	}
	payload := jobs.ImportPayload{RunID: run.ID, TenantID: tenantID}
	if err := jobs.EnqueueImport(r.Context(), s.Queue, payload, s.Config.ImportTaskTimeout); err != nil {
		s.Logger.Error("import_enqueue_failed", "run_id", run.ID.String(), "error", err)
		if _, ferr := s.Runs.Fail(r.Context(), tenantID, run.ID, "could not be queued"); ferr != nil {
			s.Logger.Error("import_run_fail_not_recorded", "run_id", run.ID.String(), "error", ferr)
		}
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "queue_unavailable", "Import could not be queued", map[string]any{"importRunId": run.ID})
		return
	}

	s.auditRun(r, actor, run, "imports.queued", map[string]any{
		"kind":      job.Kind,
		"mode":      string(run.Mode),
		"rowsTotal": len(job.Rows),
	})
	w.Header().Set("Location", "/api/v1/imports/runs/"+run.ID.String())
	httpx.WriteJSON(w, http.StatusAccepted, map[string]any{"run": run})
}

// auditRun records an import run event. Dry runs leave no audit trail; the
// run record itself is kept so its result and error report can be fetched.
func (s *Server) auditRun(r *http.Request, actor middleware.Actor, run runs.Run, action string, metadata map[string]any) {
	if run.Mode == runs.ModeDryRun {
		return
	}
	runID := run.ID
	s.audit(r, actor, run.TenantID, action, runs.Entity, &runID, metadata)
}

// prepareJob applies the request-level rules: known kind, row cap and a
// target tenant that is the caller's own.
func (s *Server) prepareJob(actor middleware.Actor, kind string, req importRequest) (importer.Job, uuid.UUID, *appError) {
	k, ok := s.Importer.Catalog().Kind(kind)
	if !ok {
		return importer.Job{}, uuid.Nil, &appError{
			Status:  http.StatusNotFound,
			Code:    "import_kind_not_found",
			Message: fmt.Sprintf("Unknown import kind %q", kind),
		}
	}
	if maxRows := s.Config.ImportMaxRows; maxRows > 0 && len(req.Rows) > maxRows {
		return importer.Job{}, uuid.Nil, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "too_many_rows",
			Message: fmt.Sprintf("At most %d rows can be imported at once", maxRows),
			Details: map[string]int{"rows": len(req.Rows), "maxRows": maxRows},
		}
	}

	opts := req.Options
	target := strings.TrimSpace(opts.TargetTenantID)
	if target == "" {
		opts.TargetTenantID = actor.TenantID.String()
	} else if id, err := uuid.Parse(target); err != nil || id != actor.TenantID {
		return importer.Job{}, uuid.Nil, &appError{
			Status:  http.StatusForbidden,
			Code:    "tenant_forbidden",
			Message: "Imports can only target the caller's tenant",
		}
	}

	job := importer.Job{Kind: k.Name, UserID: actor.UserID, Options: opts, Rows: req.Rows}
	_, tenantID, err := s.Importer.Validate(job)
	if err != nil {
		var cfgErr *importer.ConfigError
		if errors.As(err, &cfgErr) {
			return importer.Job{}, uuid.Nil, &appError{Status: http.StatusBadRequest, Code: "invalid_import", Message: cfgErr.Reason}
		}
		return importer.Job{}, uuid.Nil, &appError{Status: http.StatusBadRequest, Code: "invalid_import", Message: err.Error()}
	}
	return job, tenantID, nil
}

func (s *Server) parseUpload(r *http.Request) (importRequest, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return importRequest{}, &appError{Status: http.StatusBadRequest, Code: "invalid_content_type", Message: "Content-Type must be multipart/form-data"}
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return importRequest{}, &appError{Status: http.StatusRequestEntityTooLarge, Code: "payload_too_large", Message: "Upload is too large"}
		}
		return importRequest{}, &appError{Status: http.StatusBadRequest, Code: "invalid_multipart", Message: "Failed to parse multipart form"}
	}

	var req importRequest
	if raw := strings.TrimSpace(r.FormValue("options")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Options); err != nil {
			return importRequest{}, &appError{Status: http.StatusBadRequest, Code: "invalid_options", Message: "options must be a JSON object"}
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return importRequest{}, &appError{Status: http.StatusBadRequest, Code: "missing_file", Message: "file is required"}
	}
	defer file.Close()

	rows, err := sheets.Read(file, header.Filename, r.FormValue("sheet"), s.Config.ImportMaxRows)
	switch {
	case errors.Is(err, sheets.ErrTooManyRows):
		return importRequest{}, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "too_many_rows",
			Message: fmt.Sprintf("At most %d rows can be imported at once", s.Config.ImportMaxRows),
		}
	case errors.Is(err, sheets.ErrNoHeader):
		return importRequest{}, &appError{Status: http.StatusBadRequest, Code: "missing_header", Message: "The file has no header row"}
	case err != nil:
		return importRequest{}, &appError{Status: http.StatusBadRequest, Code: "invalid_file", Message: err.Error()}
	}
	req.Rows = rows
	return req, nil
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httpx.WriteError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body is too large", nil)
		return
	}
	httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
}
