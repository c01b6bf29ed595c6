// Package importer runs spreadsheet rows through normalization, reference
// resolution, duplicate checks and key allocation, then writes them to the
// tenant's store. One bad row never stops the run.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fleetify/api/internal/matching"
	"github.com/fleetify/api/internal/store"
)

// State is where a row is in the pipeline.
type State string

const (
	StatePending          State = "pending"
	StateNormalized       State = "normalized"
	StateResolved         State = "resolved"
	StateDuplicateChecked State = "duplicate_checked"
	StateWritten          State = "written"
	StateSkipped          State = "skipped"
	StateFailed           State = "failed"
)

// Stage names the step a failed row stopped at.
type Stage string

const (
	StageNormalize      Stage = "normalize"
	StageResolve        Stage = "resolve"
	StageAllocate       Stage = "allocate"
	StageDuplicateCheck Stage = "duplicate_check"
	StageWrite          Stage = "write"
	StageCancelled      Stage = "cancelled"
)

const (
	cancelledMessage = "import cancelled before this row was processed"
	maxKeyRedraws    = 1000
)

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Outcome is the fate of one row.
type Outcome struct {
	Row         int         `json:"row"`
	State       State       `json:"state"`
	FailedAt    Stage       `json:"failedAt,omitempty"`
	Disposition Disposition `json:"disposition,omitempty"`
	NaturalKey  string      `json:"naturalKey,omitempty"`
	RecordID    *uuid.UUID  `json:"recordId,omitempty"`
	Field       string      `json:"field,omitempty"`
	Message     string      `json:"message,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
}

type Result struct {
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Errors     []RowError `json:"errors"`
	Outcomes   []Outcome  `json:"outcomes"`
	Cancelled  bool       `json:"cancelled"`
}

type Progress struct {
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

type ProgressFunc func(Progress)

// Job is one import run. The tenant comes from Options.TargetTenantID.
type Job struct {
	Kind    string
	UserID  uuid.UUID
	Options Options
	Rows    []Row
}

// ConfigError means the run could not start; no row was touched.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid import: " + e.Reason
}

type Importer struct {
	store      store.Store
	catalog    *Catalog
	logger     *slog.Logger
	now        func() time.Time
	rowTimeout time.Duration
}

type Option func(*Importer)

func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) { im.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// WithRowTimeout bounds the store work of each row. Zero disables it.
func WithRowTimeout(d time.Duration) Option {
	return func(im *Importer) { im.rowTimeout = d }
}

func New(s store.Store, catalog *Catalog, opts ...Option) *Importer {
	im := &Importer{
		store:   s,
		catalog: catalog,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

func (im *Importer) Catalog() *Catalog {
	return im.catalog
}

// run holds the per-run state. It is never shared between runs.
type run struct {
	kind       *Kind
	tenantID   uuid.UUID
	userID     uuid.UUID
	opts       Options
	store      store.Store
	normalizer *Normalizer
	resolver   *Resolver
	guard      *Guard
	allocator  *Allocator
}

// Validate checks a job the way Run does before touching any row.
func (im *Importer) Validate(job Job) (*Kind, uuid.UUID, error) {
	kind, ok := im.catalog.Kind(job.Kind)
	if !ok {
		return nil, uuid.Nil, &ConfigError{Reason: fmt.Sprintf("unknown import kind %q", job.Kind)}
	}
	rawTenant := strings.TrimSpace(job.Options.TargetTenantID)
	if rawTenant == "" {
		return nil, uuid.Nil, &ConfigError{Reason: "target tenant is required"}
	}
	tenantID, err := uuid.Parse(rawTenant)
	if err != nil || tenantID == uuid.Nil {
		return nil, uuid.Nil, &ConfigError{Reason: fmt.Sprintf("target tenant %q is not a valid id", rawTenant)}
	}
	if job.UserID == uuid.Nil {
		return nil, uuid.Nil, &ConfigError{Reason: "user is required"}
	}
	return kind, tenantID, nil
}

// Run processes every row of job in order and returns the complete result.
// Only configuration problems are returned as errors. When ctx is cancelled
// the rows not yet processed are recorded as failed.
func (im *Importer) Run(ctx context.Context, job Job, progress ProgressFunc) (*Result, error) {
	kind, tenantID, err := im.Validate(job)
	if err != nil {
		return nil, err
	}

	target := im.store
	if job.Options.DryRun {
		target = store.NewOverlay(im.store)
	}
	r := &run{
		kind:       kind,
		tenantID:   tenantID,
		userID:     job.UserID,
		opts:       job.Options,
		store:      target,
		normalizer: NewNormalizer(im.catalog, im.now),
		resolver:   NewResolver(target, tenantID),
		guard:      NewGuard(target, tenantID, PolicyFor(job.Options)),
		allocator:  NewAllocator(target, tenantID),
	}

	started := im.now()
	im.logger.Info("import_started",
		"kind", kind.Name,
		"tenant_id", tenantID.String(),
		"user_id", job.UserID.String(),
		"rows", len(job.Rows),
		"dry_run", job.Options.DryRun,
		"policy", string(r.guard.policy),
	)

	result := &Result{
		Total:    len(job.Rows),
		Errors:   []RowError{},
		Outcomes: make([]Outcome, 0, len(job.Rows)),
	}
	for i, row := range job.Rows {
		if row.Number == 0 {
			row.Number = i + 1
		}

		var outcome Outcome
		if result.Cancelled || ctx.Err() != nil {
			result.Cancelled = true
			outcome = Outcome{Row: row.Number, State: StateFailed, FailedAt: StageCancelled, Message: cancelledMessage}
		} else {
			outcome = im.processRow(ctx, r, row)
		}

		switch outcome.State {
		case StateWritten:
			result.Successful++
		case StateSkipped:
			result.Skipped++
		default:
			result.Failed++
			result.Errors = append(result.Errors, RowError{Row: outcome.Row, Message: outcome.Message})
			if outcome.FailedAt != StageCancelled {
				im.logger.Debug("import_row_failed", "kind", kind.Name, "row", outcome.Row, "stage", string(outcome.FailedAt), "error", outcome.Message)
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)

		if progress != nil {
			progress(progressFor(i+1, len(job.Rows)))
		}
	}

	im.logger.Info("import_completed",
		"kind", kind.Name,
		"tenant_id", tenantID.String(),
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"cancelled", result.Cancelled,
		"dry_run", job.Options.DryRun,
		"duration_ms", im.now().Sub(started).Milliseconds(),
	)
	return result, nil
}

func progressFor(processed, total int) Progress {
	if total == 0 {
		return Progress{Percent: 100}
	}
	percent := math.Round(float64(processed)*10000/float64(total)) / 100
	return Progress{Processed: processed, Total: total, Percent: percent}
}

// pendingCreate is a referenced record that does not exist yet and will be
// created together with the row.
type pendingCreate struct {
	ref   *Reference
	input RefInput
}

func (im *Importer) processRow(ctx context.Context, r *run, row Row) Outcome {
	if im.rowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.rowTimeout)
		defer cancel()
	}

	out := Outcome{Row: row.Number, State: StatePending}
	fail := func(stage Stage, err error) Outcome {
		out.State = StateFailed
		out.FailedAt = stage
		out.Message = err.Error()
		var fieldErr *FieldError
		if errors.As(err, &fieldErr) {
			out.Field = fieldErr.Field
		}
		return out
	}

	rec, err := r.normalizer.Normalize(r.kind, row, r.opts)
	if err != nil {
		return fail(StageNormalize, err)
	}
	out.State = StateNormalized
	out.Warnings = rec.Warnings

	data := rec.Data()
	resolved := map[string]uuid.UUID{}
	var creates []pendingCreate
	for i := range r.kind.References {
		ref := &r.kind.References[i]
		input, given := rec.Refs[ref.Name]
		if !given {
			if ref.Required {
				return fail(StageResolve, fmt.Errorf("%s is required: provide one of %s", ref.Name, strings.Join(ref.Columns(), ", ")))
			}
			continue
		}
		res, err := r.resolver.Resolve(ctx, ref.Target(), input)
		if err != nil {
			return fail(StageResolve, err)
		}
		switch {
		case res.Resolved:
			resolved[ref.Name] = res.ID
		case res.Candidates > 1:
			return fail(StageResolve, fmt.Errorf("%s %s matches more than one %s; use %s or %s", ref.Name, describeRef(input), ref.Target().Name, ref.IDColumn(), ref.CodeColumn()))
		case r.opts.AutoCreateMissingEntities && ref.AutoCreate && input.Name != "":
			creates = append(creates, pendingCreate{ref: ref, input: input})
		default:
			return fail(StageResolve, fmt.Errorf("%s %s not found", ref.Name, describeRef(input)))
		}
	}
	for name, id := range resolved {
		if r.kind.LinkInvoice && name == "invoice" {
			continue
		}
		data[name+"_id"] = id.String()
	}
	out.State = StateResolved

	key := rec.NaturalKey
	if key == "" && r.kind.Sequence != nil {
		key, err = r.freshKey(ctx, r.store, r.kind.Entity, *r.kind.Sequence)
		if err != nil {
			return fail(StageAllocate, err)
		}
	}
	out.NaturalKey = key

	decision, err := r.guard.Check(ctx, r.kind.Entity, key)
	if err != nil {
		return fail(StageDuplicateCheck, err)
	}
	out.State = StateDuplicateChecked
	out.Disposition = decision.Disposition
	if decision.Disposition == DispositionSkip {
		id := decision.Existing.ID
		out.State = StateSkipped
		out.RecordID = &id
		out.Message = fmt.Sprintf("%s %s already exists; skipped", r.kind.Entity, key)
		return out
	}

	var (
		recordID uuid.UUID
		current  store.Data
		warnings []string
	)
	err = r.store.InTx(ctx, func(tx store.Store) error {
		warnings = warnings[:0]
		for _, pc := range creates {
			id, note, err := r.create(ctx, tx, pc)
			if err != nil {
				return err
			}
			data[pc.ref.Field()] = id.String()
			warnings = append(warnings, note)
		}

		switch decision.Disposition {
		case DispositionUpdate:
			data["updated_by"] = r.userID.String()
			updated, err := tx.Update(ctx, r.tenantID, r.kind.Entity, decision.Existing.ID, data)
			if err != nil {
				return err
			}
			recordID = updated.ID
			current = updated.Data
		default:
			created, err := tx.Create(ctx, r.tenantID, r.kind.Entity, store.Record{
				NaturalKey: key,
				Data:       withInitial(r.kind.Initial, data, r.userID),
			})
			if err != nil {
				return err
			}
			recordID = created.ID
		}

		if !r.kind.LinkInvoice {
			return nil
		}
		invoiceID, ok := resolved["invoice"]
		if !ok {
			// An updated payment keeps its link; its credit follows the new amount.
			invoiceID, ok = current.UUID("invoice_id")
		}
		if !ok {
			return nil
		}
		link, err := matching.Link(ctx, tx, r.tenantID, recordID, invoiceID, false)
		switch {
		case errors.Is(err, matching.ErrInvoiceSettled):
			label := rec.Refs["invoice"].Code
			if label == "" {
				label = invoiceID.String()
			}
			warnings = append(warnings, fmt.Sprintf("invoice %s has no open balance; payment left unapplied", label))
		case err != nil:
			return err
		case link.Changed:
			warnings = append(warnings, fmt.Sprintf("applied %s to invoice %s", link.Applied.String(), link.InvoiceNumber))
		}
		return nil
	})
	if err != nil {
		return fail(StageWrite, err)
	}

	out.State = StateWritten
	out.RecordID = &recordID
	out.Warnings = append(out.Warnings, warnings...)
	if decision.Disposition == DispositionUpdate {
		out.Message = "updated"
	} else {
		out.Message = "created"
	}
	return out
}

// create inserts a referenced record from the name and phone given in the row.
func (r *run) create(ctx context.Context, tx store.Store, pc pendingCreate) (uuid.UUID, string, error) {
	target := pc.ref.Target()
	data := store.Data{target.NameField: pc.input.Name}
	if target.PhoneField != "" && pc.input.Phone != "" {
		data[target.PhoneField] = pc.input.Phone
	}
	key := pc.input.Code
	if key == "" && target.Sequence != nil {
		var err error
		key, err = r.freshKey(ctx, tx, target.Entity, *target.Sequence)
		if err != nil {
			return uuid.Nil, "", err
		}
	}
	if key != "" && target.NaturalKey != "" {
		data[target.NaturalKey] = key
	}
	created, err := tx.Create(ctx, r.tenantID, target.Entity, store.Record{
		NaturalKey: key,
		Data:       withInitial(target.Initial, data, r.userID),
	})
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("create %s %q: %w", pc.ref.Name, pc.input.Name, err)
	}
	return created.ID, fmt.Sprintf("created %s %s for %q", pc.ref.Name, key, pc.input.Name), nil
}

// freshKey draws sequence keys until one is not taken.
func (r *run) freshKey(ctx context.Context, s store.Store, entity string, seq Sequence) (string, error) {
	for i := 0; i < maxKeyRedraws; i++ {
		key, err := r.allocator.Next(ctx, entity, seq)
		if err != nil {
			return "", err
		}
		_, err = s.FindByNaturalKey(ctx, r.tenantID, entity, key)
		if errors.Is(err, store.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", fmt.Errorf("check %s key %s: %w", entity, key, err)
		}
	}
	return "", fmt.Errorf("no free %s key after %d attempts", entity, maxKeyRedraws)
}

func withInitial(initial map[string]string, data store.Data, userID uuid.UUID) store.Data {
	out := make(store.Data, len(initial)+len(data)+1)
	for k, v := range initial {
		out[k] = v
	}
	for k, v := range data {
		out[k] = v
	}
	out["created_by"] = userID.String()
	return out
}

func describeRef(in RefInput) string {
	switch {
	case in.Code != "" && in.Name != "":
		return fmt.Sprintf("%q (%s)", in.Name, in.Code)
	case in.Code != "":
		return fmt.Sprintf("%q", in.Code)
	case in.Name != "" && in.Phone != "":
		return fmt.Sprintf("%q (%s)", in.Name, in.Phone)
	case in.Name != "":
		return fmt.Sprintf("%q", in.Name)
	default:
		return fmt.Sprintf("with phone %s", in.Phone)
	}
}
