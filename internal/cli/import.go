package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fleetify/api/internal/app"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/runs"
	"github.com/fleetify/api/internal/sheets"
)

type importFlags struct {
	kind       string
	tenant     string
	user       string
	sheet      string
	errorsPath string
	asJSON     bool
	options    importer.Options
}

func newImportCmd(st *state) *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV or XLSX file into a tenant",
		Long: `Import every row of FILE as the given kind. Each row is processed on
its own: a failing row is reported and the rest still go in. The run is
recorded like an API import, so it shows up under /api/v1/imports/runs.

With --dry-run rows go through every stage but nothing is written.
--errors writes the per-row report (failures, warnings, skipped duplicates)
as CSV. The command exits non-zero when any row failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.runImport(cmd, args[0], f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.kind, "kind", "k", "", "Import kind (see fleetctl kinds)")
	flags.StringVar(&f.tenant, "tenant", "", "Target tenant ID")
	flags.StringVar(&f.user, "user", "", "ID of the user recorded as creator")
	flags.StringVar(&f.sheet, "sheet", "", "XLSX sheet to read (default is the first sheet)")
	flags.StringVar(&f.errorsPath, "errors", "", "Write the row report CSV to this path")
	flags.BoolVar(&f.asJSON, "json", false, "Print the run and result as JSON")
	flags.BoolVar(&f.options.Upsert, "upsert", false, "Update records whose natural key already exists")
	flags.BoolVar(&f.options.DryRun, "dry-run", false, "Validate and resolve without writing")
	flags.BoolVar(&f.options.AutoCreateMissingEntities, "auto-create", false, "Create missing referenced entities")
	flags.BoolVar(&f.options.AutoCompleteDates, "auto-dates", false, "Fill empty dates with today")
	flags.BoolVar(&f.options.AutoCompleteDefaults, "auto-defaults", false, "Fill empty enums with their default")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (st *state) runImport(cmd *cobra.Command, path string, f importFlags) error {
	tenantID, err := parseID("tenant", f.tenant)
	if err != nil {
		return err
	}
	userID, err := parseID("user", f.user)
	if err != nil {
		return err
	}
	cfg := st.config()
	rows, err := sheets.ReadFile(path, f.sheet, cfg.ImportMaxRows)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	ctx := cmd.Context()
	s, release, err := st.openStore(ctx)
	if err != nil {
		return err
	}
	defer release()

	logger := st.logger(cmd.ErrOrStderr())
	im, err := app.NewImporter(cfg, s, logger)
	if err != nil {
		return err
	}
	opts := f.options
	opts.TargetTenantID = tenantID.String()
	job := importer.Job{Kind: f.kind, UserID: userID, Options: opts, Rows: rows}
	if _, _, err := im.Validate(job); err != nil {
		return err
	}

	repo := runs.NewRepository(s)
	run, err := repo.Create(ctx, tenantID, job, false)
	if err != nil {
		return err
	}
	final, err := runs.NewExecutor(repo, im, nil, logger).Execute(ctx, run, job)
	if err != nil {
		return fmt.Errorf("import run %s: %w", run.ID, err)
	}
	result := final.Result
	if result == nil {
		return fmt.Errorf("import run %s finished without a result", run.ID)
	}

	if f.errorsPath != "" {
		if err := writeReport(f.errorsPath, result.Outcomes); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"run": final, "result": result}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "run %s (%s) %s\n", final.ID, final.Mode, final.Status)
		fmt.Fprintf(out, "total %d, successful %d, failed %d, skipped %d\n",
			result.Total, result.Successful, result.Failed, result.Skipped)
		for _, rowErr := range result.Errors {
			fmt.Fprintf(out, "  row %d: %s\n", rowErr.Row, rowErr.Message)
		}
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d rows failed", result.Failed, result.Total)
	}
	return nil
}

func writeReport(path string, outcomes []importer.Outcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := importer.WriteErrorReport(f, outcomes); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
