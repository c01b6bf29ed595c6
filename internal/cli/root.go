// Package cli implements fleetctl, the operator command line for imports,
// templates and payment matching.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fleetify/api/internal/config"
	"github.com/fleetify/api/internal/importer"
	"github.com/fleetify/api/internal/store"
)

// StoreOpener connects to the data store. The returned func releases it.
type StoreOpener func(ctx context.Context, cfg config.Config) (store.Store, func(), error)

type Deps struct {
	Config    config.Config
	OpenStore StoreOpener
}

// state is shared by every command of one root.
type state struct {
	deps      Deps
	kindsFile string
	verbose   bool
}

func NewRootCmd(deps Deps) *cobra.Command {
	st := &state{deps: deps}

	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "Fleetify import and payment matching tool",
		Long: `fleetctl imports customer, vehicle, contract, invoice and payment
spreadsheets into a tenant and matches payments against open invoices.

Example Usage:
  fleetctl kinds
  fleetctl template payments --format xlsx
  fleetctl import payments.csv --kind payments --tenant <id> --user <id> --dry-run
  fleetctl match <payment-id> --tenant <id>
  fleetctl link <payment-id> <invoice-id> --tenant <id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&st.kindsFile, "kinds-file", "", "Import kinds catalog (default is the built-in catalog)")
	root.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "Log importer activity to stderr")

	root.AddCommand(
		newVersionCmd(),
		newKindsCmd(st),
		newTemplateCmd(st),
		newImportCmd(st),
		newMatchCmd(st),
		newLinkCmd(st),
	)
	return root
}

func (st *state) config() config.Config {
	cfg := st.deps.Config
	if st.kindsFile != "" {
		cfg.KindsFile = st.kindsFile
	}
	return cfg
}

func (st *state) catalog() (*importer.Catalog, error) {
	return importer.LoadCatalog(st.config().KindsFile)
}

func (st *state) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if st.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (st *state) openStore(ctx context.Context) (store.Store, func(), error) {
	if st.deps.OpenStore == nil {
		return nil, nil, fmt.Errorf("no data store configured")
	}
	return st.deps.OpenStore(ctx, st.config())
}

func parseID(flag, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", flag, raw, err)
	}
	return id, nil
}
