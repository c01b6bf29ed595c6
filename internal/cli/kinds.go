package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetify/api/internal/importer"
)

func newKindsCmd(st *state) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List the entity kinds that can be imported",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := st.catalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(catalog.Kinds)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KIND\tLABEL\tNATURAL KEY\tREQUIRED")
			for _, kind := range catalog.Kinds {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind.Name, kind.Label, kind.NaturalKey, strings.Join(requiredColumns(kind), ", "))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full kind definitions as JSON")
	return cmd
}

func requiredColumns(kind *importer.Kind) []string {
	var out []string
	for _, f := range kind.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	for _, ref := range kind.References {
		if ref.Required {
			out = append(out, ref.Name)
		}
	}
	return out
}

func newTemplateCmd(st *state) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "template KIND",
		Short: "Write an import template for a kind",
		Long: `Write the column headers and one example row of KIND. XLSX templates
carry a second sheet describing every column. The file is named
<kind>-template.<format> unless --output is given; "-" writes to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := st.catalog()
			if err != nil {
				return err
			}
			kind, ok := catalog.Kind(args[0])
			if !ok {
				return fmt.Errorf("unknown import kind %q", args[0])
			}
			file, err := importer.TemplateFor(kind, format)
			if err != nil {
				return err
			}
			if output == "-" {
				return importer.WriteTemplate(cmd.OutOrStdout(), kind, format)
			}
			if output == "" {
				output = file.Filename
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := importer.WriteTemplate(f, kind, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", importer.FormatXLSX, "Template format: csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path")
	return cmd
}
