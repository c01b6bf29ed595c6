package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fleetify/api/internal/matching"
)

func newMatchCmd(st *state) *cobra.Command {
	var (
		tenant        string
		limit         int
		minConfidence float64
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "match PAYMENT_ID",
		Short: "Suggest open invoices for a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			paymentID, err := parseID("payment", args[0])
			if err != nil {
				return err
			}
			if limit < 1 || limit > 50 {
				return fmt.Errorf("--limit must be between 1 and 50")
			}

			ctx := cmd.Context()
			s, release, err := st.openStore(ctx)
			if err != nil {
				return err
			}
			defer release()

			cfg := st.config()
			matcher := matching.NewMatcher(matching.NewFinder(s, cfg.MatchPoolLimit), matching.NewScorer(cfg.Currency))
			candidates, err := matcher.Suggest(ctx, tenantID, paymentID, limit, minConfidence)
			if err != nil {
				return fmt.Errorf("match payment %s: %w", paymentID, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"paymentId": paymentID, "candidates": candidates})
			}
			if len(candidates) == 0 {
				fmt.Fprintln(out, "no open invoices match")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INVOICE\tID\tCONFIDENCE\tLEVEL\tBALANCE\tREASON")
			for _, c := range candidates {
				fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\t%s\n",
					c.InvoiceNumber, c.InvoiceID, c.Confidence, c.Level,
					matching.FormatAmount(c.Balance, cfg.Currency), c.Reason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of candidates")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Drop candidates below this confidence (0-100)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print candidates as JSON")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newLinkCmd(st *state) *cobra.Command {
	var (
		tenant string
		relink bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "link PAYMENT_ID INVOICE_ID",
		Short: "Apply a payment to an invoice",
		Long: `Apply the payment amount to the invoice and recompute its status.
A payment already linked elsewhere is refused unless --relink is given,
in which case the previous invoice is reversed first.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := parseID("tenant", tenant)
			if err != nil {
				return err
			}
			paymentID, err := parseID("payment", args[0])
			if err != nil {
				return err
			}
			invoiceID, err := parseID("invoice", args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, release, err := st.openStore(ctx)
			if err != nil {
				return err
			}
			defer release()

			result, err := matching.NewLinker(s).Link(ctx, tenantID, paymentID, invoiceID, relink)
			if err != nil {
				return fmt.Errorf("link payment %s: %w", paymentID, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if !result.Changed {
				fmt.Fprintf(out, "payment %s is already linked to invoice %s\n", paymentID, invoiceID)
				return nil
			}
			currency := st.config().Currency
			fmt.Fprintf(out, "linked payment %s to invoice %s: applied %s, status %s, balance %s\n",
				paymentID, invoiceID,
				matching.FormatAmount(result.Applied, currency), result.InvoiceStatus,
				matching.FormatAmount(result.InvoiceBalance, currency))
			if result.PreviousInvoiceID != nil {
				fmt.Fprintf(out, "reversed previous invoice %s\n", *result.PreviousInvoiceID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	cmd.Flags().BoolVar(&relink, "relink", false, "Move the payment from its current invoice")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the link result as JSON")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
