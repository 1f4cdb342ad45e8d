package cmd

import (
	"fmt"

	"github.com/rustyeddy/ordergate/ledger"
	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List the session's positions",
	Long: `List positions of the current session, or of --session.

Examples:
  ordergate positions
  ordergate positions --all --org
  ordergate positions --session session_20250314`,
	Args: cobra.NoArgs,
	RunE: runPositions,
}

var (
	positionsAll bool
	positionsOrg bool
)

func init() {
	rootCmd.AddCommand(positionsCmd)

	positionsCmd.Flags().BoolVarP(&positionsAll, "all", "a", false, "include closed positions")
	positionsCmd.Flags().BoolVar(&positionsOrg, "org", false, "print org-mode headings")
}

func runPositions(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess := a.session()
	var ps []ledger.Position
	if positionsAll {
		ps, err = ledger.ListAll(cmd.Context(), a.ledger, sess.ID)
	} else {
		ps, err = a.gate.GetOpenPositions(cmd.Context(), sess)
	}
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	w := cmd.OutOrStdout()
	if positionsOrg {
		fmt.Fprint(w, ledger.FormatPositionsOrg(ps))
		return nil
	}

	fmt.Fprintf(w, "Session %s: %d positions\n", sess.ID, len(ps))
	if len(ps) == 0 {
		return nil
	}
	fmt.Fprintf(w, "%-8s %8s %-4s %-5s %9s %8s %10s %-6s\n",
		"TICKER", "STRIKE", "TYPE", "EXP", "CONTRACTS", "PRICE", "EXPOSURE", "STATUS")
	for _, p := range ps {
		fmt.Fprintf(w, "%-8s %8s %-4s %-5s %9d %8s %10s %-6s\n",
			p.Ticker, p.Strike, p.OptionType, p.Expiration, p.Contracts,
			p.EntryPrice.StringFixed(2), p.Exposure().StringFixed(2), p.Status)
	}
	return nil
}
