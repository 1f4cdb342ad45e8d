package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rustyeddy/ordergate/ledger"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a session's positions or executions as CSV",
	Long: `Write every position of the session, open and closed, as CSV.

Examples:
  ordergate export -o positions.csv
  ordergate export --executions --session session_20250314`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var (
	exportOutput     string
	exportExecutions bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().BoolVar(&exportExecutions, "executions", false, "export the execution log instead of positions")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	ctx, sess := cmd.Context(), a.session()
	if exportExecutions {
		es, err := ledger.ListExecutions(ctx, a.ledger, sess.ID)
		if err != nil {
			return fmt.Errorf("list executions: %w", err)
		}
		return ledger.WriteExecutionsCSV(w, es)
	}

	ps, err := ledger.ListAll(ctx, a.ledger, sess.ID)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	return ledger.WriteCSV(w, ps)
}
