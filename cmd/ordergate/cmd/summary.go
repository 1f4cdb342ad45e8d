package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show session totals and limit utilization",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.gate.GetSessionSummary(cmd.Context(), a.session())
	if err != nil {
		return fmt.Errorf("session summary: %w", err)
	}

	l := s.Limits
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session:    %s\n", s.SessionID)
	fmt.Fprintf(w, "Positions:  %d/%d (%.1f%%)\n", s.Positions, l.MaxNewPositions, s.PositionUtilization)
	fmt.Fprintf(w, "Executions: %d/%d (%.1f%%)\n", s.Executions, l.MaxTotalExecutions, s.ExecutionUtilization)
	fmt.Fprintf(w, "Exposure:   $%s/$%s (%.1f%%)\n",
		s.Exposure.StringFixed(2), l.MaxPortfolioExposure.StringFixed(2), s.ExposureUtilization)
	fmt.Fprintf(w, "Contracts:  %d open (max %d per position)\n", s.Contracts, l.MaxContractsPerPosition)
	for _, p := range s.Open {
		fmt.Fprintf(w, "  %-6s %s %s x%d @ %s\n", p.Ticker, p.Strike, p.OptionType, p.Contracts, p.EntryPrice.StringFixed(2))
	}
	return nil
}
