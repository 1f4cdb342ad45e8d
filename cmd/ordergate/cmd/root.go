package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ordergate",
	Short: "Pre-trade risk gate and session position ledger for options orders",
	Long: `Ordergate sits between a trading front end and the broker. Every
BUY_TO_OPEN order passes a fixed sequence of risk checks against the current
session before it is recorded; SELL_TO_CLOSE orders reduce or close the
session's open position.

It provides:
  - An HTTP API for validating, opening, adding to and closing positions
  - Per-session limits on positions, executions, contracts and exposure
  - A position ledger backed by memory, SQLite or PostgreSQL
  - CSV and org-mode reports of a session's positions`,
	SilenceUsage: true,
}

var (
	cfgFile   string
	logLevel  string
	sessionID string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults and ORDERGATE_* env apply without one")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id (default: the current session)")
}
