package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/ordergate/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the order gate over HTTP until interrupted.

Endpoints:
  POST /api/validate_position   dry-run an OPEN, ADD or CLOSE
  POST /api/open_position       BUY_TO_OPEN through the risk checks
  POST /api/close_position      SELL_TO_CLOSE some or all contracts
  POST /api/add_contracts       grow an open position
  POST /api/orders              any order action
  GET  /api/get_positions       open positions of a session
  GET  /api/session_summary     session totals
  GET  /api/risk_summary        limit utilization
  GET  /api/health
  GET  /metrics                 prometheus

Example:
  ordergate serve -c ordergate.yaml --addr :5001`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(server.Config{
		Addr:        addr,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Version:     version,
	}, a.gate, a.sessions, a.log, a.registry)

	a.log.WithFields(logrus.Fields{
		"addr":    addr,
		"driver":  a.cfg.Ledger.Driver,
		"session": a.sessions.Current().ID,
	}).Info("ordergate serving")

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
