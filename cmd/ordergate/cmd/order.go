package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/rustyeddy/ordergate/gate"
	"github.com/rustyeddy/ordergate/order"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Submit or validate orders against the session ledger",
	Long: `Run orders through the gate from the command line. With the memory
ledger nothing outlives the command; use sqlite or postgres to keep state.

Subcommands:
  open     - BUY_TO_OPEN a new position
  close    - SELL_TO_CLOSE some or all contracts
  add      - Add contracts to an open position
  validate - Dry-run an open, add or close

Examples:
  ordergate order open --ticker TSLA --strike 340 --type CALL --contracts 5 --price 2.50
  ordergate order close --ticker TSLA --contracts 2
  ordergate order close --ticker TSLA --all
  ordergate order validate --action add --ticker TSLA --contracts 1`,
}

var orderOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a position (BUY_TO_OPEN)",
	Args:  cobra.NoArgs,
	RunE:  runOrderOpen,
}

var orderCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close contracts of an open position (SELL_TO_CLOSE)",
	Args:  cobra.NoArgs,
	RunE:  runOrderClose,
}

var orderAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add contracts to an open position",
	Args:  cobra.NoArgs,
	RunE:  runOrderAdd,
}

var orderValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check an order without recording it",
	Args:  cobra.NoArgs,
	RunE:  runOrderValidate,
}

var orderFlags struct {
	ticker     string
	strike     string
	optionType string
	expiration string
	contracts  int
	price      string
	all        bool
	action     string
}

func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.AddCommand(orderOpenCmd)
	orderCmd.AddCommand(orderCloseCmd)
	orderCmd.AddCommand(orderAddCmd)
	orderCmd.AddCommand(orderValidateCmd)

	orderCmd.PersistentFlags().StringVarP(&orderFlags.ticker, "ticker", "t", "", "underlying symbol (required)")
	orderCmd.PersistentFlags().IntVarP(&orderFlags.contracts, "contracts", "n", 0, "number of contracts")
	orderCmd.MarkPersistentFlagRequired("ticker")

	for _, c := range []*cobra.Command{orderOpenCmd, orderValidateCmd} {
		c.Flags().StringVar(&orderFlags.strike, "strike", "", "strike price")
		c.Flags().StringVar(&orderFlags.optionType, "type", "CALL", "option type (CALL or PUT)")
		c.Flags().StringVar(&orderFlags.expiration, "expiration", "0DTE", "expiration tag (0DTE, 1DTE or 7DTE)")
		c.Flags().StringVar(&orderFlags.price, "price", "", "premium per share")
	}
	orderCloseCmd.Flags().BoolVar(&orderFlags.all, "all", false, "close every contract of the position")
	orderValidateCmd.Flags().StringVar(&orderFlags.action, "action", "open", "what to validate: open, add or close")
}

func openIntent() (order.Intent, error) {
	strike, err := parseDecimal("strike", orderFlags.strike)
	if err != nil {
		return order.Intent{}, err
	}
	price, err := parseDecimal("price", orderFlags.price)
	if err != nil {
		return order.Intent{}, err
	}
	return order.Intent{
		Action:     order.BuyToOpen,
		Ticker:     orderFlags.ticker,
		Strike:     strike,
		OptionType: orderFlags.optionType,
		Expiration: orderFlags.expiration,
		Contracts:  orderFlags.contracts,
		EntryPrice: price,
	}, nil
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("--%s is required", name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func runOrderOpen(cmd *cobra.Command, args []string) error {
	in, err := openIntent()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.gate.OpenPosition(cmd.Context(), a.session(), in)
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	return printOutcome(cmd.OutOrStdout(), out)
}

func runOrderClose(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	var out gate.Outcome
	if orderFlags.all {
		out, err = a.gate.CloseAll(cmd.Context(), a.session(), orderFlags.ticker)
	} else {
		out, err = a.gate.CloseContracts(cmd.Context(), a.session(), orderFlags.ticker, orderFlags.contracts)
	}
	if err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	return printOutcome(cmd.OutOrStdout(), out)
}

func runOrderAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.gate.AddContracts(cmd.Context(), a.session(), orderFlags.ticker, orderFlags.contracts)
	if err != nil {
		return fmt.Errorf("add contracts: %w", err)
	}
	return printOutcome(cmd.OutOrStdout(), out)
}

func runOrderValidate(cmd *cobra.Command, args []string) error {
	action := strings.ToLower(orderFlags.action)
	var in order.Intent
	switch action {
	case "open":
		var err error
		if in, err = openIntent(); err != nil {
			return err
		}
	case "add", "close":
	default:
		return fmt.Errorf("--action must be open, add or close, got %q", orderFlags.action)
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, sess := cmd.Context(), a.session()
	var out gate.Outcome
	switch action {
	case "open":
		out, err = a.gate.ValidateOpen(ctx, sess, in)
	case "add":
		out, err = a.gate.ValidateAdd(ctx, sess, orderFlags.ticker, orderFlags.contracts)
	case "close":
		out, err = a.gate.ValidateClose(ctx, sess, orderFlags.ticker, orderFlags.contracts)
	}
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return printOutcome(cmd.OutOrStdout(), out)
}

// printOutcome reports the gate's answer. A rejection is returned as an
// error so the process exits non-zero.
func printOutcome(w io.Writer, out gate.Outcome) error {
	if out.Success {
		fmt.Fprintf(w, "✓ %s\n", out.Message)
		if out.PositionID != "" {
			fmt.Fprintf(w, "  Position: %s\n", out.PositionID)
		}
	} else {
		fmt.Fprintf(w, "✗ %s\n", out.Message)
		if out.Risk != nil && !out.Risk.Valid {
			fmt.Fprintf(w, "  Risk: %s %s (%s)\n", out.Risk.Level, out.Risk.Code, out.Risk.Check)
		}
	}
	for _, warn := range out.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warn)
	}

	if !out.Success {
		return fmt.Errorf("order rejected: %s", out.Kind)
	}
	return nil
}
