// Package gate is the order gate: it runs every order through the risk
// pipeline and applies accepted orders to the session ledger. The decision
// and the write happen inside one ledger critical section, so two orders in
// the same session can never both pass a check that only one of them fits.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/ordergate/id"
	"github.com/rustyeddy/ordergate/ledger"
	"github.com/rustyeddy/ordergate/logging"
	"github.com/rustyeddy/ordergate/metrics"
	"github.com/rustyeddy/ordergate/order"
	"github.com/rustyeddy/ordergate/risk"
	"github.com/rustyeddy/ordergate/session"
	"github.com/sirupsen/logrus"
)

// DefaultBudget is the latency target for one decision. Slower decisions
// are logged, never aborted.
const DefaultBudget = 25 * time.Millisecond

const storageMessage = "internal storage error"

// errRollback discards the writes of a rejected or dry-run order.
var errRollback = errors.New("gate: rollback")

type Gate struct {
	ledger   ledger.Ledger
	pipeline *risk.Pipeline
	limits   risk.Limits

	log     logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
	budget  time.Duration
}

type Option func(*Gate)

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithClock sets the clock used for position entry times.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDs sets the position id source.
func WithIDs(fn func() string) Option {
	return func(g *Gate) {
		if fn != nil {
			g.newID = fn
		}
	}
}

func WithBudget(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.budget = d
		}
	}
}

// New builds a gate over l. The pipeline's limits also bound contract
// counts for add and close.
func New(l ledger.Ledger, p *risk.Pipeline, opts ...Option) *Gate {
	g := &Gate{
		ledger:   l,
		pipeline: p,
		limits:   p.Limits(),
		log:      logging.Discard(),
		now:      time.Now,
		newID:    id.New,
		budget:   DefaultBudget,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) Limits() risk.Limits {
	return g.limits
}

// Submit routes an order by action. Only BUY_TO_OPEN and SELL_TO_CLOSE
// reach the ledger.
func (g *Gate) Submit(ctx context.Context, sess session.Session, in order.Intent) (Outcome, error) {
	switch in.Action {
	case order.BuyToOpen:
		return g.OpenPosition(ctx, sess, in)
	case order.SellToClose:
		return g.CloseContracts(ctx, sess, in.Ticker, in.Contracts)
	}
	return g.unsupported(sess, in, false), nil
}

// EvaluateOrder answers what Submit would do without changing the ledger.
func (g *Gate) EvaluateOrder(ctx context.Context, sess session.Session, in order.Intent) (Outcome, error) {
	switch in.Action {
	case order.BuyToOpen:
		return g.ValidateOpen(ctx, sess, in)
	case order.SellToClose:
		return g.ValidateClose(ctx, sess, in.Ticker, in.Contracts)
	}
	return g.unsupported(sess, in, true), nil
}

func (g *Gate) unsupported(sess session.Session, in order.Intent, dry bool) Outcome {
	out := reject(in.Action, KindInvalidInput, "Order action %s is not supported", in.Action)
	if in.Action == order.ActionUnknown {
		out.Message = "Unknown order action"
	}
	g.record(sess, order.NormalizeTicker(in.Ticker), time.Now(), out, dry)
	return out
}

// EvaluateBuyToOpen runs the risk pipeline against a consistent snapshot
// of the session. Nothing is written.
func (g *Gate) EvaluateBuyToOpen(ctx context.Context, sess session.Session, in order.Intent) (risk.Result, error) {
	in = in.Normalized()
	var res risk.Result
	err := g.ledger.Atomically(ctx, sess.ID, func(b ledger.Book) error {
		snap, err := snapshot(ctx, b)
		if err != nil {
			return err
		}
		res = g.pipeline.Evaluate(riskIntent(in), snap)
		return nil
	})
	if err != nil {
		g.storageFailure(sess, order.BuyToOpen, in.Ticker, err)
		return risk.Result{}, err
	}
	g.metrics.Observe(res.Elapsed)
	return res, nil
}

func (g *Gate) OpenPosition(ctx context.Context, sess session.Session, in order.Intent) (Outcome, error) {
	return g.open(ctx, sess, in, true)
}

func (g *Gate) ValidateOpen(ctx context.Context, sess session.Session, in order.Intent) (Outcome, error) {
	return g.open(ctx, sess, in, false)
}

func (g *Gate) open(ctx context.Context, sess session.Session, in order.Intent, commit bool) (Outcome, error) {
	start := time.Now()
	in = in.Normalized()
	p, msg := g.parseOpen(in)
	if msg != "" {
		out := reject(order.BuyToOpen, KindInvalidInput, "%s", msg)
		g.record(sess, in.Ticker, start, out, !commit)
		return out, nil
	}

	maxContracts := g.limits.MaxContractsPerPosition
	open := 0
	out, err := g.atomically(ctx, sess, commit, func(b ledger.Book) (Outcome, error) {
		snap, err := snapshot(ctx, b)
		if err != nil {
			return Outcome{}, err
		}
		res := g.pipeline.Evaluate(riskIntent(in), snap)
		if !res.Valid {
			out := riskRejection(order.BuyToOpen, res)
			out.AvailableContracts = risk.Capacity(g.limits, snap, in.EntryPrice)
			return out, nil
		}

		existing, err := b.GetOpenPosition(ctx, p.Ticker)
		switch {
		case err == nil:
			out := conflict(p.Ticker, existing, maxContracts)
			out.Risk = &res
			return out, nil
		case !errors.Is(err, ledger.ErrNotFound):
			return Outcome{}, err
		}

		out := Outcome{
			Success:            true,
			Kind:               KindAccepted,
			Action:             order.BuyToOpen,
			Risk:               &res,
			Contracts:          p.Contracts,
			AvailableContracts: maxContracts - p.Contracts,
			Warnings:           res.Warnings,
		}
		if !commit {
			out.Message = formatOpen("Can open", p)
			return out, nil
		}

		p.SessionID = sess.ID
		if _, err := b.InsertIfAbsent(ctx, p); err != nil {
			switch {
			case errors.Is(err, ledger.ErrConflict):
				return conflict(p.Ticker, ledger.Position{}, maxContracts), nil
			case errors.Is(err, ledger.ErrContractBounds):
				return reject(order.BuyToOpen, KindInvalidInput,
					"Cannot open %d contracts - max %d per position", p.Contracts, maxContracts), nil
			}
			return Outcome{}, err
		}
		if err := b.AppendExecution(ctx, ledger.Execution{
			Type:      ledger.ExecOpen,
			Ticker:    p.Ticker,
			Contracts: p.Contracts,
			Time:      p.EntryTime,
		}); err != nil {
			return Outcome{}, err
		}

		open = snap.OpenPositions + 1
		out.PositionID = p.ID
		out.Position = &p
		out.Message = formatOpen("Position opened:", p)
		return out, nil
	})
	return g.finish(sess, order.BuyToOpen, p.Ticker, start, out, err, commit, open)
}

// parseOpen validates a BUY_TO_OPEN intent before any ledger access. The
// returned message is empty when the intent is well formed.
func (g *Gate) parseOpen(in order.Intent) (ledger.Position, string) {
	if in.Ticker == "" {
		return ledger.Position{}, "Ticker is required"
	}
	ot, err := order.ParseOptionType(in.OptionType)
	if err != nil {
		return ledger.Position{}, err.Error()
	}
	exp, err := order.ParseExpiration(in.Expiration)
	if err != nil {
		return ledger.Position{}, err.Error()
	}
	if !in.Strike.IsPositive() {
		return ledger.Position{}, "Strike must be positive"
	}
	if !in.EntryPrice.IsPositive() {
		return ledger.Position{}, "Entry price must be positive"
	}
	if in.Contracts < 1 {
		return ledger.Position{}, "Must open at least 1 contract"
	}
	return ledger.Position{
		ID:         g.newID(),
		Ticker:     in.Ticker,
		Strike:     in.Strike,
		OptionType: ot,
		Expiration: exp,
		Contracts:  in.Contracts,
		EntryPrice: in.EntryPrice,
		EntryTime:  g.now(),
		Status:     ledger.StatusOpen,
	}, ""
}

// CloseContracts sells n contracts of the session's open position in
// ticker. Closing every held contract closes the position.
func (g *Gate) CloseContracts(ctx context.Context, sess session.Session, ticker string, n int) (Outcome, error) {
	return g.close(ctx, sess, ticker, n, false, true)
}

// CloseAll sells every contract of the open position in ticker.
func (g *Gate) CloseAll(ctx context.Context, sess session.Session, ticker string) (Outcome, error) {
	return g.close(ctx, sess, ticker, 0, true, true)
}

func (g *Gate) ValidateClose(ctx context.Context, sess session.Session, ticker string, n int) (Outcome, error) {
	return g.close(ctx, sess, ticker, n, false, false)
}

func (g *Gate) close(ctx context.Context, sess session.Session, ticker string, n int, all, commit bool) (Outcome, error) {
	start := time.Now()
	ticker = order.NormalizeTicker(ticker)
	if out, bad := checkTickerQty(order.SellToClose, ticker, n, all, "Contracts to close must be positive"); bad {
		g.record(sess, ticker, start, out, !commit)
		return out, nil
	}

	open := 0
	out, err := g.atomically(ctx, sess, commit, func(b ledger.Book) (Outcome, error) {
		p, err := b.GetOpenPosition(ctx, ticker)
		if errors.Is(err, ledger.ErrNotFound) {
			return reject(order.SellToClose, KindNotFound, "No open %s position to close", ticker), nil
		}
		if err != nil {
			return Outcome{}, err
		}

		qty := n
		if all {
			qty = p.Contracts
		}
		if qty > p.Contracts {
			out := reject(order.SellToClose, KindInvalidInput,
				"Cannot close %d contracts - only %d open", qty, p.Contracts)
			out.PositionID = p.ID
			out.CurrentContracts = p.Contracts
			return out, nil
		}

		out := Outcome{
			Success:            true,
			Kind:               KindAccepted,
			Action:             order.SellToClose,
			PositionID:         p.ID,
			Contracts:          qty,
			CurrentContracts:   p.Contracts,
			RemainingContracts: p.Contracts - qty,
			AvailableContracts: g.limits.MaxContractsPerPosition - (p.Contracts - qty),
		}
		if !commit {
			out.Message = fmt.Sprintf("Can close %d of %d %s contracts", qty, p.Contracts, ticker)
			return out, nil
		}

		remaining, err := b.MutateContracts(ctx, ticker, -qty)
		if err != nil {
			return Outcome{}, err
		}
		typ := ledger.ExecPartialClose
		out.Message = fmt.Sprintf("Closed %d %s contracts (%d remaining)", qty, ticker, remaining)
		if remaining == 0 {
			typ = ledger.ExecClose
			out.Message = fmt.Sprintf("Closed entire %s position (%d contracts)", ticker, qty)
		}
		if err := b.AppendExecution(ctx, ledger.Execution{Type: typ, Ticker: ticker, Contracts: qty}); err != nil {
			return Outcome{}, err
		}
		out.RemainingContracts = remaining

		agg, err := b.AggregateOpen(ctx)
		if err != nil {
			return Outcome{}, err
		}
		open = agg.Positions
		return out, nil
	})
	return g.finish(sess, order.SellToClose, ticker, start, out, err, commit, open)
}

// AddContracts buys n more contracts of an open position at its original
// entry price. The grown position is re-checked against the execution
// limit, both exposure caps and the contract cap.
func (g *Gate) AddContracts(ctx context.Context, sess session.Session, ticker string, n int) (Outcome, error) {
	return g.add(ctx, sess, ticker, n, true)
}

func (g *Gate) ValidateAdd(ctx context.Context, sess session.Session, ticker string, n int) (Outcome, error) {
	return g.add(ctx, sess, ticker, n, false)
}

func (g *Gate) add(ctx context.Context, sess session.Session, ticker string, n int, commit bool) (Outcome, error) {
	start := time.Now()
	ticker = order.NormalizeTicker(ticker)
	if out, bad := checkTickerQty(order.BuyToOpen, ticker, n, false, "Contracts to add must be positive"); bad {
		g.record(sess, ticker, start, out, !commit)
		return out, nil
	}

	maxContracts := g.limits.MaxContractsPerPosition
	open := 0
	out, err := g.atomically(ctx, sess, commit, func(b ledger.Book) (Outcome, error) {
		p, err := b.GetOpenPosition(ctx, ticker)
		if errors.Is(err, ledger.ErrNotFound) {
			return reject(order.BuyToOpen, KindNotFound, "No open %s position to add contracts to", ticker), nil
		}
		if err != nil {
			return Outcome{}, err
		}
		snap, err := snapshot(ctx, b)
		if err != nil {
			return Outcome{}, err
		}

		res := g.pipeline.EvaluateAdd(risk.Add{
			Ticker:     ticker,
			Held:       p.Contracts,
			Contracts:  n,
			EntryPrice: p.EntryPrice,
		}, snap)
		if !res.Valid {
			out := riskRejection(order.BuyToOpen, res)
			out.PositionID = p.ID
			out.CurrentContracts = p.Contracts
			out.AvailableContracts = maxContracts - p.Contracts
			return out, nil
		}

		total := p.Contracts + n
		out := Outcome{
			Success:            true,
			Kind:               KindAccepted,
			Action:             order.BuyToOpen,
			PositionID:         p.ID,
			Risk:               &res,
			Contracts:          n,
			CurrentContracts:   p.Contracts,
			AvailableContracts: maxContracts - total,
			Warnings:           res.Warnings,
		}
		if !commit {
			out.Message = res.Reason
			return out, nil
		}

		if _, err := b.MutateContracts(ctx, ticker, n); err != nil {
			if errors.Is(err, ledger.ErrContractBounds) {
				return reject(order.BuyToOpen, KindInvalidInput,
					"Would exceed %d-contract limit (%d + %d = %d)", maxContracts, p.Contracts, n, total), nil
			}
			return Outcome{}, err
		}
		if err := b.AppendExecution(ctx, ledger.Execution{Type: ledger.ExecAdd, Ticker: ticker, Contracts: n}); err != nil {
			return Outcome{}, err
		}
		p.Contracts = total
		out.Position = &p
		out.Message = fmt.Sprintf("Added %d contracts - %s total: %d", n, ticker, total)
		open = snap.OpenPositions
		return out, nil
	})
	return g.finish(sess, order.BuyToOpen, ticker, start, out, err, commit, open)
}

// GetOpenPositions lists the session's OPEN rows by entry time.
func (g *Gate) GetOpenPositions(ctx context.Context, sess session.Session) ([]ledger.Position, error) {
	ps, err := ledger.ListOpen(ctx, g.ledger, sess.ID)
	if err != nil {
		g.storageFailure(sess, order.ActionUnknown, "", err)
		return nil, err
	}
	return ps, nil
}

// GetSessionSummary reads the session's totals and open rows in one step.
func (g *Gate) GetSessionSummary(ctx context.Context, sess session.Session) (Summary, error) {
	s := Summary{SessionID: sess.ID, Limits: g.limits}
	err := g.ledger.Atomically(ctx, sess.ID, func(b ledger.Book) error {
		agg, err := b.AggregateOpen(ctx)
		if err != nil {
			return err
		}
		n, err := b.CountExecutions(ctx)
		if err != nil {
			return err
		}
		open, err := b.ListOpen(ctx)
		if err != nil {
			return err
		}
		s.Positions, s.Contracts, s.Exposure = agg.Positions, agg.Contracts, agg.Exposure
		s.Executions = n
		s.Open = open
		return nil
	})
	if err != nil {
		g.storageFailure(sess, order.ActionUnknown, "", err)
		return Summary{}, err
	}

	s.PositionUtilization = risk.CountUtilization(s.Positions, g.limits.MaxNewPositions)
	s.ExecutionUtilization = risk.CountUtilization(s.Executions, g.limits.MaxTotalExecutions)
	s.ExposureUtilization = risk.Utilization(s.Exposure, g.limits.MaxPortfolioExposure)
	return s, nil
}

// atomically runs fn inside the session's critical section. Writes are kept
// only when commit is set and fn accepts the order.
func (g *Gate) atomically(ctx context.Context, sess session.Session, commit bool, fn func(ledger.Book) (Outcome, error)) (Outcome, error) {
	var out Outcome
	err := g.ledger.Atomically(ctx, sess.ID, func(b ledger.Book) error {
		var err error
		if out, err = fn(b); err != nil {
			return err
		}
		if !commit || !out.Success {
			return errRollback
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRollback) {
		return Outcome{}, err
	}
	return out, nil
}

// finish logs and counts a decision. A ledger error replaces the outcome
// with a generic storage failure.
func (g *Gate) finish(sess session.Session, action order.Action, ticker string, start time.Time, out Outcome, err error, commit bool, open int) (Outcome, error) {
	if err != nil {
		g.storageFailure(sess, action, ticker, err)
		out = Outcome{Kind: KindStorage, Action: action, Message: storageMessage}
		if commit {
			g.metrics.Decision(action.String(), out.Kind.String())
		}
		return out, err
	}
	out.Action = action
	if commit && out.Success {
		g.metrics.SetOpen(sess.ID, open)
	}
	g.record(sess, ticker, start, out, !commit)
	return out, nil
}

func (g *Gate) record(sess session.Session, ticker string, start time.Time, out Outcome, dry bool) {
	elapsed := time.Since(start)
	fields := logrus.Fields{
		"session": sess.ID,
		"action":  out.Action.String(),
		"kind":    out.Kind.String(),
	}
	if ticker != "" {
		fields["ticker"] = ticker
	}
	if out.Risk != nil {
		g.metrics.Observe(out.Risk.Elapsed)
		if !out.Risk.Valid {
			fields["check"] = out.Risk.Check
			fields["level"] = out.Risk.Level.String()
			if !dry {
				g.metrics.Rejection(out.Risk.Code, out.Risk.Level.String())
			}
		}
	}
	entry := g.log.WithFields(fields)

	if elapsed > g.budget {
		entry.WithField("elapsed", elapsed).Warn("decision exceeded latency budget")
	}
	switch {
	case dry:
		entry.Debug(out.Message)
	case out.Success:
		g.metrics.Decision(out.Action.String(), out.Kind.String())
		entry.Info(out.Message)
	default:
		g.metrics.Decision(out.Action.String(), out.Kind.String())
		entry.Warn(out.Message)
	}
}

func (g *Gate) storageFailure(sess session.Session, action order.Action, ticker string, err error) {
	g.log.WithError(err).WithFields(logrus.Fields{
		"session": sess.ID,
		"action":  action.String(),
		"ticker":  ticker,
	}).Error("ledger failure")
}

func snapshot(ctx context.Context, b ledger.Book) (risk.Snapshot, error) {
	agg, err := b.AggregateOpen(ctx)
	if err != nil {
		return risk.Snapshot{}, err
	}
	n, err := b.CountExecutions(ctx)
	if err != nil {
		return risk.Snapshot{}, err
	}
	return risk.Snapshot{
		OpenPositions: agg.Positions,
		OpenContracts: agg.Contracts,
		OpenExposure:  agg.Exposure,
		Executions:    n,
	}, nil
}

func riskIntent(in order.Intent) risk.Intent {
	return risk.Intent{
		Ticker:     in.Ticker,
		Strike:     in.Strike,
		OptionType: in.OptionType,
		Contracts:  in.Contracts,
		EntryPrice: in.EntryPrice,
	}
}

func checkTickerQty(action order.Action, ticker string, n int, all bool, msg string) (Outcome, bool) {
	if ticker == "" {
		return reject(action, KindInvalidInput, "Ticker is required"), true
	}
	if !all && n <= 0 {
		return reject(action, KindInvalidInput, "%s", msg), true
	}
	return Outcome{}, false
}

func conflict(ticker string, existing ledger.Position, maxContracts int) Outcome {
	out := reject(order.BuyToOpen, KindConflict, "Already have open %s position this session", ticker)
	if existing.ID != "" {
		out.PositionID = existing.ID
		out.CurrentContracts = existing.Contracts
		out.AvailableContracts = maxContracts - existing.Contracts
		out.Position = &existing
	}
	return out
}

func formatOpen(prefix string, p ledger.Position) string {
	return fmt.Sprintf("%s %dx %s %s %s", prefix, p.Contracts, p.Ticker, p.Strike, p.OptionType)
}
