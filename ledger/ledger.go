// Package ledger records option positions and executions per trading
// session. Every read and write goes through a Book bound to one session and
// runs inside that session's critical section.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/ordergate/order"
	"github.com/rustyeddy/ordergate/risk"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound       = errors.New("ledger: no open position")
	ErrConflict       = errors.New("ledger: open position already exists")
	ErrContractBounds = errors.New("ledger: contract count out of bounds")
)

// DefaultMaxContracts caps the contracts held by one open position.
const DefaultMaxContracts = 5

// StorageError reports a backend malfunction, as opposed to a business
// outcome such as ErrNotFound.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// IsStorage reports whether err is, or wraps, a *StorageError.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

type ExecutionType string

const (
	ExecOpen         ExecutionType = "OPEN"
	ExecAdd          ExecutionType = "ADD"
	ExecClose        ExecutionType = "CLOSE"
	ExecPartialClose ExecutionType = "PARTIAL_CLOSE"
)

// Position is one ledger row. Strike, OptionType, Expiration and EntryPrice
// never change after creation. ClosedAt is zero while the row is OPEN.
type Position struct {
	ID         string
	Ticker     string
	Strike     decimal.Decimal
	OptionType order.OptionType
	Expiration order.Expiration
	Contracts  int
	EntryPrice decimal.Decimal
	SessionID  string
	EntryTime  time.Time
	Status     Status
	ClosedAt   time.Time
}

// Exposure is contracts x entry price x 100.
func (p Position) Exposure() decimal.Decimal {
	return risk.PositionValue(p.Contracts, p.EntryPrice)
}

func (p Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Execution is an append-only audit entry. Seq is assigned by the backend.
type Execution struct {
	Seq       int64
	SessionID string
	Type      ExecutionType
	Ticker    string
	Contracts int
	Time      time.Time
}

// Aggregate summarizes the OPEN rows of a session.
type Aggregate struct {
	Positions int
	Contracts int
	Exposure  decimal.Decimal
}

// Book is the set of ledger operations for a single session. A Book is only
// valid inside the Atomically call that produced it.
type Book interface {
	SessionID() string
	GetOpenPosition(ctx context.Context, ticker string) (Position, error)
	InsertIfAbsent(ctx context.Context, p Position) (string, error)
	MutateContracts(ctx context.Context, ticker string, delta int) (int, error)
	AggregateOpen(ctx context.Context) (Aggregate, error)
	CountExecutions(ctx context.Context) (int, error)
	AppendExecution(ctx context.Context, e Execution) error
	ListOpen(ctx context.Context) ([]Position, error)
	ListAll(ctx context.Context) ([]Position, error)
	ListExecutions(ctx context.Context) ([]Execution, error)
}

// Ledger hands out Books. Everything fn does through its Book is one
// linearizable step for that session; a non-nil error from fn discards
// every write fn made.
type Ledger interface {
	Atomically(ctx context.Context, sessionID string, fn func(Book) error) error
	Close() error
}

// Option configures a backend.
type Option func(*options)

type options struct {
	maxContracts int
	now          func() time.Time
}

// WithMaxContracts sets the per-position contract cap enforced by
// MutateContracts.
func WithMaxContracts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxContracts = n
		}
	}
}

// WithClock sets the clock used for ClosedAt and execution times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxContracts: DefaultMaxContracts, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// checkInsert validates a row before it is stored.
func checkInsert(p Position, limit int) error {
	if p.ID == "" {
		return fmt.Errorf("ledger: position id is required")
	}
	if p.Ticker == "" {
		return fmt.Errorf("ledger: ticker is required")
	}
	if !p.Strike.IsPositive() {
		return fmt.Errorf("ledger: strike %s must be positive", p.Strike)
	}
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("ledger: entry price %s must be positive", p.EntryPrice)
	}
	if !p.OptionType.Valid() {
		return fmt.Errorf("ledger: option type %q must be CALL or PUT", p.OptionType)
	}
	if p.Contracts < 1 || p.Contracts > limit {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrContractBounds, p.Contracts, limit)
	}
	return nil
}

// nextContracts applies delta and checks the result stays in [0, limit].
func nextContracts(ticker string, current, delta, limit int) (int, error) {
	n := current + delta
	if n < 0 || n > limit {
		return current, fmt.Errorf("%w: %s would hold %d (limit %d)", ErrContractBounds, ticker, n, limit)
	}
	return n, nil
}

func aggregate(ps []Position) Aggregate {
	agg := Aggregate{Exposure: decimal.Zero}
	for _, p := range ps {
		if !p.IsOpen() {
			continue
		}
		agg.Positions++
		agg.Contracts += p.Contracts
		agg.Exposure = agg.Exposure.Add(p.Exposure())
	}
	return agg
}

// GetOpenPosition runs a single lookup as its own atomic step.
func GetOpenPosition(ctx context.Context, l Ledger, sessionID, ticker string) (Position, error) {
	var p Position
	err := l.Atomically(ctx, sessionID, func(b Book) error {
		var err error
		p, err = b.GetOpenPosition(ctx, ticker)
		return err
	})
	return p, err
}

func AggregateOpen(ctx context.Context, l Ledger, sessionID string) (Aggregate, error) {
	var agg Aggregate
	err := l.Atomically(ctx, sessionID, func(b Book) error {
		var err error
		agg, err = b.AggregateOpen(ctx)
		return err
	})
	return agg, err
}

func CountExecutions(ctx context.Context, l Ledger, sessionID string) (int, error) {
	var n int
	err := l.Atomically(ctx, sessionID, func(b Book) error {
		var err error
		n, err = b.CountExecutions(ctx)
		return err
	})
	return n, err
}

func ListOpen(ctx context.Context, l Ledger, sessionID string) ([]Position, error) {
	var ps []Position
	err := l.Atomically(ctx, sessionID, func(b Book) error {
		var err error
		ps, err = b.ListOpen(ctx)
		return err
	})
	return ps, err
}

func ListAll(ctx context.Context, l Ledger, sessionID string) ([]Position, error) {
	var ps []Position
	err := l.Atomically(ctx, sessionID, func(b Book) error {
		var err error
		ps, err = b.ListAll(ctx)
		return err
	})
	return ps, err
}

func ListExecutions(ctx context.Context, l Ledger, sessionID string) ([]Execution, error) {
	var es []Execution
	err := l.Atomically(ctx, sessionID, func(b Book) error {
		var err error
		es, err = b.ListExecutions(ctx)
		return err
	})
	return es, err
}

func InsertIfAbsent(ctx context.Context, l Ledger, p Position) (string, error) {
	var id string
	err := l.Atomically(ctx, p.SessionID, func(b Book) error {
		var err error
		id, err = b.InsertIfAbsent(ctx, p)
		return err
	})
	return id, err
}

func MutateContracts(ctx context.Context, l Ledger, sessionID, ticker string, delta int) (int, error) {
	var n int
	err := l.Atomically(ctx, sessionID, func(b Book) error {
		var err error
		n, err = b.MutateContracts(ctx, ticker, delta)
		return err
	})
	return n, err
}

func AppendExecution(ctx context.Context, l Ledger, e Execution) error {
	return l.Atomically(ctx, e.SessionID, func(b Book) error {
		return b.AppendExecution(ctx, e)
	})
}
