package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/ordergate/id"
	"github.com/rustyeddy/ordergate/order"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var t0 = time.Date(2025, 3, 14, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return t0.Add(time.Hour) }

type factory func(t *testing.T) Ledger

func backends() map[string]factory {
	m := map[string]factory{
		"memory": func(t *testing.T) Ledger {
			return NewMemory(WithClock(fixedClock))
		},
		"sqlite": func(t *testing.T) Ledger {
			l, err := NewSQLite(filepath.Join(t.TempDir(), "ledger.db"), WithClock(fixedClock))
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			return l
		},
	}
	if dsn := os.Getenv("ORDERGATE_TEST_POSTGRES_DSN"); dsn != "" {
		m["postgres"] = func(t *testing.T) Ledger {
			l, err := NewPostgres(context.Background(), dsn, 4, WithClock(fixedClock))
			require.NoError(t, err)
			t.Cleanup(func() { _ = l.Close() })
			return l
		}
	}
	return m
}

// forEachBackend runs fn once per backend. Session ids are unique per run so
// a shared Postgres database does not leak state between tests.
func forEachBackend(t *testing.T, fn func(t *testing.T, l Ledger, sess string)) {
	t.Helper()
	for name, mk := range backends() {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fn(t, mk(t), "session_test_"+id.New())
		})
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func position(ticker string, contracts int, price string, at time.Time) Position {
	return Position{
		ID:         id.New(),
		Ticker:     ticker,
		Strike:     dec("340"),
		OptionType: order.Call,
		Expiration: order.ZeroDTE,
		Contracts:  contracts,
		EntryPrice: dec(price),
		EntryTime:  at,
	}
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		p := position("TSLA", 5, "2.50", t0)
		p.SessionID = sess

		pid, err := InsertIfAbsent(ctx, l, p)
		require.NoError(t, err)
		assert.Equal(t, p.ID, pid)

		got, err := GetOpenPosition(ctx, l, sess, "TSLA")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, "TSLA", got.Ticker)
		assert.True(t, got.Strike.Equal(dec("340")), "strike %s", got.Strike)
		assert.True(t, got.EntryPrice.Equal(dec("2.50")), "price %s", got.EntryPrice)
		assert.Equal(t, order.Call, got.OptionType)
		assert.Equal(t, order.ZeroDTE, got.Expiration)
		assert.Equal(t, 5, got.Contracts)
		assert.Equal(t, sess, got.SessionID)
		assert.Equal(t, StatusOpen, got.Status)
		assert.True(t, got.EntryTime.Equal(t0))
		assert.True(t, got.ClosedAt.IsZero())
		assert.True(t, got.Exposure().Equal(dec("1250")))

		// reads do not mutate
		again, err := GetOpenPosition(ctx, l, sess, "TSLA")
		require.NoError(t, err)
		assert.Equal(t, got.ID, again.ID)
		assert.Equal(t, got.Contracts, again.Contracts)
	})
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		_, err := GetOpenPosition(context.Background(), l, sess, "AAPL")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.False(t, IsStorage(err))
	})
}

func TestInsertConflict(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		first := position("AAPL", 2, "3.00", t0)
		first.SessionID = sess
		_, err := InsertIfAbsent(ctx, l, first)
		require.NoError(t, err)

		second := position("AAPL", 1, "3.10", t0.Add(time.Minute))
		second.SessionID = sess
		_, err = InsertIfAbsent(ctx, l, second)
		assert.ErrorIs(t, err, ErrConflict)

		all, err := ListAll(ctx, l, sess)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestInsertRejectsBadRows(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()

		p := position("SPY", 6, "1.00", t0)
		p.SessionID = sess
		_, err := InsertIfAbsent(ctx, l, p)
		assert.ErrorIs(t, err, ErrContractBounds)

		p = position("SPY", 0, "1.00", t0)
		p.SessionID = sess
		_, err = InsertIfAbsent(ctx, l, p)
		assert.ErrorIs(t, err, ErrContractBounds)

		p = position("SPY", 1, "1.00", t0)
		p.SessionID = sess
		p.ID = ""
		_, err = InsertIfAbsent(ctx, l, p)
		assert.Error(t, err)

		bad := map[string]func(*Position){
			"zero strike":       func(p *Position) { p.Strike = decimal.Zero },
			"negative price":    func(p *Position) { p.EntryPrice = dec("-3") },
			"zero price":        func(p *Position) { p.EntryPrice = decimal.Zero },
			"empty option type": func(p *Position) { p.OptionType = "" },
			"straddle":          func(p *Position) { p.OptionType = "STRADDLE" },
		}
		for name, mutate := range bad {
			p := position("SPY", 1, "1.00", t0)
			p.SessionID = sess
			mutate(&p)
			_, err := InsertIfAbsent(ctx, l, p)
			require.Error(t, err, name)
			assert.False(t, IsStorage(err), "%s: %v", name, err)
		}

		agg, err := AggregateOpen(ctx, l, sess)
		require.NoError(t, err)
		assert.Zero(t, agg.Positions)
	})
}

func TestMutateContracts(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		p := position("NVDA", 5, "2.00", t0)
		p.SessionID = sess
		_, err := InsertIfAbsent(ctx, l, p)
		require.NoError(t, err)

		n, err := MutateContracts(ctx, l, sess, "NVDA", -2)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = MutateContracts(ctx, l, sess, "NVDA", 2)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		_, err = MutateContracts(ctx, l, sess, "NVDA", 1)
		assert.ErrorIs(t, err, ErrContractBounds)
		_, err = MutateContracts(ctx, l, sess, "NVDA", -6)
		assert.ErrorIs(t, err, ErrContractBounds)

		got, err := GetOpenPosition(ctx, l, sess, "NVDA")
		require.NoError(t, err)
		assert.Equal(t, 5, got.Contracts)

		n, err = MutateContracts(ctx, l, sess, "NVDA", -5)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = GetOpenPosition(ctx, l, sess, "NVDA")
		assert.ErrorIs(t, err, ErrNotFound)

		all, err := ListAll(ctx, l, sess)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, StatusClosed, all[0].Status)
		assert.Zero(t, all[0].Contracts)
		assert.True(t, all[0].ClosedAt.Equal(fixedClock()), "closed at %s", all[0].ClosedAt)

		_, err = MutateContracts(ctx, l, sess, "NVDA", -1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestReopenAfterClose(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		p := position("AMD", 2, "1.50", t0)
		p.SessionID = sess
		_, err := InsertIfAbsent(ctx, l, p)
		require.NoError(t, err)
		_, err = MutateContracts(ctx, l, sess, "AMD", -2)
		require.NoError(t, err)

		again := position("AMD", 1, "1.70", t0.Add(time.Minute))
		again.SessionID = sess
		_, err = InsertIfAbsent(ctx, l, again)
		require.NoError(t, err)

		open, err := ListOpen(ctx, l, sess)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, again.ID, open[0].ID)

		all, err := ListAll(ctx, l, sess)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestAggregateAndOrdering(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		err := l.Atomically(ctx, sess, func(b Book) error {
			for i, tk := range []string{"QQQ", "SPY", "META"} {
				p := position(tk, i+1, "2.00", t0.Add(time.Duration(2-i)*time.Minute))
				if _, err := b.InsertIfAbsent(ctx, p); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		agg, err := AggregateOpen(ctx, l, sess)
		require.NoError(t, err)
		assert.Equal(t, 3, agg.Positions)
		assert.Equal(t, 6, agg.Contracts)
		assert.True(t, agg.Exposure.Equal(dec("1200")), "exposure %s", agg.Exposure)

		open, err := ListOpen(ctx, l, sess)
		require.NoError(t, err)
		require.Len(t, open, 3)
		assert.Equal(t, []string{"META", "SPY", "QQQ"},
			[]string{open[0].Ticker, open[1].Ticker, open[2].Ticker})
	})
}

func TestExecutions(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()

		n, err := CountExecutions(ctx, l, sess)
		require.NoError(t, err)
		assert.Zero(t, n)

		for _, e := range []Execution{
			{SessionID: sess, Type: ExecOpen, Ticker: "TSLA", Contracts: 5, Time: t0},
			{SessionID: sess, Type: ExecPartialClose, Ticker: "TSLA", Contracts: 2},
			{SessionID: sess, Type: ExecClose, Ticker: "TSLA", Contracts: 3},
		} {
			require.NoError(t, AppendExecution(ctx, l, e))
		}

		n, err = CountExecutions(ctx, l, sess)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		es, err := ListExecutions(ctx, l, sess)
		require.NoError(t, err)
		require.Len(t, es, 3)
		assert.Equal(t, ExecOpen, es[0].Type)
		assert.Equal(t, ExecPartialClose, es[1].Type)
		assert.Equal(t, ExecClose, es[2].Type)
		assert.Less(t, es[0].Seq, es[1].Seq)
		assert.Less(t, es[1].Seq, es[2].Seq)
		assert.True(t, es[0].Time.Equal(t0))
		assert.True(t, es[1].Time.Equal(fixedClock()))
	})
}

func TestAtomicallyRollsBack(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := l.Atomically(ctx, sess, func(b Book) error {
			p := position("UBER", 1, "1.00", t0)
			if _, err := b.InsertIfAbsent(ctx, p); err != nil {
				return err
			}
			if err := b.AppendExecution(ctx, Execution{Type: ExecOpen, Ticker: "UBER", Contracts: 1}); err != nil {
				return err
			}
			// the write is visible inside the same step
			if _, err := b.GetOpenPosition(ctx, "UBER"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = GetOpenPosition(ctx, l, sess, "UBER")
		assert.ErrorIs(t, err, ErrNotFound)
		n, err := CountExecutions(ctx, l, sess)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSessionIsolation(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		other := sess + "_next"

		for _, s := range []string{sess, other} {
			p := position("HOOD", 2, "1.00", t0)
			p.SessionID = s
			_, err := InsertIfAbsent(ctx, l, p)
			require.NoError(t, err)
		}
		require.NoError(t, AppendExecution(ctx, l, Execution{SessionID: sess, Type: ExecOpen, Ticker: "HOOD", Contracts: 2}))

		_, err := MutateContracts(ctx, l, other, "HOOD", -2)
		require.NoError(t, err)

		got, err := GetOpenPosition(ctx, l, sess, "HOOD")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Contracts)

		n, err := CountExecutions(ctx, l, other)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestConcurrentInsertSameTicker(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		var ok, conflicts atomic.Int32

		var g errgroup.Group
		for i := 0; i < 16; i++ {
			g.Go(func() error {
				p := position("PLTR", 1, "1.00", t0)
				p.SessionID = sess
				_, err := InsertIfAbsent(ctx, l, p)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, ErrConflict):
					conflicts.Add(1)
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.EqualValues(t, 1, ok.Load())
		assert.EqualValues(t, 15, conflicts.Load())

		open, err := ListOpen(ctx, l, sess)
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})
}

func TestConcurrentMutateStaysInBounds(t *testing.T) {
	t.Parallel()
	forEachBackend(t, func(t *testing.T, l Ledger, sess string) {
		ctx := context.Background()
		p := position("IWM", 5, "1.00", t0)
		p.SessionID = sess
		_, err := InsertIfAbsent(ctx, l, p)
		require.NoError(t, err)

		var applied atomic.Int32
		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				_, err := MutateContracts(ctx, l, sess, "IWM", -1)
				switch {
				case err == nil:
					applied.Add(1)
				case errors.Is(err, ErrNotFound), errors.Is(err, ErrContractBounds):
				default:
					return err
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		assert.EqualValues(t, 5, applied.Load())
		all, err := ListAll(ctx, l, sess)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, StatusClosed, all[0].Status)
	})
}

func TestStorageError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := storageErr("insert position", cause)

	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ledger: insert position: disk full", err.Error())
	assert.False(t, IsStorage(ErrNotFound))
}

func TestMemoryHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewMemory().Atomically(ctx, "s", func(Book) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMaxContractsOption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewMemory(WithMaxContracts(10))
	p := position("SPX", 8, "5.00", t0)
	p.SessionID = "s"
	_, err := InsertIfAbsent(ctx, l, p)
	require.NoError(t, err)

	n, err := MutateContracts(ctx, l, "s", "SPX", 2)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestMemoryForgetsUntouchedSessions(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()

	for _, s := range []string{"session_20250101", "session_20250102", "nope"} {
		_, err := ListOpen(ctx, m, s)
		require.NoError(t, err)
		_, err = GetOpenPosition(ctx, m, s, "TSLA")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Zero(t, m.sessionCount())

	// a rolled back write leaves nothing behind either
	err := m.Atomically(ctx, "session_20250103", func(b Book) error {
		if _, err := b.InsertIfAbsent(ctx, position("TSLA", 1, "2.00", t0)); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Zero(t, m.sessionCount())

	p := position("TSLA", 1, "2.00", t0)
	p.SessionID = "session_20250314"
	_, err = InsertIfAbsent(ctx, m, p)
	require.NoError(t, err)
	assert.Equal(t, 1, m.sessionCount())

	// closed rows are history and keep the session
	_, err = MutateContracts(ctx, m, "session_20250314", "TSLA", -1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.sessionCount())
}

func TestMemoryConcurrentFirstWrites(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	ctx := context.Background()
	sess := "session_20250314"

	var accepted atomic.Int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		i := i
		g.Go(func() error {
			if i%2 == 0 {
				_, err := ListOpen(ctx, m, sess)
				return err
			}
			p := position("AAPL", 1, "2.00", t0)
			p.SessionID = sess
			_, err := InsertIfAbsent(ctx, m, p)
			if err == nil {
				accepted.Add(1)
				return nil
			}
			if errors.Is(err, ErrConflict) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, accepted.Load())

	open, err := ListOpen(ctx, m, sess)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
