package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgPositionCols = `id, ticker, strike::text, option_type, expiration, contracts,
	entry_price::text, session_id, entry_time, status, closed_at`

// Postgres shares one database between processes. Each Atomically call runs
// in a transaction holding a session-scoped advisory lock.
type Postgres struct {
	pool *pgxpool.Pool
	opts options
}

// NewPostgres connects, pings and applies the schema. maxConns <= 0 keeps
// the pgxpool default.
func NewPostgres(ctx context.Context, dsn string, maxConns int, opts ...Option) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, storageErr("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr("ping", err)
	}

	for _, stmt := range PostgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, storageErr("create schema", err)
		}
	}

	return &Postgres{pool: pool, opts: buildOptions(opts)}, nil
}

// Pool returns the underlying connection pool.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *Postgres) Atomically(ctx context.Context, sessionID string, fn func(Book) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID); err != nil {
		return storageErr("lock session", err)
	}

	if err := fn(&pgBook{tx: tx, sessionID: sessionID, opts: p.opts}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgBook struct {
	tx        pgx.Tx
	sessionID string
	opts      options
}

func (b *pgBook) SessionID() string {
	return b.sessionID
}

func (b *pgBook) GetOpenPosition(ctx context.Context, ticker string) (Position, error) {
	row := b.tx.QueryRow(ctx, `
		SELECT `+pgPositionCols+`
		FROM positions
		WHERE ticker = $1 AND session_id = $2 AND status = 'OPEN'`, ticker, b.sessionID)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Position{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
		}
		return Position{}, storageErr("get open position", err)
	}
	return p, nil
}

func (b *pgBook) InsertIfAbsent(ctx context.Context, p Position) (string, error) {
	if err := checkInsert(p, b.opts.maxContracts); err != nil {
		return "", err
	}
	if _, err := b.GetOpenPosition(ctx, p.Ticker); err == nil {
		return "", fmt.Errorf("%w: %s in %s", ErrConflict, p.Ticker, b.sessionID)
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	_, err := b.tx.Exec(ctx, `
		INSERT INTO positions
		(id, ticker, strike, option_type, expiration, contracts, entry_price, session_id, entry_time, status)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7::numeric, $8, $9, 'OPEN')`,
		p.ID, p.Ticker, p.Strike.String(), string(p.OptionType), string(p.Expiration),
		p.Contracts, p.EntryPrice.String(), b.sessionID, p.EntryTime.UTC(),
	)
	if err != nil {
		if isPgUnique(err) {
			return "", fmt.Errorf("%w: %s in %s", ErrConflict, p.Ticker, b.sessionID)
		}
		return "", storageErr("insert position", err)
	}
	return p.ID, nil
}

func (b *pgBook) MutateContracts(ctx context.Context, ticker string, delta int) (int, error) {
	p, err := b.GetOpenPosition(ctx, ticker)
	if err != nil {
		return 0, err
	}
	n, err := nextContracts(ticker, p.Contracts, delta, b.opts.maxContracts)
	if err != nil {
		return p.Contracts, err
	}

	if n == 0 {
		_, err = b.tx.Exec(ctx, `
			UPDATE positions SET contracts = 0, status = 'CLOSED', closed_at = $2
			WHERE id = $1`, p.ID, b.opts.now().UTC())
	} else {
		_, err = b.tx.Exec(ctx, `UPDATE positions SET contracts = $2 WHERE id = $1`, p.ID, n)
	}
	if err != nil {
		return p.Contracts, storageErr("update contracts", err)
	}
	return n, nil
}

func (b *pgBook) AggregateOpen(ctx context.Context) (Aggregate, error) {
	ps, err := b.ListOpen(ctx)
	if err != nil {
		return Aggregate{}, err
	}
	return aggregate(ps), nil
}

func (b *pgBook) CountExecutions(ctx context.Context) (int, error) {
	var n int
	err := b.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_executions WHERE session_id = $1`, b.sessionID).Scan(&n)
	if err != nil {
		return 0, storageErr("count executions", err)
	}
	return n, nil
}

func (b *pgBook) AppendExecution(ctx context.Context, e Execution) error {
	if e.Time.IsZero() {
		e.Time = b.opts.now()
	}
	_, err := b.tx.Exec(ctx, `
		INSERT INTO session_executions
		(session_id, execution_type, ticker, contracts, executed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		b.sessionID, string(e.Type), e.Ticker, e.Contracts, e.Time.UTC(),
	)
	if err != nil {
		return storageErr("append execution", err)
	}
	return nil
}

func (b *pgBook) ListOpen(ctx context.Context) ([]Position, error) {
	return b.listPositions(ctx, "list open positions", `
		SELECT `+pgPositionCols+`
		FROM positions
		WHERE session_id = $1 AND status = 'OPEN'
		ORDER BY entry_time ASC, id ASC`)
}

func (b *pgBook) ListAll(ctx context.Context) ([]Position, error) {
	return b.listPositions(ctx, "list positions", `
		SELECT `+pgPositionCols+`
		FROM positions
		WHERE session_id = $1
		ORDER BY entry_time ASC, id ASC`)
}

func (b *pgBook) listPositions(ctx context.Context, op, query string) ([]Position, error) {
	rows, err := b.tx.Query(ctx, query, b.sessionID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (b *pgBook) ListExecutions(ctx context.Context) ([]Execution, error) {
	rows, err := b.tx.Query(ctx, `
		SELECT seq, session_id, execution_type, ticker, contracts, executed_at
		FROM session_executions
		WHERE session_id = $1
		ORDER BY seq ASC`, b.sessionID)
	if err != nil {
		return nil, storageErr("list executions", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, storageErr("list executions", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list executions", err)
	}
	return out, nil
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
