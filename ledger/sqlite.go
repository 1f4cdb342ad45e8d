package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

const sqlitePositionCols = `id, ticker, strike, option_type, expiration, contracts,
	entry_price, session_id, entry_time, status, closed_at`

// SQLite is a file-backed ledger. Transactions start with BEGIN IMMEDIATE
// and are additionally serialized by a process mutex, so a Book always holds
// the write lock for its whole lifetime.
type SQLite struct {
	mu   sync.Mutex
	db   *sql.DB
	opts options
}

func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, storageErr("open", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SQLiteSchema); err != nil {
		_ = db.Close()
		return nil, storageErr("create schema", err)
	}

	return &SQLite{db: db, opts: buildOptions(opts)}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000"
}

// DB exposes the handle for reporting queries and tests.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Atomically(ctx context.Context, sessionID string, fn func(Book) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}

	b := &sqliteBook{tx: tx, sessionID: sessionID, opts: s.opts}
	if err := fn(b); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteBook struct {
	tx        *sql.Tx
	sessionID string
	opts      options
}

func (b *sqliteBook) SessionID() string {
	return b.sessionID
}

func (b *sqliteBook) GetOpenPosition(ctx context.Context, ticker string) (Position, error) {
	row := b.tx.QueryRowContext(ctx, `
		SELECT `+sqlitePositionCols+`
		FROM positions
		WHERE ticker = ? AND session_id = ? AND status = 'OPEN'`, ticker, b.sessionID)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Position{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
		}
		return Position{}, storageErr("get open position", err)
	}
	return p, nil
}

func (b *sqliteBook) InsertIfAbsent(ctx context.Context, p Position) (string, error) {
	if err := checkInsert(p, b.opts.maxContracts); err != nil {
		return "", err
	}
	if _, err := b.GetOpenPosition(ctx, p.Ticker); err == nil {
		return "", fmt.Errorf("%w: %s in %s", ErrConflict, p.Ticker, b.sessionID)
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO positions
		(id, ticker, strike, option_type, expiration, contracts, entry_price, session_id, entry_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'OPEN')`,
		p.ID, p.Ticker, p.Strike.String(), string(p.OptionType), string(p.Expiration),
		p.Contracts, p.EntryPrice.String(), b.sessionID, p.EntryTime.UTC(),
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return "", fmt.Errorf("%w: %s in %s", ErrConflict, p.Ticker, b.sessionID)
		}
		return "", storageErr("insert position", err)
	}
	return p.ID, nil
}

func (b *sqliteBook) MutateContracts(ctx context.Context, ticker string, delta int) (int, error) {
	p, err := b.GetOpenPosition(ctx, ticker)
	if err != nil {
		return 0, err
	}
	n, err := nextContracts(ticker, p.Contracts, delta, b.opts.maxContracts)
	if err != nil {
		return p.Contracts, err
	}

	if n == 0 {
		_, err = b.tx.ExecContext(ctx, `
			UPDATE positions SET contracts = 0, status = 'CLOSED', closed_at = ?
			WHERE id = ?`, b.opts.now().UTC(), p.ID)
	} else {
		_, err = b.tx.ExecContext(ctx, `UPDATE positions SET contracts = ? WHERE id = ?`, n, p.ID)
	}
	if err != nil {
		return p.Contracts, storageErr("update contracts", err)
	}
	return n, nil
}

// AggregateOpen sums in Go so the decimal TEXT columns are never coerced
// to floating point by SQLite.
func (b *sqliteBook) AggregateOpen(ctx context.Context) (Aggregate, error) {
	ps, err := b.ListOpen(ctx)
	if err != nil {
		return Aggregate{}, err
	}
	return aggregate(ps), nil
}

func (b *sqliteBook) CountExecutions(ctx context.Context) (int, error) {
	var n int
	err := b.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_executions WHERE session_id = ?`, b.sessionID).Scan(&n)
	if err != nil {
		return 0, storageErr("count executions", err)
	}
	return n, nil
}

func (b *sqliteBook) AppendExecution(ctx context.Context, e Execution) error {
	if e.Time.IsZero() {
		e.Time = b.opts.now()
	}
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO session_executions
		(session_id, execution_type, ticker, contracts, executed_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.sessionID, string(e.Type), e.Ticker, e.Contracts, e.Time.UTC(),
	)
	if err != nil {
		return storageErr("append execution", err)
	}
	return nil
}

func (b *sqliteBook) ListOpen(ctx context.Context) ([]Position, error) {
	return b.listPositions(ctx, "list open positions", `
		SELECT `+sqlitePositionCols+`
		FROM positions
		WHERE session_id = ? AND status = 'OPEN'
		ORDER BY entry_time ASC, id ASC`)
}

func (b *sqliteBook) ListAll(ctx context.Context) ([]Position, error) {
	return b.listPositions(ctx, "list positions", `
		SELECT `+sqlitePositionCols+`
		FROM positions
		WHERE session_id = ?
		ORDER BY entry_time ASC, id ASC`)
}

func (b *sqliteBook) listPositions(ctx context.Context, op, query string) ([]Position, error) {
	rows, err := b.tx.QueryContext(ctx, query, b.sessionID)
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

func (b *sqliteBook) ListExecutions(ctx context.Context) ([]Execution, error) {
	rows, err := b.tx.QueryContext(ctx, `
		SELECT seq, session_id, execution_type, ticker, contracts, executed_at
		FROM session_executions
		WHERE session_id = ?
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

func isSQLiteUnique(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
