package ledger

import (
	"fmt"
	"time"

	"github.com/rustyeddy/ordergate/order"
	"github.com/shopspring/decimal"
)

// SQLiteSchema stores money as TEXT so decimals round-trip exactly. The
// partial unique index is the storage-level guard for one OPEN row per
// ticker per session.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS positions (
	id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	strike TEXT NOT NULL,
	option_type TEXT NOT NULL CHECK (option_type IN ('CALL', 'PUT')),
	expiration TEXT NOT NULL DEFAULT '0DTE',
	contracts INTEGER NOT NULL CHECK (contracts >= 0),
	entry_price TEXT NOT NULL,
	session_id TEXT NOT NULL,
	entry_time DATETIME NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('OPEN', 'CLOSED')),
	closed_at DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_ticker
	ON positions(ticker, session_id) WHERE status = 'OPEN';

CREATE INDEX IF NOT EXISTS idx_positions_session ON positions(session_id, status);

CREATE TABLE IF NOT EXISTS session_executions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	execution_type TEXT NOT NULL,
	ticker TEXT NOT NULL,
	contracts INTEGER NOT NULL,
	executed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_session ON session_executions(session_id);
`

// PostgresSchema is applied one statement at a time.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL,
		strike NUMERIC NOT NULL,
		option_type TEXT NOT NULL CHECK (option_type IN ('CALL', 'PUT')),
		expiration TEXT NOT NULL DEFAULT '0DTE',
		contracts INTEGER NOT NULL CHECK (contracts >= 0),
		entry_price NUMERIC NOT NULL,
		session_id TEXT NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('OPEN', 'CLOSED')),
		closed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_ticker
		ON positions(ticker, session_id) WHERE status = 'OPEN'`,
	`CREATE INDEX IF NOT EXISTS idx_positions_session ON positions(session_id, status)`,
	`CREATE TABLE IF NOT EXISTS session_executions (
		seq BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		execution_type TEXT NOT NULL,
		ticker TEXT NOT NULL,
		contracts INTEGER NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_session ON session_executions(session_id)`,
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPosition reads the columns listed in positionCols. Money columns
// arrive as text on every backend.
func scanPosition(row rowScanner) (Position, error) {
	var (
		p                Position
		strike, price    string
		optType, exp, st string
		closedAt         *time.Time
	)
	if err := row.Scan(
		&p.ID, &p.Ticker, &strike, &optType, &exp, &p.Contracts,
		&price, &p.SessionID, &p.EntryTime, &st, &closedAt,
	); err != nil {
		return Position{}, err
	}

	var err error
	if p.Strike, err = decimal.NewFromString(strike); err != nil {
		return Position{}, fmt.Errorf("strike %q: %w", strike, err)
	}
	if p.EntryPrice, err = decimal.NewFromString(price); err != nil {
		return Position{}, fmt.Errorf("entry price %q: %w", price, err)
	}
	p.OptionType = order.OptionType(optType)
	p.Expiration = order.Expiration(exp)
	p.Status = Status(st)
	if closedAt != nil {
		p.ClosedAt = *closedAt
	}
	return p, nil
}

func scanExecution(row rowScanner) (Execution, error) {
	var (
		e  Execution
		et string
	)
	if err := row.Scan(&e.Seq, &e.SessionID, &et, &e.Ticker, &e.Contracts, &e.Time); err != nil {
		return Execution{}, err
	}
	e.Type = ExecutionType(et)
	return e, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
