package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Memory keeps every session in process memory. Each session has its own
// lock; the session map has another.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	seq      atomic.Int64
	opts     options
}

type memSession struct {
	mu         sync.Mutex
	positions  []Position
	executions []Execution
	dropped    bool // removed from the map while empty; callers must look again
}

func NewMemory(opts ...Option) *Memory {
	return &Memory{
		sessions: make(map[string]*memSession),
		opts:     buildOptions(opts),
	}
}

// lock returns the session's state with its lock held.
func (m *Memory) lock(id string) *memSession {
	for {
		m.mu.Lock()
		s, ok := m.sessions[id]
		if !ok {
			s = &memSession{}
			m.sessions[id] = s
		}
		m.mu.Unlock()

		s.mu.Lock()
		if !s.dropped {
			return s
		}
		s.mu.Unlock()
	}
}

// unlock releases s, first forgetting it if nothing was ever written, so
// reads of unknown sessions leave no trace.
func (m *Memory) unlock(id string, s *memSession) {
	if len(s.positions) == 0 && len(s.executions) == 0 {
		m.mu.Lock()
		if m.sessions[id] == s {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		s.dropped = true
	}
	s.mu.Unlock()
}

func (m *Memory) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Atomically runs fn against a staged copy of the session and publishes it
// only when fn succeeds.
func (m *Memory) Atomically(ctx context.Context, sessionID string, fn func(Book) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := m.lock(sessionID)
	defer m.unlock(sessionID, s)

	b := &memBook{
		m:          m,
		sessionID:  sessionID,
		positions:  append([]Position(nil), s.positions...),
		executions: append([]Execution(nil), s.executions...),
	}
	if err := fn(b); err != nil {
		return err
	}
	s.positions = b.positions
	s.executions = b.executions
	return nil
}

func (m *Memory) Close() error {
	return nil
}

type memBook struct {
	m          *Memory
	sessionID  string
	positions  []Position
	executions []Execution
}

func (b *memBook) SessionID() string {
	return b.sessionID
}

func (b *memBook) openIndex(ticker string) int {
	for i, p := range b.positions {
		if p.IsOpen() && p.Ticker == ticker {
			return i
		}
	}
	return -1
}

func (b *memBook) GetOpenPosition(_ context.Context, ticker string) (Position, error) {
	i := b.openIndex(ticker)
	if i < 0 {
		return Position{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}
	return b.positions[i], nil
}

func (b *memBook) InsertIfAbsent(_ context.Context, p Position) (string, error) {
	if err := checkInsert(p, b.m.opts.maxContracts); err != nil {
		return "", err
	}
	if b.openIndex(p.Ticker) >= 0 {
		return "", fmt.Errorf("%w: %s in %s", ErrConflict, p.Ticker, b.sessionID)
	}
	p.SessionID = b.sessionID
	p.Status = StatusOpen
	p.ClosedAt = time.Time{}
	b.positions = append(b.positions, p)
	return p.ID, nil
}

func (b *memBook) MutateContracts(_ context.Context, ticker string, delta int) (int, error) {
	i := b.openIndex(ticker)
	if i < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}
	p := b.positions[i]
	n, err := nextContracts(ticker, p.Contracts, delta, b.m.opts.maxContracts)
	if err != nil {
		return p.Contracts, err
	}
	p.Contracts = n
	if n == 0 {
		p.Status = StatusClosed
		p.ClosedAt = b.m.opts.now()
	}
	b.positions[i] = p
	return n, nil
}

func (b *memBook) AggregateOpen(context.Context) (Aggregate, error) {
	return aggregate(b.positions), nil
}

func (b *memBook) CountExecutions(context.Context) (int, error) {
	return len(b.executions), nil
}

func (b *memBook) AppendExecution(_ context.Context, e Execution) error {
	e.Seq = b.m.seq.Add(1)
	e.SessionID = b.sessionID
	if e.Time.IsZero() {
		e.Time = b.m.opts.now()
	}
	b.executions = append(b.executions, e)
	return nil
}

func (b *memBook) ListOpen(context.Context) ([]Position, error) {
	var out []Position
	for _, p := range b.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	sortByEntry(out)
	return out, nil
}

func (b *memBook) ListAll(context.Context) ([]Position, error) {
	out := append([]Position(nil), b.positions...)
	sortByEntry(out)
	return out, nil
}

func (b *memBook) ListExecutions(context.Context) ([]Execution, error) {
	return append([]Execution(nil), b.executions...), nil
}

func sortByEntry(ps []Position) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].EntryTime.Before(ps[j].EntryTime)
	})
}
