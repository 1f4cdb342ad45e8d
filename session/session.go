// Package session defines the trading session every ledger and risk call is
// scoped to, and how a session key is derived from the wall clock.
package session

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without zoneinfo
)

// Session is a bounded trading window. Positions and execution counters
// are scoped to its ID.
type Session struct {
	ID      string
	Started time.Time
}

// New returns a Session with an explicit key, for callers that already
// know which session they mean (reports, the CLI, tests).
func New(id string, started time.Time) Session {
	return Session{ID: id, Started: started}
}

func (s Session) String() string {
	return s.ID
}

// Resolver derives session keys from calendar date and a time bucket in a
// fixed location. A zero bucket means one session per calendar day.
type Resolver struct {
	loc    *time.Location
	bucket time.Duration
}

func NewResolver(tz string, bucket time.Duration) (*Resolver, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("session timezone %q: %w", tz, err)
	}
	if bucket < 0 {
		return nil, fmt.Errorf("session bucket must not be negative: %s", bucket)
	}
	return &Resolver{loc: loc, bucket: bucket}, nil
}

// DayOpen returns local midnight for now.
func (r *Resolver) DayOpen(now time.Time) time.Time {
	y, m, d := now.In(r.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.loc)
}

// Start returns the beginning of the bucket containing now.
func (r *Resolver) Start(now time.Time) time.Time {
	open := r.DayOpen(now)
	if r.bucket <= 0 {
		return open
	}
	elapsed := now.In(r.loc).Sub(open)
	return open.Add(elapsed - elapsed%r.bucket)
}

// Key formats session_YYYYMMDD for whole-day sessions and
// session_YYYYMMDD_HHMM otherwise.
func (r *Resolver) Key(now time.Time) string {
	start := r.Start(now)
	if r.bucket <= 0 {
		return "session_" + start.Format("20060102")
	}
	return "session_" + start.Format("20060102_1504")
}

func (r *Resolver) Resolve(now time.Time) Session {
	return Session{ID: r.Key(now), Started: r.Start(now)}
}

// Manager hands out the current session. A session is created on the first
// request that falls into a new bucket; once the manager has moved on it
// never returns to an earlier session, even if the clock steps backwards.
type Manager struct {
	mu       sync.Mutex
	resolver *Resolver
	clock    func() time.Time
	current  *Session
	onRoll   func(prev, next Session)
}

type ManagerOption func(*Manager)

func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

// OnRollover registers a callback invoked (with the lock held) whenever a
// new session replaces the current one. prev is zero for the first session.
func OnRollover(fn func(prev, next Session)) ManagerOption {
	return func(m *Manager) { m.onRoll = fn }
}

func NewManager(r *Resolver, opts ...ManagerOption) *Manager {
	m := &Manager{resolver: r, clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	next := m.resolver.Resolve(now)
	if m.current != nil && !next.Started.After(m.current.Started) {
		return *m.current
	}

	var prev Session
	if m.current != nil {
		prev = *m.current
	}
	m.current = &next
	if m.onRoll != nil {
		m.onRoll(prev, next)
	}
	return next
}
