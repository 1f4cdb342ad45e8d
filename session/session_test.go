package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverKeyWholeDay(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("UTC", 0)
	require.NoError(t, err)

	now := time.Date(2024, 1, 15, 14, 37, 12, 0, time.UTC)
	assert.Equal(t, "session_20240115", r.Key(now))
	assert.True(t, r.Start(now).Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestResolverKeyBucketed(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("UTC", 15*time.Minute)
	require.NoError(t, err)

	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), "session_20240115_0930"},
		{time.Date(2024, 1, 15, 9, 44, 59, 0, time.UTC), "session_20240115_0930"},
		{time.Date(2024, 1, 15, 9, 45, 0, 0, time.UTC), "session_20240115_0945"},
		{time.Date(2024, 1, 15, 0, 1, 0, 0, time.UTC), "session_20240115_0000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Key(tt.at), tt.at.String())
	}
}

func TestResolverUsesLocation(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("America/New_York", 0)
	require.NoError(t, err)

	// 02:00 UTC on the 16th is still the 15th in New York.
	now := time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "session_20240115", r.Key(now))
}

func TestNewResolverErrors(t *testing.T) {
	t.Parallel()

	_, err := NewResolver("Not/AZone", 0)
	assert.Error(t, err)

	_, err = NewResolver("UTC", -time.Minute)
	assert.Error(t, err)
}

func TestManagerRollsForwardOnly(t *testing.T) {
	t.Parallel()

	r, err := NewResolver("UTC", 0)
	require.NoError(t, err)

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	var rolls []string
	m := NewManager(r,
		WithClock(func() time.Time { return now }),
		OnRollover(func(prev, next Session) { rolls = append(rolls, prev.ID+"->"+next.ID) }),
	)

	s1 := m.Current()
	assert.Equal(t, "session_20240115", s1.ID)
	assert.Equal(t, s1, m.Current())

	now = now.Add(24 * time.Hour)
	s2 := m.Current()
	assert.Equal(t, "session_20240116", s2.ID)

	// A clock step backwards does not resurrect yesterday.
	now = now.Add(-24 * time.Hour)
	assert.Equal(t, s2, m.Current())

	assert.Equal(t, []string{"->session_20240115", "session_20240115->session_20240116"}, rolls)
}
