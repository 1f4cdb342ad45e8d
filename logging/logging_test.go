package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level string
		want  log.Level
	}{
		{"", log.InfoLevel},
		{"debug", log.DebugLevel},
		{"WARN", log.WarnLevel},
		{"trace", log.TraceLevel},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()
			l, err := NewWithWriter(Config{Level: tt.level}, &bytes.Buffer{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestNewWithWriterErrors(t *testing.T) {
	t.Parallel()

	_, err := NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter(Config{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := NewWithWriter(Config{Format: "json"}, &buf)
	require.NoError(t, err)

	l.WithField("ticker", "TSLA").Info("position opened")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "position opened", rec["msg"])
	assert.Equal(t, "TSLA", rec["ticker"])
	assert.Equal(t, "info", rec["level"])
}

func TestPlainFormatter(t *testing.T) {
	t.Parallel()

	f := PlainFormatter{TimestampFormat: "2006-01-02 15:04:05"}
	entry := &log.Entry{
		Level:   log.WarnLevel,
		Time:    time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		Message: "slow evaluation",
		Data:    log.Fields{"session": "session_20250314", "check": "strike_bounds"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t,
		"WARN  2025-03-14 09:30:00 slow evaluation check=strike_bounds session=session_20250314\n",
		string(out))
}

func TestNewWritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gate.log")
	l, closer, err := New(Config{Level: "info", Format: "plain", File: path})
	require.NoError(t, err)

	l.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO ")
	assert.Contains(t, string(data), "hello")
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { Discard().Error("dropped") })
}
