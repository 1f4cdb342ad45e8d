// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	Level  string `yaml:"level" json:"level"`   // trace|debug|info|warn|error
	Format string `yaml:"format" json:"format"` // text|json|plain
	File   string `yaml:"file" json:"file"`     // empty logs to stderr
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

// New returns a logger writing to cfg.File (appending) or stderr. The
// returned closer releases the file and is a no-op for stderr.
func New(cfg Config) (*log.Logger, io.Closer, error) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	l, err := NewWithWriter(cfg, out)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	return l, closer, nil
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg Config, out io.Writer) (*log.Logger, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		lv, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = lv
	}

	f, err := formatter(cfg.Format)
	if err != nil {
		return nil, err
	}

	l := log.New()
	l.SetOutput(out)
	l.SetFormatter(f)
	l.SetLevel(level)
	return l, nil
}

func formatter(name string) (log.Formatter, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return &log.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}, nil
	case "json":
		return &log.JSONFormatter{}, nil
	case "plain":
		return &PlainFormatter{TimestampFormat: "2006-01-02 15:04:05"}, nil
	}
	return nil, fmt.Errorf("unknown log format %q (text, json or plain)", name)
}

var levelDesc = []string{"PANIC", "FATAL", "ERROR", "WARN ", "INFO ", "DEBUG", "TRACE"}

// PlainFormatter writes "LEVEL timestamp message key=value ..." lines.
type PlainFormatter struct {
	TimestampFormat string
}

func (f PlainFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b strings.Builder
	desc := "?????"
	if int(entry.Level) < len(levelDesc) {
		desc = levelDesc[entry.Level]
	}
	fmt.Fprintf(&b, "%s %s %s", desc, entry.Time.Format(f.TimestampFormat), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// Discard is a logger that drops everything, for tests and library callers
// that pass no logger.
func Discard() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
