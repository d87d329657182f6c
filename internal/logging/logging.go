// Package logging builds the process-wide slog logger and collects the
// end-of-build summary of per-notebook failures.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Options selects the handler and level.
type Options struct {
	Verbose bool      // debug level
	Quiet   bool      // warn level, ignored when Verbose is set
	JSON    bool      // JSON lines instead of colored text
	Writer  io.Writer // defaults to os.Stderr
}

// Level returns the slog level for the options.
func (o Options) Level() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// New returns a logger for opts.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level()}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      opts.Level(),
		TimeFormat: time.Kitchen,
	}))
}

// Init installs New(opts) as the default logger and returns it.
func Init(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDefault returns l, or slog.Default() when l is nil.
func OrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

type statement struct {
	level slog.Level
	msg   string
	args  []any
}

// Summary collects records to be repeated after a build finishes, so
// failures are not lost in the per-notebook progress output.
// Safe for concurrent use.
type Summary struct {
	mu    sync.Mutex
	items []statement
}

// Warn records a warning.
func (s *Summary) Warn(msg string, args ...any) {
	s.add(slog.LevelWarn, msg, args)
}

// Error records an error.
func (s *Summary) Error(msg string, args ...any) {
	s.add(slog.LevelError, msg, args)
}

func (s *Summary) add(level slog.Level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, statement{level, msg, args})
}

// Len returns the number of collected records.
func (s *Summary) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Flush logs every collected record to l and empties the summary.
func (s *Summary) Flush(ctx context.Context, l *slog.Logger) {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.mu.Unlock()

	for _, it := range items {
		l.Log(ctx, it.level, it.msg, it.args...)
	}
}
