package raypipe

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled reports false so callers skip attribute formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Build tasks log from worker
// goroutines, so every access goes through the atomic pointer.
var loggerPtr atomic.Pointer[slog.Logger]

// loggerHooks are notified when SetLogger installs a new logger.
// Subpackages register here so a single call configures the whole module.
var loggerHooks atomic.Pointer[[]func(*slog.Logger)]

func init() {
	loggerPtr.Store(newNopLogger())
	loggerHooks.Store(&[]func(*slog.Logger){})
}

// SetLogger configures the logger for raypipe and the subpackages that
// registered with OnLoggerChange. By default raypipe produces no output.
//
// Log levels used by raypipe:
//   - [slog.LevelDebug]: build scheduling, fallback pipeline selection
//   - [slog.LevelInfo]: completed library and pipeline builds
//   - [slog.LevelWarn]: failed builds (logged once per build)
//
// Pass nil to restore the silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	for _, hook := range *loggerHooks.Load() {
		hook(l)
	}
}

// Logger returns the current logger used by raypipe.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// OnLoggerChange registers fn to be called with the new logger whenever
// SetLogger runs. fn is also called immediately with the current logger.
func OnLoggerChange(fn func(*slog.Logger)) {
	if fn == nil {
		return
	}
	for {
		old := loggerHooks.Load()
		hooks := make([]func(*slog.Logger), len(*old), len(*old)+1)
		copy(hooks, *old)
		hooks = append(hooks, fn)
		if loggerHooks.CompareAndSwap(old, &hooks) {
			break
		}
	}
	fn(Logger())
}
