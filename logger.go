package gpuexec

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpuexec/internal/dualqueue"
	"github.com/gogpu/gpuexec/internal/ledger"
	"github.com/gogpu/gpuexec/internal/oppool"
	"github.com/gogpu/gpuexec/internal/spvcache"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for gpuexec, its backends and its
// execution engines. By default gpuexec produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by gpuexec:
//   - [slog.LevelDebug]: per-frame detail (pool growth, retired entries)
//   - [slog.LevelInfo]: lifecycle events (backend selected, renderer closed)
//   - [slog.LevelWarn]: backend fallback, ignored misuse, recovered panics
//   - [slog.LevelError]: driver failures during teardown
//
// Example:
//
//	gpuexec.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	oppool.SetLogger(l)
	dualqueue.SetLogger(l)
	ledger.SetLogger(l)
	spvcache.SetLogger(l)
}

// Logger returns the current logger.
// Backend packages call this to share the same logger configuration
// without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
