// Package logx provides the structured logging used by the buffer pool,
// lock manager, and transaction manager for diagnostic events (frame
// eviction, lock wait/grant, commit/abort). It wraps zerolog behind a
// small interface so those packages never depend on zerolog directly, and
// so tests can pass a no-op logger (see SPEC_FULL.md §4.9).
package logx

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal structured-logging surface this engine needs.
// kv is a flat list of alternating key, value pairs, following zerolog's
// own Fields()-style convention.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

// zlog adapts a zerolog.Logger to the Logger interface.
type zlog struct {
	l zerolog.Logger
}

// New builds a zerolog-backed Logger that writes JSON lines to w (stderr
// if w is nil) at the given level ("debug", "info", "warn", "error", or any
// other name zerolog.ParseLevel accepts; an unparsable level becomes
// "info").
func New(level string, w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &zlog{l: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

func withFields(e *zerolog.Event, kv ...any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	return e
}

func (z *zlog) Debug(msg string, kv ...any) { withFields(z.l.Debug(), kv...).Msg(msg) }
func (z *zlog) Info(msg string, kv ...any)  { withFields(z.l.Info(), kv...).Msg(msg) }
func (z *zlog) Warn(msg string, kv ...any)  { withFields(z.l.Warn(), kv...).Msg(msg) }
func (z *zlog) Error(msg string, err error, kv ...any) {
	withFields(z.l.Error().Err(err), kv...).Msg(msg)
}

// nopLogger discards everything. Used as the default when no Logger is
// configured; a nil Logger is never dereferenced by callers (they use
// Nop() instead of a literal nil).
type nopLogger struct{}

func (nopLogger) Debug(string, ...any)        {}
func (nopLogger) Info(string, ...any)         {}
func (nopLogger) Warn(string, ...any)         {}
func (nopLogger) Error(string, error, ...any) {}

// Nop returns a Logger that discards all output.
func Nop() Logger { return nopLogger{} }
