// Package log wraps zap in a small set of leveled, printf-style
// helpers so callers never touch the underlying logger construction.
// Core packages take a *Logger through their constructors rather than
// reaching for a global; the cmd/ entrypoint builds the logger and
// passes it down, and no package keeps a package-level default.
package log

import (
	"go.uber.org/zap"
)

// Logger is a thin leveled facade over zap's SugaredLogger.
type Logger struct {
	s *zap.SugaredLogger
}

// New wraps a *zap.Logger. Passing nil yields a no-op logger, handy in
// tests that don't care about log output.
func New(z *zap.Logger) *Logger {
	if z == nil {
		return &Logger{s: zap.NewNop().Sugar()}
	}
	return &Logger{s: z.Sugar()}
}

// NewDevelopment builds a human-readable console logger, the default
// for the cmd/ entrypoint when JSON output isn't requested.
func NewDevelopment() *Logger {
	z, err := zap.NewDevelopment()
	if err != nil {
		return New(nil)
	}
	return New(z)
}

// NewProduction builds a JSON logger suitable for log aggregation.
func NewProduction() *Logger {
	z, err := zap.NewProduction()
	if err != nil {
		return New(nil)
	}
	return New(z)
}

// Nop returns a logger that discards everything, used as a default
// when a component is constructed without one.
func Nop() *Logger { return New(nil) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *Logger) Debug(args ...interface{}) { l.s.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.s.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.s.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.s.Error(args...) }

// With returns a child logger annotated with the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{s: l.s.With(keysAndValues...)}
}

// Sync flushes any buffered log entries; callers should defer it from main.
func (l *Logger) Sync() error { return l.s.Sync() }
