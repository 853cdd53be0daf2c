// Package logging provides the structured logger used by long-running
// components (coordinator, print worker, notifier, reaper).
package logging

import (
	"context"
	"io"
	"os"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the subset of go-logger the services depend on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	WithContext(ctx context.Context) Logger
	WithFields(fields map[string]any) Logger
}

type glogLogger struct {
	logger glog.Logger
}

// New returns a JSON logger writing to w at the given level
// (trace, debug, info, warn, error).
func New(w io.Writer, level string) Logger {
	if w == nil {
		w = os.Stderr
	}
	if level == "" {
		level = "info"
	}
	return glogLogger{logger: glog.NewLogger(
		glog.WithWriter(w),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel(level),
	)}
}

func (l glogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l glogLogger) WithContext(ctx context.Context) Logger {
	return glogLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogLogger) WithFields(fields map[string]any) Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogLogger{logger: fl.WithFields(fields)}
	}
	return l
}

// Nop discards everything. Used by tests and as the zero value for optional loggers.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                {}
func (nopLogger) Info(string, ...any)                 {}
func (nopLogger) Warn(string, ...any)                 {}
func (nopLogger) Error(string, ...any)                {}
func (n nopLogger) WithContext(context.Context) Logger { return n }
func (n nopLogger) WithFields(map[string]any) Logger   { return n }

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
