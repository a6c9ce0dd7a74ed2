// Package logging configures the process-wide structured logger used by
// every pkg6 component, mirroring the teacher registry's context-carried
// logrus entries.
package logging

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

var (
	defaultLogger   = logrus.StandardLogger()
	defaultLoggerMu sync.RWMutex
	initOnce        sync.Once
)

// Config controls the level and formatter of the process-wide logger.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
	Output io.Writer
}

// Init configures the default logger. It is safe to call more than once;
// subsequent calls reconfigure rather than re-register hooks, keeping the
// operation idempotent as required for a global process-wide filter.
func Init(cfg Config) error {
	lvl := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		lvl = parsed
	}

	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()

	defaultLogger.SetLevel(lvl)
	if cfg.Output != nil {
		defaultLogger.SetOutput(cfg.Output)
	}
	switch cfg.Format {
	case "json":
		defaultLogger.SetFormatter(&logrus.JSONFormatter{})
	default:
		defaultLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	initOnce.Do(func() {
		defaultLogger.AddHook(SeverityHook{})
	})
	return nil
}

// Logger is the subset of *logrus.Entry used across pkg6 packages.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	WithField(key string, value any) *logrus.Entry
	WithError(err error) *logrus.Entry
}

// WithLogger returns a copy of parent carrying logger as the active logger.
func WithLogger(parent context.Context, logger Logger) context.Context {
	return context.WithValue(parent, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or the process default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger.WithField("component", "pkg6")
}

// Sink receives forwarded high-severity log entries. The default sink
// discards everything; callers may register their own via SetSink.
type Sink interface {
	Notify(entry *logrus.Entry) error
}

type discardSink struct{}

func (discardSink) Notify(*logrus.Entry) error { return nil }

var (
	activeSink   Sink = discardSink{}
	activeSinkMu sync.RWMutex
)

// SetSink installs the sink that SeverityHook forwards to.
func SetSink(s Sink) {
	activeSinkMu.Lock()
	defer activeSinkMu.Unlock()
	if s == nil {
		s = discardSink{}
	}
	activeSink = s
}

// SeverityHook forwards error-and-above log entries to the active Sink,
// generalizing the teacher's mail-notification hook
// (registry/handlers/hooks.go) into a pluggable interface instead of a
// hardcoded SMTP destination.
type SeverityHook struct{}

func (SeverityHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

func (SeverityHook) Fire(entry *logrus.Entry) error {
	activeSinkMu.RLock()
	sink := activeSink
	activeSinkMu.RUnlock()
	return sink.Notify(entry)
}

type noopHook struct{}

func (noopHook) Levels() []logrus.Level { return []logrus.Level{} }
func (noopHook) Fire(*logrus.Entry) error { return nil }
