// Package util provides low-level helpers shared by all other packages.
package util

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel controls output verbosity.
type LogLevel int

const (
	LogQuiet   LogLevel = 0
	LogNormal  LogLevel = 1
	LogVerbose LogLevel = 2
	LogDebug   LogLevel = 3
)

// Logger writes levelled, structured messages through logrus.  Child
// loggers created with WithField/WithFields share the parent's output,
// level and formatter.
type Logger struct {
	level LogLevel
	base  *logrus.Logger
	entry *logrus.Entry
}

// NewLogger returns a Logger that prints messages at or below the given
// verbosity (0 = quiet, 1 = normal, 2 = verbose, 3 = debug).
func NewLogger(verbosity int) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetLevel(logrusLevel(LogLevel(verbosity)))
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return &Logger{
		level: LogLevel(verbosity),
		base:  base,
		entry: logrus.NewEntry(base),
	}
}

func logrusLevel(l LogLevel) logrus.Level {
	switch {
	case l <= LogQuiet:
		return logrus.ErrorLevel
	case l == LogNormal:
		return logrus.InfoLevel
	case l == LogVerbose:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// SetTimestamps enables or disables timestamps in text output.
func (l *Logger) SetTimestamps(on bool) {
	if tf, ok := l.base.Formatter.(*logrus.TextFormatter); ok {
		tf.DisableTimestamp = !on
		tf.FullTimestamp = on
	}
}

// SetJSON switches between the JSON and the text formatter.
func (l *Logger) SetJSON(on bool) {
	if on {
		l.base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return
	}
	l.base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
}

// SetOutput overrides the output writer (default: os.Stderr).
func (l *Logger) SetOutput(w io.Writer) { l.base.SetOutput(w) }

// WithField returns a child logger that attaches key=value to every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{level: l.level, base: l.base, entry: l.entry.WithField(key, value)}
}

// WithFields returns a child logger that attaches fields to every entry.
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{level: l.level, base: l.base, entry: l.entry.WithFields(fields)}
}

// Info prints when verbosity ≥ 1.
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn prints when verbosity ≥ 1.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Verbose prints when verbosity ≥ 2.  Emitted at logrus debug level.
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Debug prints when verbosity ≥ 3.  Emitted at logrus trace level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// Error always prints regardless of verbosity.
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Log writes msg at the given verbosity level.  LogQuiet maps to Error.
func (l *Logger) Log(level LogLevel, msg string) {
	switch level {
	case LogQuiet:
		l.entry.Error(msg)
	case LogNormal:
		l.entry.Info(msg)
	case LogVerbose:
		l.entry.Debug(msg)
	case LogDebug:
		l.entry.Trace(msg)
	default:
		l.entry.Info(fmt.Sprintf("[level %d] %s", level, msg))
	}
}
