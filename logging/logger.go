// Package logging provides the leveled logger every component logs
// through, adapted from the teacher's root-level Logger (logger.go): same
// level-gated wrapper over the standard library's *log.Logger, but passed
// explicitly instead of kept as a package-level global. orchestrator.New
// hands one instance to the bus and every cache; the bus tags its own
// lines with a "[BUS run=...]" marker inside the message.
package logging

import (
	"fmt"
	stdlog "log"
	"os"
)

// Level is a logging severity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Logger is a leveled wrapper over the standard library logger.
type Logger struct {
	level  Level
	logger *stdlog.Logger
}

// New creates a logger at the given level with the given prefix, writing to
// stderr (so it doesn't interleave with a program's own stdout output).
func New(level Level, prefix string) *Logger {
	return &Logger{
		level:  level,
		logger: stdlog.New(os.Stderr, prefix, stdlog.LstdFlags|stdlog.Lmicroseconds),
	}
}

// SetLevel adjusts the logger's level.
func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.level = level
}

func (l *Logger) logf(target Level, format string, args ...any) {
	if l == nil || target > l.level {
		return
	}
	l.logger.Output(3, fmt.Sprintf(format, args...))
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Discard is a logger that never emits output (level below Error), for
// tests that don't want bus/cache chatter on stderr.
func Discard() *Logger {
	return &Logger{level: LevelError - 1, logger: stdlog.New(os.Stderr, "", 0)}
}
