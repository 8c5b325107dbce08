package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LogLevelSilent disables all logging
	LogLevelSilent LogLevel = iota
	// LogLevelError shows only errors
	LogLevelError
	// LogLevelWarn shows warnings and errors
	LogLevelWarn
	// LogLevelInfo shows info, warnings, and errors (verbose mode)
	LogLevelInfo
	// LogLevelDebug shows all logs including debug information
	LogLevelDebug
)

var levelNames = map[LogLevel]string{
	LogLevelSilent: "silent",
	LogLevelError:  "error",
	LogLevelWarn:   "warn",
	LogLevelInfo:   "info",
	LogLevelDebug:  "debug",
}

func (l LogLevel) String() string {
	return levelNames[l]
}

// ParseLogLevel maps a level name to a LogLevel.
func ParseLogLevel(name string) (LogLevel, error) {
	for level, n := range levelNames {
		if n == name {
			return level, nil
		}
	}
	return LogLevelWarn, fmt.Errorf("unknown log level %q", name)
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Logger provides leveled logging on top of a slog handler
type Logger struct {
	mu      sync.RWMutex
	level   LogLevel
	slog    *slog.Logger
	leveler *slog.LevelVar
}

var defaultLogger = newLogger(os.Stderr, LogLevelWarn)

func newLogger(w io.Writer, level LogLevel) *Logger {
	l := &Logger{level: level, leveler: new(slog.LevelVar)}
	l.leveler.Set(level.slogLevel())
	l.slog = slog.New(newHandler(w, l.leveler))
	return l
}

func newHandler(w io.Writer, leveler slog.Leveler) slog.Handler {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      leveler,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	})
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.level = level
	defaultLogger.leveler.Set(level.slogLevel())
}

// GetLogLevel returns the current log level
func GetLogLevel() LogLevel {
	defaultLogger.mu.RLock()
	defer defaultLogger.mu.RUnlock()
	return defaultLogger.level
}

// SetOutput redirects the global logger, keeping the current level.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	defaultLogger.slog = slog.New(newHandler(w, defaultLogger.leveler))
}

// log writes a log message if the level is enabled
func (l *Logger) log(level LogLevel, format string, args ...any) {
	l.mu.RLock()
	current, sl := l.level, l.slog
	l.mu.RUnlock()

	if level > current || current == LogLevelSilent {
		return
	}
	sl.Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func Debug(format string, args ...any) {
	defaultLogger.log(LogLevelDebug, format, args...)
}

// Info logs an info message
func Info(format string, args ...any) {
	defaultLogger.log(LogLevelInfo, format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...any) {
	defaultLogger.log(LogLevelWarn, format, args...)
}

// Error logs an error message
func Error(format string, args ...any) {
	defaultLogger.log(LogLevelError, format, args...)
}
