// SPDX-License-Identifier: AGPL-3.0-only
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level represents a logging severity level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name to a Level. Unknown names map to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	case "fatal":
		return Fatal
	default:
		return Info
	}
}

// Options configures a Logger.
type Options struct {
	// Output is where log lines are written (default os.Stderr).
	Output io.Writer
	// Level is the minimum level that will be emitted.
	Level Level
}

// Logger is a leveled logger with optional structured fields.
type Logger struct {
	mu     sync.Mutex
	out    *log.Logger
	level  Level
	fields map[string]interface{}
}

// New creates a Logger from the given options.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		out:   log.New(out, "", log.LstdFlags),
		level: opts.Level,
	}
}

// FileLogger creates a Logger that appends to the file at path.
func FileLogger(path string, level Level) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return New(Options{Output: f, Level: level}), nil
}

// WithField returns a copy of the logger that includes the given field on
// every line.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value

	return &Logger{
		out:    l.out,
		level:  l.level,
		fields: fields,
	}
}

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, l.fields[k]))
		}
		msg = msg + " [" + strings.Join(parts, " ") + "]"
	}

	l.out.Printf("[%s] %s", level, msg)
	if level == Fatal {
		os.Exit(1)
	}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(Debug, format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(Info, format, args...) }

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(Warn, format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(Error, format, args...) }

// Fatalf logs at fatal level and exits the process.
func (l *Logger) Fatalf(format string, args ...interface{}) { l.logf(Fatal, format, args...) }

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(Options{Level: Info})
)

// GetDefaultLogger returns the process-wide default logger.
func GetDefaultLogger() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the process-wide default logger.
func SetDefaultLogger(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
