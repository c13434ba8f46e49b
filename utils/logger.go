package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a config value such as "warn" to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

// Logger is a leveled logger carrying optional key/value fields
type Logger struct {
	out    *log.Logger
	level  *levelVar
	fields map[string]interface{}
}

type levelVar struct {
	mu    sync.RWMutex
	level LogLevel
}

func (v *levelVar) get() LogLevel {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.level
}

func (v *levelVar) set(l LogLevel) {
	v.mu.Lock()
	v.level = l
	v.mu.Unlock()
}

// NewLogger creates a new logger writing to stdout at the given level
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		out:    log.New(os.Stdout, "", 0),
		level:  &levelVar{level: level},
		fields: map[string]interface{}{},
	}
}

func (l *Logger) shouldLog(level LogLevel) bool {
	return level >= l.level.get()
}

// formatMessage renders "[time] [LEVEL] message [k=v, ...]" with fields sorted by key
func (l *Logger) formatMessage(level LogLevel, format string, v ...interface{}) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, v...)

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
		message += " [" + strings.Join(parts, ", ") + "]"
	}

	return fmt.Sprintf("[%s] [%s] %s", timestamp, level.String(), message)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.out.Println(l.formatMessage(DEBUG, format, v...))
	}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	if l.shouldLog(INFO) {
		l.out.Println(l.formatMessage(INFO, format, v...))
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.shouldLog(WARN) {
		l.out.Println(l.formatMessage(WARN, format, v...))
	}
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	if l.shouldLog(ERROR) {
		l.out.Println(l.formatMessage(ERROR, format, v...))
	}
}

// WithFields returns a child logger with the given fields added.
// The child shares output and level with its parent.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	child := &Logger{
		out:    l.out,
		level:  l.level,
		fields: make(map[string]interface{}, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range fields {
		child.fields[k] = v
	}
	return child
}

// WithField returns a child logger with a single field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// SetLevel changes the log level for this logger and every child sharing it
func (l *Logger) SetLevel(level LogLevel) {
	l.level.set(level)
}

// SetOutput redirects log lines, mostly useful in tests
func (l *Logger) SetOutput(w io.Writer) {
	l.out.SetOutput(w)
}

// Global logger instance
var Log = NewLogger(INFO)
