// Package logging provides a small leveled logger shared by the display
// pipeline components. Child loggers created with Named share the level and
// output of their parent and prefix every line with the component name.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level represents log severity levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

// Format selects the line encoding.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

type core struct {
	mu     sync.RWMutex
	level  Level
	format Format
	logger *log.Logger
}

// Logger provides leveled logging
type Logger struct {
	core *core
	name string
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a logger writing to w at the given level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{core: &core{
		level:  level,
		logger: log.New(w, "", log.LstdFlags|log.LUTC),
	}}
}

// Default returns the default logger instance
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(os.Stderr, LevelInfo)
	})
	return defaultLogger
}

// Named returns a child logger tagged with component. The child shares the
// parent's level, format and output.
func (l *Logger) Named(component string) *Logger {
	name := component
	if l.name != "" {
		name = l.name + "." + component
	}
	return &Logger{core: l.core, name: name}
}

// Name returns the component tag, empty for the root logger.
func (l *Logger) Name() string {
	return l.name
}

// SetOutput redirects all loggers sharing this core.
func (l *Logger) SetOutput(w io.Writer) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.logger.SetOutput(w)
}

// SetFormat selects text or JSON lines.
func (l *Logger) SetFormat(f Format) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.format = f
}

// SetFormatFromString accepts "text" or "json"; anything else means text.
func (l *Logger) SetFormatFromString(s string) {
	if strings.EqualFold(s, "json") {
		l.SetFormat(FormatJSON)
		return
	}
	l.SetFormat(FormatText)
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// ParseLevel converts a level name to a Level. Unknown names map to info.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevelFromString sets the log level from a string
func (l *Logger) SetLevelFromString(levelStr string) {
	l.SetLevel(ParseLevel(levelStr))
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	return l.core.level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level Level) bool {
	return level >= l.GetLevel()
}

// GetLevelString returns the current log level as a string
func (l *Logger) GetLevelString() string {
	return levelNames[l.GetLevel()]
}

// GetLevelString returns the default logger's level as a string
func GetLevelString() string {
	return Default().GetLevelString()
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.core.mu.RLock()
	currentLevel := l.core.level
	lineFormat := l.core.format
	out := l.core.logger
	l.core.mu.RUnlock()

	if level < currentLevel {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if lineFormat == FormatJSON {
		line, err := json.Marshal(struct {
			Level     string `json:"level"`
			Component string `json:"component,omitempty"`
			Message   string `json:"msg"`
		}{levelNames[level], l.name, msg})
		if err == nil {
			out.Print(string(line))
			return
		}
	}

	if l.name != "" {
		out.Printf("[%s] %s: %s", levelNames[level], l.name, msg)
		return
	}
	out.Printf("[%s] %s", levelNames[level], msg)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

// Package-level convenience functions

// Named returns a component logger derived from the default logger.
func Named(component string) *Logger {
	return Default().Named(component)
}

// SetLevel sets the default logger's level
func SetLevel(level Level) {
	Default().SetLevel(level)
}

// SetLevelFromString sets the default logger's level from a string
func SetLevelFromString(levelStr string) {
	Default().SetLevelFromString(levelStr)
}

// Debug logs a debug message to the default logger
func Debug(format string, args ...interface{}) {
	Default().Debug(format, args...)
}

// Info logs an info message to the default logger
func Info(format string, args ...interface{}) {
	Default().Info(format, args...)
}

// Warn logs a warning message to the default logger
func Warn(format string, args ...interface{}) {
	Default().Warn(format, args...)
}

// Error logs an error message to the default logger
func Error(format string, args ...interface{}) {
	Default().Error(format, args...)
}
