// Package logging provides the structured logger a Core holds
// (Options.Logger), backed by zerolog.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with level-gated convenience methods.
type Logger struct {
	zl zerolog.Logger
}

var (
	defaultLogger *Logger
	mu            sync.RWMutex
)

// Config holds logging configuration.
type Config struct {
	Level  zerolog.Level
	Output io.Writer
}

// DefaultConfig returns a sensible default configuration: info level,
// JSON lines on stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:  zerolog.InfoLevel,
		Output: os.Stderr,
	}
}

// NewLogger creates a new logger from config, defaulting unset fields.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	zl := zerolog.New(output).Level(config.Level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Default returns the default logger, creating it if necessary.
func Default() *Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the default logger.
func SetDefault(logger *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// With returns a child logger carrying an additional structured field,
// used to tag log lines with object/task identity (handle=, task_id=...).
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, err error, fields map[string]any) {
	ev := l.zl.Error()
	if err != nil {
		ev = ev.Err(err)
	}
	emit(ev, msg, fields)
}

func emit(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// Global convenience functions, mirroring the default logger's methods.

func Debug(msg string, fields map[string]any) { Default().Debug(msg, fields) }
func Info(msg string, fields map[string]any)  { Default().Info(msg, fields) }
func Warn(msg string, fields map[string]any)  { Default().Warn(msg, fields) }
func Error(msg string, err error, fields map[string]any) {
	Default().Error(msg, err, fields)
}
