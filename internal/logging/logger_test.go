package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerDefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	if logger == nil {
		t.Fatal("NewLogger(nil) returned nil")
	}
}

func TestLoggerWithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: zerolog.DebugLevel, Output: &buf})

	handleLogger := logger.With("handle", 42)
	handleLogger.Info("object registered", nil)

	output := buf.String()
	if !strings.Contains(output, `"handle":42`) {
		t.Errorf("expected handle field in output, got: %s", output)
	}
	if !strings.Contains(output, "object registered") {
		t.Errorf("expected message in output, got: %s", output)
	}
}

func TestLoggerLevelGating(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: zerolog.WarnLevel, Output: &buf})

	logger.Debug("should not appear", nil)
	if buf.Len() != 0 {
		t.Errorf("expected debug to be filtered at warn level, got: %s", buf.String())
	}

	logger.Warn("should appear", nil)
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected warn message, got: %s", buf.String())
	}
}

func TestLoggerError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: zerolog.DebugLevel, Output: &buf})

	logger.Error("wait failed", errors.New("timeout"), map[string]any{"task_id": 7})

	output := buf.String()
	if !strings.Contains(output, "timeout") {
		t.Errorf("expected wrapped error in output, got: %s", output)
	}
	if !strings.Contains(output, `"task_id":7`) {
		t.Errorf("expected task_id field, got: %s", output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: zerolog.DebugLevel, Output: &buf}))

	Info("info message", nil)
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("expected info message, got: %s", buf.String())
	}
}
