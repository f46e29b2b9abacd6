package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected valid JSON output, got error: %v (%q)", err, buf.String())
	}
	return entry
}

func TestNew(t *testing.T) {
	for _, env := range []string{"development", "production", "test"} {
		logger := New(env)
		if logger == nil {
			t.Fatalf("Expected logger to be created for %s", env)
		}
		if logger.GetZerolog() == nil {
			t.Errorf("Expected zerolog instance to be available for %s", env)
		}
	}
}

func TestNew_Levels(t *testing.T) {
	if got := New("development").GetZerolog().GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("Expected debug level in development, got %s", got)
	}
	if got := New("production").GetZerolog().GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("Expected info level in production, got %s", got)
	}
}

func TestInfo_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.DebugLevel)

	logger.Info("Parcel acquired", map[string]interface{}{
		"parcel_id": 102,
		"kind":      "mint",
	})

	entry := decode(t, &buf)
	if entry["message"] != "Parcel acquired" {
		t.Errorf("Expected message field, got %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("Expected info level, got %v", entry["level"])
	}
	if entry["parcel_id"] != float64(102) {
		t.Errorf("Expected parcel_id 102, got %v", entry["parcel_id"])
	}
	if entry["kind"] != "mint" {
		t.Errorf("Expected kind mint, got %v", entry["kind"])
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *Logger)
		level string
	}{
		{"debug", func(l *Logger) { l.Debug("m", nil) }, "debug"},
		{"info", func(l *Logger) { l.Info("m", nil) }, "info"},
		{"warn", func(l *Logger) { l.Warn("m", nil) }, "warn"},
		{"error", func(l *Logger) { l.Error("m", errors.New("boom"), nil) }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewWithWriter(&buf, zerolog.DebugLevel))
			entry := decode(t, &buf)
			if entry["level"] != tt.level {
				t.Errorf("Expected level %s, got %v", tt.level, entry["level"])
			}
		})
	}
}

func TestError_IncludesError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.InfoLevel)

	logger.Error("Failed to release payout", errors.New("connection refused"), map[string]interface{}{
		"payout_id": "abc",
	})

	output := buf.String()
	if !strings.Contains(output, "connection refused") {
		t.Error("Expected log output to contain error message")
	}
	if !strings.Contains(output, "abc") {
		t.Error("Expected log output to contain payout_id field")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.InfoLevel)

	logger.Debug("debug message", nil)
	if buf.Len() != 0 {
		t.Errorf("Debug message should be filtered at info level, got %q", buf.String())
	}

	logger.Info("info message", nil)
	if !strings.Contains(buf.String(), "info message") {
		t.Error("Info message should appear at info level")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.InfoLevel).With(map[string]interface{}{
		"component": "sweeper",
	})

	logger.Info("Sweep finished", nil)

	entry := decode(t, &buf)
	if entry["component"] != "sweeper" {
		t.Errorf("Expected component field from context, got %v", entry["component"])
	}
}

func TestWithRequestIDAndAccount(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, zerolog.InfoLevel).
		WithRequestID("req-12345").
		WithAccount("0x00000000000000000000000000000000000000aa")

	logger.Info("request received", nil)

	entry := decode(t, &buf)
	if entry["request_id"] != "req-12345" {
		t.Errorf("Expected request_id field, got %v", entry["request_id"])
	}
	if entry["account"] != "0x00000000000000000000000000000000000000aa" {
		t.Errorf("Expected account field, got %v", entry["account"])
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	// Must not panic or write anywhere.
	logger.Info("discarded", map[string]interface{}{"key": "value"})
	logger.With(map[string]interface{}{"a": 1}).Warn("discarded", nil)
}
