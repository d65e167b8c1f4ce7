package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/servicehub/internal/errors"
)

func newBufferLogger(level Level, format Format) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return New(Config{Level: level, Format: format, Output: buf}), buf
}

func TestNew_NilOutputDiscards(t *testing.T) {
	logger := New(Config{Level: LevelDebug})
	if logger == nil {
		t.Fatal("expected logger, got nil")
	}
	logger.Info("goes nowhere")
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, FormatText)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below warn should be filtered, got %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Errorf("expected warn message in output, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, FormatJSON)

	logger.With("component", "session").InfoContext(context.Background(), "initialized", "authenticated", true)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "initialized" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "session" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["authenticated"] != true {
		t.Errorf("authenticated = %v", entry["authenticated"])
	}
}

func TestWithError(t *testing.T) {
	t.Run("coded error", func(t *testing.T) {
		logger, buf := newBufferLogger(LevelDebug, FormatJSON)
		err := fmt.Errorf("clear: %w", errors.NewStorageError("remove", fmt.Errorf("locked")))

		logger.WithError(err).Error("operation failed")

		var entry map[string]any
		if jsonErr := json.Unmarshal(buf.Bytes(), &entry); jsonErr != nil {
			t.Fatalf("invalid JSON: %v", jsonErr)
		}
		if entry["error_code"] != string(errors.ErrCodeStorageUnavailable) {
			t.Errorf("error_code = %v", entry["error_code"])
		}
		if entry["error_category"] != "storage" {
			t.Errorf("error_category = %v", entry["error_category"])
		}
	})

	t.Run("plain error", func(t *testing.T) {
		logger, buf := newBufferLogger(LevelDebug, FormatJSON)
		logger.WithError(fmt.Errorf("boom")).Error("operation failed")
		if !strings.Contains(buf.String(), `"error":"boom"`) {
			t.Errorf("expected plain error attribute, got %q", buf.String())
		}
	})

	t.Run("nil error", func(t *testing.T) {
		logger, _ := newBufferLogger(LevelDebug, FormatJSON)
		if logger.WithError(nil) != logger {
			t.Error("WithError(nil) should return the same logger")
		}
	})
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("") != "" {
		t.Error("empty secret should have empty fingerprint")
	}

	a := Fingerprint("token-a")
	if len(a) != 12 {
		t.Errorf("fingerprint length = %d, want 12", len(a))
	}
	if a != Fingerprint("token-a") {
		t.Error("fingerprint must be stable")
	}
	if a == Fingerprint("token-b") {
		t.Error("different secrets should produce different fingerprints")
	}
	if strings.Contains(a, "token") {
		t.Error("fingerprint must not contain the secret")
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if ParseFormat("JSON") != FormatJSON || ParseFormat("console") != FormatText {
		t.Error("unexpected ParseFormat result")
	}

	var lvl Level
	if err := lvl.UnmarshalText([]byte("debug")); err != nil || lvl != LevelDebug {
		t.Errorf("UnmarshalText = %v, %v", lvl, err)
	}
}

func TestDefaultLogger(t *testing.T) {
	original := defaultLogger
	defer func() { defaultLogger = original }()

	defaultLogger = nil
	if DefaultLogger() == nil {
		t.Fatal("DefaultLogger returned nil")
	}

	custom := Nop()
	SetDefaultLogger(custom)
	if DefaultLogger() != custom {
		t.Error("DefaultLogger did not return the configured logger")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "servicehub.log")
	out := NewFileOutput(FileConfig{Path: path, MaxSize: 1, MaxBackups: 2})

	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: out})
	logger.Info("written to file", "attempt", 1)
	if err := out.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing record, got %q", data)
	}
}
