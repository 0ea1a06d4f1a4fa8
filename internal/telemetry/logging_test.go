package telemetry

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.jsonl")
	logger, closer, err := NewLogger("info", path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hello", "key", "value")
	if closer != nil {
		closer.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"hello"`) {
		t.Fatalf("log line missing message: %s", line)
	}
	if !strings.Contains(line, `"timestamp"`) {
		t.Fatalf("log line missing renamed time key: %s", line)
	}
	if !strings.Contains(line, `"component":"server"`) {
		t.Fatalf("log line missing component attr: %s", line)
	}
}

func TestNewLogger_DebugFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.jsonl")
	logger, closer, err := NewLogger("warn", path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if closer != nil {
		closer.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(data), "dropped") {
		t.Fatal("info line written despite warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Fatal("warn line missing")
	}
}
