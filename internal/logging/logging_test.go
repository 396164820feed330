package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "info", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWriter(t *testing.T) {
	t.Run("text filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWriter(&buf, "warn", "text")
		log.Info("hidden")
		log.Warn("shown", "url", "https://example.com/a")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("info record written at warn level: %s", out)
		}
		if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "url=https://example.com/a") {
			t.Errorf("unexpected text output: %s", out)
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		NewWriter(&buf, "debug", "JSON").Debug("state", "to", "done")

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("output is not json: %v: %s", err, buf.String())
		}
		if rec["msg"] != "state" || rec["to"] != "done" || rec["level"] != "DEBUG" {
			t.Errorf("unexpected record: %v", rec)
		}
	})
}
