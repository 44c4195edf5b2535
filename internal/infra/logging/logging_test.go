package logging

import (
	"bytes"
	"encoding/json"
	"mousedb/internal/core"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ core.Logger = (*Logger)(nil)

func TestLoggerForwardsKeyValues(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(obsCore))

	l.Debug("session operation", "op", "save")
	l.Info("issued ids", "count", 3)
	l.Warn("duplicate id reissued", "id", "abc")
	l.Error("session operation failed", "op", "open", "error", "boom")

	entries := logs.AllUntimed()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d: level %s, want %s", i, e.Level, wantLevels[i])
		}
	}
	if got := entries[2].ContextMap()["id"]; got != "abc" {
		t.Fatalf("expected id field, got %v", got)
	}
	if got := entries[1].ContextMap()["count"]; got != int64(3) {
		t.Fatalf("expected count field, got %#v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"loud":  zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewBuildsBothFormats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := New("warn", format, "mdb")
		if err != nil {
			t.Fatalf("New(%s): %v", format, err)
		}
		l.Info("suppressed below warn")
		_ = l.Sync()
	}
}

func TestNewWriterEncodesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info", "json", "mdb")
	l.Debug("hidden")
	l.Warn("rule violation", "rule", "cage_capacity")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["msg"] != "rule violation" || entry["rule"] != "cage_capacity" || entry["service_name"] != "mdb" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("timestamp missing: %v", entry)
	}
}
