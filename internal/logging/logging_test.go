package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"info":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"chatty":  slog.LevelDebug,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Fatalf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriterFormats(t *testing.T) {
	t.Parallel()

	var jsonBuf, textBuf, autoBuf bytes.Buffer
	NewWithWriter(&jsonBuf, "info", "json").Info("hello", "n", 1)
	NewWithWriter(&textBuf, "info", "text").Info("hello", "n", 1)
	NewWithWriter(&autoBuf, "info", "").Info("hello", "n", 1)

	if !strings.HasPrefix(jsonBuf.String(), "{") {
		t.Fatalf("expected json output, got %q", jsonBuf.String())
	}
	if !strings.Contains(textBuf.String(), "msg=hello n=1") {
		t.Fatalf("expected text output, got %q", textBuf.String())
	}
	if !strings.HasPrefix(autoBuf.String(), "{") {
		t.Fatalf("expected json for non-terminal writer, got %q", autoBuf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn", "text")
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
