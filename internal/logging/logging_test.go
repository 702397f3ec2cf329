package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterSplitsLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug, true)
	w := NewWriter(logger, "engine output")

	if _, err := w.Write([]byte("Updating (stack-u1)\n\nResources:\n    + 3 to cre")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := w.Write([]byte("ate\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	w.Flush()

	out := buf.String()
	if got := strings.Count(out, "engine output"); got != 3 {
		t.Fatalf("expected 3 log records, got %d:\n%s", got, out)
	}
	if !strings.Contains(out, "+ 3 to create") {
		t.Errorf("expected joined partial line in output:\n%s", out)
	}
}

func TestWriterByteAtATime(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(NewLogger(&buf, slog.LevelDebug, true), "engine output")

	for _, b := range []byte("first\r\nsecond\n") {
		if _, err := w.Write([]byte{b}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if len(w.buf) != 0 {
		t.Errorf("expected empty buffer after complete lines, got %q", w.buf)
	}

	out := buf.String()
	if got := strings.Count(out, "engine output"); got != 2 {
		t.Fatalf("expected 2 log records, got %d:\n%s", got, out)
	}
	if strings.Contains(out, "\r") {
		t.Errorf("carriage return leaked into output:\n%s", out)
	}
}

func TestWriterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo, true)
	w := NewWriter(logger, "engine output")

	_, _ = w.Write([]byte("hidden\n"))
	if buf.Len() != 0 {
		t.Errorf("expected debug lines to be dropped at info level, got %q", buf.String())
	}
}
