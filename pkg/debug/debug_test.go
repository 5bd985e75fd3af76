package debug

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func withBuffer(t *testing.T, on bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Enabled()
	SetOutput(&buf)
	SetEnabled(on)
	t.Cleanup(func() {
		SetEnabled(prev)
		SetOutput(nopWriter{})
	})
	return &buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDisabledIsSilent(t *testing.T) {
	buf := withBuffer(t, false)

	Log("hello %d", 1)
	Warn("sanitizer", "dropped %s", "title")
	LogTiming("flush", time.Millisecond)
	LogEnterExit("fn")()

	if buf.Len() != 0 {
		t.Errorf("Expected no output when disabled, got %q", buf.String())
	}
}

func TestWarnIncludesComponent(t *testing.T) {
	buf := withBuffer(t, true)

	Warn("sanitizer", "dropped forbidden field %q", "title")

	out := buf.String()
	if !strings.Contains(out, "sanitizer") {
		t.Errorf("Expected component in output, got %q", out)
	}
	if !strings.Contains(out, "dropped forbidden field") {
		t.Errorf("Expected message in output, got %q", out)
	}
}

func TestLogEnterExit(t *testing.T) {
	buf := withBuffer(t, true)

	LogEnterExit("flush")()

	out := buf.String()
	if !strings.Contains(out, "-> flush") || !strings.Contains(out, "<- flush") {
		t.Errorf("Expected enter and exit markers, got %q", out)
	}
}
