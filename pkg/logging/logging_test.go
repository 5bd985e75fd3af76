package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestNewProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New("aios", "production", &buf), "queue")
	l.Info().Int("size", 3).Msg("loaded")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["service"] != "aios" {
		t.Errorf("Expected service=aios, got %v", line["service"])
	}
	if line["component"] != "queue" {
		t.Errorf("Expected component=queue, got %v", line["component"])
	}
	if line["message"] != "loaded" {
		t.Errorf("Expected message=loaded, got %v", line["message"])
	}
}

func TestNewDevelopmentIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	l := New("aios", "development", &buf)
	l.Warn().Msg("careful")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("Expected console output in development, got %q", out)
	}
	if !strings.Contains(out, "careful") {
		t.Errorf("Expected message in output, got %q", out)
	}
}
