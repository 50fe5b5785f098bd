package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestNewDefaults tests the default level and formatter
func TestNewDefaults(t *testing.T) {
	log, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("Expected info level, got %s", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("Expected text formatter, got %T", log.Formatter)
	}
}

// TestNewJSON tests structured output
func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.WithField("pid", 42).Debug("spawned")

	out := buf.String()
	if !strings.Contains(out, `"pid":42`) || !strings.Contains(out, `"msg":"spawned"`) {
		t.Errorf("Unexpected output %s", out)
	}
}

// TestNewRejectsBadOptions tests validation
func TestNewRejectsBadOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("Expected error for unknown format")
	}
}

// TestDiscard tests that the discard logger writes nothing visible
func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	if log.Out == nil {
		t.Error("Expected a writer")
	}
}
