package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("warn", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestComponentTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewWithWriter("debug", &buf), "session")

	logger.Debug().Msg("hello")
	if !strings.Contains(buf.String(), "session") {
		t.Fatalf("component missing from output: %q", buf.String())
	}

	if Component(nil, "x") == nil {
		t.Fatalf("expected a usable logger for nil parent")
	}
}
