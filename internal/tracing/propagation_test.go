package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestPropagateToLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTarget(WithRunID(context.Background(), "run-42"), "/srv/project")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"run-42"`) {
		t.Errorf("Expected run_id in log output, got %s", out)
	}
	if !strings.Contains(out, `"target":"/srv/project"`) {
		t.Errorf("Expected target in log output, got %s", out)
	}
}

func TestPropagateToLogger_NoContext(t *testing.T) {
	var buf bytes.Buffer
	logger := PropagateToLogger(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("hello")

	if strings.Contains(buf.String(), "run_id") {
		t.Errorf("Expected no run_id field, got %s", buf.String())
	}
}
