package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/Aryannovice/metamorphosis/common/trace"
	"github.com/Aryannovice/metamorphosis/internal/gateway/observability"
)

func TestHandlerRedactsSecrets(t *testing.T) {
	const apiKey = "sk-proj-abc123def456"

	var buf bytes.Buffer
	logger := slog.New(observability.Handler(&buf, "info", "json", apiKey))

	logger.Info("provider request failed",
		"err", "401 unauthorized for key "+apiKey,
		"provider", "openai")

	out := buf.String()
	if strings.Contains(out, apiKey) {
		t.Errorf("log output leaked the API key: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("log output missing redaction marker: %s", out)
	}
	if !strings.Contains(out, "provider request failed") {
		t.Errorf("log output lost the message: %s", out)
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(observability.Handler(&buf, "warn", "text"))

	logger.Info("should be dropped")
	logger.Warn("should be kept")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("info line written despite warn level")
	}
	if !strings.Contains(out, "should be kept") {
		t.Error("warn line missing")
	}
}

func TestWithRequest(t *testing.T) {
	ctx := trace.WithRequestID(context.Background(), "a1b2c3d4-0000-0000-0000-000000000000")
	if logger := observability.WithRequest(ctx); logger == nil {
		t.Fatal("WithRequest returned nil")
	}
	if logger := observability.WithRequest(context.Background()); logger == nil {
		t.Fatal("WithRequest without an ID returned nil")
	}
}
