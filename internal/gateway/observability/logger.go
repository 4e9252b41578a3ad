// Package observability provides structured logging helpers for the gateway.
//
// It wraps log/slog with request ID propagation and secret redaction so that
// every log line emitted while serving a request carries its request context.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/Aryannovice/metamorphosis/common/redact"
	"github.com/Aryannovice/metamorphosis/common/trace"
)

// Setup configures the global slog logger according to the provided level and
// format strings (e.g. level="info", format="json"). secrets are sensitive
// values (API keys) that must never appear in log output; every string
// attribute and message passes through redaction before it is written.
func Setup(level, format string, secrets ...string) {
	slog.SetDefault(slog.New(Handler(os.Stdout, level, format, secrets...)))
}

// Handler builds the slog handler Setup installs, writing to w.
func Handler(w io.Writer, level, format string, secrets ...string) slog.Handler {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if len(secrets) > 0 {
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(RedactSecrets(a.Value.String(), secrets...))
			}
			return a
		}
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// WithRequest returns a child logger that always includes the request_id
// from ctx.
func WithRequest(ctx context.Context) *slog.Logger {
	id := trace.FromContext(ctx)
	if id == "" {
		return slog.Default()
	}
	return slog.With("request_id", trace.Short(id))
}

// RedactSecrets replaces known-sensitive values in a log message with
// [REDACTED]. Call with the message text and the sensitive values to strip.
func RedactSecrets(msg string, sensitiveValues ...string) string {
	return redact.String(msg, sensitiveValues...)
}
