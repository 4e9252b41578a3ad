// Package trace provides request ID generation and context propagation so
// that every log line and audit entry produced while serving a request can
// be correlated back to it.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// requestKey is the unexported context key used to store the request ID.
type requestKey struct{}

// NewRequestID returns a fresh UUIDv4 request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID returns a child context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestKey{}, id)
}

// FromContext extracts the request ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestKey{}).(string); ok {
		return v
	}
	return ""
}

// Short returns the first eight characters of a request ID, for compact log
// lines. Returns the full string when it is shorter than eight characters.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
