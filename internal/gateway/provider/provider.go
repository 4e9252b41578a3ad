// Package provider defines the inference provider abstraction and its
// concrete backends: Ollama (local), the OpenAI-compatible cloud APIs
// (OpenAI, Groq, Mistral, OpenRouter) and Gemini.
//
// # Error contract
//
// Infer never returns a Go error. Transport and API failures are folded into
// the returned text as an "[Error] ..." string with zero tokens, so the
// pipeline can treat any provider uniformly and drive failover off the
// response text alone.
package provider

import (
	"context"
	"strings"

	"github.com/Aryannovice/metamorphosis/internal/gateway/prompt"
)

// ErrorPrefix marks a provider response that is a failure report rather
// than model output.
const ErrorPrefix = "[Error]"

// IsErrorResponse reports whether a provider response is a failure report.
func IsErrorResponse(response string) bool {
	return strings.HasPrefix(strings.TrimSpace(response), ErrorPrefix)
}

// Provider is a single inference backend.
type Provider interface {
	// Name is the registry key: local, openai, groq, mistral, openrouter,
	// gemini.
	Name() string

	// Model returns the backend's configured default model identifier.
	Model() string

	// Available reports whether the backend can serve requests right now.
	// For cloud backends this is a credentials check; the local backend
	// probes its runtime.
	Available(ctx context.Context) bool

	// Infer sends the messages to the backend and returns the response text
	// and the tokens used. model overrides the configured default when
	// non-empty. Failures come back as "[Error] ..." text with 0 tokens.
	Infer(ctx context.Context, model string, messages []prompt.Message) (string, int)
}
