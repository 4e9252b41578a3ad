package memory

import "context"

// Embedder produces vector embeddings for text. Implementations range from
// the no-op stub (default) to the OpenAI embeddings API for deployments that
// have an API key. When the embedder is no-op, retrieval falls back to
// recency ordering.
type Embedder interface {
	// Embed produces a vector embedding for the given text.
	// Returns nil with no error when embedding is not available (noop).
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NoopEmbedder is an Embedder that never produces vectors.
type NoopEmbedder struct{}

// Embed always returns nil, nil.
func (NoopEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

var _ Embedder = NoopEmbedder{}
