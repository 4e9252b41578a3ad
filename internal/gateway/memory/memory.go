// Package memory implements the gateway's context memory layer.
//
// Past interactions are stored as documents and retrieved as context
// snippets for new prompts. Retrieval uses embedding similarity when an
// embedder is configured, and falls back to recency ordering otherwise, so
// the layer degrades gracefully on deployments without an embedding backend.
package memory

import (
	"context"
	"time"
)

// Document is one stored memory item.
type Document struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
	StoredAt  time.Time
}

// Store persists and retrieves memory documents.
//
// Store semantics are upsert: writing a document whose ID already exists
// replaces its text and metadata. Retrieval failures are soft for the
// pipeline (an empty context, never a failed request).
type Store interface {
	// Store upserts the document.
	Store(ctx context.Context, doc Document) error

	// Retrieve returns up to topK document texts relevant to the query,
	// most relevant first.
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}
