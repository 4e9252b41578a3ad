package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS gateway_memory (
	id        TEXT PRIMARY KEY,
	text      TEXT NOT NULL,
	metadata  TEXT,
	embedding TEXT,
	stored_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gateway_memory_stored_at ON gateway_memory(stored_at);
`

// SQLiteStore implements Store using SQLite, with JSON-encoded float32
// embeddings and brute-force cosine similarity computed in Go.
//
// Similarity runs Go-side rather than in a SQLite extension because
// modernc.org/sqlite does not support custom C functions. At the expected
// scale (hundreds to low-thousands of documents) loading all embeddings and
// scoring in Go is fast and avoids external dependencies.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger
	now      func() time.Time
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for an in-process store. If embedder is nil,
// documents are stored without vectors and retrieval is recency-based. If
// logger is nil, the default slog logger is used.
func OpenSQLiteStore(path string, embedder Embedder, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory sqlite: open %s: %w", path, err)
	}
	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids table-lock errors under concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory sqlite: create schema: %w", err)
	}
	return &SQLiteStore{db: db, embedder: embedder, logger: logger, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Store upserts the document. A document with an existing ID has its text,
// metadata and embedding replaced; StoredAt is refreshed either way.
func (s *SQLiteStore) Store(ctx context.Context, doc Document) error {
	embedding := doc.Embedding
	if embedding == nil && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, doc.Text)
		if err != nil {
			// Embedding failures degrade to a recency-only document.
			s.logger.Warn("memory sqlite: embed failed, storing without vector", "doc_id", doc.ID, "err", err)
		} else {
			embedding = vec
		}
	}

	var embeddingJSON []byte
	if len(embedding) > 0 {
		var err error
		embeddingJSON, err = json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("memory sqlite: marshal embedding: %w", err)
		}
	}

	var metadataJSON []byte
	if len(doc.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("memory sqlite: marshal metadata: %w", err)
		}
	}

	storedAt := doc.StoredAt
	if storedAt.IsZero() {
		storedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_memory (id, text, metadata, embedding, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			stored_at = excluded.stored_at`,
		doc.ID,
		doc.Text,
		metadataJSON,
		embeddingJSON,
		storedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("memory sqlite: upsert document: %w", err)
	}

	s.logger.Debug("memory sqlite: stored document",
		"doc_id", doc.ID,
		"text_len", len(doc.Text),
		"has_embedding", len(embedding) > 0,
	)
	return nil
}

// Retrieve returns up to topK document texts for the query. When the
// embedder yields a query vector, documents are ranked by cosine similarity
// against their stored vectors; documents without vectors, or deployments
// without an embedder, fall back to most-recent-first ordering.
func (s *SQLiteStore) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}

	var queryVec []float32
	if s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			s.logger.Warn("memory sqlite: query embed failed, using recency", "err", err)
		} else {
			queryVec = vec
		}
	}

	if len(queryVec) == 0 {
		return s.retrieveRecent(ctx, topK)
	}
	return s.retrieveBySimilarity(ctx, queryVec, topK)
}

func (s *SQLiteStore) retrieveRecent(ctx context.Context, topK int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text FROM gateway_memory
		ORDER BY stored_at DESC
		LIMIT ?`, topK)
	if err != nil {
		return nil, fmt.Errorf("memory sqlite: query recent: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("memory sqlite: scan row: %w", err)
		}
		texts = append(texts, text)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory sqlite: iterate rows: %w", err)
	}
	return texts, nil
}

func (s *SQLiteStore) retrieveBySimilarity(ctx context.Context, queryVec []float32, topK int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text, embedding FROM gateway_memory
		WHERE embedding IS NOT NULL
		ORDER BY stored_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("memory sqlite: query embeddings: %w", err)
	}
	defer rows.Close()

	var candidates []scoredDoc
	for rows.Next() {
		var (
			text          string
			embeddingJSON sql.NullString
		)
		if err := rows.Scan(&text, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("memory sqlite: scan row: %w", err)
		}
		if !embeddingJSON.Valid || embeddingJSON.String == "" {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON.String), &vec); err != nil {
			s.logger.Warn("memory sqlite: skip malformed embedding", "err", err)
			continue
		}
		candidates = append(candidates, scoredDoc{
			text:  text,
			score: cosineSimilarity(queryVec, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory sqlite: iterate rows: %w", err)
	}

	if len(candidates) == 0 {
		// Nothing has a vector; fall back to recency.
		return s.retrieveRecent(ctx, topK)
	}

	sortByScore(candidates)
	if topK > len(candidates) {
		topK = len(candidates)
	}
	texts := make([]string, topK)
	for i := 0; i < topK; i++ {
		texts[i] = candidates[i].text
	}
	return texts, nil
}

// Count returns the number of stored documents.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gateway_memory`).Scan(&n); err != nil {
		return 0, fmt.Errorf("memory sqlite: count: %w", err)
	}
	return n, nil
}

// cosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 if the vectors differ in length, are empty, or have zero
// magnitude.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// scoredDoc pairs a document text with its similarity score.
type scoredDoc struct {
	text  string
	score float64
}

// sortByScore sorts by descending score. Insertion sort is fine for the
// small N expected (typically < 1000).
func sortByScore(items []scoredDoc) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && items[j].score < key.score {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)
