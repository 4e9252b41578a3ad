package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/memory"
)

// vecEmbedder maps exact texts to fixed vectors, standing in for a real
// embedding backend.
type vecEmbedder struct {
	vectors map[string][]float32
}

func (e *vecEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.vectors[text], nil
}

func openStore(t *testing.T, embedder memory.Embedder) *memory.SQLiteStore {
	t.Helper()
	store, err := memory.OpenSQLiteStore(":memory:", embedder, nil)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAndCount(t *testing.T) {
	store := openStore(t, nil)
	ctx := context.Background()

	for i, text := range []string{"first", "second", "third"} {
		doc := memory.Document{ID: string(rune('a' + i)), Text: text}
		if err := store.Store(ctx, doc); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestStoreUpsertsExistingID(t *testing.T) {
	store := openStore(t, nil)
	ctx := context.Background()

	if err := store.Store(ctx, memory.Document{ID: "doc-1", Text: "original"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := store.Store(ctx, memory.Document{ID: "doc-1", Text: "updated"}); err != nil {
		t.Fatalf("Store (upsert): %v", err)
	}

	n, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count after upsert = %d, want 1", n)
	}

	texts, err := store.Retrieve(ctx, "anything", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(texts) != 1 || texts[0] != "updated" {
		t.Errorf("retrieved %v, want [updated]", texts)
	}
}

func TestRetrieveRecencyFallback(t *testing.T) {
	store := openStore(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []memory.Document{
		{ID: "old", Text: "oldest note", StoredAt: base},
		{ID: "mid", Text: "middle note", StoredAt: base.Add(time.Hour)},
		{ID: "new", Text: "newest note", StoredAt: base.Add(2 * time.Hour)},
	}
	for _, d := range docs {
		if err := store.Store(ctx, d); err != nil {
			t.Fatalf("Store %s: %v", d.ID, err)
		}
	}

	texts, err := store.Retrieve(ctx, "ignored without embedder", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	want := []string{"newest note", "middle note"}
	if len(texts) != 2 || texts[0] != want[0] || texts[1] != want[1] {
		t.Errorf("retrieved %v, want %v", texts, want)
	}
}

func TestRetrieveBySimilarity(t *testing.T) {
	embedder := &vecEmbedder{vectors: map[string][]float32{
		"cats are great":   {1, 0, 0},
		"dogs are loyal":   {0, 1, 0},
		"stocks went up":   {0, 0, 1},
		"tell me about pets": {0.7, 0.7, 0},
	}}
	store := openStore(t, embedder)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, text := range []string{"cats are great", "dogs are loyal", "stocks went up"} {
		doc := memory.Document{
			ID:       text,
			Text:     text,
			StoredAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Store(ctx, doc); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}

	texts, err := store.Retrieve(ctx, "tell me about pets", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("retrieved %d texts, want 2", len(texts))
	}
	// Both pet documents outscore the finance one.
	for _, got := range texts {
		if got == "stocks went up" {
			t.Errorf("finance document ranked in top 2: %v", texts)
		}
	}
}

func TestRetrieveTopKClamped(t *testing.T) {
	store := openStore(t, nil)
	ctx := context.Background()

	if err := store.Store(ctx, memory.Document{ID: "only", Text: "lonely"}); err != nil {
		t.Fatalf("Store: %v", err)
	}

	texts, err := store.Retrieve(ctx, "q", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(texts) != 1 {
		t.Errorf("retrieved %d texts, want 1", len(texts))
	}

	texts, err = store.Retrieve(ctx, "q", 0)
	if err != nil {
		t.Fatalf("Retrieve topK=0: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("topK=0 retrieved %d texts, want 0", len(texts))
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	store := openStore(t, nil)

	texts, err := store.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(texts) != 0 {
		t.Errorf("empty store retrieved %v", texts)
	}
}
