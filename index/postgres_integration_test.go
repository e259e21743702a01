package index

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/fabfab/policynth/config"
	"github.com/fabfab/policynth/database"
	"github.com/fabfab/policynth/document"
)

func TestPostgresIndexRoundTrip(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database connectivity checks")
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		t.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	dim := cfg.Embeddings.Dimension
	vec := func(hot int) []float32 {
		v := make([]float32, dim)
		v[hot%dim] = 1
		return v
	}

	provider := NewPostgresProvider(pool, dim)
	idxA, err := provider.Open(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	idxB, err := provider.Open(ctx, uuid.NewString())
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() {
		_ = idxA.Clear(ctx)
		_ = idxB.Clear(ctx)
	})

	chunks := []document.Chunk{
		{Index: 0, Text: "grace period of thirty days", Metadata: map[string]any{document.MetaType: document.SectionConditions}, Embedding: vec(0)},
		{Index: 1, Text: "maternity is covered", Metadata: map[string]any{document.MetaType: document.SectionCoverage}, Embedding: vec(1)},
	}
	if err := idxA.Upsert(ctx, chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := idxA.Search(ctx, vec(1), 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 || hits[0].Chunk.Index != 1 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
	if hits[0].Chunk.Type() != document.SectionCoverage {
		t.Fatalf("metadata not restored: %+v", hits[0].Chunk.Metadata)
	}

	if n, _ := idxB.Count(ctx); n != 0 {
		t.Fatalf("namespaces leaked: %d chunks", n)
	}

	if err := idxA.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := idxA.Count(ctx); n != 0 {
		t.Fatalf("expected empty namespace after clear, got %d", n)
	}
}
