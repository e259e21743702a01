package embeddings

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize   = 64
	defaultConcurrency = 4
)

// ChunkEmbedder embeds document chunks together with their section context and
// embeds bare question text. Every error it returns wraps ErrEmbeddingService.
type ChunkEmbedder struct {
	embedder    Embedder
	batchSize   int
	concurrency int
}

func NewChunkEmbedder(embedder Embedder, batchSize, concurrency int) *ChunkEmbedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &ChunkEmbedder{
		embedder:    embedder,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// EmbedChunks returns one vector per text, in input order. contexts may be nil
// or shorter than texts; missing entries embed the text alone.
func (c *ChunkEmbedder) EmbedChunks(ctx context.Context, texts []string, contexts []map[string]any) ([][]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not configured", ErrEmbeddingService)
	}
	if len(texts) == 0 {
		return nil, nil
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		var meta map[string]any
		if i < len(contexts) {
			meta = contexts[i]
		}
		inputs[i] = Contextualize(text, meta)
	}

	vectors := make([][]float32, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for start := 0; start < len(inputs); start += c.batchSize {
		end := min(start+c.batchSize, len(inputs))
		g.Go(func() error {
			batch, err := c.embedder.Embed(gctx, inputs[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedding count mismatch: have %d texts, %d embeddings", end-start, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}

	dim := len(vectors[0])
	for i, vec := range vectors {
		if len(vec) == 0 || len(vec) != dim {
			return nil, fmt.Errorf("%w: inconsistent embedding dimension at %d", ErrEmbeddingService, i)
		}
	}

	return vectors, nil
}

// EmbedOne embeds a single bare text such as a question.
func (c *ChunkEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not configured", ErrEmbeddingService)
	}
	vectors, err := c.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: embed text: %w", ErrEmbeddingService, err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector", ErrEmbeddingService)
	}
	return vectors[0], nil
}

// Contextualize prefixes text with the section tag and heading from meta.
func Contextualize(text string, meta map[string]any) string {
	if len(meta) == 0 {
		return text
	}

	var parts []string
	if section, ok := meta["type"].(string); ok && section != "" {
		parts = append(parts, "[section: "+section+"]")
	}
	if heading, ok := meta["heading"].(string); ok && strings.TrimSpace(heading) != "" {
		parts = append(parts, "[heading: "+strings.TrimSpace(heading)+"]")
	}
	if len(parts) == 0 {
		return text
	}
	return strings.Join(parts, " ") + "\n" + text
}
