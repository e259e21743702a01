package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/policynth/config"
)

// lengthEmbedder maps each text to a one-dimensional vector holding its length.
type lengthEmbedder struct {
	mu     sync.Mutex
	seen   []string
	calls  int
	failOn string
}

func (e *lengthEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if e.failOn != "" && strings.Contains(text, e.failOn) {
			return nil, errors.New("quota exceeded")
		}
		e.seen = append(e.seen, text)
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

var _ Embedder = (*lengthEmbedder)(nil)

func TestNewEmbedderOpenAIRequiresKey(t *testing.T) {
	cfg := config.Config{Embeddings: config.EmbeddingConfig{Provider: config.ProviderOpenAI}}
	_, err := NewEmbedder(cfg)
	require.Error(t, err)
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	cfg := config.Config{Embeddings: config.EmbeddingConfig{Provider: config.ProviderAnthropic}}
	_, err := NewEmbedder(cfg)
	require.Error(t, err)
}

func TestContextualize(t *testing.T) {
	got := Contextualize("Thirty days grace.", map[string]any{"type": "conditions", "heading": " Premium Payment "})
	assert.Equal(t, "[section: conditions] [heading: Premium Payment]\nThirty days grace.", got)
	assert.Equal(t, "plain", Contextualize("plain", nil))
	assert.Equal(t, "plain", Contextualize("plain", map[string]any{"source": "x"}))
}

func TestEmbedChunksPreservesOrderAcrossBatches(t *testing.T) {
	inner := &lengthEmbedder{}
	svc := NewChunkEmbedder(inner, 2, 3)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := svc.EmbedChunks(context.Background(), texts, nil)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0])
	}
	assert.Equal(t, 3, inner.calls)
}

func TestEmbedChunksUsesContext(t *testing.T) {
	inner := &lengthEmbedder{}
	svc := NewChunkEmbedder(inner, 10, 1)

	_, err := svc.EmbedChunks(context.Background(), []string{"body"}, []map[string]any{{"type": "exclusions"}})
	require.NoError(t, err)
	require.Len(t, inner.seen, 1)
	assert.True(t, strings.HasPrefix(inner.seen[0], "[section: exclusions]"))
}

func TestEmbedChunksWrapsFailures(t *testing.T) {
	svc := NewChunkEmbedder(&lengthEmbedder{failOn: "boom"}, 1, 2)
	_, err := svc.EmbedChunks(context.Background(), []string{"ok", "boom"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmbeddingService))
}

func TestEmbedOne(t *testing.T) {
	svc := NewChunkEmbedder(&lengthEmbedder{}, 0, 0)
	vec, err := svc.EmbedOne(context.Background(), "what is the grace period?")
	require.NoError(t, err)
	assert.Len(t, vec, 1)

	_, err = NewChunkEmbedder(nil, 0, 0).EmbedOne(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmbeddingService)
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaResponse{Embedding: []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	ok := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "nomic", Dimension: 2})
	vecs, err := ok.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)

	bad := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "nomic", Dimension: 3})
	_, err = bad.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
}

func TestOllamaEmbedderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(Options{OllamaHost: srv.URL}).Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such model")
}
