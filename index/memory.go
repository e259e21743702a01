package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fabfab/policynth/document"
)

// MemoryIndex is a brute-force cosine index kept in insertion order.
type MemoryIndex struct {
	mu        sync.RWMutex
	chunks    []document.Chunk
	positions map[int]int
	dimension int
	closed    bool
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{positions: make(map[int]int)}
}

func (m *MemoryIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chunks = nil
	m.positions = make(map[int]int)
	m.dimension = 0
	return nil
}

// Upsert replaces chunks with the same Index and appends new ones.
func (m *MemoryIndex) Upsert(_ context.Context, chunks []document.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%w: index closed", ErrUnavailable)
	}

	dim := m.dimension
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d has no embedding", ErrUnavailable, chunk.Index)
		}
		if dim == 0 {
			dim = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != dim {
			return fmt.Errorf("%w: chunk %d dimension %d, index dimension %d", ErrUnavailable, chunk.Index, len(chunk.Embedding), dim)
		}
	}

	m.dimension = dim
	for _, chunk := range chunks {
		if pos, ok := m.positions[chunk.Index]; ok {
			m.chunks[pos] = chunk
			continue
		}
		m.positions[chunk.Index] = len(m.chunks)
		m.chunks = append(m.chunks, chunk)
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("%w: index closed", ErrUnavailable)
	}
	if len(m.chunks) == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", ErrUnavailable, len(vector), m.dimension)
	}

	hits := make([]Hit, len(m.chunks))
	for i, chunk := range m.chunks {
		hits[i] = Hit{Chunk: chunk, Similarity: Cosine(vector, chunk.Embedding)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Chunk.Index < hits[j].Chunk.Index
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.chunks = nil
	m.positions = nil
	return nil
}

// MemoryProvider returns a fresh MemoryIndex for every namespace.
type MemoryProvider struct{}

func (MemoryProvider) Open(_ context.Context, _ string) (Index, error) {
	return NewMemoryIndex(), nil
}

var (
	_ Index    = (*MemoryIndex)(nil)
	_ Provider = MemoryProvider{}
)
